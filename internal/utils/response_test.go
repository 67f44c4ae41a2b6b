package utils_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-access-api/internal/utils"
)

type envelope struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Code    string                 `json:"code"`
	Data    map[string]interface{} `json:"data"`
	Meta    map[string]interface{} `json:"meta"`
	Details map[string]string      `json:"details"`
}

func TestOKIncludesMetaAndDefaults(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return utils.OK(c, map[string]string{"outcome": "allowed"}, "", map[string]int{"page": 2})
	})

	payload := call(t, app, fiber.StatusOK)
	require.True(t, payload.Success)
	require.Equal(t, "success", payload.Message)
	require.Equal(t, "allowed", payload.Data["outcome"])
	require.Equal(t, float64(2), payload.Meta["page"])
}

func TestFailIncludesDetails(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", map[string]string{"document": "required"})
	})

	payload := call(t, app, fiber.StatusBadRequest)
	require.False(t, payload.Success)
	require.Equal(t, "invalid payload", payload.Message)
	require.Equal(t, "required", payload.Details["document"])
	require.Nil(t, payload.Data)
}

func TestDenyCarriesReasonCode(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return utils.Deny(c, fiber.StatusForbidden, "quota_exhausted", "", map[string]int{"remaining": 0})
	})

	payload := call(t, app, fiber.StatusForbidden)
	require.False(t, payload.Success)
	require.Equal(t, "denied", payload.Message)
	require.Equal(t, "quota_exhausted", payload.Code)
	require.Equal(t, float64(0), payload.Data["remaining"])
}

func TestSendErrorDefaultsMessage(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return utils.SendError(c, fiber.StatusServiceUnavailable, "")
	})

	payload := call(t, app, fiber.StatusServiceUnavailable)
	require.Equal(t, "error", payload.Message)
	require.Empty(t, payload.Code)
}

func call(t *testing.T, app *fiber.App, expectedStatus int) envelope {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, expectedStatus, resp.StatusCode)

	var payload envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload
}
