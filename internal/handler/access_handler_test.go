package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-access-api/internal/dto"
	"github.com/noah-isme/gema-access-api/internal/handler"
	"github.com/noah-isme/gema-access-api/internal/models"
	"github.com/noah-isme/gema-access-api/internal/service"
)

type stubEntitlementService struct {
	decision     service.Decision
	status       service.EntitlementStatus
	err          error
	lastDocument string
	lastNotes    string
	lastStudent  uint
}

func (s *stubEntitlementService) EvaluateAndCharge(_ context.Context, studentID uint, notes string) (service.Decision, error) {
	s.lastStudent = studentID
	s.lastNotes = notes
	return s.decision, s.err
}

func (s *stubEntitlementService) EvaluateAndChargeByDocument(_ context.Context, document, notes string) (service.Decision, error) {
	s.lastDocument = document
	s.lastNotes = notes
	return s.decision, s.err
}

func (s *stubEntitlementService) ResolveAuthoritativeEnrollment(context.Context, uint) (*models.Enrollment, error) {
	return s.decision.Enrollment, s.err
}

func (s *stubEntitlementService) CountChargedEvents(context.Context, uint, time.Month, int) (int64, error) {
	return 0, s.err
}

func (s *stubEntitlementService) Status(_ context.Context, studentID uint) (service.EntitlementStatus, error) {
	s.lastStudent = studentID
	return s.status, s.err
}

func newAccessApp(svc service.EntitlementService) *fiber.App {
	app := fiber.New()
	validate := validator.New(validator.WithRequiredStructEnabled())
	handler.NewAccessHandler(svc, validate, zerolog.New(io.Discard)).Register(app.Group("/api/v1/access"))
	return app
}

func postCheckIn(t *testing.T, app *fiber.App, payload interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/access/check-in", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestAccessHandler_CheckInAllowed(t *testing.T) {
	accessTime := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	enrollment := &models.Enrollment{ID: 9, StudentID: 3, PlanID: 2, Plan: models.Plan{ID: 2, Name: "Basic", MonthlyEntries: 2}}
	svc := &stubEntitlementService{decision: service.Decision{
		Outcome:    service.OutcomeAllowed,
		Student:    models.Student{ID: 3, Name: "Ana", Document: "123"},
		Enrollment: enrollment,
		Remaining:  1,
		Event:      &models.AccessEvent{ID: 77, AccessTime: accessTime},
	}}

	resp := postCheckIn(t, newAccessApp(svc), dto.CheckInRequest{Document: "123"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload apiEnvelope[dto.AccessDecisionResponse]
	decodeResponse(t, resp, &payload)
	require.True(t, payload.Success)
	require.Equal(t, "access granted", payload.Message)
	require.Equal(t, "allowed", payload.Data.Outcome)
	require.Equal(t, 1, payload.Data.Remaining)
	require.Equal(t, uint(9), payload.Data.Enrollment.ID)
	require.NotNil(t, payload.Data.AccessTime)
	require.True(t, accessTime.Equal(*payload.Data.AccessTime))

	require.Equal(t, "123", svc.lastDocument)
	require.Equal(t, "access recorded automatically", svc.lastNotes)
}

func TestAccessHandler_CheckInDenied(t *testing.T) {
	cases := []struct {
		name   string
		reason service.DenyReason
	}{
		{name: "no enrollment", reason: service.DenyReasonNoActiveEnrollment},
		{name: "quota", reason: service.DenyReasonQuotaExhausted},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubEntitlementService{decision: service.Decision{
				Outcome: service.OutcomeDenied,
				Reason:  tc.reason,
				Student: models.Student{ID: 3},
			}}

			resp := postCheckIn(t, newAccessApp(svc), dto.CheckInRequest{Document: "123", Notes: "side gate"})
			require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

			var payload apiEnvelope[dto.AccessDecisionResponse]
			decodeResponse(t, resp, &payload)
			require.False(t, payload.Success)
			require.Equal(t, string(tc.reason), payload.Code)
			require.Equal(t, "denied", payload.Data.Outcome)
			require.Zero(t, payload.Data.Remaining)
			require.Equal(t, "side gate", svc.lastNotes)
		})
	}
}

func TestAccessHandler_CheckInErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		statusCode int
	}{
		{name: "unknown student", err: service.ErrStudentNotFound, statusCode: fiber.StatusNotFound},
		{name: "storage", err: &service.StorageError{Op: "charge access", Err: errors.New("timeout")}, statusCode: fiber.StatusServiceUnavailable},
		{name: "generic", err: errors.New("boom"), statusCode: fiber.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postCheckIn(t, newAccessApp(&stubEntitlementService{err: tc.err}), dto.CheckInRequest{Document: "123"})
			require.Equal(t, tc.statusCode, resp.StatusCode)
		})
	}
}

func TestAccessHandler_CheckInValidation(t *testing.T) {
	svc := &stubEntitlementService{}

	resp := postCheckIn(t, newAccessApp(svc), map[string]string{"notes": "no document"})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var payload apiEnvelope[map[string]interface{}]
	decodeResponse(t, resp, &payload)
	require.Equal(t, "required", payload.Details["document"])
	require.Empty(t, svc.lastDocument)
}
