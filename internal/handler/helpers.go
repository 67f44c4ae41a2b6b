package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-access-api/internal/middleware"
	"github.com/noah-isme/gema-access-api/internal/service"
	"github.com/noah-isme/gema-access-api/internal/utils"
)

const storageUnavailableMessage = "service temporarily unavailable, try again"

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}

func parseIDParam(c *fiber.Ctx, key string) (uint, error) {
	raw := strings.TrimSpace(c.Params(key))
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(parsed), nil
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := middleware.RequestLogger(c, base)
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

func validationDetails(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	details := make(map[string]string, len(validationErrors))
	for _, fieldErr := range validationErrors {
		details[strings.ToLower(fieldErr.Field())] = fieldErr.Tag()
	}
	return details
}

// respondServiceError maps engine errors onto HTTP responses.
func respondServiceError(c *fiber.Ctx, logger zerolog.Logger, err error, action string) error {
	switch {
	case errors.Is(err, service.ErrStudentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "student not found")
	case errors.Is(err, service.ErrPlanNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "plan not found")
	case service.IsStorageError(err):
		requestLogger(logger, c).Error().Err(err).Msg(action)
		c.Set(fiber.HeaderRetryAfter, "1")
		return utils.SendError(c, fiber.StatusServiceUnavailable, storageUnavailableMessage)
	default:
		requestLogger(logger, c).Error().Err(err).Msg(action)
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
