package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-access-api/internal/dto"
	"github.com/noah-isme/gema-access-api/internal/service"
	"github.com/noah-isme/gema-access-api/internal/utils"
)

const defaultCheckInNote = "access recorded automatically"

// AccessHandler serves gate check-ins.
type AccessHandler struct {
	service   service.EntitlementService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewAccessHandler constructs the access handler.
func NewAccessHandler(service service.EntitlementService, validate *validator.Validate, logger zerolog.Logger) *AccessHandler {
	return &AccessHandler{
		service:   service,
		validator: validate,
		logger:    logger.With().Str("component", "access_handler").Logger(),
	}
}

// Register wires access routes. Extra handlers, such as a rate limiter, run before check-in.
func (h *AccessHandler) Register(router fiber.Router, guards ...fiber.Handler) {
	handlers := append(append([]fiber.Handler{}, guards...), h.checkIn)
	router.Post("/check-in", handlers...)
}

func (h *AccessHandler) checkIn(c *fiber.Ctx) error {
	var payload dto.CheckInRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		if isValidationError(err) {
			return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", validationDetails(err))
		}
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	notes := payload.Notes
	if notes == "" {
		notes = defaultCheckInNote
	}

	decision, err := h.service.EvaluateAndChargeByDocument(c.UserContext(), payload.Document, notes)
	if err != nil {
		return respondServiceError(c, h.logger, err, "check-in failed")
	}

	response := newAccessDecisionResponse(decision)
	if decision.Allowed() {
		return utils.SendSuccess(c, "access granted", response)
	}

	return utils.Deny(c, fiber.StatusForbidden, string(decision.Reason), denyMessage(decision.Reason), response)
}

func newAccessDecisionResponse(decision service.Decision) dto.AccessDecisionResponse {
	response := dto.AccessDecisionResponse{
		Outcome:    string(decision.Outcome),
		Reason:     string(decision.Reason),
		Student:    dto.NewStudentResponse(decision.Student),
		Enrollment: dto.NewEnrollmentResponse(decision.Enrollment),
		Remaining:  decision.Remaining,
	}
	if decision.Event != nil {
		accessTime := decision.Event.AccessTime
		response.AccessTime = &accessTime
	}
	return response
}

func denyMessage(reason service.DenyReason) string {
	switch reason {
	case service.DenyReasonNoActiveEnrollment:
		return "student has no active plan"
	case service.DenyReasonQuotaExhausted:
		return "monthly access limit reached"
	default:
		return "access denied"
	}
}
