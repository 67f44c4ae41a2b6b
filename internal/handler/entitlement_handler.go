package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-access-api/internal/dto"
	"github.com/noah-isme/gema-access-api/internal/service"
	"github.com/noah-isme/gema-access-api/internal/utils"
)

// EntitlementHandler exposes read-only entitlement inspection for staff.
type EntitlementHandler struct {
	service service.EntitlementService
	logger  zerolog.Logger
}

// NewEntitlementHandler constructs the handler.
func NewEntitlementHandler(service service.EntitlementService, logger zerolog.Logger) *EntitlementHandler {
	return &EntitlementHandler{
		service: service,
		logger:  logger.With().Str("component", "entitlement_handler").Logger(),
	}
}

// Register attaches entitlement routes to the admin group.
func (h *EntitlementHandler) Register(router fiber.Router) {
	router.Get("/students/:id/entitlement", h.status)
}

func (h *EntitlementHandler) status(c *fiber.Ctx) error {
	studentID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid student id")
	}

	status, err := h.service.Status(c.UserContext(), studentID)
	if err != nil {
		return respondServiceError(c, h.logger, err, "failed to inspect entitlement")
	}

	return utils.SendSuccess(c, "entitlement status", dto.EntitlementStatusResponse{
		StudentID:  status.StudentID,
		Enrollment: dto.NewEnrollmentResponse(status.Enrollment),
		Month:      int(status.Month),
		Year:       status.Year,
		Used:       status.Used,
		Remaining:  status.Remaining,
	})
}
