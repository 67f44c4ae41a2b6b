package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-access-api/internal/service"
	"github.com/noah-isme/gema-access-api/internal/utils"
)

// ReportHandler serves usage reports.
type ReportHandler struct {
	service service.ReportService
	logger  zerolog.Logger
}

// NewReportHandler constructs the report handler.
func NewReportHandler(service service.ReportService, logger zerolog.Logger) *ReportHandler {
	return &ReportHandler{
		service: service,
		logger:  logger.With().Str("component", "report_handler").Logger(),
	}
}

// Register attaches report routes to the router group.
func (h *ReportHandler) Register(router fiber.Router) {
	router.Get("/students/:id", h.student)
	router.Get("/plans/:id", h.plan)
}

func (h *ReportHandler) student(c *fiber.Ctx) error {
	studentID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid student id")
	}

	report, err := h.service.StudentReport(c.UserContext(), studentID)
	if err != nil {
		return respondServiceError(c, h.logger, err, "failed to build student report")
	}

	return utils.SendSuccess(c, "student report", report)
}

func (h *ReportHandler) plan(c *fiber.Ctx) error {
	planID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid plan id")
	}

	report, err := h.service.PlanReport(c.UserContext(), planID)
	if err != nil {
		return respondServiceError(c, h.logger, err, "failed to build plan report")
	}

	return utils.SendSuccess(c, "plan report", report)
}
