package dto

import (
	"time"

	"github.com/noah-isme/gema-access-api/internal/models"
)

// AccessEventResponse describes one recorded access.
type AccessEventResponse struct {
	ID           uint      `json:"id"`
	EnrollmentID uint      `json:"enrollment_id"`
	AccessTime   time.Time `json:"access_time"`
	Notes        string    `json:"notes"`
}

// StudentReportResponse summarises a student's entitlement and access history.
type StudentReportResponse struct {
	Student           StudentResponse       `json:"student"`
	CurrentEnrollment *EnrollmentResponse   `json:"current_enrollment"`
	TotalAccesses     int                   `json:"total_accesses"`
	RemainingAccesses int                   `json:"remaining_accesses"`
	AccessLogs        []AccessEventResponse `json:"access_logs"`
	GeneratedAt       time.Time             `json:"generated_at"`
	CacheHit          bool                  `json:"cache_hit"`
}

// PlanEnrollmentUsage pairs an enrollment of a plan with this month's usage.
type PlanEnrollmentUsage struct {
	Enrollment      EnrollmentResponse `json:"enrollment"`
	Student         *StudentResponse   `json:"student,omitempty"`
	MonthlyAccesses int64              `json:"monthly_accesses"`
}

// PlanReportResponse summarises usage of a plan across its enrollments.
type PlanReportResponse struct {
	Plan           PlanResponse          `json:"plan"`
	ActiveStudents int64                 `json:"active_students"`
	TotalAccesses  int64                 `json:"total_accesses"`
	Enrollments    []PlanEnrollmentUsage `json:"enrollments"`
	GeneratedAt    time.Time             `json:"generated_at"`
}

// NewAccessEventResponse converts an access event model.
func NewAccessEventResponse(event models.AccessEvent) AccessEventResponse {
	return AccessEventResponse{
		ID:           event.ID,
		EnrollmentID: event.EnrollmentID,
		AccessTime:   event.AccessTime,
		Notes:        event.Notes,
	}
}
