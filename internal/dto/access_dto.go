package dto

import (
	"time"

	"github.com/noah-isme/gema-access-api/internal/models"
)

// CheckInRequest is submitted by the access point when a student presents their document.
type CheckInRequest struct {
	Document string `json:"document" validate:"required,min=1,max=50"`
	Notes    string `json:"notes" validate:"omitempty,max=500"`
}

// StudentResponse is the public view of a student.
type StudentResponse struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	Document string `json:"document"`
}

// PlanResponse is the public view of a plan.
type PlanResponse struct {
	ID             uint      `json:"id"`
	Name           string    `json:"name"`
	MonthlyEntries int       `json:"monthly_entries"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// EnrollmentResponse describes a student's plan enrollment.
type EnrollmentResponse struct {
	ID        uint         `json:"id"`
	StudentID uint         `json:"student_id"`
	PlanID    uint         `json:"plan_id"`
	StartDate time.Time    `json:"start_date"`
	EndDate   time.Time    `json:"end_date"`
	Active    bool         `json:"active"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Plan      PlanResponse `json:"plan"`
}

// AccessDecisionResponse is returned for every check-in attempt, allowed or not.
type AccessDecisionResponse struct {
	Outcome    string              `json:"outcome"`
	Reason     string              `json:"reason,omitempty"`
	Student    StudentResponse     `json:"student"`
	Enrollment *EnrollmentResponse `json:"enrollment,omitempty"`
	Remaining  int                 `json:"remaining"`
	AccessTime *time.Time          `json:"access_time,omitempty"`
}

// EntitlementStatusResponse reports entitlement state without charging.
type EntitlementStatusResponse struct {
	StudentID  uint                `json:"student_id"`
	Enrollment *EnrollmentResponse `json:"enrollment"`
	Month      int                 `json:"month"`
	Year       int                 `json:"year"`
	Used       int64               `json:"used"`
	Remaining  int                 `json:"remaining"`
}

// NewStudentResponse converts a student model.
func NewStudentResponse(student models.Student) StudentResponse {
	return StudentResponse{
		ID:       student.ID,
		Name:     student.Name,
		Document: student.Document,
	}
}

// NewPlanResponse converts a plan model.
func NewPlanResponse(plan models.Plan) PlanResponse {
	return PlanResponse{
		ID:             plan.ID,
		Name:           plan.Name,
		MonthlyEntries: plan.MonthlyEntries,
		CreatedAt:      plan.CreatedAt,
		UpdatedAt:      plan.UpdatedAt,
	}
}

// NewEnrollmentResponse converts an enrollment, returning nil for a nil input.
func NewEnrollmentResponse(enrollment *models.Enrollment) *EnrollmentResponse {
	if enrollment == nil {
		return nil
	}
	return &EnrollmentResponse{
		ID:        enrollment.ID,
		StudentID: enrollment.StudentID,
		PlanID:    enrollment.PlanID,
		StartDate: enrollment.StartDate,
		EndDate:   enrollment.EndDate,
		Active:    enrollment.Active,
		CreatedAt: enrollment.CreatedAt,
		UpdatedAt: enrollment.UpdatedAt,
		Plan:      NewPlanResponse(enrollment.Plan),
	}
}
