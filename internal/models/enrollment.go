package models

import "time"

// Enrollment is a student's time-bounded membership in a plan.
//
// Active is a cached flag and may drift from the date range; use
// IsEffectivelyActive for decisions.
type Enrollment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	StudentID uint      `gorm:"not null;index:idx_enrollments_student_active,priority:1" json:"student_id"`
	Student   *Student  `gorm:"foreignKey:StudentID" json:"student,omitempty"`
	PlanID    uint      `gorm:"not null;index" json:"plan_id"`
	Plan      Plan      `gorm:"foreignKey:PlanID" json:"plan"`
	StartDate time.Time `gorm:"not null" json:"start_date"`
	EndDate   time.Time `gorm:"not null" json:"end_date"`
	Active    bool      `gorm:"not null;default:true;index:idx_enrollments_student_active,priority:2" json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName keeps the historical table name.
func (Enrollment) TableName() string {
	return "student_plans"
}

// IsEffectivelyActive reports whether the enrollment is flagged active and its
// date range contains now. Both bounds are inclusive.
func (e Enrollment) IsEffectivelyActive(now time.Time) bool {
	return e.Active && !now.Before(e.StartDate) && !now.After(e.EndDate)
}

// IsLapsed reports whether the enrollment's end date has passed.
func (e Enrollment) IsLapsed(now time.Time) bool {
	return e.EndDate.Before(now)
}
