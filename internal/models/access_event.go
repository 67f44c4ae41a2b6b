package models

import "time"

// AccessEvent records one granted pass-through charged against an enrollment.
// Rows are append-only.
type AccessEvent struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	StudentID    uint      `gorm:"not null;index" json:"student_id"`
	EnrollmentID uint      `gorm:"column:student_plan_id;not null;index:idx_access_logs_enrollment_time,priority:1" json:"enrollment_id"`
	AccessTime   time.Time `gorm:"not null;index:idx_access_logs_enrollment_time,priority:2" json:"access_time"`
	Notes        string    `gorm:"type:text" json:"notes"`
}

// TableName keeps the historical table name.
func (AccessEvent) TableName() string {
	return "access_logs"
}
