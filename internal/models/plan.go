package models

import "time"

// Plan is a named quota template. MonthlyEntries bounds the number of access
// events charged per calendar month to any enrollment of the plan.
type Plan struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Name           string    `gorm:"size:100;not null" json:"name"`
	MonthlyEntries int       `gorm:"not null" json:"monthly_entries"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
