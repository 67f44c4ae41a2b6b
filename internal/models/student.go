package models

import "time"

// Student represents a person who checks in against a plan enrollment.
type Student struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Document  string    `gorm:"size:50;uniqueIndex;not null" json:"document"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
