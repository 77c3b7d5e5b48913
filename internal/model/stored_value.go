package model

import "time"

// StoredValue is one row of the console's durable key/value client state
// (auth token, role, facility, per-day demo counters).
type StoredValue struct {
	Key       string    `gorm:"primaryKey;size:128"`
	Value     string    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
