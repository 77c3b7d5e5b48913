package model

import "time"

// PushSubscription holds the information for a browser push subscription.
// A zero FacilityID receives alerts for every facility.
type PushSubscription struct {
	Endpoint   string    `gorm:"primaryKey"`
	P256DH     string    `gorm:"column:p256dh;not null"`
	Auth       string    `gorm:"not null"`
	FacilityID int64     `gorm:"index;not null;default:0"`
	CreatedAt  time.Time `gorm:"not null"`
}
