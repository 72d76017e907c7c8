package models

import (
	"time"
)

// DBChange is written alongside every document write and consumed by the
// change monitor.
type DBChange struct {
	ID          uint      `gorm:"primaryKey"`
	Collection  string    `gorm:"type:varchar(191);not null;index:idx_collection_action"`
	DocumentID  string    `gorm:"type:varchar(64);not null"`
	OrderRef    string    `gorm:"type:varchar(64)"`
	CustomerRef string    `gorm:"type:varchar(191)"`
	ActionType  string    `gorm:"type:varchar(10);not null;index:idx_collection_action"`
	ChangedAt   time.Time `gorm:"not null"`
	Processed   bool      `gorm:"default:false;index:idx_processed"`
}

const (
	ActionInsert = "INSERT"
	ActionUpdate = "UPDATE"
)
