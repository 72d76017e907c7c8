package models

import "time"

// TrackingUpdate is one entry of an order's delivery history.
type TrackingUpdate struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Location  string    `json:"location,omitempty"`
}

// TrackingUpdateRecord is the stored form of a TrackingUpdate. Rows are only
// ever inserted.
type TrackingUpdateRecord struct {
	ID         uint      `gorm:"primaryKey"`
	DocumentID string    `gorm:"type:varchar(64);not null;index"`
	Status     string    `gorm:"type:varchar(50);not null"`
	Message    string    `gorm:"type:varchar(255);not null"`
	Location   string    `gorm:"type:varchar(255)"`
	Source     string    `gorm:"type:varchar(20)"`
	Timestamp  time.Time `gorm:"not null"`
}

func (r TrackingUpdateRecord) ToUpdate() TrackingUpdate {
	return TrackingUpdate{
		Status:    r.Status,
		Message:   r.Message,
		Timestamp: r.Timestamp,
		Location:  r.Location,
	}
}
