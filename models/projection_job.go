package models

import "time"

// Projection job kinds.
const (
	ProjectionVendorOrder   = "vendor_order"
	ProjectionCustomerOrder = "customer_order"
)

// Projection job states.
const (
	JobPending = "pending"
	JobDone    = "done"
	JobFailed  = "failed"
)

// ProjectionJob is an outbox row: a vendor or customer copy that still has
// to be written for a placed order. IdempotencyKey is "kind:orderId:vendorId".
type ProjectionJob struct {
	ID             uint      `gorm:"primaryKey"`
	Kind           string    `gorm:"type:varchar(20);not null"`
	OrderDocID     string    `gorm:"type:varchar(64);not null;index"`
	OrderRef       string    `gorm:"type:varchar(64);not null"`
	VendorID       string    `gorm:"type:varchar(64);not null"`
	IdempotencyKey string    `gorm:"type:varchar(191);uniqueIndex;not null"`
	Status         string    `gorm:"type:varchar(10);not null;default:'pending';index:idx_job_due"`
	Attempts       int       `gorm:"not null;default:0"`
	NextAttemptAt  time.Time `gorm:"not null;index:idx_job_due"`
	LastError      string    `gorm:"type:text"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
