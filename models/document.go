package models

import (
	"fmt"
	"strings"
	"time"
)

// Collections of the document store.
const (
	CollectionOrders         = "orders"
	CollectionCustomerOrders = "customer-orders"
	CollectionEateries       = "eateries"
)

// VendorOrdersCollection is the per-vendor copy collection,
// "eateries/{vendorId}/orders".
func VendorOrdersCollection(vendorID string) string {
	return fmt.Sprintf("%s/%s/orders", CollectionEateries, vendorID)
}

// VendorFromCollection returns the vendor id of a per-vendor collection.
func VendorFromCollection(collection string) (string, bool) {
	if !strings.HasPrefix(collection, CollectionEateries+"/") || !strings.HasSuffix(collection, "/orders") {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(collection, CollectionEateries+"/"), "/orders")
	return id, id != ""
}

// Document is one JSON document of the order store. The indexed columns
// are copies of body fields used for lookups; Body stays the source of truth.
type Document struct {
	ID            string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Collection    string    `gorm:"type:varchar(191);not null;index:idx_collection_order" json:"collection"`
	OrderRef      string    `gorm:"type:varchar(64);index:idx_collection_order" json:"orderRef"`
	CustomerRef   string    `gorm:"type:varchar(191);index" json:"customerRef"`
	CustomerEmail string    `gorm:"type:varchar(191);index" json:"customerEmail"`
	VendorRef     string    `gorm:"type:varchar(64);index" json:"vendorRef"`
	ProjectionKey *string   `gorm:"type:varchar(191);uniqueIndex" json:"-"`
	Body          string    `gorm:"type:text;not null" json:"body"`
	CreatedAt     time.Time `gorm:"not null;index" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"not null" json:"updatedAt"`
}
