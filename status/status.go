// Package status holds the single status table used by every part of the
// order backend: vendor codes, the customer lifecycle and the delivery steps
// shown on the tracking page.
package status

import (
	"fmt"
	"strings"
)

// DeliveryStatus is the customer-facing delivery step.
type DeliveryStatus string

const (
	OrderReceived           DeliveryStatus = "order_received"
	Packaging               DeliveryStatus = "packaging"
	AwaitingDispatch        DeliveryStatus = "awaiting_dispatch"
	DispatchArrived         DeliveryStatus = "dispatch_arrived"
	Dispatched              DeliveryStatus = "dispatched"
	DispatchOnTheWay        DeliveryStatus = "dispatch_otw"
	DispatchArrivedLocation DeliveryStatus = "dispatch_arrived_location"
	Delivered               DeliveryStatus = "delivered"
)

// DeliverySteps lists the delivery statuses in the order a customer sees them.
var DeliverySteps = []DeliveryStatus{
	OrderReceived,
	Packaging,
	AwaitingDispatch,
	DispatchArrived,
	Dispatched,
	DispatchOnTheWay,
	DispatchArrivedLocation,
	Delivered,
}

// LifecycleStatus is the friendly order status stored on customer orders.
type LifecycleStatus string

const (
	LifecyclePending        LifecycleStatus = "Pending"
	LifecycleConfirmed      LifecycleStatus = "Confirmed"
	LifecyclePreparing      LifecycleStatus = "Preparing"
	LifecycleOutForDelivery LifecycleStatus = "Out for Delivery"
	LifecycleDelivered      LifecycleStatus = "Delivered"
	LifecycleCanceled       LifecycleStatus = "Canceled"
)

// LifecycleStatuses lists every lifecycle status in rank order.
var LifecycleStatuses = []LifecycleStatus{
	LifecyclePending,
	LifecycleConfirmed,
	LifecyclePreparing,
	LifecycleOutForDelivery,
	LifecycleDelivered,
	LifecycleCanceled,
}

var lifecycleRank = map[LifecycleStatus]int{
	LifecyclePending:        1,
	LifecycleConfirmed:      2,
	LifecyclePreparing:      3,
	LifecycleOutForDelivery: 4,
	LifecycleDelivered:      5,
	LifecycleCanceled:       6,
}

// Vendor codes as sent by Menuverse and written at checkout.
const (
	VendorPending        = "PENDING"
	VendorPendingPayment = "PENDING_PAYMENT"
	VendorConfirmed      = "CONFIRMED"
	VendorAccepted       = "ACCEPTED"
	VendorProcessing     = "PROCESSING"
	VendorPreparing      = "PREPARING"
	VendorReady          = "READY"
	VendorOutForDelivery = "OUT_FOR_DELIVERY"
	VendorDispatched     = "DISPATCHED"
	VendorDelivered      = "DELIVERED"
	VendorCompleted      = "COMPLETED"
	VendorCancelled      = "CANCELLED"
	VendorCanceled       = "CANCELED"
)

// Mapping is the result of looking a vendor status up in a Table.
type Mapping struct {
	VendorStatus string          `json:"vendorStatus"`
	Lifecycle    LifecycleStatus `json:"lifecycleStatus"`
	Delivery     DeliveryStatus  `json:"deliveryStatus"`
	Message      string          `json:"message"`
	Percent      int             `json:"progress"`
	ETAMinutes   int             `json:"etaMinutes"`
	Known        bool            `json:"known"`
}

// ETA renders the remaining delivery time the way the tracking page shows it.
func (m Mapping) ETA() string {
	if m.Delivery == Delivered {
		return "Delivered"
	}
	return fmt.Sprintf("%d minutes", m.ETAMinutes)
}

// NormalizeVendorStatus folds case, surrounding spaces, inner spaces and
// hyphens so "Out for Delivery" and "OUT_FOR_DELIVERY" look up the same entry.
func NormalizeVendorStatus(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return s
}

// IsValidDelivery reports whether d is one of DeliverySteps.
func IsValidDelivery(d DeliveryStatus) bool {
	for _, s := range DeliverySteps {
		if s == d {
			return true
		}
	}
	return false
}

// IsValidLifecycle reports whether l is a known lifecycle status.
func IsValidLifecycle(l LifecycleStatus) bool {
	_, ok := lifecycleRank[l]
	return ok
}

// LifecycleRank orders lifecycle statuses for the "status" sort. Unknown
// values sort last.
func LifecycleRank(l LifecycleStatus) int {
	if r, ok := lifecycleRank[l]; ok {
		return r
	}
	return len(lifecycleRank) + 1
}

// IsTerminal reports whether no further status change is expected.
func IsTerminal(l LifecycleStatus) bool {
	return l == LifecycleDelivered || l == LifecycleCanceled
}

// IsActive is the complement of IsTerminal for known lifecycle values.
func IsActive(l LifecycleStatus) bool {
	return IsValidLifecycle(l) && !IsTerminal(l)
}
