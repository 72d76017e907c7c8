package models

import "time"

// OrderItem is one line of an order.
type OrderItem struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Quantity  int      `json:"quantity"`
	Price     float64  `json:"price"`
	Variation string   `json:"variation,omitempty"`
	Addons    []string `json:"addons"`
}

// Order is the normalized view of any order document (global, customer or
// vendor copy). Every field has a zero value; nothing is nil.
type Order struct {
	ID                    string           `json:"id"`
	OrderID               string           `json:"orderId"`
	Collection            string           `json:"-"`
	VendorID              string           `json:"eateryId"`
	RestaurantID          string           `json:"restaurantId"`
	RestaurantName        string           `json:"eateryName"`
	CustomerID            string           `json:"customerId"`
	Customer              Customer         `json:"customer"`
	Items                 []OrderItem      `json:"items"`
	Subtotal              float64          `json:"subtotal"`
	DeliveryFee           float64          `json:"deliveryCharges"`
	Tip                   float64          `json:"tipping"`
	Tax                   float64          `json:"taxationAmount"`
	TotalAmount           float64          `json:"totalAmount"`
	PaidAmount            float64          `json:"paidAmount"`
	PaymentMethod         string           `json:"paymentMethod"`
	VendorStatus          string           `json:"orderStatus"`
	Status                string           `json:"status"`
	DeliveryStatus        string           `json:"deliveryStatus"`
	StatusMessage         string           `json:"statusMessage"`
	Progress              int              `json:"progress"`
	EstimatedDeliveryTime string           `json:"estimatedDeliveryTime"`
	Instructions          string           `json:"instructions"`
	Rider                 Rider            `json:"riderInfo"`
	Platform              string           `json:"platform"`
	CreatedAt             time.Time        `json:"createdAt"`
	UpdatedAt             time.Time        `json:"updatedAt"`
	TrackingUpdates       []TrackingUpdate `json:"trackingUpdates"`
}

// TrackingView is the tracking-page summary of an order.
type TrackingView struct {
	OrderID               string           `json:"orderId"`
	Status                string           `json:"status"`
	DeliveryStatus        string           `json:"deliveryStatus"`
	Message               string           `json:"message"`
	Progress              int              `json:"progress"`
	EstimatedDeliveryTime string           `json:"estimatedDeliveryTime"`
	Rider                 *Rider           `json:"riderInfo,omitempty"`
	TrackingUpdates       []TrackingUpdate `json:"trackingUpdates"`
}
