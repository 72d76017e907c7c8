package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/chopchop-backend/models"
	"github.com/yeremiapane/chopchop-backend/notify"
	"github.com/yeremiapane/chopchop-backend/status"
	"github.com/yeremiapane/chopchop-backend/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/yeremiapane/chopchop-backend/services"

// Sources of a status change, stored on each tracking record.
const (
	SourceCheckout  = "checkout"
	SourceWebhook   = "webhook"
	SourceSync      = "sync"
	SourceDashboard = "dashboard"
	SourcePayment   = "payment"
)

const (
	defaultCustomerName    = "ChopChop Customer"
	defaultCustomerEmail   = "customer@chopchop.com"
	defaultCustomerAddress = "No address provided"
	platformName           = "ChopChop"
)

// CacheInvalidator is notified after every local write.
type CacheInvalidator interface {
	ClearCache()
}

// OrderSyncService writes orders and keeps the global, vendor and customer
// copies of an order in step.
type OrderSyncService struct {
	store     *OrderStore
	resolver  *VendorResolver
	projector *ProjectionWorker
	publisher notify.Publisher
	Cache     CacheInvalidator
	Now       func() time.Time

	tracer   trace.Tracer
	codeMu   sync.Mutex
	lastCode int64
}

func NewOrderSyncService(store *OrderStore, resolver *VendorResolver, projector *ProjectionWorker, publisher notify.Publisher) *OrderSyncService {
	if publisher == nil {
		publisher = notify.NopPublisher{}
	}
	return &OrderSyncService{
		store:     store,
		resolver:  resolver,
		projector: projector,
		publisher: publisher,
		Now:       func() time.Time { return time.Now().UTC() },
		tracer:    otel.Tracer(tracerName),
	}
}

func (s *OrderSyncService) table() *status.Table {
	return s.store.Transformer().Table()
}

type PlaceOrderItem struct {
	Title     string   `json:"title"`
	Quantity  int      `json:"quantity"`
	Price     float64  `json:"price"`
	Variation string   `json:"variation,omitempty"`
	Addons    []string `json:"addons,omitempty"`
}

type DeliveryAddress struct {
	DeliveryAddress string   `json:"deliveryAddress"`
	Latitude        *float64 `json:"latitude,omitempty"`
	Longitude       *float64 `json:"longitude,omitempty"`
}

type PlaceOrderInput struct {
	RestaurantID   string           `json:"restaurantId"`
	RestaurantName string           `json:"restaurantName"`
	Items          []PlaceOrderItem `json:"items"`
	PaymentMethod  string           `json:"paymentMethod"`
	Address        DeliveryAddress  `json:"address"`
	Customer       models.Customer  `json:"customer"`
	DeliveryFee    float64          `json:"deliveryCharges"`
	Tip            float64          `json:"tipping"`
	Tax            float64          `json:"taxationAmount"`
	Instructions   string           `json:"instructions"`
	IsPickedUp     bool             `json:"isPickedUp"`
}

func (in PlaceOrderInput) Validate() error {
	if strings.TrimSpace(in.RestaurantID) == "" {
		return validationError("restaurantId is required")
	}
	if len(in.Items) == 0 {
		return validationError("at least one item is required")
	}
	for i, it := range in.Items {
		if strings.TrimSpace(it.Title) == "" {
			return validationError("item %d: title is required", i)
		}
		if it.Quantity <= 0 {
			return validationError("item %d: quantity must be positive", i)
		}
		if it.Price < 0 {
			return validationError("item %d: price must not be negative", i)
		}
	}
	if strings.TrimSpace(in.PaymentMethod) == "" {
		return validationError("paymentMethod is required")
	}
	if in.DeliveryFee < 0 || in.Tip < 0 || in.Tax < 0 {
		return validationError("charges must not be negative")
	}
	return nil
}

type PlaceOrderResult struct {
	OrderID     string   `json:"orderId"`
	OrderStatus string   `json:"orderStatus"`
	Total       float64  `json:"total"`
	DocumentID  string   `json:"firebaseId"`
	VendorIDs   []string `json:"vendorIds"`
	Broadcast   bool     `json:"broadcast"`
}

// StatusForPaymentMethod returns the vendor status a new order starts in.
// Cash orders are confirmed at once; electronic payments wait for payment.
func StatusForPaymentMethod(method string) string {
	switch strings.ToUpper(strings.TrimSpace(method)) {
	case "CASH":
		return status.VendorConfirmed
	case "CARD", "WALLET", "BANK":
		return status.VendorPendingPayment
	}
	return status.VendorPending
}

// nextOrderCode returns "CC<millis>", bumped past the previous code when two
// orders land in the same millisecond.
func (s *OrderSyncService) nextOrderCode(now time.Time) string {
	s.codeMu.Lock()
	defer s.codeMu.Unlock()
	ms := now.UnixMilli()
	if ms <= s.lastCode {
		ms = s.lastCode + 1
	}
	s.lastCode = ms
	return fmt.Sprintf("CC%d", ms)
}

// PlaceOrder writes the global order and queues its vendor and customer
// copies in one transaction, then projects them. Nothing is written when
// no vendor serves the restaurant.
func (s *OrderSyncService) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*PlaceOrderResult, error) {
	ctx, span := s.tracer.Start(ctx, "OrderSyncService.PlaceOrder")
	defer span.End()

	if err := in.Validate(); err != nil {
		return nil, err
	}

	resolution, err := s.resolver.Resolve(ctx, in.RestaurantID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	now := s.Now()
	orderCode := s.nextOrderCode(now)
	orderStatus := StatusForPaymentMethod(in.PaymentMethod)
	mapping := s.table().Map(orderStatus)

	var subtotal float64
	items := make([]interface{}, 0, len(in.Items))
	for _, it := range in.Items {
		subtotal += it.Price * float64(it.Quantity)
		addons := it.Addons
		if addons == nil {
			addons = []string{}
		}
		items = append(items, map[string]interface{}{
			"title":     it.Title,
			"quantity":  it.Quantity,
			"price":     it.Price,
			"variation": it.Variation,
			"addons":    addons,
		})
	}
	orderAmount := subtotal + in.DeliveryFee + in.Tip + in.Tax

	customer := in.Customer
	if customer.Name == "" {
		customer.Name = defaultCustomerName
	}
	customerID := strings.ToLower(strings.TrimSpace(customer.Email))
	if customer.Email == "" {
		customer.Email = defaultCustomerEmail
		customerID = fmt.Sprintf("customer-%d", now.UnixMilli())
	}
	if customer.Address == "" {
		customer.Address = in.Address.DeliveryAddress
	}
	if customer.Address == "" {
		customer.Address = defaultCustomerAddress
	}

	body := map[string]interface{}{
		"orderId":         orderCode,
		"restaurantId":    in.RestaurantID,
		"restaurantName":  in.RestaurantName,
		"orderStatus":     orderStatus,
		"status":          string(mapping.Lifecycle),
		"deliveryStatus":  string(mapping.Delivery),
		"paymentMethod":   in.PaymentMethod,
		"subtotal":        subtotal,
		"orderAmount":     orderAmount,
		"paidAmount":      0.0,
		"deliveryCharges": in.DeliveryFee,
		"tipping":         in.Tip,
		"taxationAmount":  in.Tax,
		"orderDate":       now.Format(time.RFC3339Nano),
		"createdAt":       now.Format(time.RFC3339Nano),
		"isPickedUp":      in.IsPickedUp,
		"items":           items,
		"customerId":      customerID,
		"customer": map[string]interface{}{
			"name":    customer.Name,
			"email":   customer.Email,
			"phone":   customer.Phone,
			"address": customer.Address,
		},
		"vendorNotified": false,
		"orderType":      "delivery",
		"platform":       platformName,
	}
	if in.Address.DeliveryAddress != "" {
		body["deliveryAddress"] = in.Address.DeliveryAddress
	}
	if in.Address.Latitude != nil {
		body["deliveryLatitude"] = *in.Address.Latitude
	}
	if in.Address.Longitude != nil {
		body["deliveryLongitude"] = *in.Address.Longitude
	}
	if in.Instructions != "" {
		body["instructions"] = in.Instructions
	}

	var doc *models.Document
	err = s.store.Transaction(ctx, func(tx *OrderStore) error {
		d, err := tx.Insert(ctx, models.CollectionOrders, body)
		if err != nil {
			return err
		}
		doc = d

		first := models.TrackingUpdate{
			Status:    string(mapping.Delivery),
			Message:   mapping.Message,
			Timestamp: now,
			Location:  in.RestaurantName,
		}
		if err := tx.AppendTrackingUpdate(ctx, d, first, SourceCheckout); err != nil {
			return err
		}

		for _, vendorID := range resolution.VendorIDs {
			for _, kind := range []string{models.ProjectionVendorOrder, models.ProjectionCustomerOrder} {
				job := &models.ProjectionJob{
					Kind:           kind,
					OrderDocID:     d.ID,
					OrderRef:       orderCode,
					VendorID:       vendorID,
					IdempotencyKey: ProjectionKey(kind, orderCode, vendorID),
					NextAttemptAt:  now,
				}
				if err := tx.EnqueueProjection(ctx, job); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "place order failed")
		return nil, err
	}

	log := utils.InfoLogger.WithFields(logrus.Fields{
		"order_id":    orderCode,
		"document_id": doc.ID,
		"vendors":     len(resolution.VendorIDs),
	})
	log.Info("Order placed")
	span.SetAttributes(attribute.String("order.id", orderCode), attribute.Int("order.vendors", len(resolution.VendorIDs)))

	if s.projector != nil {
		if _, err := s.projector.Drain(ctx); err != nil {
			// the jobs stay queued for the background worker
			log.WithError(err).Warn("Projection drain failed after checkout")
		}
	}

	s.afterWrite(ctx, notify.Event{
		Type:           notify.EventOrderPlaced,
		OrderID:        orderCode,
		DocumentID:     doc.ID,
		VendorIDs:      resolution.VendorIDs,
		CustomerID:     customerID,
		Status:         orderStatus,
		DeliveryStatus: string(mapping.Delivery),
		Message:        mapping.Message,
		Source:         SourceCheckout,
		OccurredAt:     now,
	})

	return &PlaceOrderResult{
		OrderID:     orderCode,
		OrderStatus: orderStatus,
		Total:       orderAmount,
		DocumentID:  doc.ID,
		VendorIDs:   resolution.VendorIDs,
		Broadcast:   resolution.Broadcast,
	}, nil
}

// ProjectionKey is the idempotency key of one projected copy.
func ProjectionKey(kind, orderID, vendorID string) string {
	return kind + ":" + orderID + ":" + vendorID
}

// StatusChange is a vendor status event from any source.
type StatusChange struct {
	OrderID        string
	Status         string
	VendorID       string
	RestaurantID   string
	RestaurantName string
	Rider          *models.Rider
	Message        string
	Location       string
	PaidAmount     *float64
	Timestamp      time.Time
	Source         string
}

type StatusChangeResult struct {
	OrderID         string         `json:"orderId"`
	Mapping         status.Mapping `json:"mapping"`
	GlobalCreated   bool           `json:"globalCreated"`
	GlobalUpdated   int            `json:"globalUpdated"`
	CustomerUpdated int            `json:"customerUpdated"`
	VendorUpdated   int            `json:"vendorUpdated"`
}

// ApplyStatusChange maps the vendor status and updates every copy of the
// order. Each global and customer copy gets exactly one new tracking entry,
// so replaying the same event appends again. A missing global order is
// created from the event.
func (s *OrderSyncService) ApplyStatusChange(ctx context.Context, change StatusChange) (*StatusChangeResult, error) {
	ctx, span := s.tracer.Start(ctx, "OrderSyncService.ApplyStatusChange",
		trace.WithAttributes(
			attribute.String("order.id", change.OrderID),
			attribute.String("order.status", change.Status),
			attribute.String("change.source", change.Source),
		))
	defer span.End()

	change.OrderID = strings.TrimSpace(change.OrderID)
	change.Status = strings.TrimSpace(change.Status)
	if change.OrderID == "" || change.Status == "" {
		return nil, validationError("Missing required fields: orderId, status")
	}

	mapping := s.table().Map(change.Status)
	now := s.Now()
	if change.Timestamp.IsZero() {
		change.Timestamp = now
	}
	message := change.Message
	if message == "" {
		message = mapping.Message
	}

	log := utils.InfoLogger.WithFields(logrus.Fields{
		"order_id": change.OrderID,
		"status":   change.Status,
		"source":   change.Source,
	})
	if !mapping.Known {
		log.Warn("Unknown vendor status, defaulting to order_received")
	}

	vendors := s.vendorFilter(ctx, change, log)

	update := models.TrackingUpdate{
		Status:    string(mapping.Delivery),
		Message:   message,
		Timestamp: change.Timestamp,
		Location:  change.Location,
	}

	result := &StatusChangeResult{OrderID: change.OrderID, Mapping: mapping}
	err := s.store.Transaction(ctx, func(tx *OrderStore) error {
		globals, err := tx.FindByOrderRef(ctx, models.CollectionOrders, change.OrderID)
		if err != nil {
			return err
		}

		if len(globals) == 0 {
			log.Warn("Order not found, creating new record")
			body := map[string]interface{}{
				"orderId":        change.OrderID,
				"orderStatus":    change.Status,
				"status":         string(mapping.Lifecycle),
				"deliveryStatus": string(mapping.Delivery),
				"restaurantId":   change.RestaurantID,
				"eateryName":     change.RestaurantName,
				"platform":       platformName,
			}
			if change.Rider != nil {
				body["riderInfo"] = change.Rider
			}
			doc, err := tx.Insert(ctx, models.CollectionOrders, body)
			if err != nil {
				return err
			}
			if err := tx.AppendTrackingUpdate(ctx, doc, update, change.Source); err != nil {
				return err
			}
			result.GlobalCreated = true
		}

		for i := range globals {
			doc := &globals[i]
			s.warnIfTerminal(tx, doc, log)
			patch := statusPatch(change, mapping)
			if change.RestaurantID != "" {
				patch["restaurantId"] = change.RestaurantID
			}
			if change.RestaurantName != "" {
				patch["eateryName"] = change.RestaurantName
			}
			if err := tx.Patch(ctx, doc, patch); err != nil {
				return err
			}
			if err := tx.AppendTrackingUpdate(ctx, doc, update, change.Source); err != nil {
				return err
			}
			result.GlobalUpdated++
		}

		customers, err := tx.FindByOrderRef(ctx, models.CollectionCustomerOrders, change.OrderID)
		if err != nil {
			return err
		}
		for i := range customers {
			doc := &customers[i]
			if vendors != nil && !vendors[doc.VendorRef] {
				continue
			}
			patch := statusPatch(change, mapping)
			patch["statusMessage"] = message
			patch["estimatedDeliveryTime"] = mapping.ETA()
			if err := tx.Patch(ctx, doc, patch); err != nil {
				return err
			}
			if err := tx.AppendTrackingUpdate(ctx, doc, update, change.Source); err != nil {
				return err
			}
			result.CustomerUpdated++
		}

		copies, err := tx.Find(ctx, DocumentQuery{VendorCopies: true, OrderRef: change.OrderID})
		if err != nil {
			return err
		}
		for i := range copies {
			doc := &copies[i]
			vendorID, _ := models.VendorFromCollection(doc.Collection)
			if vendors != nil && !vendors[vendorID] {
				continue
			}
			if err := tx.Patch(ctx, doc, statusPatch(change, mapping)); err != nil {
				return err
			}
			result.VendorUpdated++
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "status change failed")
		log.WithError(err).Error("Failed to apply status change")
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"delivery_status":  mapping.Delivery,
		"global_updated":   result.GlobalUpdated,
		"customer_updated": result.CustomerUpdated,
		"vendor_updated":   result.VendorUpdated,
	}).Info("Order status updated")

	s.afterWrite(ctx, notify.Event{
		Type:           notify.EventOrderStatus,
		OrderID:        change.OrderID,
		Status:         change.Status,
		DeliveryStatus: string(mapping.Delivery),
		Message:        message,
		Source:         change.Source,
		OccurredAt:     now,
	})
	return result, nil
}

// vendorFilter returns the vendor ids whose copies a change applies to, or
// nil when every copy of the order should be updated.
func (s *OrderSyncService) vendorFilter(ctx context.Context, change StatusChange, log *logrus.Entry) map[string]bool {
	if change.VendorID != "" {
		return map[string]bool{change.VendorID: true}
	}
	if change.RestaurantID == "" {
		return nil
	}
	res, err := s.resolver.Resolve(ctx, change.RestaurantID)
	if err != nil {
		log.WithError(err).Warn("Could not resolve vendor for status change, updating all copies")
		return nil
	}
	out := make(map[string]bool, len(res.VendorIDs))
	for _, id := range res.VendorIDs {
		out[id] = true
	}
	return out
}

func (s *OrderSyncService) warnIfTerminal(tx *OrderStore, doc *models.Document, log *logrus.Entry) {
	current := tx.Transformer().TransformJSON(doc.ID, doc.Body, doc.CreatedAt)
	if status.IsTerminal(status.LifecycleStatus(current.Status)) {
		log.WithFields(logrus.Fields{
			"document_id":    doc.ID,
			"current_status": current.Status,
		}).Warn("Updating an order that already reached a terminal status")
	}
}

func statusPatch(change StatusChange, mapping status.Mapping) map[string]interface{} {
	patch := map[string]interface{}{
		"orderStatus":    change.Status,
		"status":         string(mapping.Lifecycle),
		"deliveryStatus": string(mapping.Delivery),
	}
	if change.Rider != nil {
		patch["riderInfo"] = change.Rider
	}
	if change.PaidAmount != nil {
		patch["paidAmount"] = *change.PaidAmount
	}
	return patch
}

// ConfirmPayment records a completed payment and confirms the order.
func (s *OrderSyncService) ConfirmPayment(ctx context.Context, orderID string, paidAmount float64, reference string) (*StatusChangeResult, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, validationError("orderId is required")
	}
	if paidAmount < 0 {
		return nil, validationError("paidAmount must not be negative")
	}
	globals, err := s.store.FindByOrderRef(ctx, models.CollectionOrders, orderID)
	if err != nil {
		return nil, err
	}
	if len(globals) == 0 {
		return nil, ErrOrderNotFound
	}

	msg := "Payment received, order confirmed"
	if reference != "" {
		msg = fmt.Sprintf("%s (ref %s)", msg, reference)
	}
	return s.ApplyStatusChange(ctx, StatusChange{
		OrderID:    orderID,
		Status:     status.VendorConfirmed,
		PaidAmount: &paidAmount,
		Message:    msg,
		Source:     SourcePayment,
	})
}

func (s *OrderSyncService) afterWrite(ctx context.Context, evt notify.Event) {
	if s.Cache != nil {
		s.Cache.ClearCache()
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		utils.ErrorLogger.WithFields(logrus.Fields{
			"order_id": evt.OrderID,
			"event":    evt.Type,
		}).WithError(err).Error("Failed to publish order event")
	}
}
