package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/chopchop-backend/models"
	"github.com/yeremiapane/chopchop-backend/status"
	"github.com/yeremiapane/chopchop-backend/utils"
	"golang.org/x/sync/singleflight"
)

const DefaultCacheTTL = 30 * time.Second

type cacheEntry struct {
	orders  []models.Order
	expires time.Time
}

// OrderQueryService serves customer order reads with a short-lived cache.
// Writes made through this process clear the cache; writes from other
// processes show up once entries expire.
type OrderQueryService struct {
	store *OrderStore
	TTL   time.Duration
	Now   func() time.Time

	mutex sync.RWMutex
	cache map[string]cacheEntry
	group singleflight.Group
}

func NewOrderQueryService(store *OrderStore, ttl time.Duration) *OrderQueryService {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &OrderQueryService{
		store: store,
		TTL:   ttl,
		Now:   time.Now,
		cache: make(map[string]cacheEntry),
	}
}

// ClearCache drops every cached result.
func (q *OrderQueryService) ClearCache() {
	q.mutex.Lock()
	q.cache = make(map[string]cacheEntry)
	q.mutex.Unlock()
}

func cacheKey(filters OrderFilters, sortBy SortOption) string {
	raw, _ := json.Marshal(struct {
		Filters OrderFilters `json:"filters"`
		Sort    SortOption   `json:"sort"`
	}{filters, sortBy})
	return string(raw)
}

func (q *OrderQueryService) cached(key string) ([]models.Order, bool) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()
	entry, ok := q.cache[key]
	if !ok || !q.Now().Before(entry.expires) {
		return nil, false
	}
	return entry.orders, true
}

// GetOrders returns customer orders matching filters, sorted. Identical
// concurrent loads share one store read.
func (q *OrderQueryService) GetOrders(ctx context.Context, filters OrderFilters, sortBy SortOption, useCache bool) ([]models.Order, error) {
	if sortBy == "" {
		sortBy = SortNewest
	}
	filters.CustomerEmail = normalizeEmail(filters.CustomerEmail)
	key := cacheKey(filters, sortBy)
	if useCache {
		if orders, ok := q.cached(key); ok {
			utils.InfoLogger.Debug("Returning cached orders")
			return orders, nil
		}
	}

	v, err, _ := q.group.Do(key, func() (interface{}, error) {
		orders, err := q.load(ctx, filters, sortBy)
		if err != nil {
			return nil, err
		}
		q.mutex.Lock()
		q.cache[key] = cacheEntry{orders: orders, expires: q.Now().Add(q.TTL)}
		q.mutex.Unlock()
		return orders, nil
	})
	if err != nil {
		utils.ErrorLogger.WithFields(logrus.Fields{
			"customer_id":    filters.CustomerID,
			"customer_email": filters.CustomerEmail,
		}).WithError(err).Error("Failed to fetch orders")
		return nil, newError(CodeFetch, "Failed to fetch orders", err)
	}
	return v.([]models.Order), nil
}

func (q *OrderQueryService) load(ctx context.Context, filters OrderFilters, sortBy SortOption) ([]models.Order, error) {
	docs, err := q.store.Find(ctx, DocumentQuery{
		Collection:    models.CollectionCustomerOrders,
		CustomerRef:   strings.TrimSpace(filters.CustomerID),
		CustomerEmail: filters.CustomerEmail,
	})
	if err != nil {
		return nil, err
	}
	orders, err := q.store.LoadOrders(ctx, docs)
	if err != nil {
		return nil, err
	}
	orders = SortOrders(FilterOrders(orders, filters), sortBy)
	if filters.Limit > 0 && len(orders) > filters.Limit {
		orders = orders[:filters.Limit]
	}
	return orders, nil
}

// GetOrder looks an order up by document id, then by order code in the
// customer copies, then in the global orders.
func (q *OrderQueryService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, validationError("orderId is required")
	}

	doc, err := q.store.Get(ctx, orderID)
	switch {
	case err == nil && (doc.Collection == models.CollectionCustomerOrders || doc.Collection == models.CollectionOrders):
		order, err := q.store.LoadOrder(ctx, doc)
		if err != nil {
			return nil, err
		}
		return &order, nil
	case err != nil && !errors.Is(err, ErrOrderNotFound):
		return nil, err
	}

	for _, collection := range []string{models.CollectionCustomerOrders, models.CollectionOrders} {
		docs, err := q.store.FindByOrderRef(ctx, collection, orderID)
		if err != nil {
			return nil, err
		}
		if len(docs) == 0 {
			continue
		}
		order, err := q.store.LoadOrder(ctx, &docs[0])
		if err != nil {
			return nil, err
		}
		return &order, nil
	}
	return nil, newError(CodeOrderNotFound, "Order "+orderID+" not found", nil)
}

// GetOrdersByStatus groups a customer's orders by lifecycle status. Every
// status key is present, possibly with an empty list.
func (q *OrderQueryService) GetOrdersByStatus(ctx context.Context, email string) (map[string][]models.Order, error) {
	orders, err := q.GetOrders(ctx, OrderFilters{CustomerEmail: email}, SortNewest, true)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]models.Order, len(status.LifecycleStatuses))
	for _, l := range status.LifecycleStatuses {
		grouped[string(l)] = []models.Order{}
	}
	for _, o := range orders {
		if _, ok := grouped[o.Status]; ok {
			grouped[o.Status] = append(grouped[o.Status], o)
		}
	}
	return grouped, nil
}

// GetActiveOrders returns orders that have not been delivered or canceled.
func (q *OrderQueryService) GetActiveOrders(ctx context.Context, email string) ([]models.Order, error) {
	var statuses []string
	for _, l := range status.LifecycleStatuses {
		if status.IsActive(l) {
			statuses = append(statuses, string(l))
		}
	}
	return q.GetOrders(ctx, OrderFilters{CustomerEmail: email, Statuses: statuses}, SortNewest, true)
}

func (q *OrderQueryService) GetCompletedOrders(ctx context.Context, email string) ([]models.Order, error) {
	statuses := []string{string(status.LifecycleDelivered), string(status.LifecycleCanceled)}
	return q.GetOrders(ctx, OrderFilters{CustomerEmail: email, Statuses: statuses}, SortNewest, true)
}

// GetTracking returns the tracking page view of an order. The global order
// is authoritative; a customer copy is used when no global order exists.
func (q *OrderQueryService) GetTracking(ctx context.Context, orderID string) (*models.TrackingView, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, validationError("orderId is required")
	}

	var order *models.Order
	for _, collection := range []string{models.CollectionOrders, models.CollectionCustomerOrders} {
		docs, err := q.store.FindByOrderRef(ctx, collection, orderID)
		if err != nil {
			return nil, err
		}
		if len(docs) > 0 {
			o, err := q.store.LoadOrder(ctx, &docs[0])
			if err != nil {
				return nil, err
			}
			order = &o
			break
		}
	}
	if order == nil {
		o, err := q.GetOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		order = o
	}

	view := &models.TrackingView{
		OrderID:               order.OrderID,
		Status:                order.Status,
		DeliveryStatus:        order.DeliveryStatus,
		Message:               order.StatusMessage,
		Progress:              order.Progress,
		EstimatedDeliveryTime: order.EstimatedDeliveryTime,
		TrackingUpdates:       order.TrackingUpdates,
	}
	if view.OrderID == "" {
		view.OrderID = order.ID
	}
	if !order.Rider.IsZero() {
		rider := order.Rider
		view.Rider = &rider
	}
	return view, nil
}
