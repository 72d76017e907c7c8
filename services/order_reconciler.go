package services

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/chopchop-backend/models"
	"github.com/yeremiapane/chopchop-backend/status"
	"github.com/yeremiapane/chopchop-backend/utils"
	"go.opentelemetry.io/otel/attribute"
)

// RecentWindow is how far back SyncRecent looks.
const RecentWindow = 24 * time.Hour

// UpstreamOrders is the part of the vendor API the reconciler needs.
type UpstreamOrders interface {
	FetchOrder(ctx context.Context, orderID string) (*UpstreamOrder, error)
}

// OrderReconciler pulls order statuses from the vendor platform and applies
// the ones that differ from what is stored.
type OrderReconciler struct {
	store    *OrderStore
	sync     *OrderSyncService
	upstream UpstreamOrders
	Now      func() time.Time
}

func NewOrderReconciler(store *OrderStore, sync *OrderSyncService, upstream UpstreamOrders) *OrderReconciler {
	return &OrderReconciler{
		store:    store,
		sync:     sync,
		upstream: upstream,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// SyncOrder reconciles one order and reports whether its status changed.
func (r *OrderReconciler) SyncOrder(ctx context.Context, orderID string) (bool, error) {
	ctx, span := r.sync.tracer.Start(ctx, "OrderReconciler.SyncOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return false, validationError("orderId is required")
	}

	remote, err := r.upstream.FetchOrder(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return false, err
	}

	stored, err := r.store.FindByOrderRef(ctx, models.CollectionOrders, orderID)
	if err != nil {
		return false, err
	}
	if len(stored) > 0 {
		current := r.store.Transformer().TransformJSON(stored[0].ID, stored[0].Body, stored[0].CreatedAt)
		if status.NormalizeVendorStatus(current.VendorStatus) == status.NormalizeVendorStatus(remote.Status) {
			return false, nil
		}
	}

	var ts time.Time
	if t, ok := toTime(remote.UpdatedAt); ok {
		ts = t
	}
	_, err = r.sync.ApplyStatusChange(ctx, StatusChange{
		OrderID:        orderID,
		Status:         remote.Status,
		RestaurantID:   remote.Restaurant.ID,
		RestaurantName: remote.Restaurant.Name,
		Timestamp:      ts,
		Source:         SourceSync,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// SyncCustomerOrders reconciles every order placed by a customer and
// returns how many changed.
func (r *OrderReconciler) SyncCustomerOrders(ctx context.Context, customerID string) (int, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return 0, validationError("userId is required")
	}
	docs, err := r.store.Find(ctx, DocumentQuery{
		Collection:  models.CollectionOrders,
		CustomerRef: customerID,
	})
	if err != nil {
		return 0, err
	}
	return r.syncDocuments(ctx, docs), nil
}

// SyncRecent reconciles orders created in the last RecentWindow.
func (r *OrderReconciler) SyncRecent(ctx context.Context) (int, error) {
	docs, err := r.store.Find(ctx, DocumentQuery{
		Collection: models.CollectionOrders,
		Since:      r.Now().Add(-RecentWindow),
	})
	if err != nil {
		return 0, err
	}
	return r.syncDocuments(ctx, docs), nil
}

// syncDocuments reconciles each distinct order once. A failing order is
// logged and skipped.
func (r *OrderReconciler) syncDocuments(ctx context.Context, docs []models.Document) int {
	seen := make(map[string]bool, len(docs))
	changed := 0
	for _, doc := range docs {
		if doc.OrderRef == "" || seen[doc.OrderRef] {
			continue
		}
		seen[doc.OrderRef] = true

		ok, err := r.SyncOrder(ctx, doc.OrderRef)
		if err != nil {
			utils.ErrorLogger.WithFields(logrus.Fields{
				"order_id":    doc.OrderRef,
				"document_id": doc.ID,
			}).WithError(err).Error("Failed to sync order")
			continue
		}
		if ok {
			changed++
		}
	}
	return changed
}

// SyncWorker runs SyncRecent on an interval.
type SyncWorker struct {
	reconciler *OrderReconciler
	interval   time.Duration
}

func NewSyncWorker(reconciler *OrderReconciler, interval time.Duration) *SyncWorker {
	return &SyncWorker{reconciler: reconciler, interval: interval}
}

func (w *SyncWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	utils.InfoLogger.Infof("Sync worker started (interval %s)", w.interval)

	for {
		select {
		case <-ctx.Done():
			utils.InfoLogger.Info("Sync worker stopped")
			return
		case <-ticker.C:
			n, err := w.reconciler.SyncRecent(ctx)
			if err != nil {
				utils.ErrorLogger.WithError(err).Error("Reconciliation failed")
				continue
			}
			if n > 0 {
				utils.InfoLogger.Infof("Reconciled %d orders", n)
			}
		}
	}
}
