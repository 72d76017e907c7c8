package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/chopchop-backend/models"
	"github.com/yeremiapane/chopchop-backend/utils"
)

// ProjectionWorker writes the vendor and customer copies queued by
// PlaceOrder. Each job runs in its own transaction and is safe to repeat:
// the copy is keyed by the job's idempotency key.
type ProjectionWorker struct {
	store       *OrderStore
	Interval    time.Duration
	MaxAttempts int
	BatchSize   int
	Now         func() time.Time

	// InitialRetry and MaxRetry bound the exponential retry delay.
	InitialRetry time.Duration
	MaxRetry     time.Duration

	stopChan chan struct{}
	stopOnce sync.Once
	mutex    sync.Mutex
}

func NewProjectionWorker(store *OrderStore) *ProjectionWorker {
	return &ProjectionWorker{
		store:        store,
		Interval:     2 * time.Second,
		MaxAttempts:  8,
		BatchSize:    50,
		Now:          func() time.Time { return time.Now().UTC() },
		InitialRetry: time.Second,
		MaxRetry:     5 * time.Minute,
		stopChan:     make(chan struct{}),
	}
}

// Start runs Drain every Interval until ctx is done or Stop is called.
func (w *ProjectionWorker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.Interval)
		defer ticker.Stop()

		utils.InfoLogger.Println("Projection worker started")
		for {
			select {
			case <-ticker.C:
				if _, err := w.Drain(ctx); err != nil {
					utils.ErrorLogger.Printf("Projection drain failed: %v", err)
				}
			case <-ctx.Done():
				return
			case <-w.stopChan:
				return
			}
		}
	}()
}

func (w *ProjectionWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
}

// Drain processes every due job and returns how many were completed.
// Failed jobs are rescheduled, so a job error is not returned.
func (w *ProjectionWorker) Drain(ctx context.Context) (int, error) {
	// one drain at a time; checkout and the ticker may overlap
	w.mutex.Lock()
	defer w.mutex.Unlock()

	done := 0
	for {
		jobs, err := w.store.DueProjectionJobs(ctx, w.Now(), w.BatchSize)
		if err != nil {
			return done, err
		}
		for i := range jobs {
			if err := ctx.Err(); err != nil {
				return done, err
			}
			if w.runJob(ctx, &jobs[i]) {
				done++
			}
		}
		if len(jobs) < w.BatchSize {
			return done, nil
		}
	}
}

func (w *ProjectionWorker) runJob(ctx context.Context, job *models.ProjectionJob) bool {
	log := utils.InfoLogger.WithFields(logrus.Fields{
		"job_id":    job.ID,
		"kind":      job.Kind,
		"order_id":  job.OrderRef,
		"vendor_id": job.VendorID,
	})

	err := w.store.Transaction(ctx, func(tx *OrderStore) error {
		if err := w.project(ctx, tx, job); err != nil {
			return err
		}
		finished := *job
		finished.Status = models.JobDone
		finished.Attempts++
		finished.LastError = ""
		return tx.SaveProjectionJob(ctx, &finished)
	})
	if err == nil {
		job.Status = models.JobDone
		job.Attempts++
		log.Debug("Projection written")
		return true
	}

	job.Attempts++
	job.LastError = err.Error()
	if job.Attempts >= w.MaxAttempts {
		job.Status = models.JobFailed
		utils.ErrorLogger.WithFields(log.Data).WithError(err).Error("Projection failed permanently")
	} else {
		job.NextAttemptAt = w.Now().Add(w.retryDelay(job.Attempts))
		log.WithError(err).WithField("next_attempt_at", job.NextAttemptAt).Warn("Projection failed, will retry")
	}
	if saveErr := w.store.SaveProjectionJob(ctx, job); saveErr != nil {
		utils.ErrorLogger.WithFields(log.Data).WithError(saveErr).Error("Could not reschedule projection job")
	}
	return false
}

// retryDelay is the exponential delay before the given attempt number.
func (w *ProjectionWorker) retryDelay(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.InitialRetry
	b.MaxInterval = w.MaxRetry
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	d := b.NextBackOff()
	for i := 1; i < attempts; i++ {
		d = b.NextBackOff()
	}
	return d
}

func (w *ProjectionWorker) project(ctx context.Context, tx *OrderStore, job *models.ProjectionJob) error {
	doc, err := tx.Get(ctx, job.OrderDocID)
	if err != nil {
		return err
	}
	order, err := tx.LoadOrder(ctx, doc)
	if err != nil {
		return err
	}

	switch job.Kind {
	case models.ProjectionVendorOrder:
		_, _, err := tx.InsertProjection(ctx, models.VendorOrdersCollection(job.VendorID), job.IdempotencyKey, vendorOrderBody(order, job.VendorID))
		return err

	case models.ProjectionCustomerOrder:
		copyDoc, created, err := tx.InsertProjection(ctx, models.CollectionCustomerOrders, job.IdempotencyKey, customerOrderBody(order, job.VendorID))
		if err != nil || !created {
			return err
		}
		first := models.TrackingUpdate{
			Status:    order.DeliveryStatus,
			Message:   order.StatusMessage,
			Timestamp: order.CreatedAt,
			Location:  order.RestaurantName,
		}
		return tx.AppendTrackingUpdate(ctx, copyDoc, first, SourceCheckout)
	}
	return fmt.Errorf("unknown projection kind %q", job.Kind)
}

func customerView(c models.Customer) map[string]interface{} {
	return map[string]interface{}{
		"name":    c.Name,
		"email":   c.Email,
		"phone":   c.Phone,
		"address": c.Address,
	}
}

func projectedItems(order models.Order, prefix string) []interface{} {
	items := make([]interface{}, 0, len(order.Items))
	for i, it := range order.Items {
		items = append(items, map[string]interface{}{
			"id":       fmt.Sprintf("%s-item-%d", prefix, i),
			"name":     it.Name,
			"quantity": it.Quantity,
			"price":    it.Price,
		})
	}
	return items
}

// vendorOrderBody is the shape vendor dashboards read.
func vendorOrderBody(order models.Order, vendorID string) map[string]interface{} {
	return map[string]interface{}{
		"id":            order.ID,
		"eateryId":      vendorID,
		"customer":      customerView(order.Customer),
		"items":         projectedItems(order, order.ID),
		"totalAmount":   order.TotalAmount,
		"status":        order.Status,
		"orderStatus":   order.VendorStatus,
		"createdAt":     order.CreatedAt.Format(time.RFC3339Nano),
		"orderId":       order.OrderID,
		"restaurantId":  order.RestaurantID,
		"paymentMethod": order.PaymentMethod,
		"instructions":  order.Instructions,
		"platform":      platformName,
	}
}

// customerOrderBody is the customer-facing copy used for tracking.
func customerOrderBody(order models.Order, vendorID string) map[string]interface{} {
	return map[string]interface{}{
		"orderId":               order.OrderID,
		"customerId":            order.CustomerID,
		"vendorId":              vendorID,
		"restaurantId":          order.RestaurantID,
		"restaurantName":        order.RestaurantName,
		"customer":              customerView(order.Customer),
		"items":                 projectedItems(order, order.OrderID),
		"subtotal":              order.Subtotal,
		"deliveryCharges":       order.DeliveryFee,
		"tipping":               order.Tip,
		"taxationAmount":        order.Tax,
		"totalAmount":           order.TotalAmount,
		"paidAmount":            order.PaidAmount,
		"status":                order.Status,
		"orderStatus":           order.VendorStatus,
		"deliveryStatus":        order.DeliveryStatus,
		"statusMessage":         order.StatusMessage,
		"estimatedDeliveryTime": order.EstimatedDeliveryTime,
		"paymentMethod":         order.PaymentMethod,
		"createdAt":             order.CreatedAt.Format(time.RFC3339Nano),
	}
}
