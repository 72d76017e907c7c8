package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/chopchop-backend/models"
	"github.com/yeremiapane/chopchop-backend/utils"
)

// OrderBroadcaster receives normalized customer orders after they change.
type OrderBroadcaster interface {
	BroadcastOrderUpdate(order models.Order) int
}

// ChangeMonitor polls the change log and pushes changed customer orders to
// live subscribers.
type ChangeMonitor struct {
	store       *OrderStore
	broadcaster OrderBroadcaster
	StopChan    chan struct{}
	Interval    time.Duration
	BatchSize   int

	stopOnce sync.Once
}

func NewChangeMonitor(store *OrderStore, broadcaster OrderBroadcaster) *ChangeMonitor {
	return &ChangeMonitor{
		store:       store,
		broadcaster: broadcaster,
		StopChan:    make(chan struct{}),
		Interval:    1 * time.Second,
		BatchSize:   100,
	}
}

func (cm *ChangeMonitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(cm.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := cm.CheckChanges(ctx); err != nil {
					utils.ErrorLogger.Printf("Error checking changes: %v", err)
				}
			case <-ctx.Done():
				return
			case <-cm.StopChan:
				return
			}
		}
	}()
}

func (cm *ChangeMonitor) Stop() {
	cm.stopOnce.Do(func() { close(cm.StopChan) })
}

// CheckChanges handles one batch of pending changes and returns the number
// of orders broadcast.
func (cm *ChangeMonitor) CheckChanges(ctx context.Context) (int, error) {
	changes, err := cm.store.PendingChanges(ctx, cm.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(changes) == 0 {
		return 0, nil
	}

	ids := make([]uint, 0, len(changes))
	seen := make(map[string]bool)
	broadcast := 0
	for _, change := range changes {
		ids = append(ids, change.ID)
		if change.Collection != models.CollectionCustomerOrders || seen[change.DocumentID] {
			continue
		}
		seen[change.DocumentID] = true

		if cm.processOrderChange(ctx, change) {
			broadcast++
		}
	}

	if err := cm.store.MarkChangesProcessed(ctx, ids); err != nil {
		return broadcast, err
	}
	utils.InfoLogger.Debugf("Processed %d changes, broadcast %d orders", len(changes), broadcast)
	return broadcast, nil
}

func (cm *ChangeMonitor) processOrderChange(ctx context.Context, change models.DBChange) bool {
	log := utils.InfoLogger.WithFields(logrus.Fields{
		"document_id": change.DocumentID,
		"order_id":    change.OrderRef,
	})

	doc, err := cm.store.Get(ctx, change.DocumentID)
	if err != nil {
		if !errors.Is(err, ErrOrderNotFound) {
			log.WithError(err).Warn("Error fetching changed order")
		}
		return false
	}
	order, err := cm.store.LoadOrder(ctx, doc)
	if err != nil {
		log.WithError(err).Warn("Error loading changed order")
		return false
	}
	cm.broadcaster.BroadcastOrderUpdate(order)
	return true
}
