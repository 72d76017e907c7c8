package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/chopchop-backend/database"
	"github.com/yeremiapane/chopchop-backend/models"
	"github.com/yeremiapane/chopchop-backend/notify"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB opens a private in-memory database with the order schema.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func setupTestStore(t *testing.T) *OrderStore {
	return NewOrderStore(setupTestDB(t), nil)
}

func seedEatery(t *testing.T, store *OrderStore, id string, restaurantIDs ...string) *models.Eatery {
	t.Helper()
	e := &models.Eatery{
		ID:       id,
		Name:     "Eatery " + id,
		Email:    id + "@vendors.test",
		Password: "x",
	}
	for _, r := range restaurantIDs {
		e.Restaurants = append(e.Restaurants, models.EateryRestaurant{RestaurantID: r})
	}
	require.NoError(t, store.CreateEatery(context.Background(), e))
	return e
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evt notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type countingCache struct {
	mu      sync.Mutex
	cleared int
}

func (c *countingCache) ClearCache() {
	c.mu.Lock()
	c.cleared++
	c.mu.Unlock()
}

type testServices struct {
	store     *OrderStore
	resolver  *VendorResolver
	projector *ProjectionWorker
	sync      *OrderSyncService
	publisher *recordingPublisher
	cache     *countingCache
}

func setupServices(t *testing.T) *testServices {
	store := setupTestStore(t)
	resolver := NewVendorResolver(store, false)
	projector := NewProjectionWorker(store)
	publisher := &recordingPublisher{}
	svc := NewOrderSyncService(store, resolver, projector, publisher)
	cache := &countingCache{}
	svc.Cache = cache
	return &testServices{
		store:     store,
		resolver:  resolver,
		projector: projector,
		sync:      svc,
		publisher: publisher,
		cache:     cache,
	}
}

func sampleOrderInput(restaurantID, paymentMethod string) PlaceOrderInput {
	return PlaceOrderInput{
		RestaurantID:   restaurantID,
		RestaurantName: "Mama Put",
		PaymentMethod:  paymentMethod,
		Items: []PlaceOrderItem{
			{Title: "Jollof Rice", Quantity: 2, Price: 10},
			{Title: "Plantain", Quantity: 1, Price: 3.5, Addons: []string{"pepper"}},
		},
		Customer:    models.Customer{Name: "Ada", Email: "ada@example.com", Phone: "0800"},
		Address:     DeliveryAddress{DeliveryAddress: "12 Allen Ave"},
		DeliveryFee: 5,
		Tip:         1,
		Tax:         0.5,
	}
}
