package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/chopchop-backend/database"
	"github.com/yeremiapane/chopchop-backend/models"
	"github.com/yeremiapane/chopchop-backend/services"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	db      *gorm.DB
	store   *services.OrderStore
	sync    *services.OrderSyncService
	queries *services.OrderQueryService
}

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

func setupEnv(t *testing.T) *testEnv {
	db := setupTestDB(t)
	store := services.NewOrderStore(db, nil)
	projector := services.NewProjectionWorker(store)
	sync := services.NewOrderSyncService(store, services.NewVendorResolver(store, false), projector, nil)
	queries := services.NewOrderQueryService(store, time.Minute)
	sync.Cache = queries
	return &testEnv{db: db, store: store, sync: sync, queries: queries}
}

func seedEatery(t *testing.T, store *services.OrderStore, id, password string, restaurantIDs ...string) *models.Eatery {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	e := &models.Eatery{
		ID:       id,
		Name:     "Eatery " + id,
		Email:    id + "@vendors.test",
		Password: string(hashed),
	}
	for _, r := range restaurantIDs {
		e.Restaurants = append(e.Restaurants, models.EateryRestaurant{RestaurantID: r})
	}
	require.NoError(t, store.CreateEatery(context.Background(), e))
	return e
}

func placeOrder(t *testing.T, env *testEnv, restaurantID, paymentMethod string) *services.PlaceOrderResult {
	t.Helper()
	res, err := env.sync.PlaceOrder(context.Background(), services.PlaceOrderInput{
		RestaurantID:   restaurantID,
		RestaurantName: "Mama Put",
		PaymentMethod:  paymentMethod,
		Items:          []services.PlaceOrderItem{{Title: "Jollof Rice", Quantity: 2, Price: 10}},
		Customer:       models.Customer{Name: "Ada", Email: "ada@example.com"},
		DeliveryFee:    5,
	})
	require.NoError(t, err)
	return res
}

func loadOrders(t *testing.T, store *services.OrderStore, collection, orderID string) []models.Order {
	t.Helper()
	ctx := context.Background()
	docs, err := store.FindByOrderRef(ctx, collection, orderID)
	require.NoError(t, err)
	orders, err := store.LoadOrders(ctx, docs)
	require.NoError(t, err)
	return orders
}

func doJSON(r http.Handler, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		payload, _ := json.Marshal(b)
		reader = bytes.NewBuffer(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}
