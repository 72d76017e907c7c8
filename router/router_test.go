package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/chopchop-backend/config"
	"github.com/yeremiapane/chopchop-backend/database"
	"github.com/yeremiapane/chopchop-backend/live"
	"github.com/yeremiapane/chopchop-backend/models"
	"github.com/yeremiapane/chopchop-backend/services"
	"github.com/yeremiapane/chopchop-backend/utils"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

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

func testConfig() *config.Config {
	return &config.Config{
		WebhookAPIKey:        "hook-key",
		AdminAPIKey:          "admin-key",
		JWTSecret:            "jwt-secret",
		TokenTTL:             time.Hour,
		WebhookRatePerSecond: 100,
		WebhookBurst:         100,
		CORSOrigins:          []string{"*"},
	}
}

func setupTestRouter(t *testing.T) (*gin.Engine, *services.OrderStore) {
	return setupTestRouterWith(t, testConfig())
}

func setupTestRouterWith(t *testing.T, cfg *config.Config) (*gin.Engine, *services.OrderStore) {
	gin.SetMode(gin.TestMode)
	db := setupTestDB(t)
	store := services.NewOrderStore(db, nil)
	projector := services.NewProjectionWorker(store)
	sync := services.NewOrderSyncService(store, services.NewVendorResolver(store, false), projector, nil)
	queries := services.NewOrderQueryService(store, time.Minute)
	sync.Cache = queries

	// Menuverse is not configured, so upstream calls fail fast
	menuverse := services.NewMenuverseService(services.MenuverseConfig{})

	r := SetupRouter(Dependencies{
		Config:      cfg,
		DB:          db,
		Store:       store,
		Sync:        sync,
		Queries:     queries,
		Reconciler:  services.NewOrderReconciler(store, sync, menuverse),
		Restaurants: menuverse,
		Upstream:    menuverse,
		Hub:         live.NewHub(),
	})
	return r, store
}

func request(r http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// TestEndToEnd covers the main flow:
// 1. admin registers an eatery
// 2. vendor logs in
// 3. customer checks out
// 4. the vendor platform pushes a status over the webhook
// 5. customer and vendor both see it
func TestEndToEnd(t *testing.T) {
	r, store := setupTestRouter(t)
	admin := map[string]string{"x-api-key": "admin-key"}

	w := request(r, http.MethodPost, "/api/admin/eateries", map[string]interface{}{
		"id":            "vendor-1",
		"name":          "Mama Put Kitchen",
		"email":         "kitchen@mamaput.test",
		"password":      "kitchen-pass",
		"restaurantIds": []string{"rest-1"},
	}, admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = request(r, http.MethodPost, "/api/vendors/login", map[string]interface{}{
		"email":    "kitchen@mamaput.test",
		"password": "kitchen-pass",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token := decodeBody(t, w)["data"].(map[string]interface{})["token"].(string)

	w = request(r, http.MethodPost, "/api/orders", map[string]interface{}{
		"restaurantId":   "rest-1",
		"restaurantName": "Mama Put",
		"paymentMethod":  "CASH",
		"items":          []map[string]interface{}{{"title": "Jollof Rice", "quantity": 1, "price": 12}},
		"customer":       map[string]interface{}{"name": "Ada", "email": "ada@example.com"},
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	orderID := decodeBody(t, w)["data"].(map[string]interface{})["orderId"].(string)

	w = request(r, http.MethodPost, "/api/webhooks/menuverse-order-update", map[string]interface{}{
		"orderId": orderID,
		"status":  "OUT_FOR_DELIVERY",
	}, map[string]string{"x-api-key": "hook-key"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = request(r, http.MethodGet, "/api/orders/"+orderID+"/tracking", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "dispatched", view["deliveryStatus"])
	assert.EqualValues(t, 62, view["progress"])

	w = request(r, http.MethodGet, "/api/vendors/vendor-1/orders", nil, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeBody(t, w)["data"].([]interface{})
	require.Len(t, list, 1)
	assert.Equal(t, "OUT_FOR_DELIVERY", list[0].(map[string]interface{})["orderStatus"])

	docs, err := store.FindByOrderRef(context.Background(), models.CollectionCustomerOrders, orderID)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestWebhookRoute(t *testing.T) {
	r, _ := setupTestRouter(t)
	path := "/api/webhooks/menuverse-order-update"
	body := map[string]interface{}{"orderId": "CC1", "status": "READY"}

	w := request(r, http.MethodPost, path, body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Unauthorized", decodeBody(t, w)["error"])

	w = request(r, http.MethodPost, path, body, map[string]string{"Authorization": "Bearer hook-key"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = request(r, http.MethodGet, path, nil, map[string]string{"x-api-key": "hook-key"})
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "Method not allowed", decodeBody(t, w)["error"])
}

func TestWebhookRateLimitIgnoresUnauthorized(t *testing.T) {
	cfg := testConfig()
	cfg.WebhookRatePerSecond = 0.001
	cfg.WebhookBurst = 1
	r, _ := setupTestRouterWith(t, cfg)
	path := "/api/webhooks/menuverse-order-update"
	body := map[string]interface{}{"orderId": "CC1", "status": "READY"}

	for i := 0; i < 5; i++ {
		w := request(r, http.MethodPost, path, body, map[string]string{"x-api-key": "wrong"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w := request(r, http.MethodPost, path, body, map[string]string{"x-api-key": "hook-key"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = request(r, http.MethodPost, path, body, map[string]string{"x-api-key": "hook-key"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestSyncRoute(t *testing.T) {
	r, _ := setupTestRouter(t)

	w := request(r, http.MethodDelete, "/api/sync-orders", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	// no orders in the window, so the unconfigured upstream is never called
	w = request(r, http.MethodGet, "/api/sync-orders", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 0, decodeBody(t, w)["count"])

	w = request(r, http.MethodPost, "/api/sync-orders?orderId=CC1", nil, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "Failed to sync orders", decodeBody(t, w)["error"])
}

func TestPublicRoutes(t *testing.T) {
	r, _ := setupTestRouter(t)

	w := request(r, http.MethodGet, "/ping", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = request(r, http.MethodGet, "/api/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = request(r, http.MethodGet, "/api/admin/eateries", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = request(r, http.MethodGet, "/api/vendors/vendor-1/orders", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func init() {
	utils.InitLogger("error", "text")
}
