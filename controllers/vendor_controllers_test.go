package controllers_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/chopchop-backend/controllers"
	"github.com/yeremiapane/chopchop-backend/middlewares"
	"github.com/yeremiapane/chopchop-backend/models"
	"github.com/yeremiapane/chopchop-backend/services"
	"github.com/yeremiapane/chopchop-backend/utils"
)

var testSecret = []byte("test-secret")

type recordingPusher struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (p *recordingPusher) UpdateOrderStatus(_ context.Context, orderID, vendorStatus string) (*services.UpstreamOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, orderID+"="+vendorStatus)
	if p.err != nil {
		return nil, p.err
	}
	return &services.UpstreamOrder{ID: orderID, Status: vendorStatus}, nil
}

func setupVendorRouter(env *testEnv, pusher controllers.StatusPusher) *gin.Engine {
	r := gin.New()
	vendorCtrl := controllers.NewVendorController(env.store, env.sync, pusher, testSecret, time.Hour)
	r.POST("/vendors/login", vendorCtrl.Login)
	vendor := r.Group("/vendors/:vendorId")
	vendor.Use(middlewares.VendorAuth(testSecret))
	{
		vendor.GET("/orders", vendorCtrl.ListOrders)
		vendor.PATCH("/orders/:orderId/status", vendorCtrl.UpdateOrderStatus)
	}
	return r
}

func vendorToken(t *testing.T, vendorID string) string {
	t.Helper()
	token, err := utils.GenerateVendorToken(testSecret, vendorID, vendorID+"@vendors.test", time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestVendorLogin(t *testing.T) {
	env := setupEnv(t)
	seedEatery(t, env.store, "vendor-1", "s3cret-pass", "rest-1")
	r := setupVendorRouter(env, nil)

	w := doJSON(r, http.MethodPost, "/vendors/login", map[string]interface{}{
		"email":    "vendor-1@vendors.test",
		"password": "s3cret-pass",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decode(t, w)["data"].(map[string]interface{})
	token := data["token"].(string)
	claims, err := utils.ParseVendorToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "vendor-1", claims.VendorID)
	assert.NotContains(t, w.Body.String(), "password")

	w = doJSON(r, http.MethodPost, "/vendors/login", map[string]interface{}{
		"email":    "vendor-1@vendors.test",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodPost, "/vendors/login", map[string]interface{}{
		"email":    "nobody@vendors.test",
		"password": "s3cret-pass",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVendorListOrders(t *testing.T) {
	env := setupEnv(t)
	seedEatery(t, env.store, "vendor-1", "secret", "rest-1")
	seedEatery(t, env.store, "vendor-2", "secret", "rest-2")
	placed := placeOrder(t, env, "rest-1", "CASH")
	placeOrder(t, env, "rest-2", "CASH")
	r := setupVendorRouter(env, nil)

	w := doJSON(r, http.MethodGet, "/vendors/vendor-1/orders", nil, "Authorization", vendorToken(t, "vendor-1"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	list := decode(t, w)["data"].([]interface{})
	require.Len(t, list, 1)
	assert.Equal(t, placed.OrderID, list[0].(map[string]interface{})["orderId"])

	w = doJSON(r, http.MethodGet, "/vendors/vendor-1/orders?status=Delivered", nil, "Authorization", vendorToken(t, "vendor-1"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["data"])

	w = doJSON(r, http.MethodGet, "/vendors/vendor-1/orders", nil, "Authorization", vendorToken(t, "vendor-2"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(r, http.MethodGet, "/vendors/vendor-1/orders", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVendorUpdateOrderStatus(t *testing.T) {
	env := setupEnv(t)
	seedEatery(t, env.store, "vendor-1", "secret", "rest-1")
	placed := placeOrder(t, env, "rest-1", "CASH")
	pusher := &recordingPusher{}
	r := setupVendorRouter(env, pusher)
	auth := vendorToken(t, "vendor-1")
	path := "/vendors/vendor-1/orders/" + placed.OrderID + "/status"

	w := doJSON(r, http.MethodPatch, path, map[string]interface{}{"status": "ready"}, "Authorization", auth)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, true, data["upstreamSynced"])
	assert.Equal(t, []string{placed.OrderID + "=READY"}, pusher.calls)

	customers := loadOrders(t, env.store, models.CollectionCustomerOrders, placed.OrderID)
	require.Len(t, customers, 1)
	assert.Equal(t, "awaiting_dispatch", customers[0].DeliveryStatus)

	vendorCopies := loadOrders(t, env.store, models.VendorOrdersCollection("vendor-1"), placed.OrderID)
	require.Len(t, vendorCopies, 1)
	assert.Equal(t, "READY", vendorCopies[0].VendorStatus)

	// the local change stands when the vendor platform is unreachable
	pusher.err = errors.New("connection refused")
	w = doJSON(r, http.MethodPatch, path, map[string]interface{}{"status": "OUT_FOR_DELIVERY"}, "Authorization", auth)
	require.Equal(t, http.StatusOK, w.Code)
	data = decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, false, data["upstreamSynced"])
	customers = loadOrders(t, env.store, models.CollectionCustomerOrders, placed.OrderID)
	assert.Equal(t, "dispatched", customers[0].DeliveryStatus)

	w = doJSON(r, http.MethodPatch, path, map[string]interface{}{"status": "TELEPORTED"}, "Authorization", auth)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPatch, "/vendors/vendor-1/orders/CC404/status", map[string]interface{}{"status": "READY"}, "Authorization", auth)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVendorUpdateOrderStatus_CanonicalCodes(t *testing.T) {
	env := setupEnv(t)
	seedEatery(t, env.store, "vendor-1", "secret", "rest-1")
	placed := placeOrder(t, env, "rest-1", "CASH")
	pusher := &recordingPusher{}
	r := setupVendorRouter(env, pusher)
	auth := vendorToken(t, "vendor-1")
	path := "/vendors/vendor-1/orders/" + placed.OrderID + "/status"

	w := doJSON(r, http.MethodPatch, path, map[string]interface{}{"status": "Out for Delivery"}, "Authorization", auth)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{placed.OrderID + "=OUT_FOR_DELIVERY"}, pusher.calls)
	vendorCopies := loadOrders(t, env.store, models.VendorOrdersCollection("vendor-1"), placed.OrderID)
	require.Len(t, vendorCopies, 1)
	assert.Equal(t, "OUT_FOR_DELIVERY", vendorCopies[0].VendorStatus)

	// a delivery step keeps its detail locally but goes upstream as a vendor code
	w = doJSON(r, http.MethodPatch, path, map[string]interface{}{"status": "dispatch_otw"}, "Authorization", auth)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, placed.OrderID+"=OUT_FOR_DELIVERY", pusher.calls[1])
	customers := loadOrders(t, env.store, models.CollectionCustomerOrders, placed.OrderID)
	require.Len(t, customers, 1)
	assert.Equal(t, "dispatch_otw", customers[0].DeliveryStatus)
	assert.Equal(t, "Out for Delivery", customers[0].Status)
	assert.Equal(t, 75, customers[0].Progress)
}

func TestAdminEateries(t *testing.T) {
	env := setupEnv(t)
	r := gin.New()
	adminCtrl := controllers.NewAdminController(env.store)
	admin := r.Group("/admin")
	admin.Use(middlewares.AdminAuth("admin-key"))
	admin.POST("/eateries", adminCtrl.CreateEatery)
	admin.GET("/eateries", adminCtrl.ListEateries)

	payload := map[string]interface{}{
		"id":            "vendor-9",
		"name":          "Bukka Hut",
		"email":         "Owner@Bukka.test",
		"password":      "long-enough",
		"restaurantIds": []string{"rest-9", " "},
	}
	w := doJSON(r, http.MethodPost, "/admin/eateries", payload)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodPost, "/admin/eateries", payload, "x-api-key", "admin-key")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "long-enough")

	eatery, err := env.store.FindEateryByEmail(context.Background(), "owner@bukka.test")
	require.NoError(t, err)
	assert.Equal(t, []string{"rest-9"}, eatery.RestaurantIDs())

	payload["password"] = "short"
	w = doJSON(r, http.MethodPost, "/admin/eateries", payload, "x-api-key", "admin-key")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodGet, "/admin/eateries", nil, "x-api-key", "admin-key")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["data"], 1)
}
