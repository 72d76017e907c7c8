package controllers_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/chopchop-backend/controllers"
)

func setupOrderRouter(env *testEnv) *gin.Engine {
	r := gin.New()
	orderCtrl := controllers.NewOrderController(env.sync, env.queries)
	r.POST("/orders", orderCtrl.PlaceOrder)
	r.GET("/orders", orderCtrl.ListOrders)
	r.GET("/orders/grouped", orderCtrl.GroupedOrders)
	r.GET("/orders/active", orderCtrl.ActiveOrders)
	r.GET("/orders/completed", orderCtrl.CompletedOrders)
	r.GET("/orders/:orderId", orderCtrl.GetOrder)
	r.GET("/orders/:orderId/tracking", orderCtrl.GetTracking)
	r.POST("/orders/:orderId/payment", orderCtrl.ConfirmPayment)
	return r
}

func checkoutPayload(restaurantID, paymentMethod string) map[string]interface{} {
	return map[string]interface{}{
		"restaurantId":    restaurantID,
		"restaurantName":  "Mama Put",
		"paymentMethod":   paymentMethod,
		"items":           []map[string]interface{}{{"title": "Jollof Rice", "quantity": 2, "price": 10}},
		"customer":        map[string]interface{}{"name": "Ada", "email": "ada@example.com"},
		"deliveryCharges": 5,
	}
}

func TestPlaceAndGetOrder(t *testing.T) {
	env := setupEnv(t)
	seedEatery(t, env.store, "vendor-1", "secret", "rest-1")
	r := setupOrderRouter(env)

	w := doJSON(r, http.MethodPost, "/orders", checkoutPayload("rest-1", "CARD"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode(t, w)
	assert.Equal(t, "Order placed", resp["message"])
	data := resp["data"].(map[string]interface{})
	orderID := data["orderId"].(string)
	assert.Equal(t, "PENDING_PAYMENT", data["orderStatus"])
	assert.EqualValues(t, 25, data["total"])

	w = doJSON(r, http.MethodGet, "/orders/"+orderID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	order := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, orderID, order["orderId"])
	assert.Equal(t, "Pending", order["status"])

	w = doJSON(r, http.MethodGet, "/orders/CC404", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	resp = decode(t, w)
	assert.Equal(t, false, resp["status"])
	assert.Equal(t, "ORDER_NOT_FOUND", resp["code"])
}

func TestPlaceOrder_Errors(t *testing.T) {
	env := setupEnv(t)
	r := setupOrderRouter(env)

	w := doJSON(r, http.MethodPost, "/orders", "{")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	payload := checkoutPayload("rest-1", "CASH")
	payload["items"] = []map[string]interface{}{}
	w = doJSON(r, http.MethodPost, "/orders", payload)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// no eatery serves rest-9
	w = doJSON(r, http.MethodPost, "/orders", checkoutPayload("rest-9", "CASH"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConfirmPayment(t *testing.T) {
	env := setupEnv(t)
	seedEatery(t, env.store, "vendor-1", "secret", "rest-1")
	placed := placeOrder(t, env, "rest-1", "CARD")
	r := setupOrderRouter(env)

	w := doJSON(r, http.MethodPost, "/orders/"+placed.OrderID+"/payment", map[string]interface{}{
		"paidAmount":    25,
		"transactionId": "tx-1",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(r, http.MethodGet, "/orders/"+placed.OrderID+"/tracking", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "packaging", view["deliveryStatus"])
	updates := view["trackingUpdates"].([]interface{})
	require.Len(t, updates, 2)
	assert.Contains(t, updates[1].(map[string]interface{})["message"], "tx-1")

	w = doJSON(r, http.MethodPost, "/orders/CC404/payment", map[string]interface{}{"paidAmount": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListOrders(t *testing.T) {
	env := setupEnv(t)
	seedEatery(t, env.store, "vendor-1", "secret", "rest-1")
	first := placeOrder(t, env, "rest-1", "CASH")
	second := placeOrder(t, env, "rest-1", "CARD")
	r := setupOrderRouter(env)

	w := doJSON(r, http.MethodGet, "/orders?customerEmail=ada@example.com&sort=oldest", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	list := decode(t, w)["data"].([]interface{})
	require.Len(t, list, 2)
	var ids []interface{}
	for _, o := range list {
		ids = append(ids, o.(map[string]interface{})["orderId"])
	}
	assert.ElementsMatch(t, []interface{}{first.OrderID, second.OrderID}, ids)

	w = doJSON(r, http.MethodGet, "/orders?customerEmail=ada@example.com&status=Confirmed&fresh=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list = decode(t, w)["data"].([]interface{})
	require.Len(t, list, 1)
	assert.Equal(t, first.OrderID, list[0].(map[string]interface{})["orderId"])

	w = doJSON(r, http.MethodGet, "/orders?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doJSON(r, http.MethodGet, "/orders?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doJSON(r, http.MethodGet, "/orders?sort=sideways", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGroupedActiveCompleted(t *testing.T) {
	env := setupEnv(t)
	seedEatery(t, env.store, "vendor-1", "secret", "rest-1")
	placeOrder(t, env, "rest-1", "CASH")
	card := placeOrder(t, env, "rest-1", "CARD")
	_, err := env.sync.ConfirmPayment(context.Background(), card.OrderID, 25, "")
	require.NoError(t, err)
	r := setupOrderRouter(env)

	for _, path := range []string{"/orders/grouped", "/orders/active", "/orders/completed"} {
		w := doJSON(r, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}

	w := doJSON(r, http.MethodGet, "/orders/grouped?customerEmail=ada@example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	grouped := decode(t, w)["data"].(map[string]interface{})
	assert.Len(t, grouped, 6)
	assert.Len(t, grouped["Confirmed"], 2)

	w = doJSON(r, http.MethodGet, "/orders/active?customerEmail=ada@example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["data"], 2)

	w = doJSON(r, http.MethodGet, "/orders/completed?customerEmail=ada@example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["data"])
}
