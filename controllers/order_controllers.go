package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/chopchop-backend/services"
	"github.com/yeremiapane/chopchop-backend/utils"
)

type OrderController struct {
	Sync    *services.OrderSyncService
	Queries *services.OrderQueryService
}

func NewOrderController(sync *services.OrderSyncService, queries *services.OrderQueryService) *OrderController {
	return &OrderController{Sync: sync, Queries: queries}
}

// PlaceOrder -> checkout; the order starts CONFIRMED for cash and
// PENDING_PAYMENT for electronic payments.
func (oc *OrderController) PlaceOrder(c *gin.Context) {
	var req services.PlaceOrderInput
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	result, err := oc.Sync.PlaceOrder(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Order placed", result)
}

// ConfirmPayment records a payment made outside the platform.
func (oc *OrderController) ConfirmPayment(c *gin.Context) {
	type request struct {
		PaidAmount    float64 `json:"paidAmount" binding:"gte=0"`
		TransactionID string  `json:"transactionId"`
	}
	var req request
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	result, err := oc.Sync.ConfirmPayment(c.Request.Context(), c.Param("orderId"), req.PaidAmount, req.TransactionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Payment confirmed", result)
}

// parseFilters reads the list filters from the query string.
func parseFilters(c *gin.Context) (services.OrderFilters, services.SortOption, error) {
	filters := services.OrderFilters{
		CustomerID:    strings.TrimSpace(c.Query("customerId")),
		CustomerEmail: strings.TrimSpace(c.Query("customerEmail")),
		Statuses:      c.QueryArray("status"),
	}

	var err error
	if v := c.Query("from"); v != "" {
		if filters.DateFrom, err = parseDate(v); err != nil {
			return filters, "", errors.New("invalid from date")
		}
	}
	if v := c.Query("to"); v != "" {
		if filters.DateTo, err = parseDate(v); err != nil {
			return filters, "", errors.New("invalid to date")
		}
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filters, "", errors.New("limit must be a non-negative integer")
		}
		filters.Limit = n
	}

	sortBy, err := services.ParseSortOption(c.DefaultQuery("sort", string(services.SortNewest)))
	if err != nil {
		return filters, "", err
	}
	return filters, sortBy, nil
}

// parseDate accepts RFC 3339 timestamps and plain dates.
func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

func (oc *OrderController) ListOrders(c *gin.Context) {
	filters, sortBy, err := parseFilters(c)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	fresh := c.Query("fresh") == "true"

	orders, err := oc.Queries.GetOrders(c.Request.Context(), filters, sortBy, !fresh)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of orders", orders)
}

func customerEmail(c *gin.Context) (string, bool) {
	email := strings.TrimSpace(c.Query("customerEmail"))
	if email == "" {
		utils.RespondError(c, http.StatusBadRequest, errors.New("customerEmail is required"))
		return "", false
	}
	return email, true
}

func (oc *OrderController) GroupedOrders(c *gin.Context) {
	email, ok := customerEmail(c)
	if !ok {
		return
	}
	grouped, err := oc.Queries.GetOrdersByStatus(c.Request.Context(), email)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Orders by status", grouped)
}

func (oc *OrderController) ActiveOrders(c *gin.Context) {
	email, ok := customerEmail(c)
	if !ok {
		return
	}
	orders, err := oc.Queries.GetActiveOrders(c.Request.Context(), email)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Active orders", orders)
}

func (oc *OrderController) CompletedOrders(c *gin.Context) {
	email, ok := customerEmail(c)
	if !ok {
		return
	}
	orders, err := oc.Queries.GetCompletedOrders(c.Request.Context(), email)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Completed orders", orders)
}

func (oc *OrderController) GetOrder(c *gin.Context) {
	order, err := oc.Queries.GetOrder(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order detail", order)
}

func (oc *OrderController) GetTracking(c *gin.Context) {
	view, err := oc.Queries.GetTracking(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order tracking", view)
}
