package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/chopchop-backend/services"
	"github.com/yeremiapane/chopchop-backend/utils"
)

type SyncController struct {
	Reconciler *services.OrderReconciler
}

func NewSyncController(reconciler *services.OrderReconciler) *SyncController {
	return &SyncController{Reconciler: reconciler}
}

// SyncOrders reconciles one order (?orderId=), a customer's orders
// (?userId=) or the last day of orders.
func (sc *SyncController) SyncOrders(c *gin.Context) {
	ctx := c.Request.Context()
	orderID := strings.TrimSpace(c.Query("orderId"))
	userID := strings.TrimSpace(c.Query("userId"))

	utils.InfoLogger.Info("Syncing orders from Menuverse")

	switch {
	case orderID != "":
		if _, err := sc.Reconciler.SyncOrder(ctx, orderID); err != nil {
			respondWireError(c, "Failed to sync orders", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Order synced", "orderId": orderID})

	case userID != "":
		count, err := sc.Reconciler.SyncCustomerOrders(ctx, userID)
		if err != nil {
			respondWireError(c, "Failed to sync orders", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Orders synced", "count": count})

	default:
		count, err := sc.Reconciler.SyncRecent(ctx)
		if err != nil {
			respondWireError(c, "Failed to sync orders", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Recent orders synced", "count": count})
	}
}
