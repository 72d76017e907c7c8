package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/chopchop-backend/models"
	"github.com/yeremiapane/chopchop-backend/services"
	"github.com/yeremiapane/chopchop-backend/utils"
)

type WebhookController struct {
	Sync *services.OrderSyncService
}

func NewWebhookController(sync *services.OrderSyncService) *WebhookController {
	return &WebhookController{Sync: sync}
}

type orderStatusUpdate struct {
	OrderID        string        `json:"orderId"`
	Status         string        `json:"status"`
	RestaurantID   string        `json:"restaurantId"`
	RestaurantName string        `json:"restaurantName"`
	Timestamp      string        `json:"timestamp"`
	RiderInfo      *models.Rider `json:"riderInfo"`
}

// MenuverseOrderUpdate applies a vendor status pushed by the vendor platform.
func (wc *WebhookController) MenuverseOrderUpdate(c *gin.Context) {
	var update orderStatusUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if update.OrderID == "" || update.Status == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields: orderId, status"})
		return
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"order_id":      update.OrderID,
		"status":        update.Status,
		"restaurant_id": update.RestaurantID,
	}).Info("Menuverse webhook received")

	change := services.StatusChange{
		OrderID:        update.OrderID,
		Status:         update.Status,
		RestaurantID:   update.RestaurantID,
		RestaurantName: update.RestaurantName,
		Source:         services.SourceWebhook,
	}
	if update.RiderInfo != nil && !update.RiderInfo.IsZero() {
		change.Rider = update.RiderInfo
	}
	if update.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, update.Timestamp); err == nil {
			change.Timestamp = ts.UTC()
		}
	}

	result, err := wc.Sync.ApplyStatusChange(c.Request.Context(), change)
	if err != nil {
		respondWireError(c, "Failed to update order status", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"message":        "Order status updated",
		"orderId":        result.OrderID,
		"deliveryStatus": result.Mapping.Delivery,
	})
}
