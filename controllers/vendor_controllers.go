package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/chopchop-backend/models"
	"github.com/yeremiapane/chopchop-backend/services"
	"github.com/yeremiapane/chopchop-backend/utils"
	"golang.org/x/crypto/bcrypt"
)

// StatusPusher forwards a dashboard status change to the vendor platform.
type StatusPusher interface {
	UpdateOrderStatus(ctx context.Context, orderID, vendorStatus string) (*services.UpstreamOrder, error)
}

type VendorController struct {
	Store     *services.OrderStore
	Sync      *services.OrderSyncService
	Upstream  StatusPusher
	JWTSecret []byte
	TokenTTL  time.Duration
}

func NewVendorController(store *services.OrderStore, sync *services.OrderSyncService, upstream StatusPusher, secret []byte, ttl time.Duration) *VendorController {
	return &VendorController{
		Store:     store,
		Sync:      sync,
		Upstream:  upstream,
		JWTSecret: secret,
		TokenTTL:  ttl,
	}
}

// Login exchanges vendor credentials for a dashboard token.
func (vc *VendorController) Login(c *gin.Context) {
	type request struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	var req request
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	eatery, err := vc.Store.FindEateryByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, services.ErrVendorNotFound) {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("invalid credentials"))
			return
		}
		respondServiceError(c, err)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(eatery.Password), []byte(req.Password)); err != nil {
		utils.RespondError(c, http.StatusUnauthorized, errors.New("invalid credentials"))
		return
	}

	token, err := utils.GenerateVendorToken(vc.JWTSecret, eatery.ID, eatery.Email, vc.TokenTTL)
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.InfoLogger.Printf("Vendor logged in: %s", eatery.Email)
	utils.RespondJSON(c, http.StatusOK, "Login successful", gin.H{
		"token":  token,
		"eatery": eatery,
	})
}

// ListOrders returns the vendor's copies of its orders, newest first.
func (vc *VendorController) ListOrders(c *gin.Context) {
	vendorID := c.Param("vendorId")
	ctx := c.Request.Context()

	docs, err := vc.Store.Find(ctx, services.DocumentQuery{Collection: models.VendorOrdersCollection(vendorID)})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	orders, err := vc.Store.LoadOrders(ctx, docs)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if statuses := c.QueryArray("status"); len(statuses) > 0 {
		orders = services.FilterOrders(orders, services.OrderFilters{Statuses: statuses})
	}
	utils.RespondJSON(c, http.StatusOK, "Vendor orders", services.SortOrders(orders, services.SortNewest))
}

// UpdateOrderStatus applies a status chosen on the dashboard, then pushes
// it to the vendor platform. The push is best effort.
func (vc *VendorController) UpdateOrderStatus(c *gin.Context) {
	type request struct {
		Status   string        `json:"status" binding:"required"`
		Message  string        `json:"message"`
		Location string        `json:"location"`
		Rider    *models.Rider `json:"riderInfo"`
	}
	var req request
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	vendorStatus, upstreamStatus, ok := vc.Store.Transformer().Table().VendorCode(req.Status)
	if !ok {
		utils.RespondError(c, http.StatusBadRequest, errors.New("unknown status "+req.Status))
		return
	}

	vendorID := c.Param("vendorId")
	orderID := c.Param("orderId")
	ctx := c.Request.Context()

	copies, err := vc.Store.FindByOrderRef(ctx, models.VendorOrdersCollection(vendorID), orderID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if len(copies) == 0 {
		respondServiceError(c, services.ErrOrderNotFound)
		return
	}

	change := services.StatusChange{
		OrderID:  orderID,
		Status:   vendorStatus,
		VendorID: vendorID,
		Message:  req.Message,
		Location: req.Location,
		Source:   services.SourceDashboard,
	}
	if req.Rider != nil && !req.Rider.IsZero() {
		change.Rider = req.Rider
	}
	result, err := vc.Sync.ApplyStatusChange(ctx, change)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	upstreamSynced := false
	if vc.Upstream != nil {
		if _, err := vc.Upstream.UpdateOrderStatus(ctx, orderID, upstreamStatus); err != nil {
			utils.ErrorLogger.WithFields(logrus.Fields{
				"order_id":  orderID,
				"vendor_id": vendorID,
			}).WithError(err).Warn("Could not push status to Menuverse")
		} else {
			upstreamSynced = true
		}
	}

	utils.RespondJSON(c, http.StatusOK, "Order status updated", gin.H{
		"result":         result,
		"upstreamSynced": upstreamSynced,
	})
}
