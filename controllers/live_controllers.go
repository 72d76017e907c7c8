package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/chopchop-backend/live"
	"github.com/yeremiapane/chopchop-backend/services"
	"github.com/yeremiapane/chopchop-backend/utils"
)

const liveWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	// origins are checked by the CORS middleware
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type LiveController struct {
	Hub     *live.Hub
	Queries *services.OrderQueryService
}

func NewLiveController(hub *live.Hub, queries *services.OrderQueryService) *LiveController {
	return &LiveController{Hub: hub, Queries: queries}
}

// OrderUpdates -> endpoint WebSocket. The client gets a snapshot of the
// orders it watches, then every matching update.
func (lc *LiveController) OrderUpdates(c *gin.Context) {
	filter := live.Filter{
		CustomerID: strings.TrimSpace(c.Query("customerId")),
		OrderID:    strings.TrimSpace(c.Query("orderId")),
	}
	if filter.IsEmpty() {
		utils.RespondError(c, http.StatusBadRequest, errors.New("customerId or orderId is required"))
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.ErrorLogger.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	sub := lc.Hub.Subscribe(filter, 0)
	defer lc.Hub.Unsubscribe(sub)

	log := utils.InfoLogger.WithFields(logrus.Fields{
		"subscription": sub.ID,
		"customer_id":  filter.CustomerID,
		"order_id":     filter.OrderID,
	})
	log.Info("Live client connected")

	snapshot, err := lc.snapshot(c.Request.Context(), filter)
	if err != nil {
		log.WithError(err).Warn("Could not load order snapshot")
		snapshot = []interface{}{}
	}
	ws.SetWriteDeadline(time.Now().Add(liveWriteWait))
	if err := ws.WriteJSON(live.Message{Event: live.EventOrderSnapshot, Data: snapshot}); err != nil {
		return
	}

	// Client messages are ignored; reading only notices the disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			log.Info("Live client disconnected")
			return
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			ws.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := ws.WriteJSON(msg); err != nil {
				log.WithError(err).Warn("Live write failed")
				return
			}
		}
	}
}

func (lc *LiveController) snapshot(ctx context.Context, f live.Filter) (interface{}, error) {
	if f.OrderID != "" {
		order, err := lc.Queries.GetOrder(ctx, f.OrderID)
		if err != nil {
			return nil, err
		}
		return []interface{}{order}, nil
	}

	filters := services.OrderFilters{CustomerID: f.CustomerID}
	if strings.Contains(f.CustomerID, "@") {
		filters = services.OrderFilters{CustomerEmail: f.CustomerID}
	}
	return lc.Queries.GetOrders(ctx, filters, services.SortNewest, false)
}
