// Package live pushes order changes to subscribed customers.
package live

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/chopchop-backend/models"
	"github.com/yeremiapane/chopchop-backend/utils"
)

// Event types
const (
	EventOrderSnapshot = "order_snapshot"
	EventOrderUpdate   = "order_update"
)

type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Filter selects the orders a subscriber sees. Empty fields match anything,
// but a subscription needs at least one of them.
type Filter struct {
	CustomerID string
	OrderID    string
}

func (f Filter) IsEmpty() bool {
	return f.CustomerID == "" && f.OrderID == ""
}

func (f Filter) Matches(o models.Order) bool {
	if f.IsEmpty() {
		return false
	}
	if f.CustomerID != "" && f.CustomerID != o.CustomerID && !strings.EqualFold(f.CustomerID, o.Customer.Email) {
		return false
	}
	if f.OrderID != "" && f.OrderID != o.OrderID && f.OrderID != o.ID {
		return false
	}
	return true
}

// Subscription receives matching messages on C until it is unsubscribed.
type Subscription struct {
	ID     string
	Filter Filter
	C      <-chan Message
	ch     chan Message
}

// Hub keeps the live subscriptions.
type Hub struct {
	clients map[string]*Subscription
	mutex   sync.Mutex
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Subscription)}
}

func (h *Hub) Subscribe(f Filter, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Message, buffer)
	sub := &Subscription{ID: uuid.NewString(), Filter: f, C: ch, ch: ch}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.clients[sub.ID] = sub
	return sub
}

// Unsubscribe removes the subscription and closes its channel. Calling it
// twice is harmless.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[sub.ID]; !ok {
		return
	}
	delete(h.clients, sub.ID)
	close(sub.ch)
}

func (h *Hub) ClientCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

// BroadcastOrderUpdate sends the order to every matching subscriber and
// returns how many received it. A subscriber whose buffer is full misses
// the update rather than blocking the broadcaster.
func (h *Hub) BroadcastOrderUpdate(order models.Order) int {
	msg := Message{Event: EventOrderUpdate, Data: order}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	delivered := 0
	for _, sub := range h.clients {
		if !sub.Filter.Matches(order) {
			continue
		}
		select {
		case sub.ch <- msg:
			delivered++
		default:
			utils.InfoLogger.WithFields(logrus.Fields{
				"subscription": sub.ID,
				"order_id":     order.OrderID,
			}).Warn("Live subscriber is too slow, dropping update")
		}
	}
	return delivered
}
