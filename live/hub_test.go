package live

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yeremiapane/chopchop-backend/models"
)

func TestFilterMatches(t *testing.T) {
	o := models.Order{ID: "doc-1", OrderID: "CC1", CustomerID: "ada@example.com", Customer: models.Customer{Email: "ada@example.com"}}

	assert.True(t, Filter{CustomerID: "ada@example.com"}.Matches(o))
	assert.True(t, Filter{OrderID: "CC1"}.Matches(o))
	assert.True(t, Filter{OrderID: "doc-1"}.Matches(o))
	assert.True(t, Filter{CustomerID: "ada@example.com", OrderID: "CC1"}.Matches(o))
	assert.False(t, Filter{CustomerID: "bob@example.com"}.Matches(o))
	assert.False(t, Filter{CustomerID: "ada@example.com", OrderID: "CC2"}.Matches(o))
	assert.False(t, Filter{}.Matches(o))

	mixed := models.Order{OrderID: "CC2", CustomerID: "ada@example.com", Customer: models.Customer{Email: "Ada@Example.com"}}
	assert.True(t, Filter{CustomerID: "ADA@example.com"}.Matches(mixed))
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub()
	ada := hub.Subscribe(Filter{CustomerID: "ada@example.com"}, 4)
	bob := hub.Subscribe(Filter{CustomerID: "bob@example.com"}, 4)
	assert.Equal(t, 2, hub.ClientCount())

	n := hub.BroadcastOrderUpdate(models.Order{OrderID: "CC1", CustomerID: "ada@example.com"})
	assert.Equal(t, 1, n)

	msg := <-ada.C
	assert.Equal(t, EventOrderUpdate, msg.Event)
	assert.Equal(t, "CC1", msg.Data.(models.Order).OrderID)
	assert.Len(t, bob.C, 0)

	hub.Unsubscribe(ada)
	hub.Unsubscribe(ada)
	_, open := <-ada.C
	assert.False(t, open)
	assert.Equal(t, 1, hub.ClientCount())
}

func TestHubDropsWhenFull(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(Filter{OrderID: "CC1"}, 1)

	assert.Equal(t, 1, hub.BroadcastOrderUpdate(models.Order{OrderID: "CC1"}))
	assert.Equal(t, 0, hub.BroadcastOrderUpdate(models.Order{OrderID: "CC1"}))
	assert.Len(t, sub.C, 1)
}
