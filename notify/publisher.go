// Package notify fans order events out to other systems.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Event types.
const (
	EventOrderPlaced = "order.placed"
	EventOrderStatus = "order.status"
)

type Event struct {
	Type           string    `json:"type"`
	OrderID        string    `json:"orderId"`
	DocumentID     string    `json:"documentId,omitempty"`
	VendorIDs      []string  `json:"vendorIds,omitempty"`
	CustomerID     string    `json:"customerId,omitempty"`
	Status         string    `json:"status"`
	DeliveryStatus string    `json:"deliveryStatus"`
	Message        string    `json:"message,omitempty"`
	Source         string    `json:"source,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// Channel is the part of *amqp.Channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes events to a topic exchange, routed by event type.
type AMQPPublisher struct {
	exchange    string
	openChannel func() (Channel, error)
	closeConn   func() error
}

// DialAMQP connects to the broker at url.
func DialAMQP(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return &AMQPPublisher{
		exchange: exchange,
		openChannel: func() (Channel, error) {
			ch, err := conn.Channel()
			if err != nil {
				return nil, err
			}
			return ch, nil
		},
		closeConn: conn.Close,
	}, nil
}

// NewAMQPPublisher builds a publisher over an arbitrary channel source.
func NewAMQPPublisher(exchange string, open func() (Channel, error)) *AMQPPublisher {
	return &AMQPPublisher{
		exchange:    exchange,
		openChannel: open,
		closeConn:   func() error { return nil },
	}
}

func (p *AMQPPublisher) Publish(ctx context.Context, evt Event) error {
	ch, err := p.openChannel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = ch.PublishWithContext(ctx, p.exchange, evt.Type, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    evt.OrderID,
		Timestamp:    evt.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	return p.closeConn()
}
