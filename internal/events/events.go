// Package events publishes order lifecycle events for downstream consumers
// (fulfilment, notifications).
package events

import (
	"context"
	"time"

	"storefront/internal/models"
)

const (
	OrderPlaced    = "order.placed"
	OrderConfirmed = "order.confirmed"
	OrderCancelled = "order.cancelled"
	OrderDeleted   = "order.deleted"
)

type OrderEvent struct {
	Type          string               `json:"type"`
	OrderID       string               `json:"orderId"`
	UserID        string               `json:"userId"`
	PaymentMethod models.PaymentMethod `json:"paymentMethod"`
	PaymentState  models.PaymentState  `json:"paymentState"`
	Amount        float64              `json:"amount"`
	OccurredAt    time.Time            `json:"occurredAt"`
}

func NewOrderEvent(eventType string, order models.Order) OrderEvent {
	return OrderEvent{
		Type:          eventType,
		OrderID:       order.ID.Hex(),
		UserID:        order.UserID.Hex(),
		PaymentMethod: order.PaymentMethod,
		PaymentState:  order.PaymentState,
		Amount:        order.Amount,
		OccurredAt:    time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, event OrderEvent) error
}

// NopPublisher drops every event. Used when RABBITMQ_URL is not set.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, OrderEvent) error { return nil }
