package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
)

func TestNewOrderEvent(t *testing.T) {
	order := models.Order{
		ID:            primitive.NewObjectID(),
		UserID:        primitive.NewObjectID(),
		PaymentMethod: models.PaymentCOD,
		PaymentState:  models.PaymentConfirmed,
		Amount:        49.99,
	}

	event := NewOrderEvent(OrderConfirmed, order)

	assert.Equal(t, OrderConfirmed, event.Type)
	assert.Equal(t, order.ID.Hex(), event.OrderID)
	assert.Equal(t, order.UserID.Hex(), event.UserID)
	assert.Equal(t, models.PaymentConfirmed, event.PaymentState)
	assert.Equal(t, 49.99, event.Amount)
	assert.False(t, event.OccurredAt.IsZero())
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), OrderEvent{Type: OrderPlaced}))
}
