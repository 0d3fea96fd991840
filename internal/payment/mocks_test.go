package payment

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperrors"
	"storefront/internal/events"
	"storefront/internal/models"
	"storefront/internal/store"
)

// memoryOrders mirrors the compare-and-set semantics of store.Orders.
type memoryOrders struct {
	mu     sync.Mutex
	orders map[string]models.Order
}

func newMemoryOrders() *memoryOrders {
	return &memoryOrders{orders: map[string]models.Order{}}
}

func (m *memoryOrders) Create(_ context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if order.IdempotencyKey != "" {
		for _, existing := range m.orders {
			if existing.UserID == order.UserID && existing.IdempotencyKey == order.IdempotencyKey {
				return store.ErrDuplicateOrder
			}
		}
	}
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	m.orders[order.ID.Hex()] = *order
	return nil
}

func (m *memoryOrders) Get(_ context.Context, id string) (models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return models.Order{}, apperrors.NotFound("order", id)
	}
	return order, nil
}

func (m *memoryOrders) UpdateFields(_ context.Context, id string, fields store.OrderFields) (models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return models.Order{}, apperrors.NotFound("order", id)
	}
	if fields.PaymentState != nil {
		order.PaymentState = *fields.PaymentState
	}
	if fields.Status != nil {
		order.Status = *fields.Status
	}
	if fields.PaymentDetails != nil {
		details := *fields.PaymentDetails
		order.PaymentDetails = &details
	}
	m.orders[id] = order
	return order, nil
}

func (m *memoryOrders) TransitionPayment(_ context.Context, id string, to models.PaymentState, details *models.PaymentDetails) (models.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return models.Order{}, false, apperrors.NotFound("order", id)
	}
	if order.PaymentState != models.PaymentPending {
		return order, false, nil
	}
	order.PaymentState = to
	if to == models.PaymentCancelled {
		order.Status = models.StatusCancelled
	}
	if details != nil {
		copied := *details
		order.PaymentDetails = &copied
	}
	m.orders[id] = order
	return order, true, nil
}

func (m *memoryOrders) DeletePending(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok || order.PaymentState != models.PaymentPending {
		return false, nil
	}
	delete(m.orders, id)
	return true, nil
}

func (m *memoryOrders) FindByIdempotencyKey(_ context.Context, userID primitive.ObjectID, key string) (models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, order := range m.orders {
		if order.UserID == userID && order.IdempotencyKey == key {
			return order, nil
		}
	}
	return models.Order{}, apperrors.NotFound("order", key)
}

func (m *memoryOrders) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

type countingCarts struct {
	mu      sync.Mutex
	cleared map[string]int
}

func newCountingCarts() *countingCarts {
	return &countingCarts{cleared: map[string]int{}}
}

func (c *countingCarts) Clear(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleared[userID]++
	return nil
}

func (c *countingCarts) clears(userID primitive.ObjectID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleared[userID.Hex()]
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.OrderEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event events.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// stubRedirect is a redirect method that never calls a provider.
type stubRedirect struct {
	RedirectCheckout
	fail error
}

func (s *stubRedirect) CreateIntent(_ context.Context, placed models.Order, _ IntentOptions) (Intent, error) {
	if s.fail != nil {
		return Intent{}, s.fail
	}
	url := "https://checkout.example/" + placed.ID.Hex()
	return Intent{
		RedirectURL: url,
		Details:     &models.PaymentDetails{ProviderSessionID: "cs_" + placed.ID.Hex(), RedirectURL: url},
	}, nil
}
