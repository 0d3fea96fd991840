// Package payment runs checkout for the three payment methods and owns every
// payment state transition of an order.
//
// An order starts pending and moves at most once to confirmed, failed or
// cancelled. Transitions are compare-and-set on the stored state, so a
// repeated verification returns the stored order without re-running any
// side effect.
package payment

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
	"storefront/internal/store"
)

// Method is one payment protocol. The method of an order is fixed when the
// order is placed.
type Method interface {
	Kind() models.PaymentMethod
	// CreateIntent starts the payment with the provider for a freshly
	// created pending order.
	CreateIntent(ctx context.Context, order models.Order, opts IntentOptions) (Intent, error)
	// Resume rebuilds the intent of an order placed earlier from what was
	// stored with it.
	Resume(order models.Order) Intent
	// Verify checks the caller's proof of payment. It has no side effects.
	Verify(ctx context.Context, order models.Order, proof Proof) (Verdict, error)
}

type IntentOptions struct {
	// Origin is the storefront base URL the provider redirects back to.
	Origin string
}

// Intent is what the client needs to collect the payment.
type Intent struct {
	// ConfirmNow marks methods that need no payment collection.
	ConfirmNow    bool
	RedirectURL   string
	ProviderOrder *ProviderOrder
	PublicKey     string
	// Details are stored on the order while it is pending.
	Details *models.PaymentDetails
}

// ProviderOrder is the provider-side payment intent of a signed checkout.
type ProviderOrder struct {
	ID       string `json:"id"`
	Entity   string `json:"entity,omitempty"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status,omitempty"`
}

// Proof is the caller-supplied evidence of a payment. Redirect checkouts only
// carry Success; signed checkouts carry the three provider values.
type Proof struct {
	Success          bool
	PaymentRef       string
	ProviderOrderRef string
	Signature        string
}

type Verdict struct {
	Confirmed bool
	Details   *models.PaymentDetails
}

// OrderStore is the order persistence the orchestrator needs.
type OrderStore interface {
	Create(ctx context.Context, order *models.Order) error
	Get(ctx context.Context, id string) (models.Order, error)
	UpdateFields(ctx context.Context, id string, fields store.OrderFields) (models.Order, error)
	TransitionPayment(ctx context.Context, id string, to models.PaymentState, details *models.PaymentDetails) (models.Order, bool, error)
	DeletePending(ctx context.Context, id string) (bool, error)
	FindByIdempotencyKey(ctx context.Context, userID primitive.ObjectID, key string) (models.Order, error)
}

// CartClearer empties a user's server-side cart.
type CartClearer interface {
	Clear(ctx context.Context, userID string) error
}

// AbandonPolicy decides what happens to a redirect checkout the user
// abandoned.
type AbandonPolicy string

const (
	AbandonDelete AbandonPolicy = "delete"
	AbandonCancel AbandonPolicy = "cancel"
)

type PlaceRequest struct {
	UserID         primitive.ObjectID
	Method         models.PaymentMethod
	Lines          []models.OrderLine
	Address        models.Address
	IdempotencyKey string
	Origin         string
}

// Placement is the result of Place.
type Placement struct {
	Order  models.Order
	Intent Intent
	// Replayed is set when the idempotency key matched an earlier order.
	Replayed bool
}

// Outcome is the result of a verification.
type Outcome struct {
	Order models.Order
	// Transitioned is set only on the call that moved the order out of
	// pending.
	Transitioned bool
	Deleted      bool
	CartCleared  bool
}
