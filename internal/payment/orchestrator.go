package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"storefront/internal/apperrors"
	"storefront/internal/events"
	"storefront/internal/metrics"
	"storefront/internal/models"
	"storefront/internal/order"
	"storefront/internal/store"
)

type Options struct {
	DeliveryFee   decimal.Decimal
	AbandonPolicy AbandonPolicy
}

type Orchestrator struct {
	orders    OrderStore
	carts     CartClearer
	publisher events.Publisher
	methods   map[models.PaymentMethod]Method
	opts      Options
	logger    *zap.Logger
}

func NewOrchestrator(orders OrderStore, carts CartClearer, publisher events.Publisher, opts Options, logger *zap.Logger, methods ...Method) *Orchestrator {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if opts.AbandonPolicy == "" {
		opts.AbandonPolicy = AbandonDelete
	}
	byKind := make(map[models.PaymentMethod]Method, len(methods))
	for _, m := range methods {
		byKind[m.Kind()] = m
	}
	return &Orchestrator{
		orders:    orders,
		carts:     carts,
		publisher: publisher,
		methods:   byKind,
		opts:      opts,
		logger:    logger.Named("payment"),
	}
}

func (o *Orchestrator) method(kind models.PaymentMethod) (Method, error) {
	m, ok := o.methods[kind]
	if !ok {
		return nil, apperrors.Validation(fmt.Sprintf("payment method %q is not available", kind))
	}
	return m, nil
}

// Place creates a pending order for the lines and starts its payment. COD
// orders are confirmed and the cart cleared before Place returns.
func (o *Orchestrator) Place(ctx context.Context, req PlaceRequest) (Placement, error) {
	m, err := o.method(req.Method)
	if err != nil {
		return Placement{}, err
	}
	if err := order.Validate(req.Lines, req.Address); err != nil {
		return Placement{}, err
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" {
		existing, err := o.orders.FindByIdempotencyKey(ctx, req.UserID, key)
		if err == nil {
			return o.replay(ctx, m, existing, req)
		}
		if !apperrors.IsNotFound(err) {
			return Placement{}, err
		}
	}

	amount := order.Total(req.Lines, o.opts.DeliveryFee).Round(2)
	placed := models.Order{
		UserID:         req.UserID,
		Lines:          req.Lines,
		Amount:         amount.InexactFloat64(),
		Address:        order.TrimAddress(req.Address),
		PaymentMethod:  m.Kind(),
		PaymentState:   models.PaymentPending,
		Status:         models.StatusPlaced,
		IdempotencyKey: key,
	}
	if err := o.orders.Create(ctx, &placed); err != nil {
		if errors.Is(err, store.ErrDuplicateOrder) && key != "" {
			existing, findErr := o.orders.FindByIdempotencyKey(ctx, req.UserID, key)
			if findErr != nil {
				return Placement{}, findErr
			}
			return o.replay(ctx, m, existing, req)
		}
		return Placement{}, err
	}

	metrics.OrdersPlaced.WithLabelValues(string(m.Kind())).Inc()
	o.publish(ctx, events.OrderPlaced, placed)
	o.logger.Info("order placed",
		zap.String("orderId", placed.ID.Hex()),
		zap.String("userId", placed.UserID.Hex()),
		zap.String("method", string(m.Kind())),
		zap.String("amount", amount.StringFixed(2)),
	)

	return o.start(ctx, m, placed, req)
}

func (o *Orchestrator) replay(ctx context.Context, m Method, existing models.Order, req PlaceRequest) (Placement, error) {
	o.logger.Info("placement replayed",
		zap.String("orderId", existing.ID.Hex()),
		zap.String("idempotencyKey", existing.IdempotencyKey),
	)
	if existing.PaymentMethod != m.Kind() {
		return Placement{}, &apperrors.ConflictError{Message: "idempotency key already used with another payment method"}
	}
	if !sameLines(existing.Lines, req.Lines) || existing.Address != order.TrimAddress(req.Address) {
		return Placement{}, &apperrors.ConflictError{Message: "idempotency key already used for a different order"}
	}
	if existing.PaymentState == models.PaymentPending && existing.PaymentDetails == nil {
		// The earlier attempt failed before the provider accepted it.
		placement, err := o.start(ctx, m, existing, req)
		placement.Replayed = true
		return placement, err
	}
	return Placement{Order: existing, Intent: m.Resume(existing), Replayed: true}, nil
}

// sameLines reports whether two line sets order the same quantities of the
// same product sizes, ignoring line order and price.
func sameLines(a, b []models.OrderLine) bool {
	counts := make(map[string]int64, len(a))
	for _, line := range a {
		counts[line.ProductID+"/"+line.Size] += line.Quantity
	}
	for _, line := range b {
		counts[line.ProductID+"/"+line.Size] -= line.Quantity
	}
	for _, n := range counts {
		if n != 0 {
			return false
		}
	}
	return true
}

// start creates the provider intent for a pending order. A provider failure
// leaves the order pending.
func (o *Orchestrator) start(ctx context.Context, m Method, placed models.Order, req PlaceRequest) (Placement, error) {
	intent, err := m.CreateIntent(ctx, placed, IntentOptions{Origin: req.Origin})
	if err != nil {
		o.logger.Warn("payment intent failed", zap.String("orderId", placed.ID.Hex()), zap.Error(err))
		var providerErr *apperrors.ProviderError
		if !errors.As(err, &providerErr) {
			err = &apperrors.ProviderError{Provider: string(m.Kind()), Err: err}
		}
		return Placement{Order: placed}, err
	}

	if intent.Details != nil {
		placed, err = o.orders.UpdateFields(ctx, placed.ID.Hex(), store.OrderFields{PaymentDetails: intent.Details})
		if err != nil {
			return Placement{}, err
		}
	}

	if intent.ConfirmNow {
		outcome, err := o.transition(ctx, placed, models.PaymentConfirmed, nil)
		if err != nil {
			return Placement{}, err
		}
		placed = outcome.Order
	}

	return Placement{Order: placed, Intent: intent}, nil
}

// VerifyRedirect settles a redirect checkout from the flag the provider's
// return URL carried. success=false abandons the order according to the
// abandon policy.
func (o *Orchestrator) VerifyRedirect(ctx context.Context, userID, orderID string, success bool) (Outcome, error) {
	current, m, err := o.load(ctx, userID, orderID, models.PaymentStripe)
	if err != nil {
		return Outcome{}, err
	}
	if current.PaymentState.Terminal() {
		return Outcome{Order: current}, nil
	}

	verdict, err := m.Verify(ctx, current, Proof{Success: success})
	if err != nil {
		return Outcome{}, err
	}
	if verdict.Confirmed {
		return o.transition(ctx, current, models.PaymentConfirmed, verdict.Details)
	}

	if o.opts.AbandonPolicy == AbandonCancel {
		return o.transition(ctx, current, models.PaymentCancelled, nil)
	}

	deleted, err := o.orders.DeletePending(ctx, orderID)
	if err != nil {
		return Outcome{}, err
	}
	if !deleted {
		// Settled by a concurrent call.
		stored, err := o.orders.Get(ctx, orderID)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Order: stored}, nil
	}

	metrics.PaymentTransitions.WithLabelValues(string(current.PaymentMethod), "deleted").Inc()
	o.publish(ctx, events.OrderDeleted, current)
	o.logger.Info("abandoned order deleted", zap.String("orderId", orderID))
	return Outcome{Order: current, Deleted: true}, nil
}

// VerifySigned confirms a signed checkout once the signature over the
// provider order and payment ids checks out. A bad signature leaves the
// order pending.
func (o *Orchestrator) VerifySigned(ctx context.Context, userID, orderID string, proof Proof) (Outcome, error) {
	current, m, err := o.load(ctx, userID, orderID, models.PaymentRazorpay)
	if err != nil {
		return Outcome{}, err
	}
	if current.PaymentState.Terminal() {
		return Outcome{Order: current}, nil
	}

	verdict, err := m.Verify(ctx, current, proof)
	if err != nil {
		var sigErr *apperrors.InvalidSignatureError
		if errors.As(err, &sigErr) {
			metrics.SignatureFailures.Inc()
			o.logger.Warn("payment signature rejected", zap.String("orderId", orderID))
		}
		return Outcome{}, err
	}
	if !verdict.Confirmed {
		return Outcome{Order: current}, nil
	}
	return o.transition(ctx, current, models.PaymentConfirmed, verdict.Details)
}

func (o *Orchestrator) load(ctx context.Context, userID, orderID string, kind models.PaymentMethod) (models.Order, Method, error) {
	current, err := o.orders.Get(ctx, orderID)
	if err != nil {
		return models.Order{}, nil, err
	}
	if current.UserID.Hex() != userID {
		return models.Order{}, nil, apperrors.NotFound("order", orderID)
	}
	if current.PaymentMethod != kind {
		return models.Order{}, nil, &apperrors.InvalidTransitionError{
			From: string(current.PaymentState),
			To:   fmt.Sprintf("%s via %s", models.PaymentConfirmed, kind),
		}
	}
	m, err := o.method(kind)
	if err != nil {
		return models.Order{}, nil, err
	}
	return current, m, nil
}

// transition applies a terminal state. Side effects run only when this call
// made the transition.
func (o *Orchestrator) transition(ctx context.Context, current models.Order, to models.PaymentState, details *models.PaymentDetails) (Outcome, error) {
	if details != nil && current.PaymentDetails != nil {
		merged := *current.PaymentDetails
		mergeDetails(&merged, details)
		details = &merged
	}

	updated, ok, err := o.orders.TransitionPayment(ctx, current.ID.Hex(), to, details)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{Order: updated}, nil
	}

	metrics.PaymentTransitions.WithLabelValues(string(updated.PaymentMethod), string(to)).Inc()
	o.logger.Info("payment settled",
		zap.String("orderId", updated.ID.Hex()),
		zap.String("state", string(to)),
	)

	outcome := Outcome{Order: updated, Transitioned: true}
	switch to {
	case models.PaymentConfirmed:
		metrics.PaymentAmount.Observe(updated.Amount)
		outcome.CartCleared = o.clearCart(ctx, updated.UserID)
		o.publish(ctx, events.OrderConfirmed, updated)
	case models.PaymentCancelled:
		o.publish(ctx, events.OrderCancelled, updated)
	}
	return outcome, nil
}

func (o *Orchestrator) clearCart(ctx context.Context, userID primitive.ObjectID) bool {
	if o.carts == nil {
		return false
	}
	if err := o.carts.Clear(ctx, userID.Hex()); err != nil {
		o.logger.Error("cart clear failed", zap.String("userId", userID.Hex()), zap.Error(err))
		return false
	}
	return true
}

func (o *Orchestrator) publish(ctx context.Context, eventType string, ord models.Order) {
	if err := o.publisher.Publish(ctx, events.NewOrderEvent(eventType, ord)); err != nil {
		o.logger.Warn("order event not published",
			zap.String("type", eventType),
			zap.String("orderId", ord.ID.Hex()),
			zap.Error(err),
		)
	}
}

func mergeDetails(dst, src *models.PaymentDetails) {
	if src.ProviderSessionID != "" {
		dst.ProviderSessionID = src.ProviderSessionID
	}
	if src.ProviderOrderID != "" {
		dst.ProviderOrderID = src.ProviderOrderID
	}
	if src.PaymentID != "" {
		dst.PaymentID = src.PaymentID
	}
	if src.Signature != "" {
		dst.Signature = src.Signature
	}
	if src.RedirectURL != "" {
		dst.RedirectURL = src.RedirectURL
	}
}
