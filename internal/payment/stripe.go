package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/apperrors"
	"storefront/internal/models"
	"storefront/internal/order"
)

const stripeProvider = "stripe"

type RedirectConfig struct {
	SecretKey string
	APIURL    string
	Currency  string
	// FrontendURL overrides the request origin in return URLs.
	FrontendURL string
	DeliveryFee decimal.Decimal
	Timeout     time.Duration
}

// RedirectCheckout creates hosted checkout sessions (Stripe Checkout). The
// user pays on the provider's page and returns to /verify with the outcome.
type RedirectCheckout struct {
	client  *resty.Client
	breaker *Breaker
	cfg     RedirectConfig
	logger  *zap.Logger
}

func NewRedirectCheckout(cfg RedirectConfig, logger *zap.Logger) *RedirectCheckout {
	logger = logger.Named(stripeProvider)
	return &RedirectCheckout{
		client: resty.New().
			SetBaseURL(strings.TrimRight(cfg.APIURL, "/")).
			SetTimeout(cfg.Timeout).
			SetRetryCount(0).
			SetAuthToken(cfg.SecretKey),
		breaker: NewBreaker(stripeProvider, logger),
		cfg:     cfg,
		logger:  logger,
	}
}

type checkoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type stripeErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (r *RedirectCheckout) Kind() models.PaymentMethod { return models.PaymentStripe }

func (r *RedirectCheckout) CreateIntent(ctx context.Context, placed models.Order, opts IntentOptions) (Intent, error) {
	origin := strings.TrimRight(r.cfg.FrontendURL, "/")
	if origin == "" {
		origin = strings.TrimRight(opts.Origin, "/")
	}
	if origin == "" {
		return Intent{}, &apperrors.ProviderError{Provider: stripeProvider, Err: errors.New("no return URL: set FRONTEND_URL")}
	}

	form := r.sessionForm(placed, origin)
	// Same order, same key: a retried request cannot open a second session.
	idempotencyKey := uuid.NewSHA1(uuid.NameSpaceOID, []byte("checkout:"+placed.ID.Hex())).String()

	result, err := r.breaker.Execute(func() (interface{}, error) {
		var session checkoutSession
		var apiErr stripeErrorBody
		resp, err := r.client.R().
			SetContext(ctx).
			SetHeader("Idempotency-Key", idempotencyKey).
			SetFormDataFromValues(form).
			SetResult(&session).
			SetError(&apiErr).
			Post("/v1/checkout/sessions")
		if err != nil {
			return nil, fmt.Errorf("HTTP error: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("checkout session returned status %d: %s", resp.StatusCode(), apiErr.Error.Message)
		}
		if session.ID == "" || session.URL == "" {
			return nil, errors.New("checkout session response missing id or url")
		}
		return session, nil
	})
	if err != nil {
		return Intent{}, &apperrors.ProviderError{Provider: stripeProvider, Err: err}
	}

	session := result.(checkoutSession)
	r.logger.Info("checkout session created", zap.String("orderId", placed.ID.Hex()), zap.String("sessionId", session.ID))
	return Intent{
		RedirectURL: session.URL,
		Details:     &models.PaymentDetails{ProviderSessionID: session.ID, RedirectURL: session.URL},
	}, nil
}

// sessionForm encodes one line item per order line plus the delivery fee,
// all in minor units.
func (r *RedirectCheckout) sessionForm(placed models.Order, origin string) url.Values {
	orderID := placed.ID.Hex()
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", origin+"/verify?success=true&orderId="+orderID)
	form.Set("cancel_url", origin+"/verify?success=false&orderId="+orderID)
	form.Set("client_reference_id", orderID)
	form.Set("metadata[orderId]", orderID)

	currency := strings.ToLower(r.cfg.Currency)
	addItem := func(i int, name string, unitAmount, quantity int64) {
		prefix := "line_items[" + strconv.Itoa(i) + "]"
		form.Set(prefix+"[price_data][currency]", currency)
		form.Set(prefix+"[price_data][product_data][name]", name)
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(unitAmount, 10))
		form.Set(prefix+"[quantity]", strconv.FormatInt(quantity, 10))
	}

	for i, line := range placed.Lines {
		addItem(i, line.Name, order.MinorUnits(decimal.NewFromFloat(line.Price)), line.Quantity)
	}
	if r.cfg.DeliveryFee.IsPositive() {
		addItem(len(placed.Lines), "Delivery Charges", order.MinorUnits(r.cfg.DeliveryFee), 1)
	}
	return form
}

func (r *RedirectCheckout) Resume(placed models.Order) Intent {
	if placed.PaymentDetails == nil {
		return Intent{}
	}
	return Intent{RedirectURL: placed.PaymentDetails.RedirectURL}
}

// Verify trusts the success flag from the return URL.
// TODO: confirm through the checkout.session.completed webhook instead of the client flag.
func (r *RedirectCheckout) Verify(_ context.Context, _ models.Order, proof Proof) (Verdict, error) {
	return Verdict{Confirmed: proof.Success}, nil
}
