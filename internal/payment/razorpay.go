package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/apperrors"
	"storefront/internal/models"
	"storefront/internal/order"
)

const razorpayProvider = "razorpay"

type SignedConfig struct {
	KeyID     string
	KeySecret string
	APIURL    string
	Currency  string
	Timeout   time.Duration
}

// SignedCheckout creates provider orders (Razorpay Orders) and confirms a
// payment only when the HMAC signature returned to the client verifies
// against the server-held secret.
type SignedCheckout struct {
	client  *resty.Client
	breaker *Breaker
	cfg     SignedConfig
	logger  *zap.Logger
}

func NewSignedCheckout(cfg SignedConfig, logger *zap.Logger) *SignedCheckout {
	logger = logger.Named(razorpayProvider)
	return &SignedCheckout{
		client: resty.New().
			SetBaseURL(strings.TrimRight(cfg.APIURL, "/")).
			SetTimeout(cfg.Timeout).
			SetRetryCount(0).
			SetBasicAuth(cfg.KeyID, cfg.KeySecret),
		breaker: NewBreaker(razorpayProvider, logger),
		cfg:     cfg,
		logger:  logger,
	}
}

type createProviderOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayErrorBody struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (s *SignedCheckout) Kind() models.PaymentMethod { return models.PaymentRazorpay }

func (s *SignedCheckout) currency() string {
	return strings.ToUpper(s.cfg.Currency)
}

func (s *SignedCheckout) CreateIntent(ctx context.Context, placed models.Order, _ IntentOptions) (Intent, error) {
	orderID := placed.ID.Hex()
	body := createProviderOrderRequest{
		Amount:   order.MinorUnits(decimal.NewFromFloat(placed.Amount)),
		Currency: s.currency(),
		Receipt:  orderID,
		Notes:    map[string]string{"orderId": orderID},
	}

	result, err := s.breaker.Execute(func() (interface{}, error) {
		var created ProviderOrder
		var apiErr razorpayErrorBody
		resp, err := s.client.R().
			SetContext(ctx).
			SetBody(body).
			SetResult(&created).
			SetError(&apiErr).
			Post("/v1/orders")
		if err != nil {
			return nil, fmt.Errorf("HTTP error: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("orders returned status %d: %s", resp.StatusCode(), apiErr.Error.Description)
		}
		if created.ID == "" {
			return nil, errors.New("order response missing id")
		}
		return created, nil
	})
	if err != nil {
		return Intent{}, &apperrors.ProviderError{Provider: razorpayProvider, Err: err}
	}

	created := result.(ProviderOrder)
	s.logger.Info("provider order created", zap.String("orderId", orderID), zap.String("providerOrderId", created.ID))
	return Intent{
		ProviderOrder: &created,
		PublicKey:     s.cfg.KeyID,
		Details:       &models.PaymentDetails{ProviderOrderID: created.ID},
	}, nil
}

func (s *SignedCheckout) Resume(placed models.Order) Intent {
	if placed.PaymentDetails == nil || placed.PaymentDetails.ProviderOrderID == "" {
		return Intent{PublicKey: s.cfg.KeyID}
	}
	return Intent{
		ProviderOrder: &ProviderOrder{
			ID:       placed.PaymentDetails.ProviderOrderID,
			Entity:   "order",
			Amount:   order.MinorUnits(decimal.NewFromFloat(placed.Amount)),
			Currency: s.currency(),
			Receipt:  placed.ID.Hex(),
		},
		PublicKey: s.cfg.KeyID,
	}
}

// Verify checks the proof against the provider order stored at creation and
// the HMAC-SHA256 of "providerOrderRef|paymentRef".
func (s *SignedCheckout) Verify(_ context.Context, placed models.Order, proof Proof) (Verdict, error) {
	if placed.PaymentDetails == nil || placed.PaymentDetails.ProviderOrderID == "" {
		return Verdict{}, &apperrors.InvalidSignatureError{}
	}
	if proof.ProviderOrderRef != placed.PaymentDetails.ProviderOrderID || proof.PaymentRef == "" {
		return Verdict{}, &apperrors.InvalidSignatureError{}
	}
	if !VerifySignature(s.cfg.KeySecret, proof.ProviderOrderRef, proof.PaymentRef, proof.Signature) {
		return Verdict{}, &apperrors.InvalidSignatureError{}
	}
	return Verdict{
		Confirmed: true,
		Details: &models.PaymentDetails{
			ProviderOrderID: proof.ProviderOrderRef,
			PaymentID:       proof.PaymentRef,
			Signature:       proof.Signature,
		},
	}, nil
}

// Sign returns the hex HMAC-SHA256 of "providerOrderRef|paymentRef".
func Sign(secret, providerOrderRef, paymentRef string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(providerOrderRef + "|" + paymentRef))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares the supplied hex signature with the expected one
// in constant time.
func VerifySignature(secret, providerOrderRef, paymentRef, signature string) bool {
	expected := Sign(secret, providerOrderRef, paymentRef)
	return hmac.Equal([]byte(expected), []byte(signature))
}
