package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"storefront/internal/apperrors"
	"storefront/internal/models"
)

func TestSignMatchesKnownVector(t *testing.T) {
	sig := Sign("secret", "order_123", "pay_456")

	assert.Equal(t, "18bfc0baafae8f6367711ee362f2201aaa3654274683100e5367bb9a2bd29cbe", sig)
	assert.True(t, VerifySignature("secret", "order_123", "pay_456", sig))
	assert.False(t, VerifySignature("secret", "order_123", "pay_457", sig))
	assert.False(t, VerifySignature("secret", "order_123", "pay_456", strings.ToUpper(sig)))
	assert.False(t, VerifySignature("other", "order_123", "pay_456", sig))
}

func TestSignedCheckoutCreatesProviderOrder(t *testing.T) {
	var gotReq createProviderOrderRequest
	var gotUser, gotPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders", r.URL.Path)
		gotUser, gotPass, _ = r.BasicAuth()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_abc","entity":"order","amount":5498,"currency":"INR","receipt":"` + gotReq.Receipt + `","status":"created"}`))
	}))
	defer srv.Close()

	signed := NewSignedCheckout(SignedConfig{KeyID: "key", KeySecret: "secret", APIURL: srv.URL, Currency: "inr"}, zap.NewNop())
	placed := models.Order{ID: primitive.NewObjectID(), Amount: 54.98}

	intent, err := signed.CreateIntent(context.Background(), placed, IntentOptions{})
	require.NoError(t, err)

	assert.Equal(t, "key", gotUser)
	assert.Equal(t, "secret", gotPass)
	assert.Equal(t, int64(5498), gotReq.Amount)
	assert.Equal(t, "INR", gotReq.Currency)
	assert.Equal(t, placed.ID.Hex(), gotReq.Receipt)

	require.NotNil(t, intent.ProviderOrder)
	assert.Equal(t, "order_abc", intent.ProviderOrder.ID)
	assert.Equal(t, "key", intent.PublicKey)
	assert.Equal(t, "order_abc", intent.Details.ProviderOrderID)

	placed.PaymentDetails = intent.Details
	resumed := signed.Resume(placed)
	assert.Equal(t, "order_abc", resumed.ProviderOrder.ID)
	assert.Equal(t, int64(5498), resumed.ProviderOrder.Amount)
}

func TestSignedCheckoutProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"Authentication failed"}}`))
	}))
	defer srv.Close()

	signed := NewSignedCheckout(SignedConfig{KeyID: "key", KeySecret: "bad", APIURL: srv.URL, Currency: "inr"}, zap.NewNop())
	_, err := signed.CreateIntent(context.Background(), models.Order{ID: primitive.NewObjectID(), Amount: 10}, IntentOptions{})

	var providerErr *apperrors.ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, "razorpay", providerErr.Provider)
	assert.Contains(t, err.Error(), "Authentication failed")
}

func TestSignedVerifyWithoutProviderOrderFailsClosed(t *testing.T) {
	signed := NewSignedCheckout(SignedConfig{KeySecret: "secret"}, zap.NewNop())

	_, err := signed.Verify(context.Background(), models.Order{}, Proof{
		PaymentRef:       "pay_456",
		ProviderOrderRef: "order_123",
		Signature:        Sign("secret", "order_123", "pay_456"),
	})

	var sigErr *apperrors.InvalidSignatureError
	assert.ErrorAs(t, err, &sigErr)
}
