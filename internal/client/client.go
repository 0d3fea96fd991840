// Package client is a Go client for the storefront REST API. It is the
// server side of a cart.Session.
package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"storefront/internal/apperrors"
	"storefront/internal/cart"
	"storefront/internal/models"
)

const tokenHeader = "token"

type Client struct {
	http *resty.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type cartResponse struct {
	envelope
	CartData map[string]map[string]int64 `json:"cartData"`
	Version  int64                       `json:"version"`
}

type productsResponse struct {
	envelope
	Products []models.Product `json:"products"`
}

type loginResponse struct {
	envelope
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

type PlaceOrderRequest struct {
	Items   map[string]map[string]int64 `json:"items,omitempty"`
	Amount  float64                     `json:"amount,omitempty"`
	Address models.Address              `json:"address"`
}

// PlaceOrderResponse carries whichever of the method-specific fields the
// server returned.
type PlaceOrderResponse struct {
	envelope
	OrderID       string         `json:"orderId"`
	RedirectURL   string         `json:"redirectUrl"`
	ProviderOrder *ProviderOrder `json:"order"`
	RazorpayKey   string         `json:"razorpayKey"`
}

type ProviderOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

func (c *Client) Login(ctx context.Context, email, password string) (token, refreshToken string, err error) {
	var out loginResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&out).
		SetError(&out).
		Post("/api/user/login")
	if err := check(resp, err, out.envelope); err != nil {
		return "", "", err
	}
	return out.Token, out.RefreshToken, nil
}

func (c *Client) ListProducts(ctx context.Context) ([]models.Product, error) {
	var out productsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&out).
		Get("/api/product/list")
	if err := check(resp, err, out.envelope); err != nil {
		return nil, err
	}
	return out.Products, nil
}

func (c *Client) GetCart(ctx context.Context, token string) (cart.Snapshot, error) {
	return c.cartCall(ctx, token, "/api/cart/get", map[string]interface{}{})
}

func (c *Client) AddToCart(ctx context.Context, token, productID, size string) (cart.Snapshot, error) {
	return c.cartCall(ctx, token, "/api/cart/add", map[string]interface{}{
		"itemId": productID,
		"size":   size,
	})
}

func (c *Client) UpdateCart(ctx context.Context, token, productID, size string, quantity int64) (cart.Snapshot, error) {
	return c.cartCall(ctx, token, "/api/cart/update", map[string]interface{}{
		"itemId":   productID,
		"size":     size,
		"quantity": quantity,
	})
}

func (c *Client) cartCall(ctx context.Context, token, path string, body interface{}) (cart.Snapshot, error) {
	var out cartResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(tokenHeader, token).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post(path)
	if err := check(resp, err, out.envelope); err != nil {
		return cart.Snapshot{}, err
	}
	return cart.Snapshot{Cart: cart.FromMap(out.CartData), Version: out.Version}, nil
}

// PlaceOrder places an order with the given method. A non-empty
// idempotencyKey makes a retried call return the same order.
func (c *Client) PlaceOrder(ctx context.Context, token string, method models.PaymentMethod, req PlaceOrderRequest, idempotencyKey string) (PlaceOrderResponse, error) {
	path := "/api/order/place"
	switch method {
	case models.PaymentStripe:
		path = "/api/order/stripe"
	case models.PaymentRazorpay:
		path = "/api/order/razorpay"
	}

	var out PlaceOrderResponse
	r := c.http.R().
		SetContext(ctx).
		SetHeader(tokenHeader, token).
		SetBody(req).
		SetResult(&out).
		SetError(&out)
	if idempotencyKey != "" {
		r.SetHeader("Idempotency-Key", idempotencyKey)
	}
	resp, err := r.Post(path)
	if err := check(resp, err, out.envelope); err != nil {
		return PlaceOrderResponse{}, err
	}
	return out, nil
}

// check maps transport failures and {success:false} bodies to errors.
func check(resp *resty.Response, err error, body envelope) error {
	if err != nil {
		return fmt.Errorf("storefront request failed: %w", err)
	}
	if resp.IsSuccess() && body.Success {
		return nil
	}

	message := body.Message
	if message == "" {
		message = fmt.Sprintf("storefront returned %d", resp.StatusCode())
	}
	switch resp.StatusCode() {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &apperrors.AuthRequiredError{Message: message}
	case http.StatusBadRequest:
		return apperrors.Validation(message)
	case http.StatusConflict:
		return &apperrors.ConflictError{Message: message}
	}
	return fmt.Errorf("storefront error (%d): %s", resp.StatusCode(), message)
}
