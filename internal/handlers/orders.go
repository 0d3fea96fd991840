package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/apperrors"
	"storefront/internal/cart"
	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/order"
	"storefront/internal/payment"
	"storefront/internal/store"
)

// Checkout places orders and settles their payments.
type Checkout interface {
	Place(ctx context.Context, req payment.PlaceRequest) (payment.Placement, error)
	VerifyRedirect(ctx context.Context, userID, orderID string, success bool) (payment.Outcome, error)
	VerifySigned(ctx context.Context, userID, orderID string, proof payment.Proof) (payment.Outcome, error)
}

// OrderStore is the order persistence used outside of checkout.
type OrderStore interface {
	ListByUser(ctx context.Context, userID string) ([]models.Order, error)
	ListAll(ctx context.Context, page, limit int64) ([]models.Order, int64, error)
	UpdateFields(ctx context.Context, id string, fields store.OrderFields) (models.Order, error)
	Delete(ctx context.Context, id string) error
}

type OrderDeps struct {
	Products    ProductStore
	Carts       CartService
	Orders      OrderStore
	Checkout    Checkout
	DeliveryFee decimal.Decimal
	Logger      *zap.Logger
}

type placeOrderRequest struct {
	Items   map[string]map[string]int64 `json:"items"`
	Amount  *float64                    `json:"amount"`
	Address models.Address              `json:"address"`
}

type verifyRedirectRequest struct {
	OrderID string          `json:"orderId"`
	Success json.RawMessage `json:"success"`
}

type verifySignedRequest struct {
	OrderID           string `json:"orderId"`
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
}

type updateStatusRequest struct {
	ID      string `json:"id"`
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

// PlaceOrder handles placement for one payment method. Prices come from the
// catalog; the client's amount is only compared and logged.
func PlaceOrder(deps OrderDeps, method models.PaymentMethod) gin.HandlerFunc {
	logger := deps.Logger.Named("order")
	return func(c *gin.Context) {
		route := "POST /api/order/place"
		if method != models.PaymentCOD {
			route = "POST /api/order/" + strings.ToLower(string(method))
		}
		defer handlePanic(c, logger, route)

		var req placeOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, logger, route, apperrors.Validation("invalid body"))
			return
		}

		userID, err := currentUser(c)
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		lines, err := buildLines(ctx, deps, userID.Hex(), req.Items)
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		if req.Amount != nil {
			computed := order.Total(lines, deps.DeliveryFee).Round(2)
			if !computed.Equal(decimal.NewFromFloat(*req.Amount).Round(2)) {
				logger.Warn("client amount differs from catalog total",
					zap.String("userId", userID.Hex()),
					zap.Float64("clientAmount", *req.Amount),
					zap.String("computedAmount", computed.StringFixed(2)),
				)
			}
		}

		placement, err := deps.Checkout.Place(ctx, payment.PlaceRequest{
			UserID:         userID,
			Method:         method,
			Lines:          lines,
			Address:        req.Address,
			IdempotencyKey: middleware.GetIdempotencyKey(c),
			Origin:         c.GetHeader("Origin"),
		})
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		orderID := placement.Order.ID.Hex()
		switch method {
		case models.PaymentStripe:
			c.JSON(http.StatusOK, gin.H{
				"success":     true,
				"session_url": placement.Intent.RedirectURL,
				"redirectUrl": placement.Intent.RedirectURL,
				"orderId":     orderID,
			})
		case models.PaymentRazorpay:
			c.JSON(http.StatusOK, gin.H{
				"success":     true,
				"order":       placement.Intent.ProviderOrder,
				"orderId":     orderID,
				"razorpayKey": placement.Intent.PublicKey,
			})
		default:
			c.JSON(http.StatusOK, gin.H{"success": true, "message": "order placed", "orderId": orderID})
		}
	}
}

// buildLines prices the client cart, or the stored cart when the client sent
// none.
func buildLines(ctx context.Context, deps OrderDeps, userID string, items map[string]map[string]int64) ([]models.OrderLine, error) {
	var c cart.Cart
	if items != nil {
		c = cart.FromMap(items).Pruned()
	} else {
		snapshot, err := deps.Carts.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		c = snapshot.Cart
	}

	ids := make([]string, 0, len(c))
	for productID := range c {
		ids = append(ids, productID)
	}
	products, err := deps.Products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return order.Build(c, products), nil
}

func VerifyRedirect(deps OrderDeps) gin.HandlerFunc {
	logger := deps.Logger.Named("order")
	return func(c *gin.Context) {
		const route = "POST /api/order/stripe/verify"
		defer handlePanic(c, logger, route)

		var req verifyRedirectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, logger, route, apperrors.Validation("invalid body"))
			return
		}
		orderID := strings.TrimSpace(req.OrderID)
		if orderID == "" {
			respondWithError(c, logger, route, apperrors.MissingFields("orderId"))
			return
		}
		success, err := parseSuccessFlag(req.Success)
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		userID, err := currentUser(c)
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		outcome, err := deps.Checkout.VerifyRedirect(ctx, userID.Hex(), orderID, success)
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		if outcome.Order.PaymentState == models.PaymentConfirmed && !outcome.Deleted {
			c.JSON(http.StatusOK, gin.H{"success": true, "message": "payment confirmed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "payment not completed"})
	}
}

// parseSuccessFlag accepts the flag as a JSON bool or as the "true"/"false"
// string carried over from the return URL.
func parseSuccessFlag(raw json.RawMessage) (bool, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return false, apperrors.MissingFields("success")
	}

	var flag bool
	if err := json.Unmarshal(raw, &flag); err == nil {
		return flag, nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(text)); err == nil {
			return parsed, nil
		}
	}
	return false, apperrors.Validation("success must be true or false")
}

func VerifySigned(deps OrderDeps) gin.HandlerFunc {
	logger := deps.Logger.Named("order")
	return func(c *gin.Context) {
		const route = "POST /api/order/razorpay/verify"
		defer handlePanic(c, logger, route)

		var req verifySignedRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, logger, route, apperrors.Validation("invalid body"))
			return
		}

		var missing []string
		if strings.TrimSpace(req.RazorpayOrderID) == "" {
			missing = append(missing, "razorpay_order_id")
		}
		if strings.TrimSpace(req.RazorpayPaymentID) == "" {
			missing = append(missing, "razorpay_payment_id")
		}
		if strings.TrimSpace(req.RazorpaySignature) == "" {
			missing = append(missing, "razorpay_signature")
		}
		if strings.TrimSpace(req.OrderID) == "" {
			missing = append(missing, "orderId")
		}
		if len(missing) > 0 {
			respondWithError(c, logger, route, apperrors.MissingFields(missing...))
			return
		}

		userID, err := currentUser(c)
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		outcome, err := deps.Checkout.VerifySigned(ctx, userID.Hex(), strings.TrimSpace(req.OrderID), payment.Proof{
			PaymentRef:       req.RazorpayPaymentID,
			ProviderOrderRef: req.RazorpayOrderID,
			Signature:        req.RazorpaySignature,
		})
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		if outcome.Order.PaymentState == models.PaymentConfirmed {
			c.JSON(http.StatusOK, gin.H{"success": true, "message": "payment successful"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "payment not completed"})
	}
}

func UserOrders(deps OrderDeps) gin.HandlerFunc {
	logger := deps.Logger.Named("order")
	return func(c *gin.Context) {
		const route = "POST /api/order/userorders"
		defer handlePanic(c, logger, route)

		userID, err := currentUser(c)
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		orders, err := deps.Orders.ListByUser(ctx, userID.Hex())
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "orders": orders})
	}
}

func AllOrders(deps OrderDeps) gin.HandlerFunc {
	logger := deps.Logger.Named("order")
	return func(c *gin.Context) {
		const route = "POST /api/order/list"
		defer handlePanic(c, logger, route)

		page, limit, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		orders, total, err := deps.Orders.ListAll(ctx, page, limit)
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		body := gin.H{"success": true, "orders": orders, "total": total}
		if limit > 0 {
			body["page"] = page
			body["limit"] = limit
		}
		c.JSON(http.StatusOK, body)
	}
}

func UpdateOrderStatus(deps OrderDeps) gin.HandlerFunc {
	logger := deps.Logger.Named("order")
	return func(c *gin.Context) {
		const route = "POST /api/order/updateStatus"
		defer handlePanic(c, logger, route)

		var req updateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, logger, route, apperrors.Validation("invalid body"))
			return
		}

		id := strings.TrimSpace(req.ID)
		if id == "" {
			id = strings.TrimSpace(req.OrderID)
		}
		status := models.OrderStatus(strings.TrimSpace(req.Status))

		var missing []string
		if id == "" {
			missing = append(missing, "id")
		}
		if status == "" {
			missing = append(missing, "status")
		}
		if len(missing) > 0 {
			respondWithError(c, logger, route, apperrors.MissingFields(missing...))
			return
		}
		if !status.Valid() {
			respondWithError(c, logger, route, apperrors.Validation("invalid status"))
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		updated, err := deps.Orders.UpdateFields(ctx, id, store.OrderFields{Status: &status})
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		logger.Info("order status updated", zap.String("orderId", id), zap.String("status", string(status)))
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "status updated", "order": updated})
	}
}

func DeleteOrder(deps OrderDeps) gin.HandlerFunc {
	logger := deps.Logger.Named("order")
	return func(c *gin.Context) {
		const route = "DELETE /api/order/:id"
		defer handlePanic(c, logger, route)

		id := strings.TrimSpace(c.Param("id"))

		ctx, cancel := requestContext(c)
		defer cancel()

		if err := deps.Orders.Delete(ctx, id); err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		logger.Info("order deleted", zap.String("orderId", id))
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "order deleted"})
	}
}
