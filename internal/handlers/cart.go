package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/internal/apperrors"
	"storefront/internal/cart"
	"storefront/internal/metrics"
)

// CartService is the server-side cart used by the cart and order handlers.
type CartService interface {
	Get(ctx context.Context, userID string) (cart.Snapshot, error)
	Add(ctx context.Context, userID, productID, size string) (cart.Snapshot, error)
	Update(ctx context.Context, userID, productID, size string, quantity int64) (cart.Snapshot, error)
}

type cartItemRequest struct {
	ItemID    string `json:"itemId"`
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Quantity  *int64 `json:"quantity"`
}

func (r cartItemRequest) productID() string {
	if id := strings.TrimSpace(r.ItemID); id != "" {
		return id
	}
	return strings.TrimSpace(r.ProductID)
}

func GetCart(carts CartService, logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("cart")
	return func(c *gin.Context) {
		const route = "POST /api/cart/get"
		defer handlePanic(c, logger, route)

		userID, err := currentUser(c)
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		snapshot, err := carts.Get(ctx, userID.Hex())
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		respondCart(c, snapshot)
	}
}

func AddToCart(carts CartService, logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("cart")
	return func(c *gin.Context) {
		const route = "POST /api/cart/add"
		defer handlePanic(c, logger, route)

		var req cartItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, logger, route, apperrors.Validation("invalid body"))
			return
		}
		if missing := missingCartFields(req); len(missing) > 0 {
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

		snapshot, err := carts.Add(ctx, userID.Hex(), req.productID(), strings.TrimSpace(req.Size))
		recordCartMutation("add", err)
		if err != nil {
			respondWithError(c, logger, route, cartError(err))
			return
		}

		respondCart(c, snapshot)
	}
}

func UpdateCart(carts CartService, logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("cart")
	return func(c *gin.Context) {
		const route = "POST /api/cart/update"
		defer handlePanic(c, logger, route)

		var req cartItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, logger, route, apperrors.Validation("invalid body"))
			return
		}
		missing := missingCartFields(req)
		if req.Quantity == nil {
			missing = append(missing, "quantity")
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

		snapshot, err := carts.Update(ctx, userID.Hex(), req.productID(), strings.TrimSpace(req.Size), *req.Quantity)
		recordCartMutation("update", err)
		if err != nil {
			respondWithError(c, logger, route, cartError(err))
			return
		}

		respondCart(c, snapshot)
	}
}

func missingCartFields(req cartItemRequest) []string {
	var missing []string
	if req.productID() == "" {
		missing = append(missing, "itemId")
	}
	if strings.TrimSpace(req.Size) == "" {
		missing = append(missing, "size")
	}
	return missing
}

func respondCart(c *gin.Context, snapshot cart.Snapshot) {
	data := snapshot.Cart
	if data == nil {
		data = cart.New()
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "cartData": data, "version": snapshot.Version})
}

func cartError(err error) error {
	if errors.Is(err, cart.ErrVersionConflict) {
		return &apperrors.ConflictError{Message: "cart changed concurrently, please retry"}
	}
	return err
}

func recordCartMutation(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.CartMutations.WithLabelValues(op, result).Inc()
}
