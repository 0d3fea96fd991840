package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storefront/internal/cart"
)

func cartRouter(carts CartService) *gin.Engine {
	r := gin.New()
	g := r.Group("/api/cart", userGuard())
	g.POST("/get", GetCart(carts, zap.NewNop()))
	g.POST("/add", AddToCart(carts, zap.NewNop()))
	g.POST("/update", UpdateCart(carts, zap.NewNop()))
	return r
}

func TestCartRequiresToken(t *testing.T) {
	r := cartRouter(newFakeCarts())
	w := perform(r, http.MethodPost, "/api/cart/get", "", gin.H{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])
}

func TestCartAddAndUpdate(t *testing.T) {
	carts := newFakeCarts()
	r := cartRouter(carts)
	userID, token := signedToken(t, "user")

	w := perform(r, http.MethodPost, "/api/cart/add", token, gin.H{"itemId": "p1", "size": "M"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = perform(r, http.MethodPost, "/api/cart/add", token, gin.H{"productId": "p1", "size": "M"})
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(2), body["version"])
	assert.Equal(t, map[string]interface{}{"p1": map[string]interface{}{"M": float64(2)}}, body["cartData"])

	w = perform(r, http.MethodPost, "/api/cart/update", token, gin.H{"itemId": "p1", "size": "M", "quantity": 0})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]interface{}{}, decode(t, w)["cartData"])
	assert.True(t, carts.snapshots[userID.Hex()].Cart.IsEmpty())
}

func TestCartAddRequiresSize(t *testing.T) {
	r := cartRouter(newFakeCarts())
	_, token := signedToken(t, "user")

	w := perform(r, http.MethodPost, "/api/cart/add", token, gin.H{"itemId": "p1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["message"], "size")
}

func TestCartUpdateRequiresQuantity(t *testing.T) {
	r := cartRouter(newFakeCarts())
	_, token := signedToken(t, "user")

	w := perform(r, http.MethodPost, "/api/cart/update", token, gin.H{"itemId": "p1", "size": "M"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["message"], "quantity")
}

func TestCartVersionConflictIs409(t *testing.T) {
	carts := newFakeCarts()
	carts.err = cart.ErrVersionConflict
	r := cartRouter(carts)
	_, token := signedToken(t, "user")

	w := perform(r, http.MethodPost, "/api/cart/add", token, gin.H{"itemId": "p1", "size": "M"})
	assert.Equal(t, http.StatusConflict, w.Code)
}
