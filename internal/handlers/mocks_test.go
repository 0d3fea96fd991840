package handlers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"storefront/internal/apperrors"
	"storefront/internal/cart"
	"storefront/internal/catalog"
	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/payment"
	"storefront/internal/store"
)

const testSecret = "test-secret"

var testAuth = AuthSettings{JWTSecret: testSecret, AccessTTL: time.Hour, RefreshTTL: 24 * time.Hour}

func init() {
	gin.SetMode(gin.TestMode)
}

// signedToken returns a fresh user id and an access token for it.
func signedToken(t *testing.T, role string) (primitive.ObjectID, string) {
	t.Helper()
	user := models.User{ID: primitive.NewObjectID(), Email: "jane@example.com", Role: role}
	token, err := issueAccessToken(user, testAuth)
	require.NoError(t, err)
	return user.ID, token
}

func userGuard() gin.HandlerFunc {
	return middleware.UserAuth(testSecret, zap.NewNop())
}

func adminGuard() gin.HandlerFunc {
	return middleware.AdminAuth(testSecret, zap.NewNop())
}

type fakeProducts struct {
	mu        sync.Mutex
	items     map[string]models.Product
	createErr error
	created   []models.Product
	deleted   []string
}

func newFakeProducts(products ...models.Product) *fakeProducts {
	f := &fakeProducts{items: map[string]models.Product{}}
	for _, p := range products {
		f.items[p.ID.Hex()] = p
	}
	return f
}

func (f *fakeProducts) List(context.Context) ([]models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Product, 0, len(f.items))
	for _, p := range f.items {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeProducts) Get(_ context.Context, id string) (models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.items[id]
	if !ok {
		return models.Product{}, apperrors.NotFound("product", id)
	}
	return p, nil
}

func (f *fakeProducts) FindByIDs(_ context.Context, ids []string) (catalog.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var found []models.Product
	for _, id := range ids {
		if p, ok := f.items[id]; ok {
			found = append(found, p)
		}
	}
	return catalog.NewSnapshot(found), nil
}

func (f *fakeProducts) Create(_ context.Context, product *models.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	product.ID = primitive.NewObjectID()
	f.items[product.ID.Hex()] = *product
	f.created = append(f.created, *product)
	return nil
}

func (f *fakeProducts) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return apperrors.NotFound("product", id)
	}
	delete(f.items, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeCarts struct {
	mu        sync.Mutex
	snapshots map[string]cart.Snapshot
	err       error
}

func newFakeCarts() *fakeCarts {
	return &fakeCarts{snapshots: map[string]cart.Snapshot{}}
}

func (f *fakeCarts) Get(_ context.Context, userID string) (cart.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return cart.Snapshot{}, f.err
	}
	return f.snapshots[userID], nil
}

func (f *fakeCarts) Add(_ context.Context, userID, productID, size string) (cart.Snapshot, error) {
	return f.mutate(userID, func(c cart.Cart) (cart.Cart, error) { return c.WithAdd(productID, size) })
}

func (f *fakeCarts) Update(_ context.Context, userID, productID, size string, quantity int64) (cart.Snapshot, error) {
	return f.mutate(userID, func(c cart.Cart) (cart.Cart, error) { return c.WithSetQuantity(productID, size, quantity) })
}

func (f *fakeCarts) mutate(userID string, fn func(cart.Cart) (cart.Cart, error)) (cart.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return cart.Snapshot{}, f.err
	}
	current := f.snapshots[userID]
	next, err := fn(current.Cart)
	if err != nil {
		return cart.Snapshot{}, err
	}
	snapshot := cart.Snapshot{Cart: next, Version: current.Version + 1}
	f.snapshots[userID] = snapshot
	return snapshot, nil
}

type fakeCheckout struct {
	mu        sync.Mutex
	requests  []payment.PlaceRequest
	placement payment.Placement
	placeErr  error
	outcome   payment.Outcome
	verifyErr error
	redirects []bool
	proofs    []payment.Proof
}

func (f *fakeCheckout) Place(_ context.Context, req payment.PlaceRequest) (payment.Placement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.placeErr != nil {
		return payment.Placement{}, f.placeErr
	}
	placement := f.placement
	if placement.Order.ID.IsZero() {
		placement.Order.ID = primitive.NewObjectID()
	}
	placement.Order.UserID = req.UserID
	placement.Order.Lines = req.Lines
	return placement, nil
}

func (f *fakeCheckout) VerifyRedirect(_ context.Context, _, _ string, success bool) (payment.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redirects = append(f.redirects, success)
	return f.outcome, f.verifyErr
}

func (f *fakeCheckout) VerifySigned(_ context.Context, _, _ string, proof payment.Proof) (payment.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.proofs = append(f.proofs, proof)
	return f.outcome, f.verifyErr
}

type fakeOrders struct {
	mu     sync.Mutex
	orders map[string]models.Order
}

func newFakeOrders(orders ...models.Order) *fakeOrders {
	f := &fakeOrders{orders: map[string]models.Order{}}
	for _, o := range orders {
		f.orders[o.ID.Hex()] = o
	}
	return f
}

func (f *fakeOrders) ListByUser(_ context.Context, userID string) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Order{}
	for _, o := range f.orders {
		if o.UserID.Hex() == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrders) ListAll(_ context.Context, page, limit int64) ([]models.Order, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Order{}
	for _, o := range f.orders {
		out = append(out, o)
	}
	total := int64(len(out))
	if limit > 0 {
		start := (page - 1) * limit
		if start > total {
			start = total
		}
		end := start + limit
		if end > total {
			end = total
		}
		out = out[start:end]
	}
	return out, total, nil
}

func (f *fakeOrders) UpdateFields(_ context.Context, id string, fields store.OrderFields) (models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return models.Order{}, apperrors.NotFound("order", id)
	}
	if fields.Status != nil {
		o.Status = *fields.Status
	}
	f.orders[id] = o
	return o, nil
}

func (f *fakeOrders) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orders[id]; !ok {
		return apperrors.NotFound("order", id)
	}
	delete(f.orders, id)
	return nil
}
