package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/catalog"
)

// ErrStaleSnapshot is returned when a server snapshot is older than one the
// session already applied.
var ErrStaleSnapshot = errors.New("stale cart snapshot")

var errSessionClosed = errors.New("cart session closed")

const mirrorTimeout = 10 * time.Second

// Mirror is the server side of a Session, normally the storefront API client.
type Mirror interface {
	GetCart(ctx context.Context, token string) (Snapshot, error)
	AddToCart(ctx context.Context, token, productID, size string) (Snapshot, error)
	UpdateCart(ctx context.Context, token, productID, size string, quantity int64) (Snapshot, error)
}

type pendingOp struct {
	id    uint64
	apply func(Cart) (Cart, error)
}

type job struct {
	opID       uint64
	generation uint64
	run        func(ctx context.Context) (Snapshot, error)
	ctx        context.Context
	done       chan error
}

// Session is the client-side cart. Mutations apply locally at once and, when
// a token is set, are mirrored to the server in order by a single worker.
// Server responses replace the local cart; local mutations the server has
// not acknowledged yet are replayed on top.
type Session struct {
	mu            sync.Mutex
	cart          Cart
	token         string
	serverVersion int64
	pending       []pendingOp
	nextOpID      uint64
	generation    uint64
	closed        bool

	mirror Mirror
	logger *zap.Logger
	jobs   chan job
	errs   chan error
	wg     sync.WaitGroup
}

func NewSession(mirror Mirror, logger *zap.Logger) *Session {
	s := &Session{
		cart:   New(),
		mirror: mirror,
		logger: logger.Named("cart-session"),
		jobs:   make(chan job, 64),
		errs:   make(chan error, 16),
	}
	s.wg.Add(1)
	go s.work()
	return s
}

// MirrorErrors reports failed mirror calls. The local cart is never rolled
// back because of them.
func (s *Session) MirrorErrors() <-chan error {
	return s.errs
}

func (s *Session) Cart() Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.clone()
}

func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Session) Count() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Count()
}

func (s *Session) Amount(products catalog.Reader) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Amount(products)
}

func (s *Session) AddItem(productID, size string) (Cart, error) {
	return s.apply(
		func(c Cart) (Cart, error) { return c.WithAdd(productID, size) },
		func(ctx context.Context, token string) (Snapshot, error) {
			return s.mirror.AddToCart(ctx, token, productID, size)
		},
	)
}

func (s *Session) SetQuantity(productID, size string, quantity int64) (Cart, error) {
	return s.apply(
		func(c Cart) (Cart, error) { return c.WithSetQuantity(productID, size, quantity) },
		func(ctx context.Context, token string) (Snapshot, error) {
			return s.mirror.UpdateCart(ctx, token, productID, size, quantity)
		},
	)
}

func (s *Session) apply(fn func(Cart) (Cart, error), remote func(context.Context, string) (Snapshot, error)) (Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(s.cart)
	if err != nil {
		return s.cart.clone(), err
	}
	s.cart = next

	if s.token == "" || s.mirror == nil || s.closed {
		return s.cart.clone(), nil
	}

	s.nextOpID++
	op := pendingOp{id: s.nextOpID, apply: fn}
	s.pending = append(s.pending, op)

	token := s.token
	s.enqueueLocked(job{
		opID:       op.id,
		generation: s.generation,
		run: func(ctx context.Context) (Snapshot, error) {
			return remote(ctx, token)
		},
	})
	return s.cart.clone(), nil
}

// ReplaceFromServer overwrites the local cart with an authoritative snapshot.
func (s *Session) ReplaceFromServer(snapshot Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applySnapshotLocked(snapshot)
}

// Refresh fetches the server cart through the mirror queue, so the result
// reflects every mutation mirrored before it.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.token == "" || s.mirror == nil {
		s.mu.Unlock()
		return nil
	}
	if s.closed {
		s.mu.Unlock()
		return errSessionClosed
	}
	token := s.token
	done := make(chan error, 1)
	s.enqueueLocked(job{
		generation: s.generation,
		ctx:        ctx,
		done:       done,
		run: func(ctx context.Context) (Snapshot, error) {
			return s.mirror.GetCart(ctx, token)
		},
	})
	s.mu.Unlock()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Login stores the session token and loads the server cart.
func (s *Session) Login(ctx context.Context, token string) error {
	s.mu.Lock()
	s.token = token
	s.serverVersion = 0
	s.mu.Unlock()
	return s.Refresh(ctx)
}

// Logout drops the token and empties the cart.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.serverVersion = 0
	s.resetLocked()
}

// Clear empties the cart after a confirmed payment.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// Close stops the mirror worker after queued calls finish.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.jobs)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Session) resetLocked() {
	s.cart = New()
	s.pending = nil
	s.generation++
}

func (s *Session) enqueueLocked(j job) {
	select {
	case s.jobs <- j:
	default:
		// The queue is full; drop the mirror call and keep the local change.
		err := errors.New("cart mirror queue full")
		s.dropPendingLocked(j.opID)
		s.report(err)
		if j.done != nil {
			j.done <- err
		}
	}
}

func (s *Session) applySnapshotLocked(snapshot Snapshot) error {
	if snapshot.Version < s.serverVersion {
		return ErrStaleSnapshot
	}
	next := snapshot.Cart.Pruned()
	for _, op := range s.pending {
		replayed, err := op.apply(next)
		if err != nil {
			continue
		}
		next = replayed
	}
	s.cart = next
	s.serverVersion = snapshot.Version
	return nil
}

func (s *Session) dropPendingLocked(opID uint64) {
	if opID == 0 {
		return
	}
	for i, op := range s.pending {
		if op.id == opID {
			s.pending = append(s.pending[:i:i], s.pending[i+1:]...)
			return
		}
	}
}

func (s *Session) work() {
	defer s.wg.Done()
	for j := range s.jobs {
		ctx := j.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		runCtx, cancel := context.WithTimeout(ctx, mirrorTimeout)
		snapshot, err := j.run(runCtx)
		cancel()

		err = s.acknowledge(j, snapshot, err)
		if j.done != nil {
			j.done <- err
		}
	}
}

func (s *Session) acknowledge(j job, snapshot Snapshot, callErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j.generation != s.generation {
		// Logged out or cleared while the call was in flight.
		return callErr
	}
	s.dropPendingLocked(j.opID)

	if callErr != nil {
		s.report(callErr)
		return callErr
	}
	if err := s.applySnapshotLocked(snapshot); err != nil {
		s.logger.Warn("ignoring server cart", zap.Int64("version", snapshot.Version), zap.Error(err))
		return err
	}
	return nil
}

func (s *Session) report(err error) {
	s.logger.Warn("cart mirror failed", zap.Error(err))
	select {
	case s.errs <- err:
	default:
	}
}
