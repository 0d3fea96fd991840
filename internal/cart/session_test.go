package cart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// serviceMirror mirrors a Session into a real Service backed by memory.
type serviceMirror struct {
	svc    *Service
	userID string

	mu    sync.Mutex
	fail  error
	gate  chan struct{}
	calls int
}

func (m *serviceMirror) before() error {
	m.mu.Lock()
	m.calls++
	gate, fail := m.gate, m.fail
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return fail
}

func (m *serviceMirror) GetCart(ctx context.Context, _ string) (Snapshot, error) {
	if err := m.before(); err != nil {
		return Snapshot{}, err
	}
	return m.svc.Get(ctx, m.userID)
}

func (m *serviceMirror) AddToCart(ctx context.Context, _ string, productID, size string) (Snapshot, error) {
	if err := m.before(); err != nil {
		return Snapshot{}, err
	}
	return m.svc.Add(ctx, m.userID, productID, size)
}

func (m *serviceMirror) UpdateCart(ctx context.Context, _ string, productID, size string, quantity int64) (Snapshot, error) {
	if err := m.before(); err != nil {
		return Snapshot{}, err
	}
	return m.svc.Update(ctx, m.userID, productID, size, quantity)
}

func newTestSession(t *testing.T) (*Session, *serviceMirror, *memoryRepository) {
	repo := newMemoryRepository("u1")
	mirror := &serviceMirror{svc: NewService(repo, nil, zap.NewNop()), userID: "u1"}
	s := NewSession(mirror, zap.NewNop())
	t.Cleanup(s.Close)
	return s, mirror, repo
}

func TestSessionGuestDoesNotMirror(t *testing.T) {
	s, mirror, _ := newTestSession(t)

	_, err := s.AddItem("p1", "M")
	require.NoError(t, err)
	require.NoError(t, s.Refresh(context.Background()))

	assert.Equal(t, int64(1), s.Count())
	assert.Equal(t, 0, mirror.calls)
}

func TestSessionMirrorsInOrder(t *testing.T) {
	s, _, repo := newTestSession(t)
	ctx := context.Background()
	require.NoError(t, s.Login(ctx, "token"))

	_, err := s.AddItem("p1", "M")
	require.NoError(t, err)
	_, err = s.AddItem("p1", "M")
	require.NoError(t, err)
	_, err = s.SetQuantity("p2", "S", 4)
	require.NoError(t, err)

	require.NoError(t, s.Refresh(ctx))

	stored := repo.carts["u1"]
	assert.Equal(t, int64(2), stored.Cart.Quantity("p1", "M"))
	assert.Equal(t, int64(4), stored.Cart.Quantity("p2", "S"))
	assert.Equal(t, stored.Cart, s.Cart())
}

func TestSessionMirrorFailureKeepsLocalChange(t *testing.T) {
	s, mirror, _ := newTestSession(t)
	ctx := context.Background()
	require.NoError(t, s.Login(ctx, "token"))

	mirror.mu.Lock()
	mirror.fail = errors.New("network down")
	mirror.mu.Unlock()

	_, err := s.AddItem("p1", "M")
	require.NoError(t, err)

	select {
	case err := <-s.MirrorErrors():
		assert.EqualError(t, err, "network down")
	case <-time.After(2 * time.Second):
		t.Fatal("expected mirror error")
	}
	assert.Equal(t, int64(1), s.Cart().Quantity("p1", "M"))
}

func TestSessionRejectsStaleSnapshot(t *testing.T) {
	s, _, _ := newTestSession(t)

	require.NoError(t, s.ReplaceFromServer(Snapshot{Cart: Cart{"p1": {"M": 1}}, Version: 5}))
	err := s.ReplaceFromServer(Snapshot{Cart: Cart{"old": {"S": 9}}, Version: 4})

	assert.ErrorIs(t, err, ErrStaleSnapshot)
	assert.Equal(t, Cart{"p1": {"M": 1}}, s.Cart())
}

func TestSessionReplaysUnacknowledgedMutations(t *testing.T) {
	s, mirror, _ := newTestSession(t)
	require.NoError(t, s.Login(context.Background(), "token"))

	gate := make(chan struct{})
	mirror.mu.Lock()
	mirror.gate = gate
	mirror.mu.Unlock()

	_, err := s.AddItem("local", "L")
	require.NoError(t, err)

	require.NoError(t, s.ReplaceFromServer(Snapshot{Cart: Cart{"server": {"M": 2}}, Version: 10}))

	assert.Equal(t, Cart{"server": {"M": 2}, "local": {"L": 1}}, s.Cart())
	close(gate)
}

func TestSessionLogoutClearsCart(t *testing.T) {
	s, _, _ := newTestSession(t)
	require.NoError(t, s.Login(context.Background(), "token"))
	_, err := s.AddItem("p1", "M")
	require.NoError(t, err)

	s.Logout()

	assert.True(t, s.Cart().IsEmpty())
	assert.Empty(t, s.Token())
}

func TestSessionLoginReplacesGuestCart(t *testing.T) {
	s, mirror, _ := newTestSession(t)
	ctx := context.Background()
	_, err := mirror.svc.Add(ctx, "u1", "saved", "S")
	require.NoError(t, err)

	_, err = s.AddItem("guest", "M")
	require.NoError(t, err)
	require.NoError(t, s.Login(ctx, "token"))

	assert.Equal(t, Cart{"saved": {"S": 1}}, s.Cart())
}
