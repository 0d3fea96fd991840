package cart

import (
	"context"
	"sync"

	"storefront/internal/apperrors"
)

// memoryRepository is an in-memory Repository. conflicts makes the next N
// saves fail with ErrVersionConflict.
type memoryRepository struct {
	mu        sync.Mutex
	carts     map[string]Snapshot
	conflicts int
	loads     int
	saves     int
}

func newMemoryRepository(users ...string) *memoryRepository {
	r := &memoryRepository{carts: map[string]Snapshot{}}
	for _, u := range users {
		r.carts[u] = Snapshot{Cart: New()}
	}
	return r
}

func (r *memoryRepository) Load(_ context.Context, userID string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads++
	snapshot, ok := r.carts[userID]
	if !ok {
		return Snapshot{}, apperrors.NotFound("user", userID)
	}
	return snapshot, nil
}

func (r *memoryRepository) Save(_ context.Context, userID string, c Cart, expectedVersion int64) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	current, ok := r.carts[userID]
	if !ok {
		return Snapshot{}, apperrors.NotFound("user", userID)
	}
	if r.conflicts > 0 {
		r.conflicts--
		return Snapshot{}, ErrVersionConflict
	}
	if current.Version != expectedVersion {
		return Snapshot{}, ErrVersionConflict
	}
	next := Snapshot{Cart: c.Pruned(), Version: current.Version + 1}
	r.carts[userID] = next
	return next, nil
}
