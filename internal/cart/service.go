package cart

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrVersionConflict is returned by Repository.Save when the stored cart
// changed since it was loaded.
var ErrVersionConflict = errors.New("cart version conflict")

const maxSaveAttempts = 3

// Snapshot is the server-authoritative cart with its monotonic version.
type Snapshot struct {
	Cart    Cart  `json:"cartData"`
	Version int64 `json:"version"`
}

// Repository persists one cart per user.
type Repository interface {
	Load(ctx context.Context, userID string) (Snapshot, error)
	// Save replaces the stored cart if its version still equals
	// expectedVersion and returns the new snapshot.
	Save(ctx context.Context, userID string, c Cart, expectedVersion int64) (Snapshot, error)
}

// Service backs the /api/cart endpoints.
type Service struct {
	repo   Repository
	cache  Cache
	logger *zap.Logger
	sfg    singleflight.Group
}

func NewService(repo Repository, cache Cache, logger *zap.Logger) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	return &Service{
		repo:   repo,
		cache:  cache,
		logger: logger.Named("cart"),
	}
}

func (s *Service) Get(ctx context.Context, userID string) (Snapshot, error) {
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		snapshot, err := s.cache.Get(ctx, userID)
		if err == nil {
			return snapshot, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Warn("cache get failed", zap.String("userId", userID), zap.Error(err))
		}

		snapshot, err = s.repo.Load(ctx, userID)
		if err != nil {
			return Snapshot{}, err
		}

		s.store(userID, snapshot)
		return snapshot, nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}

func (s *Service) Add(ctx context.Context, userID, productID, size string) (Snapshot, error) {
	return s.mutate(ctx, userID, func(c Cart) (Cart, error) {
		return c.WithAdd(productID, size)
	})
}

func (s *Service) Update(ctx context.Context, userID, productID, size string, quantity int64) (Snapshot, error) {
	return s.mutate(ctx, userID, func(c Cart) (Cart, error) {
		return c.WithSetQuantity(productID, size, quantity)
	})
}

func (s *Service) Clear(ctx context.Context, userID string) error {
	_, err := s.mutate(ctx, userID, func(Cart) (Cart, error) {
		return New(), nil
	})
	return err
}

// mutate loads the stored cart, applies fn and saves with a version check,
// retrying when another writer got in between.
func (s *Service) mutate(ctx context.Context, userID string, fn func(Cart) (Cart, error)) (Snapshot, error) {
	var lastErr error
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		current, err := s.repo.Load(ctx, userID)
		if err != nil {
			return Snapshot{}, err
		}

		next, err := fn(current.Cart)
		if err != nil {
			return Snapshot{}, err
		}

		saved, err := s.repo.Save(ctx, userID, next, current.Version)
		if errors.Is(err, ErrVersionConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return Snapshot{}, err
		}

		s.store(userID, saved)
		return saved, nil
	}
	s.logger.Warn("cart save gave up after conflicts", zap.String("userId", userID))
	return Snapshot{}, lastErr
}

// store writes a snapshot to the cache. The cache keeps whichever version
// is newest, so a fill racing a write cannot restore an older cart. When the
// write fails the entry is dropped instead.
func (s *Service) store(userID string, snapshot Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Set(ctx, userID, snapshot); err != nil {
		s.logger.Warn("cache set failed", zap.String("userId", userID), zap.Error(err))
		if err := s.cache.Delete(ctx, userID); err != nil {
			s.logger.Warn("cache invalidate failed", zap.String("userId", userID), zap.Error(err))
		}
	}
}
