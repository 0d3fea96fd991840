package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

type Cache interface {
	Get(ctx context.Context, userID string) (Snapshot, error)
	// Set stores the snapshot unless a newer version is already cached.
	Set(ctx context.Context, userID string, snapshot Snapshot) error
	Delete(ctx context.Context, userID string) error
}

// NopCache is used when Redis is not configured; every Get misses.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (Snapshot, error) { return Snapshot{}, ErrCacheMiss }
func (NopCache) Set(context.Context, string, Snapshot) error    { return nil }
func (NopCache) Delete(context.Context, string) error           { return nil }

// setIfNotOlder writes the cached cart unless the stored version is newer.
var setIfNotOlder = redis.NewScript(`
local current = redis.call("HGET", KEYS[1], "version")
if current and tonumber(current) > tonumber(ARGV[1]) then
	return 0
end
redis.call("HSET", KEYS[1], "version", ARGV[1], "data", ARGV[2])
redis.call("EXPIRE", KEYS[1], ARGV[3])
return 1
`)

// RedisCache stores each cart as a hash of its version and JSON body. Set
// never replaces a newer version, so a slow cache fill cannot bring back a
// cart that a later write already changed.
type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: 15 * time.Minute,
	}
}

func (r *RedisCache) Get(ctx context.Context, userID string) (Snapshot, error) {
	fields, err := r.client.HGetAll(ctx, cacheKey(userID)).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("redis get failed: %w", err)
	}
	data, ok := fields["data"]
	if !ok {
		return Snapshot{}, ErrCacheMiss
	}

	var snapshot Snapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	snapshot.Cart = snapshot.Cart.Pruned()
	return snapshot, nil
}

func (r *RedisCache) Set(ctx context.Context, userID string, snapshot Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(5)) * time.Minute
	ttl := int64((r.baseTTL + jitter) / time.Second)
	if err := setIfNotOlder.Run(ctx, r.client, []string{cacheKey(userID)}, snapshot.Version, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, cacheKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(userID string) string {
	return fmt.Sprintf("cart:%s", userID)
}
