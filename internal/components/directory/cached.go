package directory

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/cache"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/logutil"
)

const cacheKeyPrefix = "identity:"

// CachedResolver fronts a Store with a TTL cache of display metadata.
// Misses are not cached.
type CachedResolver struct {
	store Store
	cache cache.Cache
	ttl   time.Duration
	log   *slog.Logger
}

// NewCachedResolver wraps store. A zero ttl disables caching.
func NewCachedResolver(store Store, c cache.Cache, ttl time.Duration, log *slog.Logger) *CachedResolver {
	return &CachedResolver{store: store, cache: c, ttl: ttl, log: logutil.NoopIfNil(log)}
}

// Resolve returns the identity for userID, consulting the cache first.
// Cache failures fall through to the store.
func (r *CachedResolver) Resolve(ctx context.Context, userID string) (*Identity, error) {
	if r.cache == nil || r.ttl <= 0 {
		return r.store.Resolve(ctx, userID)
	}

	key := cacheKeyPrefix + userID
	if data, err := r.cache.Get(ctx, key); err == nil {
		var ident Identity
		if err := json.Unmarshal(data, &ident); err == nil {
			return &ident, nil
		}
		r.log.Warn("discarding undecodable cached identity", "user_id", userID)
	} else if !errors.Is(err, cache.ErrNotFound) && !errors.Is(err, cache.ErrExpired) {
		r.log.Warn("identity cache read failed", "user_id", userID, "error", err)
	}

	ident, err := r.store.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(ident); err == nil {
		if err := r.cache.Set(ctx, key, data, r.ttl); err != nil {
			r.log.Warn("identity cache write failed", "user_id", userID, "error", err)
		}
	}
	return ident, nil
}

// Invalidate drops the cached identity for userID.
func (r *CachedResolver) Invalidate(ctx context.Context, userID string) {
	if r.cache == nil {
		return
	}
	_ = r.cache.Delete(ctx, cacheKeyPrefix+userID)
}
