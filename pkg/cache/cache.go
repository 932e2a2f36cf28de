package cache

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
)

// Service is the key/value cache shared by forecasts and training locks.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
	Locker
	Close() error
}

// Locker is a best-effort mutual exclusion keyed by name. Locks expire after ttl.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// GetOrLoad returns the cached value for key. On a miss, concurrent callers share a single
// call to load and the result is stored for ttl; a non-positive ttl skips the store.
// The boolean reports a cache hit.
func GetOrLoad[T any](ctx context.Context, c Service, g *singleflight.Group, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, bool, error) {
	var v T
	if err := c.Get(ctx, key, &v); err == nil {
		return v, true, nil
	}

	res, err, _ := g.Do(key, func() (interface{}, error) {
		loaded, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if ttl > 0 {
			// a failed store only costs a recompute
			_ = c.Set(ctx, key, loaded, ttl)
		}
		return loaded, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return res.(T), false, nil
}
