package cache

import (
	"context"
	"reflect"
	"time"

	"github.com/redis/go-redis/v9"
)

// LayeredCache serves reads from an in-process L1 in front of Redis (L2).
// Deletes are broadcast on a Redis channel so every instance drops its L1 copy.
type LayeredCache struct {
	mem     *MemoryCache
	redis   *RedisCache
	memTTL  time.Duration
	channel string

	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLayeredCache creates a layered cache and subscribes to invalidation broadcasts.
func NewLayeredCache(rc *RedisCache, opts ...LayeredOption) *LayeredCache {
	cfg := &LayeredConfig{
		MemoryMaxSize: 1000,
		MemoryTTL:     time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	lc := &LayeredCache{
		mem:     NewMemoryCache(WithMemoryMaxSize(cfg.MemoryMaxSize), WithMemoryCleanup(cfg.MemoryTTL)),
		redis:   rc,
		memTTL:  cfg.MemoryTTL,
		channel: rc.wrapKey("cache:invalidate"),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	lc.pubsub = rc.client.Subscribe(ctx, lc.channel)
	// wait for the subscription so deletes published right after construction are seen
	if _, err := lc.pubsub.Receive(ctx); err != nil {
		_ = lc.pubsub.Close()
		lc.pubsub = nil
		close(lc.done)
		return lc
	}
	go lc.listen(ctx)
	return lc
}

func (lc *LayeredCache) listen(ctx context.Context) {
	defer close(lc.done)
	ch := lc.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_ = lc.mem.DeleteByPattern(ctx, msg.Payload)
		}
	}
}

func (lc *LayeredCache) l1TTL(expiration time.Duration) time.Duration {
	if expiration <= 0 || expiration > lc.memTTL {
		return lc.memTTL
	}
	return expiration
}

// Set writes through to Redis, then L1.
func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := lc.redis.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	return lc.mem.Set(ctx, key, value, lc.l1TTL(expiration))
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.mem.Get(ctx, key, dest); err == nil {
		return nil
	}
	if err := lc.redis.Get(ctx, key, dest); err != nil {
		return err
	}
	ttl := lc.memTTL
	if remaining, err := lc.redis.client.PTTL(ctx, lc.redis.wrapKey(key)).Result(); err == nil && remaining > 0 {
		ttl = lc.l1TTL(remaining)
	}
	return lc.mem.Set(ctx, key, reflect.ValueOf(dest).Elem().Interface(), ttl)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.mem.Delete(ctx, keys...)
	if err := lc.redis.Delete(ctx, keys...); err != nil {
		return err
	}
	for _, k := range keys {
		lc.broadcast(ctx, k)
	}
	return nil
}

func (lc *LayeredCache) DeleteByPattern(ctx context.Context, pattern string) error {
	_ = lc.mem.DeleteByPattern(ctx, pattern)
	if err := lc.redis.DeleteByPattern(ctx, pattern); err != nil {
		return err
	}
	lc.broadcast(ctx, pattern)
	return nil
}

func (lc *LayeredCache) broadcast(ctx context.Context, pattern string) {
	if lc.pubsub == nil {
		return
	}
	_ = lc.redis.client.Publish(ctx, lc.channel, pattern).Err()
}

// Locks live in Redis only so they hold across instances.
func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return lc.redis.TryLock(ctx, key, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key string) error {
	return lc.redis.Unlock(ctx, key)
}

// Close stops the invalidation listener and closes both layers.
func (lc *LayeredCache) Close() error {
	lc.cancel()
	if lc.pubsub != nil {
		_ = lc.pubsub.Close()
	}
	<-lc.done
	_ = lc.mem.Close()
	return lc.redis.Close()
}
