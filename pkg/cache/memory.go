package cache

import (
	"container/list"
	"context"
	"path"
	"sync"
	"time"
)

type memoryEntry struct {
	key      string
	value    interface{}
	expireAt time.Time
}

// MemoryCache is an in-process LRU cache with per-entry expiry.
// Values are stored as given, so readers share the stored instance.
type MemoryCache struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	order      *list.List // front = most recently used
	maxSize    int
	defaultTTL time.Duration
	now        func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryCache creates an in-memory cache.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxSize:         1000,
		CleanupInterval: 5 * time.Minute,
		DefaultTTL:      24 * time.Hour,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1
	}

	mc := &MemoryCache{
		items:      make(map[string]*list.Element, cfg.MaxSize),
		order:      list.New(),
		maxSize:    cfg.MaxSize,
		defaultTTL: cfg.DefaultTTL,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	if cfg.CleanupInterval > 0 {
		go mc.janitor(cfg.CleanupInterval)
	}
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	if expiration <= 0 {
		expiration = mc.defaultTTL
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.put(key, value, mc.now().Add(expiration))
	return nil
}

func (mc *MemoryCache) put(key string, value interface{}, expireAt time.Time) {
	if el, ok := mc.items[key]; ok {
		e := el.Value.(*memoryEntry)
		e.value, e.expireAt = value, expireAt
		mc.order.MoveToFront(el)
		return
	}
	for mc.order.Len() >= mc.maxSize {
		mc.remove(mc.order.Back())
	}
	mc.items[key] = mc.order.PushFront(&memoryEntry{key: key, value: value, expireAt: expireAt})
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	el, ok := mc.items[key]
	if !ok {
		mc.mu.Unlock()
		cacheRequests.WithLabelValues("memory", "miss").Inc()
		return ErrCacheMiss
	}
	e := el.Value.(*memoryEntry)
	if !mc.now().Before(e.expireAt) {
		mc.remove(el)
		mc.mu.Unlock()
		cacheRequests.WithLabelValues("memory", "miss").Inc()
		return ErrCacheMiss
	}
	mc.order.MoveToFront(el)
	value := e.value
	mc.mu.Unlock()

	cacheRequests.WithLabelValues("memory", "hit").Inc()
	return assign(dest, value)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		if el, ok := mc.items[key]; ok {
			mc.remove(el)
		}
	}
	return nil
}

// DeleteByPattern removes keys matching a glob pattern ("forecast:BTCUSDT:1h:*").
func (mc *MemoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for key, el := range mc.items {
		if ok, _ := path.Match(pattern, key); ok {
			mc.remove(el)
		}
	}
	return nil
}

// Len reports the number of entries, expired ones included until swept.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.order.Len()
}

func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	now := mc.now()
	if el, ok := mc.items[key]; ok && now.Before(el.Value.(*memoryEntry).expireAt) {
		return false, nil
	}
	mc.put(key, "locked", now.Add(ttl))
	return true, nil
}

func (mc *MemoryCache) Unlock(ctx context.Context, key string) error {
	return mc.Delete(ctx, key)
}

func (mc *MemoryCache) remove(el *list.Element) {
	if el == nil {
		return
	}
	mc.order.Remove(el)
	delete(mc.items, el.Value.(*memoryEntry).key)
}

func (mc *MemoryCache) janitor(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-mc.stop:
			return
		case <-t.C:
			mc.sweep()
		}
	}
}

func (mc *MemoryCache) sweep() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	now := mc.now()
	for _, el := range mc.items {
		if !now.Before(el.Value.(*memoryEntry).expireAt) {
			mc.remove(el)
		}
	}
}

// Close stops the expiry sweeper.
func (mc *MemoryCache) Close() error {
	mc.stopOnce.Do(func() { close(mc.stop) })
	return nil
}
