package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/singleflight"
)

type payload struct {
	Symbol string  `json:"symbol"`
	Close  float64 `json:"close"`
}

func newTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return newRedisOn(t, mr), mr
}

func newRedisOn(t *testing.T, mr *miniredis.Miniredis) *RedisCache {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCacheFromClient(client, "fincast")
}

func TestRedisCache_SetGet(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t)

	require.NoError(t, c.Set(ctx, "forecast:BTCUSDT", payload{Symbol: "BTCUSDT", Close: 101.5}, time.Minute))
	assert.True(t, mr.Exists("fincast:forecast:BTCUSDT"))

	var got payload
	require.NoError(t, c.Get(ctx, "forecast:BTCUSDT", &got))
	assert.Equal(t, payload{Symbol: "BTCUSDT", Close: 101.5}, got)

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, c.Get(ctx, "forecast:BTCUSDT", &got), ErrCacheMiss)
}

func TestRedisCache_DeleteByPattern(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t)

	require.NoError(t, c.Set(ctx, "forecast:BTCUSDT:1h:a", "a", 0))
	require.NoError(t, c.Set(ctx, "forecast:BTCUSDT:1h:b", "b", 0))
	require.NoError(t, c.Set(ctx, "forecast:BTCUSDT:4h:a", "c", 0))

	require.NoError(t, c.DeleteByPattern(ctx, "forecast:BTCUSDT:1h:*"))

	assert.False(t, mr.Exists("fincast:forecast:BTCUSDT:1h:a"))
	assert.False(t, mr.Exists("fincast:forecast:BTCUSDT:1h:b"))

	var s string
	require.NoError(t, c.Get(ctx, "forecast:BTCUSDT:4h:a", &s))
	assert.Equal(t, "c", s)
}

func TestRedisCache_TryLock(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestRedis(t)

	ok, err := c.TryLock(ctx, "train:1h", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.TryLock(ctx, "train:1h", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Unlock(ctx, "train:1h"))
	ok, err = c.TryLock(ctx, "train:1h", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisCache_UnlockKeepsForeignLock(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	a, b := newRedisOn(t, mr), newRedisOn(t, mr)

	ok, err := a.TryLock(ctx, "train:1d", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	ok, err = b.TryLock(ctx, "train:1d", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// a's lock expired; releasing it must not free b's
	require.NoError(t, a.Unlock(ctx, "train:1d"))
	assert.True(t, mr.Exists("fincast:train:1d"))
}

func TestMemoryCache_TypedValues(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(10))
	defer mc.Close()

	in := &payload{Symbol: "ETHUSDT", Close: 2000}
	require.NoError(t, mc.Set(ctx, "k", in, time.Minute))

	var out payload
	require.NoError(t, mc.Get(ctx, "k", &out))
	assert.Equal(t, *in, out)

	var ptr *payload
	require.NoError(t, mc.Get(ctx, "k", &ptr))
	assert.Same(t, in, ptr)

	assert.ErrorIs(t, mc.Get(ctx, "missing", &out), ErrCacheMiss)
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryCleanup(0))
	defer mc.Close()
	now := time.Unix(1_700_000_000, 0)
	mc.now = func() time.Time { return now }

	require.NoError(t, mc.Set(ctx, "k", "v", time.Minute))
	now = now.Add(2 * time.Minute)

	var s string
	assert.ErrorIs(t, mc.Get(ctx, "k", &s), ErrCacheMiss)
	assert.Equal(t, 0, mc.Len())
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "a", "1", 0))
	require.NoError(t, mc.Set(ctx, "b", "2", 0))

	var s string
	require.NoError(t, mc.Get(ctx, "a", &s))
	require.NoError(t, mc.Set(ctx, "c", "3", 0))

	assert.ErrorIs(t, mc.Get(ctx, "b", &s), ErrCacheMiss)
	assert.NoError(t, mc.Get(ctx, "a", &s))
	assert.Equal(t, 2, mc.Len())
}

func TestMemoryCache_DeleteByPattern(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "model:1h:linear", "x", 0))
	require.NoError(t, mc.Set(ctx, "model:4h:linear", "y", 0))
	require.NoError(t, mc.DeleteByPattern(ctx, "model:1h:*"))

	var s string
	assert.ErrorIs(t, mc.Get(ctx, "model:1h:linear", &s), ErrCacheMiss)
	assert.NoError(t, mc.Get(ctx, "model:4h:linear", &s))
}

func TestMemoryCache_TryLock(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	ok, _ := mc.TryLock(ctx, "train:1h", time.Minute)
	assert.True(t, ok)
	ok, _ = mc.TryLock(ctx, "train:1h", time.Minute)
	assert.False(t, ok)
	require.NoError(t, mc.Unlock(ctx, "train:1h"))
	ok, _ = mc.TryLock(ctx, "train:1h", time.Minute)
	assert.True(t, ok)
}

func TestLayeredCache_FallsBackToRedis(t *testing.T) {
	ctx := context.Background()
	rc, _ := newTestRedis(t)
	lc := NewLayeredCache(rc, WithLayeredMemorySize(5))
	t.Cleanup(func() { _ = lc.Close() })

	require.NoError(t, rc.Set(ctx, "k", payload{Symbol: "BTCUSDT", Close: 1}, time.Minute))

	var got payload
	require.NoError(t, lc.Get(ctx, "k", &got))
	assert.Equal(t, "BTCUSDT", got.Symbol)

	var again payload
	require.NoError(t, lc.mem.Get(ctx, "k", &again))
	assert.Equal(t, got, again)
}

func TestLayeredCache_DeleteReachesOtherInstances(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	a := NewLayeredCache(newRedisOn(t, mr))
	b := NewLayeredCache(newRedisOn(t, mr))
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})

	require.NoError(t, a.Set(ctx, "forecast:BTCUSDT:1h:iterative:5", "v1", time.Minute))
	var s string
	require.NoError(t, b.Get(ctx, "forecast:BTCUSDT:1h:iterative:5", &s))
	require.Equal(t, "v1", s)

	require.NoError(t, a.DeleteByPattern(ctx, "forecast:BTCUSDT:1h:*"))

	assert.Eventually(t, func() bool {
		var v string
		return errors.Is(b.mem.Get(ctx, "forecast:BTCUSDT:1h:iterative:5", &v), ErrCacheMiss)
	}, time.Second, 10*time.Millisecond)
}

func TestGetOrLoad_SharesConcurrentLoads(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()
	var g singleflight.Group
	var calls int32
	release := make(chan struct{})

	load := func(context.Context) (payload, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return payload{Symbol: "BTCUSDT", Close: 42}, nil
	}

	var wg sync.WaitGroup
	results := make([]payload, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, err := GetOrLoad(ctx, mc, &g, "k", time.Minute, load)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(2))
	for _, r := range results {
		assert.Equal(t, 42.0, r.Close)
	}

	v, hit, err := GetOrLoad(ctx, mc, &g, "k", time.Minute, load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "BTCUSDT", v.Symbol)
}

func TestGetOrLoad_ErrorNotCached(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()
	var g singleflight.Group
	boom := errors.New("boom")

	_, _, err := GetOrLoad(ctx, mc, &g, "k", time.Minute, func(context.Context) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)

	var s string
	assert.ErrorIs(t, mc.Get(ctx, "k", &s), ErrCacheMiss)
}
