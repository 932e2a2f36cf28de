package ratelimit

import (
	"math"
	"sync"
	"time"

	xhttp "FinCast/pkg/http"

	"github.com/labstack/echo/v4"
)

type bucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

// Limiter is a keyed token bucket.
type Limiter struct {
	mu  sync.Mutex
	m   map[string]*bucket
	now func() time.Time
}

func New() *Limiter { return &Limiter{m: make(map[string]*bucket), now: time.Now} }

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
	ok, _ := l.Take(key, capacity, refillPerSec)
	return ok
}

// Take consumes one token for key. When none is left it reports how long until one refills.
func (l *Limiter) Take(key string, capacity, refillPerSec float64) (bool, time.Duration) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.m[key]
	if !ok {
		b = &bucket{tokens: capacity, capacity: capacity, refillRate: refillPerSec, last: now}
		l.m[key] = b
	}
	// refill
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if b.refillRate <= 0 {
		return false, time.Hour
	}
	return false, time.Duration((1 - b.tokens) / b.refillRate * float64(time.Second))
}

// Sweep drops buckets that have been idle longer than idle.
func (l *Limiter) Sweep(idle time.Duration) int {
	cutoff := l.now().Add(-idle)
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for k, b := range l.m {
		if b.last.Before(cutoff) {
			delete(l.m, k)
			n++
		}
	}
	return n
}

// Middleware limits requests per client IP and route.
func (l *Limiter) Middleware(capacity, refillPerSec float64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP() + "|" + c.Path()
			if ok, wait := l.Take(key, capacity, refillPerSec); !ok {
				secs := int(math.Ceil(wait.Seconds()))
				return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limit exceeded").WithParam("retry_after", secs))
			}
			return next(c)
		}
	}
}
