package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestLimiter_RefillsOverTime(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New()
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("k", 2, 1))
	assert.True(t, l.Allow("k", 2, 1))
	assert.False(t, l.Allow("k", 2, 1))

	now = now.Add(time.Second)
	assert.True(t, l.Allow("k", 2, 1))
	assert.False(t, l.Allow("k", 2, 1))

	assert.True(t, l.Allow("other", 2, 1))
}

func TestLimiter_Sweep(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New()
	l.now = func() time.Time { return now }

	l.Allow("a", 1, 1)
	now = now.Add(time.Hour)
	l.Allow("b", 1, 1)

	assert.Equal(t, 1, l.Sweep(time.Minute))
}

func TestLimiter_Middleware(t *testing.T) {
	e := echo.New()
	l := New()
	e.GET("/api/forecast", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, l.Middleware(1, 0.0001))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/forecast", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/forecast", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestLimiter_TakeReportsWait(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New()
	l.now = func() time.Time { return now }

	ok, _ := l.Take("k", 1, 0.5)
	assert.True(t, ok)
	ok, wait := l.Take("k", 1, 0.5)
	assert.False(t, ok)
	assert.Equal(t, 2*time.Second, wait)
}

func TestLimiter_MiddlewareSetsRetryAfter(t *testing.T) {
	e := echo.New()
	l := New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, l.Middleware(1, 0.25))

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "4", rec.Header().Get("Retry-After"))
}
