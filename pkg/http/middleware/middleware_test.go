package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	applogger "FinCast/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEcho(mw ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.Use(mw...)
	e.GET("/ok", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/boom", func(c echo.Context) error { panic("boom") })
	return e
}

func TestCORS_Preflight(t *testing.T) {
	e := newEcho(CORS(CORSConfig{
		AllowOrigins: []string{"https://app.example.com"},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderContentType},
		MaxAge:       600,
	}))

	req := httptest.NewRequest(http.MethodOptions, "/ok", nil)
	req.Header.Set(echo.HeaderOrigin, "https://app.example.com")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodGet)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, "GET, POST", rec.Header().Get(echo.HeaderAccessControlAllowMethods))
	assert.Equal(t, "600", rec.Header().Get(echo.HeaderAccessControlMaxAge))
}

func TestCORS_UnknownOriginNotDecorated(t *testing.T) {
	e := newEcho(CORS(CORSConfig{AllowOrigins: []string{"https://app.example.com"}}))

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(echo.HeaderOrigin, "https://evil.example.com")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestCORS_AnyOrigin(t *testing.T) {
	e := newEcho(CORS(CORSConfig{}))

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(echo.HeaderOrigin, "https://x.example.com")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, "https://x.example.com", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRecover_WritesInternalError(t *testing.T) {
	var buf bytes.Buffer
	e := newEcho(Recover(applogger.NewWriter(&buf, zerolog.DebugLevel)))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal Server Error")
	assert.Contains(t, buf.String(), "panic recovered")
}

func TestRequestLogging_ClientErrorsAtInfo(t *testing.T) {
	var buf bytes.Buffer
	e := newEcho(RequestLogging(applogger.NewWriter(&buf, zerolog.InfoLevel)))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.NotContains(t, buf.String(), "http request")

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Contains(t, buf.String(), "http request rejected")
}

func TestMetrics_PanicReleasesInFlight(t *testing.T) {
	var buf bytes.Buffer
	e := newEcho(Recover(applogger.NewWriter(&buf, zerolog.DebugLevel)), Metrics(nil, 0))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 0.0, testutil.ToFloat64(httpInFlight.WithLabelValues("/boom", http.MethodGet)))

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, 0.0, testutil.ToFloat64(httpInFlight.WithLabelValues("/ok", http.MethodGet)))
}
