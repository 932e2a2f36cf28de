package tracing

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitUnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), Config{Enabled: true, Exporter: "zipkin"})
	assert.Error(t, err)
}

func TestStdoutExporterWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Init(context.Background(), Config{Enabled: true, Exporter: "stdout", ServiceName: "fincast-test", Writer: &buf})
	require.NoError(t, err)

	e := echo.New()
	e.Use(Middleware("fincast-test"))
	e.GET("/api/forecast", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/forecast", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "HTTP GET /api/forecast")
}
