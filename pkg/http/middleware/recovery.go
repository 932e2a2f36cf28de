package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	applogger "FinCast/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var panicsTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "fincast_http_panics_total",
	Help: "Total number of handler panics recovered",
})

func init() { prometheus.MustRegister(panicsTotal) }

// Recover turns handler panics into a 500 response and marks the active span as failed.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				err, ok := r.(error)
				if !ok {
					err = fmt.Errorf("%v", r)
				}
				panicsTotal.Inc()

				span := trace.SpanFromContext(c.Request().Context())
				span.RecordError(err)
				span.SetStatus(codes.Error, "panic")

				if l != nil {
					l.Error("panic recovered",
						applogger.Error(err),
						applogger.String("method", c.Request().Method),
						applogger.String("path", c.Path()),
						applogger.String("stack", string(debug.Stack())))
				}
				if c.Response().Committed {
					return
				}
				_ = c.JSON(http.StatusInternalServerError, map[string]interface{}{
					"status":  http.StatusInternalServerError,
					"message": http.StatusText(http.StatusInternalServerError),
				})
			}()
			return next(c)
		}
	}
}
