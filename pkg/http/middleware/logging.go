package middleware

import (
	"time"

	applogger "FinCast/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/trace"
)

// RequestLogging logs every request at debug level, client errors at info.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if l == nil {
				return next(c)
			}
			req := c.Request()
			start := time.Now()

			if err := next(c); err != nil {
				c.Error(err)
			}

			res := c.Response()
			fields := []applogger.Field{
				applogger.String("method", req.Method),
				applogger.String("uri", req.RequestURI),
				applogger.String("remote", c.RealIP()),
				applogger.Int("status", res.Status),
				applogger.Int64("bytes", res.Size),
				applogger.Duration("latency_ms", time.Since(start)),
			}
			if sc := trace.SpanContextFromContext(req.Context()); sc.HasTraceID() {
				fields = append(fields, applogger.String("trace_id", sc.TraceID().String()))
			}
			if res.Status >= 400 && res.Status < 500 {
				l.Info("http request rejected", fields...)
			} else {
				l.Debug("http request", fields...)
			}
			return nil
		}
	}
}
