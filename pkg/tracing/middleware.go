package tracing

import (
	"fmt"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Middleware starts a server span per request, continuing any incoming trace context.
func Middleware(service string) echo.MiddlewareFunc {
	tracer := Tracer(service + "/http")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))

			route := c.Path()
			ctx, span := tracer.Start(ctx, fmt.Sprintf("HTTP %s %s", req.Method, route),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", req.Method),
					attribute.String("http.route", route),
					attribute.String("http.client_ip", c.RealIP()),
				),
			)
			defer span.End()

			c.SetRequest(req.WithContext(ctx))
			err := next(c)

			status := c.Response().Status
			span.SetAttributes(attribute.Int("http.status_code", status))
			if err != nil {
				span.RecordError(err)
			}
			if status >= 500 || err != nil {
				span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
			}
			return err
		}
	}
}
