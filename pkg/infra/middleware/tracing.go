package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/kart-io/videoqa/pkg/infra/tracing"
)

// TracingConfig defines the config for Tracing middleware.
type TracingConfig struct {
	// SkipPaths is a list of paths that get no server span.
	SkipPaths []string
}

// DefaultTracingConfig is the default Tracing middleware config.
var DefaultTracingConfig = TracingConfig{
	SkipPaths: []string{"/health", "/metrics"},
}

// Tracing returns a middleware that continues the caller's W3C trace and
// wraps each request in a server span.
func Tracing() gin.HandlerFunc {
	return TracingWithConfig(DefaultTracingConfig)
}

// TracingWithConfig returns a Tracing middleware with custom config.
func TracingWithConfig(config TracingConfig) gin.HandlerFunc {
	skipPaths := make(map[string]bool, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipPaths[path] = true
	}

	return func(c *gin.Context) {
		if skipPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		ctx, span := tracing.StartServerSpan(ctx, c.Request.Method+" "+route,
			semconv.HTTPMethod(c.Request.Method),
			semconv.HTTPRoute(route),
		)
		defer span.End()

		if requestID := GetRequestID(c); requestID != "" {
			span.SetAttributes(attribute.String("http.request_id", requestID))
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(semconv.HTTPStatusCode(status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		} else {
			span.SetStatus(codes.Ok, "")
		}
		if len(c.Errors) > 0 {
			span.RecordError(c.Errors.Last().Err)
		}
	}
}
