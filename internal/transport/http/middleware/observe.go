package middleware

import (
	"strconv"
	"time"

	"github.com/fundacion-cms/content-scheduler/internal/metrics"
	"github.com/fundacion-cms/content-scheduler/internal/tracing"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Observe records request metrics and wraps each request in a span named after
// its route template.
func Observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}
		method := c.Request.Method

		ctx, span := tracing.StartSpan(c.Request.Context(), method+" "+path,
			attribute.String("http.request.method", method),
			attribute.String("http.route", path),
		)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		code := c.Writer.Status()
		status := strconv.Itoa(code)
		span.SetAttributes(attribute.Int("http.response.status_code", code))
		if code >= 500 {
			span.SetStatus(codes.Error, status)
		}

		metrics.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		metrics.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	}
}
