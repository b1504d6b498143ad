package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/vaultbridge/backend/internal/infrastructure/telemetry"
)

// Profiling adds route and method pprof labels to everything a request
// runs, so Pyroscope can break CPU time down per endpoint. Unmatched
// routes and the health check are left unlabelled.
func Profiling(enabled bool) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" || route == "/health" {
			c.Next()
			return
		}

		telemetry.WithProfilingLabels(c.Request.Context(), func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		}, "route", route, "method", c.Request.Method)
	}
}
