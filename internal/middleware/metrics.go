package middleware

import (
	"time"

	"bootkeeper/services"

	"github.com/gin-gonic/gin"
)

/**
 * Request metrics middleware
 * @description
 * - Counts supervisor API requests by route template and status
 * - Records handling time
 * - Unmatched routes are labelled "unknown" to keep cardinality bounded
 */
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}
		services.RecordRequest(path, c.Writer.Status(), time.Since(start))
	}
}
