package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/preenroll-api/internal/service"
)

// UnmatchedRoute labels requests that hit no registered route, so arbitrary paths
// cannot grow the label set.
const UnmatchedRoute = "unmatched"

// Metrics observes every request by route template. Requests to the skipped paths
// (health checks and the scrape endpoint itself) are not recorded.
func Metrics(metricsSvc *service.MetricsService, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, path := range skip {
		skipped[path] = struct{}{}
	}
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		if _, ok := skipped[c.Request.URL.Path]; ok {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = UnmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
