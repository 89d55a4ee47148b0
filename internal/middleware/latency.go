package middleware

import (
	"log"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const slowRequestThreshold = 500 * time.Millisecond

var httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "http_request_seconds",
	Help:    "Request handling time by method and route.",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "route", "status"})

// RequestLatency records per-route latency and logs requests that cross
// the slow threshold.
func RequestLatency() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpLatency.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Observe(elapsed.Seconds())

		if elapsed > slowRequestThreshold {
			log.Printf("slow request %s %s took %s", c.Request.Method, c.Request.URL.Path, elapsed)
		}
	}
}
