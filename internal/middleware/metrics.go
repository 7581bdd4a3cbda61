package middleware

import (
	"net/http"
	"strconv"

	"github.com/technosupport/ts-lms/internal/metrics"
)

// HTTPMetrics records request counts and latency per route into the shared
// collector.
func HTTPMetrics(c *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			timer := c.StartHTTPTimer(r.Method, r.URL.Path)

			next.ServeHTTP(rw, r)

			timer.Done(strconv.Itoa(rw.status))
		})
	}
}
