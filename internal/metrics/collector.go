package metrics

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LiveBindingCounter is implemented by the activation store.
type LiveBindingCounter interface {
	CountLive(ctx context.Context) (int, error)
}

// Collector owns the service registry and every metric the server exposes.
type Collector struct {
	registry *prometheus.Registry

	activations  *prometheus.CounterVec
	validations  *prometheus.CounterVec
	adminActions *prometheus.CounterVec
	forgedKeys   prometheus.Counter
	liveBindings prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{registry: reg}

	c.activations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lms_activations_total",
		Help: "Activation attempts by result",
	}, []string{"result"})
	reg.MustRegister(c.activations)

	c.validations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lms_validations_total",
		Help: "Validation heartbeats by result",
	}, []string{"result"})
	reg.MustRegister(c.validations)

	c.adminActions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lms_admin_actions_total",
		Help: "Admin key management actions",
	}, []string{"action"})
	reg.MustRegister(c.adminActions)

	c.forgedKeys = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lms_forged_key_rejections_total",
		Help: "Keys rejected for a bad signature",
	})
	reg.MustRegister(c.forgedKeys)

	c.liveBindings = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lms_live_bindings",
		Help: "Current number of live machine bindings",
	})
	reg.MustRegister(c.liveBindings)

	c.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lms_http_requests_total",
		Help: "HTTP requests by method, path and status",
	}, []string{"method", "path", "status"})
	reg.MustRegister(c.httpRequests)

	c.httpLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lms_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
	reg.MustRegister(c.httpLatency)

	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) RecordActivation(result string) {
	c.activations.WithLabelValues(result).Inc()
}

func (c *Collector) RecordValidation(result string) {
	c.validations.WithLabelValues(result).Inc()
}

func (c *Collector) RecordAdminAction(action string) {
	c.adminActions.WithLabelValues(action).Inc()
}

func (c *Collector) RecordForgedKey() {
	c.forgedKeys.Inc()
}

// HTTPTimer closes over one in-flight request.
type HTTPTimer struct {
	c      *Collector
	method string
	path   string
	start  time.Time
}

func (c *Collector) StartHTTPTimer(method, path string) *HTTPTimer {
	return &HTTPTimer{c: c, method: method, path: path, start: time.Now()}
}

func (t *HTTPTimer) Done(status string) {
	t.c.httpRequests.WithLabelValues(t.method, t.path, status).Inc()
	t.c.httpLatency.WithLabelValues(t.method, t.path).Observe(time.Since(t.start).Seconds())
}

// Start samples the live binding count in the background until the context
// is cancelled.
func (c *Collector) Start(ctx context.Context, counter LiveBindingCounter) {
	ticker := time.NewTicker(30 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sample(ctx, counter)
			}
		}
	}()
}

func (c *Collector) sample(ctx context.Context, counter LiveBindingCounter) {
	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	count, err := counter.CountLive(sctx)
	if err != nil {
		log.Printf("Metrics: live binding sample failed: %v", err)
		return
	}
	c.liveBindings.Set(float64(count))
}
