// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Device authentication results.
const (
	AuthOK      = "ok"
	AuthMissing = "missing"
	AuthInvalid = "invalid"
	AuthError   = "error"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	marked      *prometheus.CounterVec
	deviceAuth  *prometheus.CounterVec
	rateLimited prometheus.Counter
	requests    *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		marked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_marked_total",
			Help: "Attendance events recorded, by event kind.",
		}, []string{"event"}),
		deviceAuth: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_device_auth_total",
			Help: "Device bearer token verifications, by result.",
		}, []string{"result"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attendance_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "attendance_http_request_duration_seconds",
			Help:    "HTTP request latency, by method, route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.marked, m.deviceAuth, m.rateLimited, m.requests)
	return m
}

// Marked counts a recorded event.
func (m *Metrics) Marked(event string) {
	if m == nil {
		return
	}
	m.marked.WithLabelValues(event).Inc()
}

// DeviceAuth counts a device verification outcome.
func (m *Metrics) DeviceAuth(result string) {
	if m == nil {
		return
	}
	m.deviceAuth.WithLabelValues(result).Inc()
}

// RateLimited counts a rejected request.
func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// GinMiddleware observes request latency. Unmatched routes are grouped under
// a single label to keep cardinality bounded.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
