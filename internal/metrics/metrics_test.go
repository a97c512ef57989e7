package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Marked("IN")
	m.Marked("IN")
	m.Marked("OUT")
	m.DeviceAuth(AuthInvalid)
	m.RateLimited()

	if got := testutil.ToFloat64(m.marked.WithLabelValues("IN")); got != 2 {
		t.Errorf("expected 2 IN marks, got %v", got)
	}
	if got := testutil.ToFloat64(m.marked.WithLabelValues("OUT")); got != 1 {
		t.Errorf("expected 1 OUT mark, got %v", got)
	}
	if got := testutil.ToFloat64(m.deviceAuth.WithLabelValues(AuthInvalid)); got != 1 {
		t.Errorf("expected 1 invalid auth, got %v", got)
	}
	if got := testutil.ToFloat64(m.rateLimited); got != 1 {
		t.Errorf("expected 1 rate-limited request, got %v", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.Marked("IN")
	m.DeviceAuth(AuthOK)
	m.RateLimited()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
}

func TestMetrics_GinMiddlewareObservesRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/users/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/users/a", "/users/b", "/nowhere"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if n := testutil.CollectAndCount(m.requests); n != 2 {
		t.Errorf("expected 2 label sets (route + unmatched), got %d", n)
	}
}
