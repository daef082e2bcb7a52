package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestMetricsRecordsRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg, "test")

	r := gin.New()
	r.Use(m.Gin())
	r.GET("/notifications/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health/live", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/notifications/1", "/notifications/2", "/health/live"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/notifications/:id", "200")); got != 2 {
		t.Errorf("requests = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(m.requests); got != 1 {
		t.Errorf("series = %d, want 1 (health skipped)", got)
	}
}

func TestRequestLoggingSetsRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogging())
	var seen string
	r.GET("/x", func(c *gin.Context) {
		seen = GetRequestID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "abc")
	r.ServeHTTP(w, req)

	if seen != "abc" || w.Header().Get("X-Request-ID") != "abc" {
		t.Errorf("request id = %q / %q", seen, w.Header().Get("X-Request-ID"))
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if seen == "" || seen == "abc" {
		t.Errorf("expected generated id, got %q", seen)
	}
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestShouldSkipTrace(t *testing.T) {
	if !ShouldSkipTrace("/health/ready") || ShouldSkipTrace("/tracking/status") {
		t.Error("unexpected skip decision")
	}
}
