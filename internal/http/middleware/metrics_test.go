package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountersInflightAndPathFallback(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())

	// Grid responses have a body, so the size histogram observes them.
	r.GET("/sessions/:id/grid", func(c *gin.Context) {
		c.String(http.StatusOK, `{"cells":[]}`)
	})
	// Ending a session writes no body; size stays -1 and is skipped.
	r.DELETE("/sessions/:id", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	// Baselines, in case other tests in the package already hit these labels.
	baseGrid := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/sessions/:id/grid", "200"))
	base404 := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/unknown-route", "404"))

	// Matched route: the path label is the route pattern, one label set for
	// every session id.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/s1/grid", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET grid -> %d", w.Code)
	}

	// Unmatched route: falls back to the raw URL path.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/unknown-route", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /unknown-route -> %d", w.Code)
	}

	// Body-less response exercises the size<0 skip path.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/sessions/s1", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("DELETE session -> %d", w.Code)
	}

	gotGrid := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/sessions/:id/grid", "200"))
	if gotGrid != baseGrid+1 {
		t.Fatalf("grid counter = %v, want %v", gotGrid, baseGrid+1)
	}
	got404 := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/unknown-route", "404"))
	if got404 != base404+1 {
		t.Fatalf("404 fallback counter = %v, want %v", got404, base404+1)
	}

	// Nothing should still be counted as in flight once responses are done.
	if inFlight := testutil.ToFloat64(httpInflight); inFlight != 0 {
		t.Fatalf("httpInflight = %v, want 0", inFlight)
	}

	// Latency buckets are timing-dependent, so the routes above only need to
	// have executed both the observe path and the size-skip path.
}
