package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func statsRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	for _, m := range mw {
		r.Use(m)
	}
	r.GET("/sessions/s1/stats", func(c *gin.Context) { c.String(http.StatusOK, `{"taken":10}`) })
	return r
}

func TestSecurityHeaders_BaselineAndExposeRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("baseline plus expose when request id present", func(t *testing.T) {
		r := statsRouter(
			func(c *gin.Context) { c.Header("X-Request-ID", "req-9a1"); c.Next() },
			SecurityHeaders(SecurityOptions{}),
		)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/s1/stats", nil))

		h := w.Header()
		if h.Get("X-Content-Type-Options") != "nosniff" ||
			h.Get("X-Frame-Options") != "DENY" ||
			h.Get("Referrer-Policy") != "no-referrer" {
			t.Fatalf("baseline headers missing: %#v", h)
		}
		// Optional groups stay off by default.
		if h.Get("Permissions-Policy") != "" || h.Get("Cache-Control") != "" ||
			h.Get("Strict-Transport-Security") != "" {
			t.Fatalf("optional headers emitted without being enabled: %#v", h)
		}
		if h.Get("Access-Control-Expose-Headers") != "X-Request-ID" {
			t.Fatalf("request id not exposed: %q", h.Get("Access-Control-Expose-Headers"))
		}
	})

	t.Run("appends to an existing expose header", func(t *testing.T) {
		r := statsRouter(
			func(c *gin.Context) {
				c.Header("X-Request-ID", "req-9a2")
				c.Header("Access-Control-Expose-Headers", "Idempotency-Replayed")
				c.Next()
			},
			SecurityHeaders(SecurityOptions{}),
		)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/s1/stats", nil))

		if got := w.Header().Get("Access-Control-Expose-Headers"); got != "Idempotency-Replayed, X-Request-ID" {
			t.Fatalf("expose header = %q", got)
		}
	})

	t.Run("does not duplicate an already-exposed request id", func(t *testing.T) {
		r := statsRouter(
			func(c *gin.Context) {
				c.Header("X-Request-ID", "req-9a3")
				c.Header("Access-Control-Expose-Headers", "X-Request-ID, Idempotency-Replayed")
				c.Next()
			},
			SecurityHeaders(SecurityOptions{}),
		)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/s1/stats", nil))

		if got := w.Header().Get("Access-Control-Expose-Headers"); got != "X-Request-ID, Idempotency-Replayed" {
			t.Fatalf("expose header changed: %q", got)
		}
	})
}

func TestSecurityHeaders_NoStorePolicyAndHSTSOverTLS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := statsRouter(SecurityHeaders(SecurityOptions{
		EnableHSTS:   true,
		HSTSMaxAge:   24 * time.Hour,
		NoStore:      true, // stats responses carry PHI
		EnablePolicy: true,
	}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sessions/s1/stats", nil)
	req.TLS = &tls.ConnectionState{}
	r.ServeHTTP(w, req)

	h := w.Header()
	if h.Get("Permissions-Policy") == "" || h.Get("X-Permitted-Cross-Domain-Policies") != "none" {
		t.Fatalf("policy headers missing: %#v", h)
	}
	if h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" || h.Get("Expires") != "0" {
		t.Fatalf("no-store headers missing on a PHI response: %#v", h)
	}
	if got, want := h.Get("Strict-Transport-Security"), "max-age=86400; includeSubDomains; preload"; got != want {
		t.Fatalf("HSTS = %q, want %q", got, want)
	}
}

func TestSecurityHeaders_HSTSBehindProxy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := statsRouter(SecurityHeaders(SecurityOptions{
		EnableHSTS: true,
		HSTSMaxAge: time.Hour,
	}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sessions/s1/stats", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Strict-Transport-Security"); !strings.HasPrefix(got, "max-age=") {
		t.Fatalf("expected HSTS via forwarded proto, got %q", got)
	}

	// Plain HTTP never gets HSTS, enabled or not.
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/sessions/s1/stats", nil))
	if got := w2.Header().Get("Strict-Transport-Security"); got != "" {
		t.Fatalf("HSTS emitted on plain HTTP: %q", got)
	}
}

func Test_isHTTPS(t *testing.T) {
	plain := httptest.NewRequest(http.MethodGet, "/", nil)
	if isHTTPS(plain) {
		t.Fatalf("plain request reported as https")
	}

	direct := httptest.NewRequest(http.MethodGet, "/", nil)
	direct.TLS = &tls.ConnectionState{}
	if !isHTTPS(direct) {
		t.Fatalf("TLS request not reported as https")
	}

	proxied := httptest.NewRequest(http.MethodGet, "/", nil)
	proxied.Header.Set("X-Forwarded-Proto", "HTTPS")
	if !isHTTPS(proxied) {
		t.Fatalf("forwarded-proto request not reported as https")
	}
}
