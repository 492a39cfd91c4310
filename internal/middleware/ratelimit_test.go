package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func TestRateLimiter_AllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(1, 5)

	for i := 0; i < 5; i++ {
		if !rl.Allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed within burst", i+1)
		}
	}
	if rl.Allow("1.2.3.4") {
		t.Error("request beyond burst should be denied")
	}
}

func TestRateLimiter_SeparateBucketsPerIP(t *testing.T) {
	rl := NewRateLimiter(1, 1)

	if !rl.Allow("1.1.1.1") {
		t.Error("first IP should be allowed")
	}
	if rl.Allow("1.1.1.1") {
		t.Error("first IP should be exhausted")
	}
	if !rl.Allow("2.2.2.2") {
		t.Error("second IP has its own bucket")
	}
}

func TestRateLimiter_MiddlewareReturns429(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "9.9.9.9:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestExtractIP_RemoteAddrByDefault(t *testing.T) {
	os.Unsetenv("TRUST_PROXY")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5678"
	req.Header.Set("X-Forwarded-For", "6.6.6.6")

	if ip := ExtractIP(req); ip != "10.0.0.1" {
		t.Errorf("expected RemoteAddr IP, got %q", ip)
	}
}

func TestExtractIP_TrustsProxyWhenEnabled(t *testing.T) {
	os.Setenv("TRUST_PROXY", "true")
	defer os.Unsetenv("TRUST_PROXY")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5678"
	req.Header.Set("X-Forwarded-For", "6.6.6.6, 7.7.7.7")

	if ip := ExtractIP(req); ip != "6.6.6.6" {
		t.Errorf("expected first forwarded IP, got %q", ip)
	}

	req.Header.Del("X-Forwarded-For")
	req.Header.Set("X-Real-IP", "8.8.8.8")
	if ip := ExtractIP(req); ip != "8.8.8.8" {
		t.Errorf("expected X-Real-IP, got %q", ip)
	}
}
