package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func limitedRouter(rl *RateLimiter) http.Handler {
	r := chi.NewRouter()
	r.With(rl.Middleware).Post("/tenants/{tenantID}/sync", okHandler().ServeHTTP)
	r.With(rl.Middleware).Get("/tenants/{tenantID}/sync", okHandler().ServeHTTP)
	return r
}

func TestRateLimiter_PerTenant(t *testing.T) {
	h := limitedRouter(NewRateLimiter(2, time.Minute))

	codes := func(tenant string, n int) []int {
		var out []int
		for i := 0; i < n; i++ {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/tenants/"+tenant+"/sync", nil))
			out = append(out, w.Code)
		}
		return out
	}

	got := codes("t1", 3)
	if got[0] != http.StatusOK || got[1] != http.StatusOK || got[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes for t1: %v", got)
	}
	if got := codes("t2", 1); got[0] != http.StatusOK {
		t.Fatalf("t2 should have its own budget, got %v", got)
	}
}

func TestRateLimiter_ReadsPassThrough(t *testing.T) {
	h := limitedRouter(NewRateLimiter(1, time.Minute))
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tenants/t1/sync", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
	}
}

func TestRateLimiter_DisabledWhenZero(t *testing.T) {
	h := limitedRouter(NewRateLimiter(0, time.Minute))
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/tenants/t1/sync", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
	}
}

func TestRateLimiter_WindowExpires(t *testing.T) {
	rl := NewRateLimiter(1, 20*time.Millisecond)
	if !rl.allow("k") {
		t.Fatal("first request should pass")
	}
	if rl.allow("k") {
		t.Fatal("second request should be limited")
	}
	time.Sleep(30 * time.Millisecond)
	if !rl.allow("k") {
		t.Fatal("request after window should pass")
	}
}

func TestRequestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := RequestLogging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/tenants/t1/sync", nil))

	out := buf.String()
	for _, want := range []string{`"status":418`, `"method":"POST"`, `"path":"/api/v1/tenants/t1/sync"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log line missing %s: %s", want, out)
		}
	}
}
