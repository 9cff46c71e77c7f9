package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// denyReloads rejects reloads and admits everything else.
type denyReloads struct{}

func (denyReloads) Allow(r *http.Request) bool {
	return !isReload(r)
}

type staticLimiter struct {
	allow bool
}

func (s *staticLimiter) Allow(*http.Request) bool {
	return s.allow
}

func TestNewRouteLimiterDisabled(t *testing.T) {
	if l := newRouteLimiter(0, 0, 0); l != nil {
		t.Fatalf("expected no limiter when every bucket is disabled, got %T", l)
	}
	if l := newRouteLimiter(5, 0, -1); l != nil {
		t.Fatalf("expected zero burst to disable reads, got %T", l)
	}
}

func TestRouteLimiterSeparatesReloadsFromReads(t *testing.T) {
	limiter := newRouteLimiter(1, 1, 1)

	reload := httptest.NewRequest(http.MethodPost, reloadPath, nil)
	read := httptest.NewRequest(http.MethodGet, "/api/sources", nil)

	if !limiter.Allow(reload) {
		t.Fatalf("expected first reload to be allowed")
	}
	if limiter.Allow(reload) {
		t.Fatalf("expected second reload within a minute to be rejected")
	}
	if !limiter.Allow(read) {
		t.Fatalf("exhausted reload bucket must not block reads")
	}
	if limiter.Allow(read) {
		t.Fatalf("expected second read to exceed the read burst")
	}
}

func TestRouteLimiterReadsOnly(t *testing.T) {
	limiter := newRouteLimiter(1, 1, 0)
	reload := httptest.NewRequest(http.MethodPost, reloadPath, nil)

	for i := 0; i < 3; i++ {
		if !limiter.Allow(reload) {
			t.Fatalf("reload %d: expected reloads to be unlimited", i)
		}
	}
}

func TestRouteLimiterGetOnReloadPathIsARead(t *testing.T) {
	limiter := newRouteLimiter(0, 0, 1)
	get := httptest.NewRequest(http.MethodGet, reloadPath, nil)

	for i := 0; i < 3; i++ {
		if !limiter.Allow(get) {
			t.Fatalf("request %d: GET must not consume the reload bucket", i)
		}
	}
}

func TestRateLimitMiddlewareExplainsRejectedReload(t *testing.T) {
	middleware := rateLimitMiddleware(denyReloads{}, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	middleware.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, reloadPath, nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}

	var body errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !strings.Contains(body.Details, "previous configuration kept") {
		t.Fatalf("unexpected details %q", body.Details)
	}

	rec = httptest.NewRecorder()
	middleware.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/settings", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected reads to pass, got %d", rec.Code)
	}
}

func TestRateLimitMiddlewareNilLimiter(t *testing.T) {
	var called bool
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })

	rateLimitMiddleware(nil, next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Fatalf("expected handler to run without a limiter")
	}
}
