package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/aode/aode/internal/config"
	"github.com/aode/aode/internal/snapshot"
)

type controllableClock struct {
	mu  sync.RWMutex
	now time.Time
}

func newControllableClock(initial time.Time) *controllableClock {
	return &controllableClock{now: initial}
}

func (c *controllableClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *controllableClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	router http.Handler
	clock  *controllableClock
	env    config.Map
	holder *snapshot.Holder
}

func newTestEnv(t *testing.T) config.Map {
	t.Helper()

	creds := filepath.Join(t.TempDir(), "creds.json")
	if err := os.WriteFile(creds, []byte("{}"), 0o600); err != nil {
		t.Fatalf("write credentials: %v", err)
	}
	return config.Map{
		config.EnvFirebaseCredentialsPath: creds,
		config.EnvFirebaseProjectID:       "proj1",
		"BINANCE_API_KEY":                 "abc",
		"ALPHA_VANTAGE_API_KEY":           "def",
		"POLYGON_API_KEY":                 "ghi",
	}
}

func setupTestRouter(t *testing.T) *testEnv {
	t.Helper()

	env := newTestEnv(t)
	build := func() (*config.Registry, error) {
		return config.New(config.WithLookup(env))
	}
	reg, err := build()
	if err != nil {
		t.Fatalf("config.New: %v", err)
	}
	holder, err := snapshot.New(reg)
	if err != nil {
		t.Fatalf("snapshot.New: %v", err)
	}

	clock := newControllableClock(time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC))
	handler := NewHandler(holder, WithClock(clock.Now), WithBuilder(build))
	logger := zaptest.NewLogger(t)
	router := NewRouter(handler, logger, WithLogging(false))

	return &testEnv{router: router, clock: clock, env: env, holder: holder}
}

func serve(router http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRequestIDHelpers(t *testing.T) {
	ctx := contextWithRequestID(context.Background(), "abc")
	if got := requestIDFromContext(ctx); got != "abc" {
		t.Fatalf("expected abc, got %s", got)
	}
	resp := httptest.NewRecorder()
	writeInternalError(resp, assertError("boom"))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 status, got %d", resp.Code)
	}
}

type assertError string

func (a assertError) Error() string { return string(a) }

func TestHealthEndpoint(t *testing.T) {
	te := setupTestRouter(t)

	rec := serve(te.router, http.MethodGet, "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %s", body.Status)
	}
	if !body.Timestamp.Equal(te.clock.Now()) {
		t.Fatalf("expected timestamp %s, got %s", te.clock.Now(), body.Timestamp)
	}
}

func TestGetSettings(t *testing.T) {
	te := setupTestRouter(t)

	rec := serve(te.router, http.MethodGet, "/api/settings")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body settingsResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.FirebaseProjectID != "proj1" || body.PollingIntervalSeconds != 300 || body.SystemName != "AODE v1.0" {
		t.Fatalf("unexpected settings %+v", body)
	}
	if !body.LoadedAt.Equal(te.clock.Now()) {
		t.Fatalf("expected loadedAt %s, got %s", te.clock.Now(), body.LoadedAt)
	}
}

func TestGetAssetClasses(t *testing.T) {
	te := setupTestRouter(t)

	rec := serve(te.router, http.MethodGet, "/api/asset-classes")
	var body assetClassesResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	want := []string{"cryptocurrency", "equity", "forex"}
	if strings.Join(body.AssetClasses, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, body.AssetClasses)
	}
}

func TestListSourcesNeverExposesCredentials(t *testing.T) {
	te := setupTestRouter(t)

	te.env["POLYGON_API_KEY"] = ""
	rec := serve(te.router, http.MethodGet, "/api/sources")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	raw := rec.Body.String()
	for _, secret := range []string{"abc", "def"} {
		if strings.Contains(raw, `"`+secret+`"`) {
			t.Fatalf("response leaked credential %q: %s", secret, raw)
		}
	}

	var body sourcesResponse
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body.Sources) != 3 {
		t.Fatalf("expected 3 sources, got %d", len(body.Sources))
	}
	if body.Sources[0].Key != "binance" || !body.Sources[0].CredentialConfigured {
		t.Fatalf("unexpected first source %+v", body.Sources[0])
	}
	if body.Sources[2].Key != "polygon" || body.Sources[2].CredentialConfigured {
		t.Fatalf("expected polygon credential to be reported missing, got %+v", body.Sources[2])
	}
}

func TestGetSource(t *testing.T) {
	te := setupTestRouter(t)

	rec := serve(te.router, http.MethodGet, "/api/sources/alpha_vantage")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var body sourceResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Name != "Alpha Vantage" || body.RateLimitPerMinute != 5 || body.CredentialEnvVar != "ALPHA_VANTAGE_API_KEY" {
		t.Fatalf("unexpected source %+v", body)
	}

	rec = serve(te.router, http.MethodGet, "/api/sources/kraken")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestReloadPublishesNewConfiguration(t *testing.T) {
	te := setupTestRouter(t)

	te.clock.Advance(time.Hour)
	te.env[config.EnvFirebaseProjectID] = "proj2"

	rec := serve(te.router, http.MethodPost, "/api/reload")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body reloadResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !body.LoadedAt.Equal(te.clock.Now()) {
		t.Fatalf("expected loadedAt %s, got %s", te.clock.Now(), body.LoadedAt)
	}
	if got := te.holder.Current().Settings().FirebaseProjectID; got != "proj2" {
		t.Fatalf("expected proj2 to be published, got %s", got)
	}
}

func TestReloadRejectsInvalidConfiguration(t *testing.T) {
	te := setupTestRouter(t)

	before := te.holder.Current()
	delete(te.env, "BINANCE_API_KEY")
	delete(te.env, config.EnvFirebaseProjectID)

	rec := serve(te.router, http.MethodPost, "/api/reload")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}
	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body.Problems) != 2 {
		t.Fatalf("expected 2 problems, got %v", body.Problems)
	}
	if te.holder.Current() != before {
		t.Fatalf("failed reload must keep the previous registry")
	}
}

func TestReloadWithoutBuilder(t *testing.T) {
	te := setupTestRouter(t)

	handler := NewHandler(te.holder)
	router := NewRouter(handler, zaptest.NewLogger(t), WithLogging(false))
	rec := serve(router, http.MethodPost, "/api/reload")
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected status 501, got %d", rec.Code)
	}
}

func TestCorsPreflight(t *testing.T) {
	te := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/reload", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")

	rec := httptest.NewRecorder()
	te.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatalf("expected Access-Control-Allow-Origin header to be set")
	}
}

func TestRequestIDPropagation(t *testing.T) {
	te := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "test-request-id")

	rec := httptest.NewRecorder()
	te.router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "test-request-id" {
		t.Fatalf("expected X-Request-ID header to be echoed, got %s", got)
	}
}
