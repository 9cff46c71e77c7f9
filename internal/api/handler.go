package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/aode/aode/internal/config"
	"github.com/aode/aode/internal/snapshot"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

// Handler serves read-only views of the published configuration registry.
// Credential values are never part of a response.
type Handler struct {
	holder *snapshot.Holder
	build  snapshot.Builder

	clock func() time.Time

	mu       sync.RWMutex
	loadedAt time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithBuilder enables POST /api/reload using build to construct replacements.
func WithBuilder(build snapshot.Builder) HandlerOption {
	return func(h *Handler) {
		h.build = build
	}
}

// NewHandler constructs a Handler over the given holder.
func NewHandler(holder *snapshot.Holder, opts ...HandlerOption) *Handler {
	h := &Handler{
		holder: holder,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.loadedAt = h.clock()
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	_ = r
	s := h.holder.Current().Settings()
	resp := settingsResponse{
		Debug:                   s.Debug,
		SystemName:              s.SystemName,
		FirebaseProjectID:       s.FirebaseProjectID,
		FirebaseCredentialsPath: s.FirebaseCredentialsPath,
		PollingIntervalSeconds:  s.PollingIntervalSeconds,
		MaxRetries:              s.MaxRetries,
		RetryDelaySeconds:       s.RetryDelaySeconds,
		ConfidenceThreshold:     s.ConfidenceThreshold,
		AnomalyZScoreThreshold:  s.AnomalyZScoreThreshold,
		LoadedAt:                h.currentLoadedAt(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetAssetClasses(w http.ResponseWriter, r *http.Request) {
	_ = r
	classes := h.holder.Current().AssetClasses()
	names := make([]string, 0, len(classes))
	for _, ac := range classes {
		names = append(names, ac.String())
	}
	writeJSON(w, http.StatusOK, assetClassesResponse{AssetClasses: names})
}

func (h *Handler) handleListSources(w http.ResponseWriter, r *http.Request) {
	_ = r
	reg := h.holder.Current()
	sources := reg.Sources()
	resp := sourcesResponse{Sources: make([]sourceResponse, 0, len(sources))}
	for _, src := range sources {
		resp.Sources = append(resp.Sources, newSourceResponse(reg, src))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetSource(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	reg := h.holder.Current()
	src, ok := reg.Source(key)
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown data source", config.ErrUnknownSource.Error()+": "+key)
		return
	}
	writeJSON(w, http.StatusOK, newSourceResponse(reg, src))
}

func (h *Handler) handleReload(w http.ResponseWriter, r *http.Request) {
	_ = r
	if h.build == nil {
		writeError(w, http.StatusNotImplemented, "Reload unavailable", "no registry builder configured")
		return
	}

	if err := h.holder.Reload(h.build); err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
				Error:    "Invalid configuration",
				Details:  "previous configuration kept",
				Problems: verr.Messages(),
			})
			return
		}
		writeInternalError(w, err)
		return
	}

	h.markLoaded()
	writeJSON(w, http.StatusOK, reloadResponse{
		Message:  "Configuration reloaded successfully",
		LoadedAt: h.currentLoadedAt(),
	})
}

func (h *Handler) currentLoadedAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.loadedAt
}

func (h *Handler) markLoaded() {
	h.mu.Lock()
	h.loadedAt = h.clock()
	h.mu.Unlock()
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

func newSourceResponse(reg *config.Registry, src config.DataSource) sourceResponse {
	return sourceResponse{
		Key:                  src.Key(),
		Name:                 src.Name(),
		BaseURL:              src.BaseURL(),
		CredentialEnvVar:     src.CredentialEnvVar(),
		RateLimitPerMinute:   src.RateLimitPerMinute(),
		Active:               src.Active(),
		CredentialConfigured: reg.CredentialConfigured(src.Key()),
	}
}

type sourceResponse struct {
	Key                  string `json:"key"`
	Name                 string `json:"name"`
	BaseURL              string `json:"baseUrl"`
	CredentialEnvVar     string `json:"credentialEnvVar"`
	RateLimitPerMinute   int    `json:"rateLimitPerMinute"`
	Active               bool   `json:"active"`
	CredentialConfigured bool   `json:"credentialConfigured"`
}

type sourcesResponse struct {
	Sources []sourceResponse `json:"sources"`
}

type assetClassesResponse struct {
	AssetClasses []string `json:"assetClasses"`
}

type settingsResponse struct {
	Debug                   bool      `json:"debug"`
	SystemName              string    `json:"systemName"`
	FirebaseProjectID       string    `json:"firebaseProjectId"`
	FirebaseCredentialsPath string    `json:"firebaseCredentialsPath"`
	PollingIntervalSeconds  int       `json:"pollingIntervalSeconds"`
	MaxRetries              int       `json:"maxRetries"`
	RetryDelaySeconds       float64   `json:"retryDelaySeconds"`
	ConfidenceThreshold     float64   `json:"confidenceThreshold"`
	AnomalyZScoreThreshold  float64   `json:"anomalyZScoreThreshold"`
	LoadedAt                time.Time `json:"loadedAt"`
}

type reloadResponse struct {
	Message  string    `json:"message"`
	LoadedAt time.Time `json:"loadedAt"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error    string   `json:"error"`
	Details  string   `json:"details,omitempty"`
	Problems []string `json:"problems,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, errorResponse{
		Error:   message,
		Details: details,
	})
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
