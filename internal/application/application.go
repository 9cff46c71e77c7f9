package application

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aode/aode/internal/api"
	"github.com/aode/aode/internal/config"
	"github.com/aode/aode/internal/snapshot"
)

// ServerConfig holds the HTTP settings of the inspection server.
type ServerConfig struct {
	Port                 string
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	RateLimitRPS         float64
	RateLimitBurst       int
	ReloadsPerMinute     int
}

// DefaultServerConfig returns the settings used when no flags override them.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:                 "8080",
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         25,
		RateLimitBurst:       50,
		ReloadsPerMinute:     api.DefaultReloadsPerMinute,
	}
}

// App encapsulates the registry holder and HTTP server.
type App struct {
	holder  *snapshot.Holder
	build   snapshot.Builder
	handler *api.Handler
	router  http.Handler
	logger  *zap.Logger
	server  *http.Server
}

// New builds the initial registry with build, publishes it and prepares the
// HTTP server. A configuration that fails validation aborts startup.
func New(cfg ServerConfig, build snapshot.Builder, logger *zap.Logger) (*App, error) {
	if build == nil {
		return nil, errors.New("registry builder is required")
	}

	reg, err := build()
	if err != nil {
		return nil, fmt.Errorf("build configuration registry: %w", err)
	}
	holder, err := snapshot.New(reg)
	if err != nil {
		return nil, err
	}

	handler := api.NewHandler(holder, api.WithBuilder(build))
	apiRouter := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		api.WithReloadLimit(cfg.ReloadsPerMinute),
	)

	return &App{
		holder:  holder,
		build:   build,
		handler: handler,
		router:  apiRouter,
		logger:  logger,
		server:  NewServer(cfg, BuildRootHandler(apiRouter)),
	}, nil
}

// BuildRootHandler mounts the API under /api/ and answers 404 elsewhere.
func BuildRootHandler(apiHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.Handle("/", http.NotFoundHandler())
	return mux
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg ServerConfig, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Registry returns the currently published configuration.
func (a *App) Registry() *config.Registry {
	return a.holder.Current()
}

// Reload rebuilds the registry and publishes it if it validates. The previous
// registry stays active on failure.
func (a *App) Reload() error {
	if err := a.holder.Reload(a.build); err != nil {
		a.logger.Warn("configuration reload rejected, keeping previous configuration", zap.Error(err))
		return err
	}
	a.logger.Info("configuration reloaded")
	return nil
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}
