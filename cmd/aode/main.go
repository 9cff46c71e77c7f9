package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/aode/aode/internal/application"
	"github.com/aode/aode/internal/config"
	"github.com/aode/aode/internal/logging"
	"github.com/aode/aode/internal/snapshot"
)

var (
	signalNotify = signal.Notify
	signalStop   = signal.Stop
)

func main() {
	kingpinApp := kingpin.New("aode", "AODE configuration registry - validates and inspects data collection settings")
	envFile := kingpinApp.Flag("env-file", "Path to a .env file, searched upward from the working directory").Default(".env").String()
	sourcesFile := kingpinApp.Flag("sources-file", "YAML data source catalog replacing the built-in providers").Envar("AODE_SOURCES_FILE").String()
	logLevel := kingpinApp.Flag("log-level", "Minimum log level (debug, info, warn, error)").Envar("AODE_LOG_LEVEL").Default("info").String()

	checkCmd := kingpinApp.Command("check", "Validate the configuration and exit non-zero on problems").Default()
	sourcesCmd := kingpinApp.Command("sources", "List data sources and whether their credentials are set")

	serveCmd := kingpinApp.Command("serve", "Serve the read-only configuration inspection API")
	defaults := application.DefaultServerConfig()
	port := serveCmd.Flag("port", "HTTP port exposed by the service").Envar("PORT").Default(defaults.Port).String()
	rateLimitRPS := serveCmd.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default(fmt.Sprint(defaults.RateLimitRPS)).Float64()
	rateLimitBurst := serveCmd.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default(fmt.Sprint(defaults.RateLimitBurst)).Int()
	reloadLimit := serveCmd.Flag("reload-limit", "POST /api/reload calls allowed per minute (set 0 to disable)").Default(fmt.Sprint(defaults.ReloadsPerMinute)).Int()
	requestLogging := serveCmd.Flag("request-logging", "Emit access logs").Default("true").Bool()
	shutdownGrace := serveCmd.Flag("shutdown-grace-period", "Time allowed for in-flight requests on shutdown").Default(defaults.ShutdownGracePeriod.String()).Duration()

	command := kingpin.MustParse(kingpinApp.Parse(os.Args[1:]))

	envPath := config.FindDotEnv(*envFile)
	logger, err := logging.New(*logLevel, debugRequested(config.Env(), envPath))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	build := newBuilder(envPath, *sourcesFile, logger)

	switch command {
	case checkCmd.FullCommand():
		if err := runCheck(os.Stdout, build); err != nil {
			fmt.Fprintln(os.Stderr, err)
			_ = logger.Sync()
			os.Exit(1)
		}
	case sourcesCmd.FullCommand():
		if err := runSources(os.Stdout, build); err != nil {
			fmt.Fprintln(os.Stderr, err)
			_ = logger.Sync()
			os.Exit(1)
		}
	case serveCmd.FullCommand():
		cfg := defaults
		cfg.Port = *port
		cfg.RateLimitRPS = *rateLimitRPS
		cfg.RateLimitBurst = *rateLimitBurst
		cfg.ReloadsPerMinute = *reloadLimit
		cfg.EnableRequestLogging = *requestLogging
		cfg.ShutdownGracePeriod = *shutdownGrace

		app, err := application.New(cfg, build, logger)
		if err != nil {
			logger.Fatal("failed to initialize application", zap.Error(err))
		}

		if err := app.Start(); err != nil {
			logger.Fatal("failed to start server", zap.Error(err))
		}

		waitForSignals(app, app.Server(), cfg.ShutdownGracePeriod, logger)
	}
}

// newBuilder returns a registry builder that re-reads the .env file and the
// optional catalog on every call, so reloads see edits to either.
func newBuilder(envPath, sourcesFile string, logger *zap.Logger) snapshot.Builder {
	return func() (*config.Registry, error) {
		dotenv, err := config.DotEnv(envPath, logger)
		if err != nil {
			return nil, err
		}

		opts := []config.Option{
			config.WithLookup(config.Chain(config.Env(), dotenv)),
			config.WithLogger(logger),
		}
		if sourcesFile != "" {
			cat, err := config.LoadCatalog(sourcesFile)
			if err != nil {
				logger.Error("failed to load data source catalog",
					zap.String("severity", "critical"),
					zap.String("path", sourcesFile),
					zap.Error(err),
				)
				return nil, fmt.Errorf("load data source catalog: %w", err)
			}
			opts = append(opts, config.WithCatalog(cat))
		}

		return config.New(opts...)
	}
}

// debugRequested peeks at AODE_DEBUG before the registry exists so the logger
// can be built in the right mode.
func debugRequested(env config.Lookup, envPath string) bool {
	lookup := env
	if values, err := config.DotEnv(envPath, nil); err == nil {
		lookup = config.Chain(env, values)
	}
	raw, _ := lookup.Lookup(config.EnvDebug)
	return strings.EqualFold(strings.TrimSpace(raw), "true")
}

func runCheck(w io.Writer, build snapshot.Builder) error {
	reg, err := build()
	if err != nil {
		return err
	}

	s := reg.Settings()
	classes := make([]string, 0, len(reg.AssetClasses()))
	for _, ac := range reg.AssetClasses() {
		classes = append(classes, ac.String())
	}

	active := 0
	for _, src := range reg.Sources() {
		if src.Active() {
			active++
		}
	}

	fmt.Fprintf(w, "configuration OK: %s\n", s.SystemName)
	fmt.Fprintf(w, "  firebase project:  %s\n", s.FirebaseProjectID)
	fmt.Fprintf(w, "  polling interval:  %s\n", s.PollingInterval())
	fmt.Fprintf(w, "  retries:           %d (delay %s)\n", s.MaxRetries, s.RetryDelay())
	fmt.Fprintf(w, "  asset classes:     %s\n", strings.Join(classes, ", "))
	fmt.Fprintf(w, "  data sources:      %d (%d active)\n", len(reg.Sources()), active)
	return nil
}

func runSources(w io.Writer, build snapshot.Builder) error {
	reg, err := build()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tNAME\tBASE URL\tRATE/MIN\tACTIVE\tCREDENTIAL")
	for _, src := range reg.Sources() {
		credential := "missing"
		if reg.CredentialConfigured(src.Key()) {
			credential = "set"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\t%s (%s)\n",
			src.Key(), src.Name(), src.BaseURL(), src.RateLimitPerMinute(), src.Active(), credential, src.CredentialEnvVar())
	}
	return tw.Flush()
}

type reloader interface {
	Reload() error
}

// waitForSignals reloads the configuration on SIGHUP and shuts the server
// down gracefully on SIGINT or SIGTERM.
func waitForSignals(app reloader, server *http.Server, timeout time.Duration, logger *zap.Logger) {
	sigs := make(chan os.Signal, 1)
	signalNotify(sigs, os.Interrupt, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signalStop(sigs)

	for sig := range sigs {
		if sig == syscall.SIGHUP {
			logger.Info("reloading configuration")
			_ = app.Reload()
			continue
		}
		break
	}

	shutdown(server, timeout, logger)
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
