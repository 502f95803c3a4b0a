package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/getsentry/sentry-go"

	"notionsearch/internal/api"
	"notionsearch/internal/notion"
	"notionsearch/internal/observability"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "notionsearch:", err)
		os.Exit(1)
	}
}

func run() error {
	if err := loadDotEnv(".env"); err != nil {
		return err
	}

	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config file")
	addrFlag := flag.String("addr", "", "listen address (host:port); overrides ADDR and PORT")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *addrFlag != "" {
		cfg.Addr = *addrFlag
	}

	out, closeLog, err := observability.OpenOutput(cfg.Log)
	if err != nil {
		return fmt.Errorf("open log output: %w", err)
	}
	defer func() { _ = closeLog() }()
	cfg.Log.Output = out
	logger := observability.NewLogger(cfg.Log)

	sentryEnabled := false
	if cfg.Sentry.DSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Sentry.Environment,
			Release:          cfg.Version,
			TracesSampleRate: 1.0,
			AttachStacktrace: true,
		})
		if err != nil {
			logger.Warn("sentry initialization failed", "error", err)
		} else {
			logger.Info("sentry initialized",
				"environment", cfg.Sentry.Environment,
				"release", cfg.Version,
			)
			sentryEnabled = true
		}
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics)
		logger.Info("metrics enabled", "namespace", cfg.Metrics.Namespace, "version", cfg.Metrics.Version)
	} else {
		logger.Info("metrics disabled")
	}

	if cfg.RateLimit.Enabled() {
		logger.Info("rate limiting configured",
			"requests_per_second", cfg.RateLimit.RequestsPerSecond,
			"burst", cfg.RateLimit.Burst,
			"trusted_proxies", len(cfg.RateLimit.TrustedProxies.CIDRs),
		)
	} else {
		logger.Info("rate limiting disabled")
	}

	client := notion.NewClient(cfg.Notion, nil)
	if !client.Available() {
		logger.Warn("NOTION_TOKEN is not set; searches will be rejected upstream")
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	srv := api.NewServer(mux, client, logger, metrics, api.Options{
		DisplayLocation: loc,
		FrontendDSN:     cfg.Sentry.FrontendDSN,
	})
	srv.RegisterRoutes()

	// Order: metrics (outermost) -> requestID -> logging -> rate limit decisions -> rateLimiting
	handler := api.ApplyMiddlewares(
		mux,
		observability.MetricsMiddleware(metrics),
		api.RequestIDMiddleware(),
		api.LoggingMiddleware(logger),
		observability.RateLimitMetricsMiddleware(metrics, cfg.RateLimit.Enabled()),
		api.RateLimitMiddleware(cfg.RateLimit, logger),
	)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("notionsearch listening", "addr", cfg.Addr, "notion_endpoint", cfg.Notion.Endpoint)
		serverErrors <- server.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			serveErr = err
		}
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	}

	logger.Info("shutting down server", "timeout", "15s")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	} else {
		logger.Info("server stopped gracefully")
	}

	if sentryEnabled {
		logger.Info("flushing sentry events", "deadline", "2s")
		sentry.Flush(2 * time.Second)
	}

	logger.Info("shutdown complete")
	return serveErr
}
