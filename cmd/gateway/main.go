package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admission-gateway/internal/app"
	"admission-gateway/internal/config"
	"admission-gateway/internal/httperr"
	"admission-gateway/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, os.Stdout)
	slog.SetDefault(logger)

	if cfg.UpstreamURL == "" {
		logger.Error("UPSTREAM_URL is required")
		os.Exit(1)
	}
	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		logger.Error("invalid UPSTREAM_URL", "url", cfg.UpstreamURL, "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		os.Exit(1)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logging.FromContext(r.Context()).Warn("proxy error", "err", err)
		httperr.Write(w, http.StatusBadGateway, httperr.Body{Error: "Bad gateway"})
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           a.Pipeline.Handler(proxy),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	logger.Info("gateway listening", "addr", cfg.ListenAddr, "upstream", target.String())
	logger.Info("admission",
		"rate_enabled", cfg.Rate.Enabled,
		"failure_policy", string(cfg.Rate.FailurePolicy),
		"store_timeout", cfg.Rate.StoreTimeout,
		"scan_enabled", cfg.Scan.Enabled,
		"trust_forwarded", cfg.Rate.TrustForwarded,
		"concurrency_max", cfg.Concurrency.Max,
		"stats_enabled", cfg.Stats.Enabled,
		"events_db", cfg.Events.DatabaseURL != "",
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "err", err)
	}
	if err := a.Close(shutdownCtx); err != nil {
		logger.Warn("close resources", "err", err)
	}
}
