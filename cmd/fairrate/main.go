package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fairrate/internal/bootstrap"
	"fairrate/internal/config"

	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = zapLogger.Sync() }()
	logger := zapr.NewLogger(zapLogger)

	rt, err := bootstrap.NewRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Error(err, "startup failed")
		_ = zapLogger.Sync()
		os.Exit(1)
	}
	defer rt.Cleanup()

	summary := cfg.Summary()
	logger.Info("startup config",
		"repository_mode", summary.RepositoryMode,
		"throttle", summary.ThrottleMode,
		"admin_auth", summary.AdminAuth,
		"ai_enabled", summary.AIEnabled,
		"ai_model", summary.AIModel,
		"audit_file", summary.AuditFile,
		"tls_enabled", summary.TLSEnabled,
		"trust_proxy", summary.TrustProxy,
		"frontend_url", summary.FrontendURL,
	)
	logger.Info("fairrate listening", "addr", cfg.Addr)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           rt.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if cfg.TLS.Enabled {
			serveErr <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serveErr <- server.ListenAndServe()
		}
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "http server failed")
			rt.Cleanup()
			_ = zapLogger.Sync()
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received, draining connections")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error(err, "graceful shutdown failed")
		}
	}
	logger.Info("fairrate stopped")
}
