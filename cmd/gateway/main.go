package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.logLevel, cfg.logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("gateway stopped", zap.Error(err))
		cancel()
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	a, err := newApp(ctx, cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("gateway listening",
		zap.String("addr", cfg.listenAddr),
		zap.String("store", cfg.storeBackend),
		zap.Int("accounts", a.ledger.Len()),
		zap.String("key_prefix", cfg.keyPrefix),
		zap.Int("initial_quota", cfg.initialQuota),
		zap.String("upstream", cfg.upstreamURL),
	)
	logger.Info("throttle",
		zap.Float64("issue_rps", cfg.issueRPS),
		zap.Int("issue_burst", cfg.issueBurst),
		zap.Bool("trust_xff", cfg.trustXFF),
		zap.Int("concurrency_max", cfg.concurrencyMax),
		zap.Duration("concurrency_timeout", cfg.concurrencyTimeout),
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("gateway stopped")
	return nil
}
