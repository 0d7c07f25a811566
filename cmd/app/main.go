// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/app"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/config"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/api"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/api/apiv1"
	pg "github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/db/postgres"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/logging"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/metrics"
	red "github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/redis"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/sched"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/worker"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode: console logs, in-memory gateway without a stripe key")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Dependencies and use cases ----
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()
	go pg.ReportPoolStats(ctx, a.Pool, 15*time.Second)

	// ---- Background workers ----
	pool := worker.NewPool(cfg.Reconciler.Workers, logger)
	pool.Start(ctx)
	defer pool.Stop()

	reconciler := sched.NewPaymentReconciler(
		a.Confirm, a.Refund, a.Payments, a.Gateway,
		red.NewLocker(a.Redis), pool, cfg.Reconciler, logger,
	)
	go func() {
		if err := reconciler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("reconciler stopped")
		}
	}()
	expiry := sched.NewExpiryWorker(cfg.Reconciler.ExpiryInterval, a.Access, logger)
	go func() { _ = expiry.Run(ctx) }()

	// ---- HTTP ----
	v1 := apiv1.NewServer(apiv1.Deps{
		Intents:        a.Intents,
		Confirm:        a.Confirm,
		Retry:          a.Retry,
		Refund:         a.Refund,
		Invoices:       a.Invoices,
		Access:         a.Access,
		Users:          a.Profiles,
		Plans:          a.Plans,
		Webhooks:       a.Gateway,
		Auth:           apiv1.NewAuthenticator(cfg.Auth.JWTSecret),
		BundleDiscount: cfg.Payments.BundleDiscount,
		Limiter:        red.NewRateLimiter(a.Redis),
		RateLimit:      cfg.HTTP.RateLimit,
		RateWindow:     cfg.HTTP.RateWindow,
	}, logger)
	router := api.NewRouter(v1, cfg.HTTP.RequestTimeout, logger, map[string]api.HealthCheck{
		"postgres": a.Pool.Ping,
		"redis":    a.Redis.Ping,
	})
	srv := api.NewServer(cfg.HTTP, router, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	<-ctx.Done()
	logger.Info().Msg("shutdown requested")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
