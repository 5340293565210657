package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ecovivashop/ecoviva-backend/internal/inventory"
	"github.com/ecovivashop/ecoviva-backend/internal/orders"
	"github.com/ecovivashop/ecoviva-backend/pkg/config"
	"github.com/ecovivashop/ecoviva-backend/pkg/db"
	"github.com/ecovivashop/ecoviva-backend/pkg/logger"
	"github.com/ecovivashop/ecoviva-backend/pkg/metrics"
	"github.com/ecovivashop/ecoviva-backend/pkg/migrate"
	"github.com/ecovivashop/ecoviva-backend/pkg/redis"
)

// The worker drains the stock restoration queue left behind by
// cancellations whose inventory writes failed.
func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	storeMetrics := metrics.NewStoreMetrics(prometheus.DefaultRegisterer)

	inventoryService, err := inventory.NewService(inventory.NewRepository(dbClient.DB()), dbClient, logg, storeMetrics, nil)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	compensation, err := orders.NewCompensation(redisClient, inventoryService, logg, storeMetrics, cfg.Compensation)
	if err != nil {
		logg.Error(context.Background(), "failed to create compensation queue", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":           cfg.App.Env,
		"serviceKind":   cfg.Service.Kind,
		"poll_interval": cfg.Compensation.PollInterval.String(),
	})
	logg.Info(ctx, "starting compensation worker")

	ticker := time.NewTicker(cfg.Compensation.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logg.Info(ctx, "compensation worker shutting down gracefully")
			return
		case <-ticker.C:
			report, err := compensation.DrainOnce(ctx)
			if err != nil {
				logg.Error(ctx, "compensation drain failed", err)
				continue
			}
			if report.Restored > 0 || report.Requeued > 0 || report.Dropped > 0 {
				passCtx := logg.WithFields(ctx, map[string]any{
					"restored": report.Restored,
					"requeued": report.Requeued,
					"dropped":  report.Dropped,
				})
				logg.Info(passCtx, "compensation pass complete")
			}
		}
	}
}
