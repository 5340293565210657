package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ecovivashop/ecoviva-backend/api/controllers"
	"github.com/ecovivashop/ecoviva-backend/api/routes"
	"github.com/ecovivashop/ecoviva-backend/internal/catalog"
	"github.com/ecovivashop/ecoviva-backend/internal/inventory"
	"github.com/ecovivashop/ecoviva-backend/internal/notifications"
	"github.com/ecovivashop/ecoviva-backend/internal/orders"
	"github.com/ecovivashop/ecoviva-backend/internal/payments"
	"github.com/ecovivashop/ecoviva-backend/pkg/config"
	"github.com/ecovivashop/ecoviva-backend/pkg/db"
	"github.com/ecovivashop/ecoviva-backend/pkg/logger"
	"github.com/ecovivashop/ecoviva-backend/pkg/metrics"
	"github.com/ecovivashop/ecoviva-backend/pkg/migrate"
	"github.com/ecovivashop/ecoviva-backend/pkg/outbox"
	"github.com/ecovivashop/ecoviva-backend/pkg/pubsub"
	"github.com/ecovivashop/ecoviva-backend/pkg/redis"
)

const shutdownGrace = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	readiness := map[string]controllers.Pinger{
		"db":    dbClient,
		"redis": redisClient,
	}

	// The notification topic is optional in dev so the API can run
	// without a Pub/Sub emulator.
	var notifier orders.Notifier = notifications.NewLogNotifier(logg)
	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		if cfg.App.IsProd() {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		logg.Warn(context.Background(), "pubsub unavailable, notifications fall back to logs")
	} else {
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		readiness["pubsub"] = pubsubClient
		pn, err := notifications.NewPubSubNotifier(pubsubClient.NotificationPublisher(), logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create notifier", err)
			os.Exit(1)
		}
		notifier = pn
	}

	registry := prometheus.NewRegistry()
	storeMetrics := metrics.NewStoreMetrics(registry)

	gormDB := dbClient.DB()
	catalogRepo := catalog.NewRepository(gormDB)
	catalogService, err := catalog.NewService(catalogRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	outboxService := outbox.NewService(outbox.NewRepository(gormDB), logg)

	inventoryRepo := inventory.NewRepository(gormDB)
	inventoryService, err := inventory.NewService(inventoryRepo, dbClient, logg, storeMetrics, outboxService)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	provisioner, err := catalog.NewProvisioner(catalogRepo, inventoryRepo, dbClient, logg, cfg.Inventory)
	if err != nil {
		logg.Error(context.Background(), "failed to create product provisioner", err)
		os.Exit(1)
	}

	compensation, err := orders.NewCompensation(redisClient, inventoryService, logg, storeMetrics, cfg.Compensation)
	if err != nil {
		logg.Error(context.Background(), "failed to create compensation queue", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(
		orders.NewRepository(gormDB),
		catalogRepo,
		inventoryService,
		dbClient,
		outboxService,
		notifier,
		compensation,
		logg,
		storeMetrics,
		cfg.Orders,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	paymentsService, err := payments.NewService(
		payments.NewRepository(gormDB),
		dbClient,
		outboxService,
		logg,
		storeMetrics,
		cfg.Gateway,
		payments.Options{},
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	router := routes.NewRouter(
		cfg,
		logg,
		readiness,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		catalogService,
		provisioner,
		inventoryService,
		ordersService,
		paymentsService,
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-stopCtx.Done():
		logg.Info(ctx, "shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}
