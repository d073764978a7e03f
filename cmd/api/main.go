package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nordvolt/edi-hub/api/routes"
	"github.com/nordvolt/edi-hub/internal/delivery"
	"github.com/nordvolt/edi-hub/internal/documents"
	"github.com/nordvolt/edi-hub/internal/documents/catalog"
	"github.com/nordvolt/edi-hub/internal/mailbox"
	"github.com/nordvolt/edi-hub/pkg/config"
	"github.com/nordvolt/edi-hub/pkg/db"
	"github.com/nordvolt/edi-hub/pkg/logger"
	"github.com/nordvolt/edi-hub/pkg/metrics"
	"github.com/nordvolt/edi-hub/pkg/migrate"
	"github.com/nordvolt/edi-hub/pkg/outbox"
	"github.com/nordvolt/edi-hub/pkg/redis"
	"github.com/nordvolt/edi-hub/pkg/storage/gcs"
)

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

	store, err := gcs.NewClient(context.Background(), cfg.GCS, cfg.GCP, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap document store", err)
		os.Exit(1)
	}

	mailboxMetrics := metrics.NewMailboxMetrics(prometheus.DefaultRegisterer)
	mailboxRepo := mailbox.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	mailboxService, err := mailbox.NewService(dbClient, mailboxRepo, outboxService, cfg.Mailbox, mailboxMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create mailbox service", err)
		os.Exit(1)
	}

	deliveryService, err := delivery.NewService(
		dbClient,
		mailboxRepo,
		catalog.NewSelector(),
		documents.NewRecordParser(),
		store,
		redisClient,
		outboxService,
		cfg.Sender,
		cfg.Mailbox,
		mailboxMetrics,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create delivery service", err)
		os.Exit(1)
	}

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
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:   cfg,
			Logger:   logg,
			DB:       dbClient,
			Redis:    redisClient,
			Storage:  store,
			Mailbox:  mailboxService,
			Delivery: deliveryService,
			Metrics:  prometheus.DefaultGatherer,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
