package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nordvolt/edi-hub/internal/cron"
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

const lockKeyFormat = "edihub:bundler:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "bundler"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "bundler"

	logg = logger.New(logger.Options{
		ServiceName: "bundler",
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
	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outboxRepo, logg)

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

	closeJob, err := cron.NewBundleCloseJob(cron.BundleCloseJobParams{
		Logger:  logg,
		Mailbox: mailboxService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create bundle close job", err)
		os.Exit(1)
	}
	purgeJob, err := cron.NewBundlePurgeJob(cron.BundlePurgeJobParams{
		Logger:    logg,
		Delivery:  deliveryService,
		Retention: cfg.Mailbox.PurgeRetention,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create bundle purge job", err)
		os.Exit(1)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
		Retention:  cfg.Outbox.Retention,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 5*time.Minute)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(closeJob, purgeJob, retentionJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Mailbox.SweepInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting bundler worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "bundler worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "bundler worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
