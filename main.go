package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"kore-service/internal/collection"
	"kore-service/internal/config"
	"kore-service/internal/db"
	"kore-service/internal/lock"
	"kore-service/internal/logging"
	"kore-service/internal/metrics"
	"kore-service/internal/provider"
	"kore-service/internal/server"
	"kore-service/internal/status"
	"kore-service/internal/task"
	"kore-service/internal/webhook"
)

func main() {
	cfg := config.MustLoadConfig("config")

	logger := logging.GetLogger(cfg.Logs)
	metrics.Setup(cfg.Metrics)

	connStr := db.ConnStr(cfg.Database)
	if err := db.RunMigrations(connStr, "migrations"); err != nil {
		log.Fatal(err)
	}

	dbpool, err := db.GetPool(connStr)
	if err != nil {
		log.Fatal(err)
	}
	defer dbpool.Close()

	eventRepo := db.NewWebhookEventRepository(dbpool)
	collectionRepo := db.NewCollectionRepository(dbpool)

	normalizer := status.NewNormalizerWithOverrides(cfg.Webhook.StatusMapOverrides)
	providerClient := provider.NewClient(cfg.Provider, logger)
	collections := collection.NewService(collectionRepo, normalizer, providerClient, logger)

	locks := lock.NewManager(
		lockBackend(cfg, logger),
		lock.WithTTL(time.Duration(cfg.Webhook.LockTTLSeconds)*time.Second),
		lock.WithMaxWait(time.Duration(cfg.Webhook.LockWaitSeconds)*time.Second),
	)

	webhooks := webhook.NewService(eventRepo, collections, locks, normalizer, cfg.Provider.WebhookSecret, logger)

	if cfg.Kafka.Broker.URL != "" {
		writer := task.NewWriter(cfg.Kafka)
		defer writer.Close()
		webhooks.SetScheduler(task.NewKafkaScheduler(writer, logger))

		reader := task.NewReader(cfg.Kafka)
		defer reader.Close()
		task.ReadWebhookEvents(reader, webhooks, logger)
	} else {
		logger.Info("No Kafka broker configured, processing webhooks inline")
		webhooks.SetScheduler(task.NewInlineScheduler(webhooks, logger))
	}

	mux := http.NewServeMux()
	handler := server.NewHandler(webhooks, collections, logger)
	handler.Register(mux)

	logger.Info("Starting server", "port", cfg.Server.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Server.Port, mux))
}

// lockBackend picks the strongest available lock backend. Without Redis the
// no-op fallback is used; the transition engine keeps concurrent processing
// safe, the lock only reduces contention.
func lockBackend(cfg *config.Config, logger *slog.Logger) lock.Backend {
	if cfg.Redis.URL == "" {
		logger.Info("No Redis configured, using no-op lock backend")
		return lock.NewNoopBackend()
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Invalid Redis URL: %v", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("Redis unreachable, using no-op lock backend", "error", err)
		return lock.NewNoopBackend()
	}

	return lock.NewRedisBackend(client)
}
