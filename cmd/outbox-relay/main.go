package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/wardline/mar/internal/config"
	"github.com/wardline/mar/internal/platform/db"
	"github.com/wardline/mar/internal/platform/metrics"
	"github.com/wardline/mar/internal/platform/outbox"
)

// Relay process for the transactional outbox. Runs separately from the API
// server so event publishing survives API restarts and can be scaled on its
// own.
func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "outbox-relay").Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Str("service", "outbox-relay").Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	publisherCfg := outbox.DefaultKafkaPublisherConfig()
	publisherCfg.Brokers = cfg.KafkaBrokers

	publisher, err := outbox.NewKafkaPublisher(publisherCfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create kafka publisher")
	}
	defer publisher.Close()
	logger.Info().Strs("brokers", cfg.KafkaBrokers).Msg("connected to kafka")

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	processorCfg := outbox.DefaultProcessorConfig()
	if cfg.OutboxBatchSize > 0 {
		processorCfg.BatchSize = cfg.OutboxBatchSize
	}
	if cfg.OutboxPollMS > 0 {
		processorCfg.PollInterval = time.Duration(cfg.OutboxPollMS) * time.Millisecond
	}
	if cfg.OutboxMaxRetries > 0 {
		processorCfg.MaxRetries = cfg.OutboxMaxRetries
	}

	processor := outbox.NewProcessor(pool, publisher, processorCfg, logger, m)
	processor.Start(ctx)
	logger.Info().
		Int("batch_size", processorCfg.BatchSize).
		Dur("poll_interval", processorCfg.PollInterval).
		Msg("outbox relay started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	processor.Stop()
	logger.Info().Msg("outbox relay stopped")
}
