package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/chungtau/ledger-bank/internal/audit"
	"github.com/chungtau/ledger-bank/internal/audit/dlq"
	"github.com/chungtau/ledger-bank/internal/audit/elasticsearch"
	"github.com/chungtau/ledger-bank/internal/config"
	"github.com/chungtau/ledger-bank/internal/logger"
)

func main() {
	cfg := config.LoadAudit()

	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	zl.Info("starting audit service",
		zap.String("broker", cfg.KafkaBroker),
		zap.String("topic", cfg.KafkaTopic),
		zap.String("group", cfg.GroupID),
	)

	producer := dlq.NewProducer([]string{cfg.KafkaBroker}, cfg.DLQTopic, zl)
	defer func() {
		if err := producer.Close(); err != nil {
			zl.Error("failed to close dlq producer", zap.Error(err))
		}
	}()

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		URL:         cfg.ESURL,
		Index:       cfg.ESIndex,
		SourceTopic: cfg.KafkaTopic,
		DeadLetter:  producer,
	}, zl)
	if err != nil {
		zl.Fatal("failed to initialize elasticsearch", zap.Error(err))
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.KafkaBroker},
		Topic:    cfg.KafkaTopic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	audit.NewProcessor(es, producer, zl).Run(ctx, r)

	zl.Info("shutting down audit service")
	if err := r.Close(); err != nil {
		zl.Error("failed to close reader", zap.Error(err))
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := es.Close(flushCtx); err != nil {
		zl.Error("failed to flush indexer", zap.Error(err))
	}
	zl.Info("audit service stopped")
}
