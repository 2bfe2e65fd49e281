package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/navid-fn/radar-history/configs"
	"github.com/navid-fn/radar-history/internal/ingester"
	"github.com/navid-fn/radar-history/internal/storage"
)

func main() {
	appConfig, err := configs.AppLoad()
	if err != nil {
		configs.NewLogger("info").Fatalf("Failed to load config: %v", err)
	}
	logger := configs.NewLogger(appConfig.LogLevel)

	if appConfig.Kafka.Broker == "" || appConfig.ClickHouseDSN == "" {
		logger.Fatal("KAFKA_BROKER and CLICKHOUSE_DSN are required")
	}

	candleStorage, err := storage.NewClickHouseStorage(appConfig.ClickHouseDSN)
	if err != nil {
		logger.Fatalf("Failed to connect to DB: %v", err)
	}
	defer candleStorage.Close()

	kafkaReader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        []string{appConfig.Kafka.Broker},
		Topic:          appConfig.Kafka.Topic,
		GroupID:        appConfig.Kafka.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		CommitInterval: 0,    // Commits are made by the ingester after each insert.
	})
	defer kafkaReader.Close()

	loader := ingester.NewBucketLoader(logger)
	defer loader.Close()

	svc := ingester.NewIngester(
		kafkaReader,
		loader,
		candleStorage,
		logger,
		ingester.Config{
			BatchSize:    appConfig.Ingester.BatchSize,
			BatchTimeout: time.Duration(appConfig.Ingester.BatchTimeoutSeconds) * time.Second,
		},
	)

	// Run with Graceful Shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Ingester started successfully")

	if err := svc.Start(ctx); err != nil {
		logger.Errorf("Ingester stopped with error: %v", err)
		os.Exit(1)
	}

	logger.Info("Ingester shutdown complete")
}
