package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/navid-fn/radar-history/configs"
	"github.com/navid-fn/radar-history/internal/events"
	"github.com/navid-fn/radar-history/internal/models"
	"github.com/navid-fn/radar-history/internal/repository"
	"github.com/navid-fn/radar-history/internal/scheduler"
	"github.com/navid-fn/radar-history/internal/service"
	"github.com/navid-fn/radar-history/internal/storage"
	"github.com/navid-fn/radar-history/internal/taskmgr"
	"github.com/navid-fn/radar-history/server/internal/handler"
	"github.com/navid-fn/radar-history/server/internal/router"
)

func main() {
	cfg, err := configs.AppLoad()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	logger := configs.NewLogger(cfg.LogLevel)
	if logger.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.TaskDBPath), 0o755); err != nil {
		logger.Fatalf("Failed to create task db dir: %v", err)
	}
	db, err := repository.Open(cfg.TaskDBPath)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	logger.Info("Running database migrations...")
	if err := repository.Migrate(db, logger); err != nil {
		logger.Fatalf("%v", err)
	}

	tasks := taskmgr.New(repository.NewGormTaskRepository(db), logger)
	tasks.Load(ctx)

	opts := service.Options{
		SaveDir:     cfg.CryptoDir(),
		BaseContext: ctx,
	}
	if cfg.Kafka.Broker != "" {
		writer := events.NewWriter(cfg.Kafka.Broker, cfg.Kafka.Topic)
		defer writer.Close()
		opts.Publisher = events.NewSender(writer, logger)
		logger.WithField("topic", cfg.Kafka.Topic).Info("Publishing events to Kafka")
	}
	if cfg.ClickHouseDSN != "" {
		mirror, err := storage.NewClickHouseStorage(cfg.ClickHouseDSN)
		if err != nil {
			logger.WithError(err).Warn("ClickHouse unavailable, candle mirror disabled")
		} else {
			defer mirror.Close()
			opts.Mirror = mirror
		}
	}

	exchanges := service.NewExchangeFactory(service.ExchangeOptions{
		BinanceSpotURL:    cfg.Exchanges.BinanceSpotURL,
		BinanceFuturesURL: cfg.Exchanges.BinanceFuturesURL,
		OKXURL:            cfg.Exchanges.OKXURL,
		RequestsPerSecond: cfg.Exchanges.RequestsPerSecond,
	}, logger)
	downloadService := service.NewDownloadService(tasks, exchanges, opts, logger)

	defaults := models.DownloadParams{
		MaxWorkers:      cfg.Collector.MaxWorkers,
		MaxRounds:       cfg.Collector.MaxRounds,
		DelaySeconds:    cfg.Collector.DelaySeconds,
		CheckDataLength: models.IntRef(cfg.Collector.CheckDataLength),
		SaveDir:         cfg.CryptoDir(),
	}

	sched := scheduler.New(downloadService, logger)
	if cfg.Schedule.Cron != "" {
		params := models.DownloadParams{
			Exchange:   cfg.Schedule.Exchange,
			Intervals:  cfg.Schedule.Intervals,
			CandleType: cfg.Schedule.CandleType,
			Symbols:    cfg.Schedule.Symbols,
		}.WithDefaults(defaults)
		if err := sched.Register(cfg.Schedule.Cron, params); err != nil {
			logger.Fatalf("%v", err)
		}
	}
	sched.Start()

	taskHandler := handler.NewTaskHandler(downloadService, tasks, defaults)
	routerConfig := &router.Config{
		TaskHandler: taskHandler,
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router.NewRouter(routerConfig),
	}
	go func() {
		logger.Infof("API server starting on port %s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("API server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API server shutdown error: %v", err)
	}
	sched.Stop()
	downloadService.Wait()
	tasks.Close()

	logger.Info("Shutdown complete")
}
