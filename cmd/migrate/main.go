package main

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/ClickHouse/clickhouse-go/v2" // ClickHouse driver
	"github.com/pressly/goose/v3"

	"github.com/navid-fn/radar-history/configs"
	"github.com/navid-fn/radar-history/internal/repository"
	"github.com/navid-fn/radar-history/internal/storage"
)

func main() {
	cfg, err := configs.AppLoad()
	if err != nil {
		configs.NewLogger("info").Fatalf("Failed to load config: %v", err)
	}
	logger := configs.NewLogger(cfg.LogLevel)

	if err := os.MkdirAll(filepath.Dir(cfg.TaskDBPath), 0o755); err != nil {
		logger.Fatalf("Failed to create task db dir: %v", err)
	}
	taskDB, err := repository.Open(cfg.TaskDBPath)
	if err != nil {
		logger.Fatalf("Failed to open task database: %v", err)
	}
	logger.Info("Running task database migrations...")
	if err := repository.Migrate(taskDB, logger); err != nil {
		logger.Fatalf("%v", err)
	}

	if cfg.ClickHouseDSN == "" {
		logger.Info("CLICKHOUSE_DSN not set, skipping candle mirror migrations")
		logger.Info("Migrations completed successfully")
		return
	}

	// Connect using native ClickHouse driver
	db, err := sql.Open("clickhouse", cfg.ClickHouseDSN)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Verify connection
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	goose.SetBaseFS(storage.Migrations)
	if err := goose.SetDialect("clickhouse"); err != nil {
		logger.Fatalf("Goose: failed to set dialect: %v", err)
	}

	logger.Info("Running candle mirror migrations...")
	if err := goose.Up(db, "migrations"); err != nil {
		logger.Fatalf("Goose migration failed: %v", err)
	}

	logger.Info("Migrations completed successfully")
}
