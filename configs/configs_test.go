package configs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestAppLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("SERVER_PORT", "9090")

	cfg, err := AppLoad()
	if err != nil {
		t.Fatalf("AppLoad: %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("Expected ServerPort '9090', got '%s'", cfg.ServerPort)
	}
	if cfg.Collector.MaxRounds != 2 {
		t.Errorf("Expected default MaxRounds 2, got %d", cfg.Collector.MaxRounds)
	}
	if cfg.Kafka.Topic == "" {
		t.Error("Expected Kafka topic to have default value")
	}
	if cfg.Ingester.BatchSize <= 0 {
		t.Error("Expected ingester batch size to be positive")
	}
}

func TestAppLoadYAMLWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
data_dir: /srv/history
collector:
  max_workers: 8
  check_data_length: 30
schedule:
  cron: "0 0 2 * * *"
  exchange: okx
  intervals: ["1d", "1h"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("COLLECTOR_MAX_WORKERS", "2")
	t.Setenv("SCHEDULE_SYMBOLS", "BTC-USDT, ETH-USDT")

	cfg, err := AppLoad()
	if err != nil {
		t.Fatalf("AppLoad: %v", err)
	}
	if cfg.DataDir != "/srv/history" {
		t.Errorf("Expected DataDir from file, got %s", cfg.DataDir)
	}
	if cfg.Collector.MaxWorkers != 2 {
		t.Errorf("Expected env to override MaxWorkers, got %d", cfg.Collector.MaxWorkers)
	}
	if cfg.Collector.CheckDataLength != 30 {
		t.Errorf("Expected CheckDataLength 30, got %d", cfg.Collector.CheckDataLength)
	}
	if cfg.Schedule.Exchange != "okx" || len(cfg.Schedule.Intervals) != 2 {
		t.Errorf("Unexpected schedule %+v", cfg.Schedule)
	}
	if len(cfg.Schedule.Symbols) != 2 || cfg.Schedule.Symbols[1] != "ETH-USDT" {
		t.Errorf("Unexpected symbols %v", cfg.Schedule.Symbols)
	}
	if got := cfg.CryptoDir(); got != filepath.Join("/srv/history", "crypto") {
		t.Errorf("Unexpected crypto dir %s", got)
	}
}

func TestAppLoadMissingFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := AppLoad(); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestNewLogger(t *testing.T) {
	if got := NewLogger("debug").GetLevel(); got != logrus.DebugLevel {
		t.Errorf("Expected debug level, got %s", got)
	}
	if got := NewLogger("nonsense").GetLevel(); got != logrus.InfoLevel {
		t.Errorf("Expected fallback to info, got %s", got)
	}
}
