// Package configs provides application configuration loaded from an optional
// YAML file and environment variables. Environment variables win.
package configs

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// AppConfig holds all application configuration.
// Load it once at startup using AppLoad().
type AppConfig struct {
	// ServerPort is the HTTP API port.
	ServerPort string `yaml:"server_port"`

	// LogLevel is a logrus level name ("debug", "info", ...).
	LogLevel string `yaml:"log_level"`

	// DataDir is the root of downloaded files. Crypto candles go to
	// DataDir/crypto/<interval>/<SYMBOL>.csv unless a request overrides it.
	DataDir string `yaml:"data_dir"`

	// TaskDBPath is the SQLite file that keeps tasks across restarts.
	TaskDBPath string `yaml:"task_db_path"`

	// ClickHouseDSN enables the candle mirror when set.
	ClickHouseDSN string `yaml:"clickhouse_dsn"`

	Collector CollectorConfig `yaml:"collector"`
	Exchanges ExchangesConfig `yaml:"exchanges"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Ingester  IngesterConfig  `yaml:"ingester"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
}

// CollectorConfig holds defaults applied when a request leaves a field unset.
type CollectorConfig struct {
	MaxWorkers      int     `yaml:"max_workers"`
	MaxRounds       int     `yaml:"max_collector_count"`
	DelaySeconds    float64 `yaml:"delay"`
	CheckDataLength int     `yaml:"check_data_length"`
}

// ExchangesConfig overrides exchange endpoints, mostly for testing against
// mirrors.
type ExchangesConfig struct {
	BinanceSpotURL    string  `yaml:"binance_spot_url"`
	BinanceFuturesURL string  `yaml:"binance_futures_url"`
	OKXURL            string  `yaml:"okx_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// KafkaConfig holds Kafka connection settings. An empty Broker disables
// event publishing.
type KafkaConfig struct {
	// Broker is the Kafka broker address (e.g., "localhost:9092").
	Broker string `yaml:"broker"`

	// Topic receives symbol and task events.
	Topic string `yaml:"topic"`

	// GroupID is the consumer group of the ClickHouse ingester.
	GroupID string `yaml:"group_id"`
}

// IngesterConfig holds ClickHouse ingester batching settings.
type IngesterConfig struct {
	// BatchSize is the number of candles to accumulate before writing to DB.
	BatchSize int `yaml:"batch_size"`

	// BatchTimeoutSeconds is the max time (in seconds) to wait before flushing a partial batch.
	BatchTimeoutSeconds int `yaml:"batch_timeout_seconds"`
}

// ScheduleConfig describes a recurring download. An empty Cron disables it.
type ScheduleConfig struct {
	// Cron is a 6-field spec with seconds (e.g. "0 30 1 * * *").
	Cron       string   `yaml:"cron"`
	Exchange   string   `yaml:"exchange"`
	Intervals  []string `yaml:"intervals"`
	CandleType string   `yaml:"candle_type"`
	Symbols    []string `yaml:"symbols"`
}

// AppLoad loads configuration. It attempts to load a .env file first (for
// local development), then the YAML file named by CONFIG_PATH if any, then
// environment overrides.
func AppLoad() (*AppConfig, error) {
	_ = godotenv.Load() // Ignore error - .env is optional

	cfg := defaults()
	if path := getEnv("CONFIG_PATH", ""); path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func defaults() *AppConfig {
	return &AppConfig{
		ServerPort: "8080",
		LogLevel:   "info",
		DataDir:    "data",
		TaskDBPath: "data/tasks.db",
		Collector: CollectorConfig{
			MaxWorkers: 4,
			MaxRounds:  2,
		},
		Exchanges: ExchangesConfig{
			RequestsPerSecond: 10,
		},
		Kafka: KafkaConfig{
			Topic:   "radar_history_events",
			GroupID: "radar_history_ingester",
		},
		Ingester: IngesterConfig{
			BatchSize:           5000,
			BatchTimeoutSeconds: 5,
		},
		Schedule: ScheduleConfig{
			Exchange:  "binance",
			Intervals: []string{"1d"},
		},
	}
}

func loadYAML(path string, cfg *AppConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *AppConfig) {
	cfg.ServerPort = getEnv("SERVER_PORT", cfg.ServerPort)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)
	cfg.TaskDBPath = getEnv("TASK_DB_PATH", cfg.TaskDBPath)
	cfg.ClickHouseDSN = getEnv("CLICKHOUSE_DSN", cfg.ClickHouseDSN)

	cfg.Collector.MaxWorkers = getEnvInt("COLLECTOR_MAX_WORKERS", cfg.Collector.MaxWorkers)
	cfg.Collector.MaxRounds = getEnvInt("COLLECTOR_MAX_ROUNDS", cfg.Collector.MaxRounds)
	cfg.Collector.DelaySeconds = getEnvFloat("COLLECTOR_DELAY", cfg.Collector.DelaySeconds)
	cfg.Collector.CheckDataLength = getEnvInt("COLLECTOR_CHECK_DATA_LENGTH", cfg.Collector.CheckDataLength)

	cfg.Exchanges.BinanceSpotURL = getEnv("BINANCE_SPOT_URL", cfg.Exchanges.BinanceSpotURL)
	cfg.Exchanges.BinanceFuturesURL = getEnv("BINANCE_FUTURES_URL", cfg.Exchanges.BinanceFuturesURL)
	cfg.Exchanges.OKXURL = getEnv("OKX_URL", cfg.Exchanges.OKXURL)
	cfg.Exchanges.RequestsPerSecond = getEnvFloat("EXCHANGE_RPS", cfg.Exchanges.RequestsPerSecond)

	cfg.Kafka.Broker = getEnv("KAFKA_BROKER", cfg.Kafka.Broker)
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", cfg.Kafka.Topic)
	cfg.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", cfg.Kafka.GroupID)

	cfg.Ingester.BatchSize = getEnvInt("INGESTER_BATCH_SIZE", cfg.Ingester.BatchSize)
	cfg.Ingester.BatchTimeoutSeconds = getEnvInt("INGESTER_BATCH_TIMEOUT_SECONDS", cfg.Ingester.BatchTimeoutSeconds)

	cfg.Schedule.Cron = getEnv("SCHEDULE_CRON", cfg.Schedule.Cron)
	cfg.Schedule.Exchange = getEnv("SCHEDULE_EXCHANGE", cfg.Schedule.Exchange)
	cfg.Schedule.Intervals = getEnvList("SCHEDULE_INTERVALS", cfg.Schedule.Intervals)
	cfg.Schedule.CandleType = getEnv("SCHEDULE_CANDLE_TYPE", cfg.Schedule.CandleType)
	cfg.Schedule.Symbols = getEnvList("SCHEDULE_SYMBOLS", cfg.Schedule.Symbols)
}

// CryptoDir is the default save directory of crypto downloads.
func (c *AppConfig) CryptoDir() string {
	if strings.Contains(c.DataDir, "://") {
		return strings.TrimRight(c.DataDir, "/") + "/crypto"
	}
	return filepath.Join(c.DataDir, "crypto")
}

// NewLogger builds the process logger.
func NewLogger(level string) *logrus.Logger {
	logger := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return logger
}

// getEnv returns the environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvList splits a comma-separated variable.
func getEnvList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
