// Package storage persists collected candles: per-symbol CSV objects on a
// blob bucket, plus an optional ClickHouse mirror.
package storage

import (
	"context"
	"embed"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"

	"github.com/navid-fn/radar-history/internal/models"
)

// Migrations holds the ClickHouse goose migrations.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// CandleStorage mirrors candles into a database.
// Implementations must be safe for concurrent use.
type CandleStorage interface {
	// CreateCandles inserts a batch of candles of one exchange and interval.
	CreateCandles(ctx context.Context, source, interval string, candles []models.Candle) error

	// Close releases database connection resources.
	Close() error
}

// clickhouseStorage implements CandleStorage using native ClickHouse driver.
type clickhouseStorage struct {
	conn driver.Conn
}

// NewClickHouseStorage parses the DSN, opens a connection and pings it.
// Returns an error if connection cannot be established within 5 seconds.
func NewClickHouseStorage(dsn string) (CandleStorage, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	return &clickhouseStorage{conn: conn}, nil
}

// CreateCandles inserts candle rows using ClickHouse batch insert.
// ReplacingMergeTree on (source, symbol, interval, open_time) absorbs re-runs.
func (s *clickhouseStorage) CreateCandles(ctx context.Context, source, interval string, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO historical_candle (
			source, symbol, interval,
			open, high, low, close, volume,
			open_time, inserted_at
		)
	`)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, c := range candles {
		err := batch.Append(
			source,
			c.Symbol,
			interval,
			c.Open.InexactFloat64(),
			c.High.InexactFloat64(),
			c.Low.InexactFloat64(),
			c.Close.InexactFloat64(),
			c.Volume.InexactFloat64(),
			c.Date,
			now,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

// Close closes the ClickHouse connection.
func (s *clickhouseStorage) Close() error {
	return s.conn.Close()
}

// MirrorHook copies every saved batch into store. Mirror failures are left
// to the FileStore to log.
func MirrorHook(store CandleStorage, source, interval string) Hook {
	return func(ctx context.Context, saved SavedBatch) error {
		return store.CreateCandles(ctx, source, interval, saved.Candles)
	}
}

// LogHook logs every saved batch at debug level.
func LogHook(logger logrus.FieldLogger) Hook {
	return func(ctx context.Context, saved SavedBatch) error {
		logger.WithFields(logrus.Fields{"symbol": saved.Symbol, "key": saved.Key, "rows": len(saved.Candles)}).Debug("Candles saved")
		return nil
	}
}
