package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/navid-fn/radar-history/internal/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func candlesFrom(symbol string, start time.Time, step time.Duration, n int) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = models.Candle{
			Symbol: symbol,
			Date:   start.Add(time.Duration(i) * step),
			Open:   decimal.RequireFromString("1.5"),
			High:   decimal.RequireFromString("2"),
			Low:    decimal.RequireFromString("1"),
			Close:  decimal.RequireFromString("1.75"),
			Volume: decimal.NewFromInt(int64(100 + i)),
		}
	}
	return out
}

func newMemStore(t *testing.T, opts ...Option) *FileStore {
	t.Helper()
	bucket, err := OpenBucket(context.Background(), "mem://", "")
	if err != nil {
		t.Fatalf("OpenBucket: %v", err)
	}
	s := NewFileStore(bucket, quietLogger(), opts...)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFileStoreAppends(t *testing.T) {
	ctx := context.Background()
	s := newMemStore(t)
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := s.Save(ctx, "BTCUSDT", candlesFrom("BTCUSDT", day, 24*time.Hour, 3)); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := s.Save(ctx, "BTCUSDT", candlesFrom("BTCUSDT", day.AddDate(0, 0, 3), 24*time.Hour, 2)); err != nil {
		t.Fatalf("second save: %v", err)
	}

	data, err := s.bucket.ReadAll(ctx, "BTCUSDT.csv")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 6 {
		t.Fatalf("Expected header + 5 rows, got %d lines:\n%s", len(lines), data)
	}
	if lines[0] != "date,open,high,low,close,volume,symbol" {
		t.Errorf("Unexpected header %q", lines[0])
	}
	if lines[1] != "2024-01-01,1.5,2,1,1.75,100,BTCUSDT" {
		t.Errorf("Unexpected first row %q", lines[1])
	}
	if strings.Count(string(data), "date,open") != 1 {
		t.Error("Expected the header only once")
	}

	rows, err := s.Load(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(rows) != 5 || !rows[4].Date.Equal(day.AddDate(0, 0, 4)) {
		t.Errorf("Unexpected loaded rows %+v", rows)
	}
}

func TestFileStoreIntradayFormat(t *testing.T) {
	ctx := context.Background()
	s := newMemStore(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := s.Save(ctx, "ETHUSDT", candlesFrom("ETHUSDT", start, time.Minute, 2)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	rows, err := s.Load(ctx, "ETHUSDT")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(rows) != 2 || !rows[1].Date.Equal(start.Add(time.Minute)) {
		t.Errorf("Unexpected rows %+v", rows)
	}
}

func TestFileStoreHooks(t *testing.T) {
	ctx := context.Background()
	var got []SavedBatch
	s := newMemStore(t,
		WithHook(func(ctx context.Context, saved SavedBatch) error {
			got = append(got, saved)
			return nil
		}),
		WithHook(func(ctx context.Context, saved SavedBatch) error {
			return errors.New("mirror down")
		}),
	)

	err := s.Save(ctx, "BTCUSDT", candlesFrom("BTCUSDT", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Hour, 4))
	if err != nil {
		t.Fatalf("Expected hook failures to be swallowed, got %v", err)
	}
	if len(got) != 1 || got[0].Key != "BTCUSDT.csv" || len(got[0].Candles) != 4 {
		t.Errorf("Unexpected hook calls %+v", got)
	}
}

func TestFileStoreSkipsEmpty(t *testing.T) {
	s := newMemStore(t)
	if err := s.Save(context.Background(), "BTCUSDT", nil); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ok, _ := s.bucket.Exists(context.Background(), "BTCUSDT.csv"); ok {
		t.Error("Expected no object for an empty save")
	}
}

func TestOpenBucketLocalDir(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	bucket, err := OpenBucket(ctx, root, "1d")
	if err != nil {
		t.Fatalf("OpenBucket: %v", err)
	}
	s := NewFileStore(bucket, quietLogger())
	defer s.Close()

	if err := s.Save(ctx, "BTCUSDT", candlesFrom("BTCUSDT", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 24*time.Hour, 1)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "1d", "BTCUSDT.csv")); err != nil {
		t.Errorf("Expected file on disk: %v", err)
	}
}
