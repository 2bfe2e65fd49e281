package ingester

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/navid-fn/radar-history/internal/events"
	"github.com/navid-fn/radar-history/internal/models"
	"github.com/navid-fn/radar-history/internal/storage"
)

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type memLoader map[string][]models.Candle

func (l memLoader) Load(ctx context.Context, e events.Event) ([]models.Candle, error) {
	c, ok := l[e.Symbol]
	if !ok {
		return nil, errors.New("no such file")
	}
	return c, nil
}

type memCandles struct {
	mu       sync.Mutex
	fails    int
	inserted map[string]int
}

func (m *memCandles) CreateCandles(ctx context.Context, source, interval string, candles []models.Candle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fails > 0 {
		m.fails--
		return errors.New("clickhouse down")
	}
	if m.inserted == nil {
		m.inserted = make(map[string]int)
	}
	m.inserted[source+"/"+interval] += len(candles)
	return nil
}

func (m *memCandles) Close() error { return nil }

func (m *memCandles) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, v := range m.inserted {
		n += v
	}
	return n
}

var _ storage.CandleStorage = (*memCandles)(nil)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func days(symbol string, n int) []models.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = models.Candle{Symbol: symbol, Date: start.AddDate(0, 0, i), Close: decimal.NewFromInt(int64(i + 1))}
	}
	return out
}

func message(t *testing.T, e events.Event) kafka.Message {
	t.Helper()
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	return kafka.Message{Key: []byte(e.Symbol), Value: data}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestIngesterMirrorsAnnouncedRows(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	loader := memLoader{
		"BTCUSDT": days("BTCUSDT", 10),
		"ETHUSDT": days("ETHUSDT", 3),
	}
	reader := &fakeReader{queue: []kafka.Message{
		// only the last 4 rows of BTCUSDT were appended by this save
		message(t, events.Event{Type: events.SymbolSaved, Exchange: "binance", Interval: "1d", Symbol: "BTCUSDT", Rows: 4, From: start.AddDate(0, 0, 6), To: start.AddDate(0, 0, 9)}),
		message(t, events.Event{Type: events.SymbolSaved, Exchange: "okx", Interval: "1d", Symbol: "ETHUSDT", Rows: 3, From: start, To: start.AddDate(0, 0, 2)}),
		message(t, events.Event{Type: events.TaskCompleted, TaskID: "t1"}),
		{Value: []byte("not json")},
	}}
	db := &memCandles{fails: 1}

	ig := NewIngester(reader, loader, db, quietLogger(), Config{BatchSize: 1000, BatchTimeout: 20 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ig.Start(ctx) }()

	waitFor(t, func() bool { return reader.commits() == 4 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start returned %v", err)
	}

	if got := db.inserted["binance/1d"]; got != 4 {
		t.Errorf("Expected 4 binance rows, got %d", got)
	}
	if got := db.inserted["okx/1d"]; got != 3 {
		t.Errorf("Expected 3 okx rows, got %d", got)
	}
}

func TestIngesterFlushesOnBatchSize(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	reader := &fakeReader{queue: []kafka.Message{
		message(t, events.Event{Type: events.SymbolSaved, Exchange: "binance", Interval: "1d", Symbol: "BTCUSDT", Rows: 5, From: start, To: start.AddDate(0, 0, 4)}),
	}}
	db := &memCandles{}

	ig := NewIngester(reader, memLoader{"BTCUSDT": days("BTCUSDT", 5)}, db, quietLogger(), Config{BatchSize: 5, BatchTimeout: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ig.Start(ctx) }()

	waitFor(t, func() bool { return db.total() == 5 })
	if reader.commits() != 1 {
		t.Errorf("Expected 1 committed message, got %d", reader.commits())
	}
}

func TestIngesterSkipsUnreadableFiles(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		message(t, events.Event{Type: events.SymbolSaved, Exchange: "binance", Interval: "1d", Symbol: "GONE", Rows: 2}),
	}}
	db := &memCandles{}

	ig := NewIngester(reader, memLoader{}, db, quietLogger(), Config{BatchSize: 10, BatchTimeout: 20 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ig.Start(ctx) }()

	waitFor(t, func() bool { return reader.commits() == 1 })
	cancel()
	<-done

	if db.total() != 0 {
		t.Errorf("Expected no inserts, got %d", db.total())
	}
}

func TestBucketLoader(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	bucket, err := storage.OpenBucket(ctx, dir, "1d")
	if err != nil {
		t.Fatal(err)
	}
	files := storage.NewFileStore(bucket, quietLogger())
	if err := files.Save(ctx, "BTCUSDT", days("BTCUSDT", 3)); err != nil {
		t.Fatal(err)
	}
	files.Close()

	loader := NewBucketLoader(quietLogger())
	defer loader.Close()

	got, err := loader.Load(ctx, events.Event{Symbol: "BTCUSDT", Interval: "1d", Location: dir})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("Expected 3 candles, got %d", len(got))
	}

	if _, err := loader.Load(ctx, events.Event{Symbol: "BTCUSDT", Interval: "1d"}); err == nil {
		t.Error("Expected error for event without location")
	}
}
