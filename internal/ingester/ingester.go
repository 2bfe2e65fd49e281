// Package ingester mirrors saved candle files into ClickHouse.
// It consumes symbol.saved events from Kafka, reads back the rows each event
// covers and inserts them in batches.
package ingester

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/navid-fn/radar-history/internal/events"
	"github.com/navid-fn/radar-history/internal/models"
	"github.com/navid-fn/radar-history/internal/storage"
)

// Config holds ingester configuration parameters.
type Config struct {
	// BatchSize is the number of candles to accumulate before flushing to DB.
	BatchSize int

	// BatchTimeout is the maximum time to wait before flushing, even if batch isn't full.
	BatchTimeout time.Duration
}

// messageReader is the subset of *kafka.Reader the ingester uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Loader reads the candles a symbol.saved event refers to.
type Loader interface {
	Load(ctx context.Context, e events.Event) ([]models.Candle, error)
}

type batchKey struct {
	source   string
	interval string
}

// Ingester writes candles announced on Kafka to ClickHouse. Offsets are
// committed only after the rows are inserted.
type Ingester struct {
	reader  messageReader
	loader  Loader
	storage storage.CandleStorage
	logger  *logrus.Entry
	cfg     Config
}

func NewIngester(reader messageReader, loader Loader, storage storage.CandleStorage, logger logrus.FieldLogger, cfg Config) *Ingester {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5000
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 5 * time.Second
	}
	return &Ingester{
		reader:  reader,
		loader:  loader,
		storage: storage,
		logger:  logger.WithField("component", "ingester"),
		cfg:     cfg,
	}
}

// Start runs the ingestion loop. It blocks until ctx is cancelled and flushes
// what is buffered before returning.
func (ig *Ingester) Start(ctx context.Context) error {
	ig.logger.WithField("batch_size", ig.cfg.BatchSize).Info("Starting ingester loop")

	batch := make(map[batchKey][]models.Candle)
	pending := 0
	msgs := make([]kafka.Message, 0, 64)

	ticker := time.NewTicker(ig.cfg.BatchTimeout)
	defer ticker.Stop()

	flush := func(ctx context.Context) error {
		if len(msgs) == 0 {
			return nil
		}

		for key, candles := range batch {
			// Never drop data: retry until the DB accepts it.
			for {
				err := ig.storage.CreateCandles(ctx, key.source, key.interval, candles)
				if err == nil {
					break
				}
				ig.logger.WithError(err).Error("DB insert failed (retrying in 2s)")
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(2 * time.Second):
				}
			}
			delete(batch, key)
		}

		if err := ig.reader.CommitMessages(ctx, msgs...); err != nil {
			ig.logger.WithError(err).Warn("Failed to commit offsets")
		}
		ig.logger.WithFields(logrus.Fields{"messages": len(msgs), "candles": pending}).Debug("Batch flushed")

		pending = 0
		msgs = msgs[:0]
		ticker.Reset(ig.cfg.BatchTimeout)
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return flush(flushCtx)

		case <-ticker.C:
			if ctx.Err() != nil {
				continue
			}
			if err := flush(ctx); err != nil {
				return err
			}

		default:
			fetchCtx, cancel := context.WithTimeout(ctx, ig.cfg.BatchTimeout)
			m, err := ig.reader.FetchMessage(fetchCtx)
			cancel()

			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					continue
				}
				if errors.Is(err, context.Canceled) || ctx.Err() != nil {
					continue
				}
				ig.logger.WithError(err).Error("Kafka fetch error")
				time.Sleep(time.Second)
				continue
			}

			e, candles, err := ig.candlesOf(ctx, m)
			if err != nil {
				ig.logger.WithError(err).WithField("offset", m.Offset).Warn("Skipping message")
			}
			if len(candles) > 0 {
				key := batchKey{source: e.Exchange, interval: e.Interval}
				batch[key] = append(batch[key], candles...)
				pending += len(candles)
			}
			msgs = append(msgs, m)

			if pending >= ig.cfg.BatchSize {
				if err := flush(ctx); err != nil {
					return err
				}
			}
		}
	}
}

// candlesOf decodes m and loads the rows it announces. Events of other
// types yield no candles.
func (ig *Ingester) candlesOf(ctx context.Context, m kafka.Message) (events.Event, []models.Candle, error) {
	var e events.Event
	if err := json.Unmarshal(m.Value, &e); err != nil {
		return e, nil, fmt.Errorf("decode event: %w", err)
	}
	if e.Type != events.SymbolSaved || e.Rows == 0 {
		return e, nil, nil
	}
	if e.Exchange == "" || e.Interval == "" || e.Symbol == "" {
		return e, nil, fmt.Errorf("incomplete event: exchange=%q interval=%q symbol=%q", e.Exchange, e.Interval, e.Symbol)
	}

	all, err := ig.loader.Load(ctx, e)
	if err != nil {
		return e, nil, err
	}
	out := make([]models.Candle, 0, e.Rows)
	for _, c := range all {
		if c.Date.Before(e.From) || c.Date.After(e.To) {
			continue
		}
		out = append(out, c)
	}
	return e, out, nil
}

// BucketLoader reads candle files from the location each event names,
// keeping one open bucket per location and interval.
type BucketLoader struct {
	logger logrus.FieldLogger

	mu     sync.Mutex
	stores map[string]*storage.FileStore
}

func NewBucketLoader(logger logrus.FieldLogger) *BucketLoader {
	return &BucketLoader{logger: logger, stores: make(map[string]*storage.FileStore)}
}

func (l *BucketLoader) Load(ctx context.Context, e events.Event) ([]models.Candle, error) {
	if e.Location == "" {
		return nil, fmt.Errorf("event for %s has no location", e.Symbol)
	}
	store, err := l.store(ctx, e.Location, e.Interval)
	if err != nil {
		return nil, err
	}
	return store.Load(ctx, e.Symbol)
}

func (l *BucketLoader) store(ctx context.Context, location, interval string) (*storage.FileStore, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := location + "|" + interval
	if s, ok := l.stores[id]; ok {
		return s, nil
	}
	bucket, err := storage.OpenBucket(ctx, location, interval)
	if err != nil {
		return nil, err
	}
	s := storage.NewFileStore(bucket, l.logger)
	l.stores[id] = s
	return s, nil
}

// Close closes every bucket opened so far.
func (l *BucketLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for id, s := range l.stores {
		errs = append(errs, s.Close())
		delete(l.stores, id)
	}
	return errors.Join(errs...)
}
