package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"

	"github.com/navid-fn/radar-history/internal/models"
)

const (
	dateLayout     = "2006-01-02"
	datetimeLayout = "2006-01-02 15:04:05"
)

// SavedBatch describes one successful FileStore write.
type SavedBatch struct {
	Symbol  string
	Key     string
	Candles []models.Candle
}

// Hook runs after a successful write. Its error is logged, never returned.
type Hook func(ctx context.Context, saved SavedBatch) error

type Option func(*FileStore)

// WithHook registers a post-write hook.
func WithHook(h Hook) Option {
	return func(s *FileStore) {
		s.hooks = append(s.hooks, h)
	}
}

// OpenBucket opens location, either a local directory or a gocloud bucket
// URL ("file:///data", "mem://"), scoped to prefix.
// Local directories are created when missing.
func OpenBucket(ctx context.Context, location, prefix string) (*blob.Bucket, error) {
	prefix = strings.Trim(prefix, "/")

	if !strings.Contains(location, "://") {
		dir, err := filepath.Abs(filepath.Join(location, prefix))
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
		return blob.OpenBucket(ctx, "file://"+filepath.ToSlash(dir))
	}

	if prefix != "" {
		u, err := url.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("parse bucket url: %w", err)
		}
		q := u.Query()
		q.Set("prefix", strings.Trim(q.Get("prefix")+"/"+prefix, "/")+"/")
		u.RawQuery = q.Encode()
		location = u.String()
	}
	return blob.OpenBucket(ctx, location)
}

// FileStore appends candles to one "<SYMBOL>.csv" object per symbol.
// The header is written when the object is created; later saves append
// rows after the existing content.
type FileStore struct {
	bucket *blob.Bucket
	logger *logrus.Entry
	hooks  []Hook

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewFileStore(bucket *blob.Bucket, logger logrus.FieldLogger, opts ...Option) *FileStore {
	s := &FileStore{
		bucket: bucket,
		logger: logger.WithField("component", "filestore"),
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the object key of symbol.
func Key(symbol string) string {
	return symbol + ".csv"
}

func (s *FileStore) lock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// Save appends candles to the object of symbol.
func (s *FileStore) Save(ctx context.Context, symbol string, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	key := Key(symbol)

	l := s.lock(key)
	l.Lock()
	defer l.Unlock()

	existing, err := s.bucket.ReadAll(ctx, key)
	if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return fmt.Errorf("read %s: %w", key, err)
	}

	var buf bytes.Buffer
	buf.Write(existing)
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		buf.WriteByte('\n')
	}
	if err := writeRows(&buf, symbol, candles, len(existing) == 0); err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	if err := s.bucket.WriteAll(ctx, key, buf.Bytes(), &blob.WriterOptions{ContentType: "text/csv"}); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}

	saved := SavedBatch{Symbol: symbol, Key: key, Candles: candles}
	for _, h := range s.hooks {
		if err := h(ctx, saved); err != nil {
			s.logger.WithFields(logrus.Fields{"symbol": symbol, "key": key}).WithError(err).Warn("Post-save hook failed")
		}
	}
	return nil
}

// Load reads every row stored for symbol, in file order.
func (s *FileStore) Load(ctx context.Context, symbol string) ([]models.Candle, error) {
	key := Key(symbol)
	data, err := s.bucket.ReadAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return readRows(bytes.NewReader(data))
}

// Close closes the underlying bucket.
func (s *FileStore) Close() error {
	return s.bucket.Close()
}

func writeRows(w io.Writer, symbol string, candles []models.Candle, header bool) error {
	layout := dateLayout
	for _, c := range candles {
		if !c.Date.Equal(c.Date.Truncate(24 * time.Hour)) {
			layout = datetimeLayout
			break
		}
	}

	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write(models.CandleColumns); err != nil {
			return err
		}
	}
	for _, c := range candles {
		err := cw.Write([]string{
			c.Date.UTC().Format(layout),
			c.Open.String(),
			c.High.String(),
			c.Low.String(),
			c.Close.String(),
			c.Volume.String(),
			symbol,
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func readRows(r io.Reader) ([]models.Candle, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	var out []models.Candle
	for i, rec := range records[1:] {
		if len(rec) != len(models.CandleColumns) {
			return nil, fmt.Errorf("row %d: expected %d columns, got %d", i+2, len(models.CandleColumns), len(rec))
		}
		date, err := time.ParseInLocation(datetimeLayout, rec[0], time.UTC)
		if err != nil {
			if date, err = time.ParseInLocation(dateLayout, rec[0], time.UTC); err != nil {
				return nil, fmt.Errorf("row %d: %w", i+2, err)
			}
		}
		var nums [5]decimal.Decimal
		for j := range nums {
			if nums[j], err = decimal.NewFromString(rec[j+1]); err != nil {
				return nil, fmt.Errorf("row %d: %w", i+2, err)
			}
		}
		out = append(out, models.Candle{
			Symbol: rec[6],
			Date:   date,
			Open:   nums[0],
			High:   nums[1],
			Low:    nums[2],
			Close:  nums[3],
			Volume: nums[4],
		})
	}
	return out, nil
}
