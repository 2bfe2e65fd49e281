package collector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/navid-fn/radar-history/internal/models"
)

// Saver persists candles of one canonical symbol. Implementations append to
// whatever was stored before.
type Saver interface {
	Save(ctx context.Context, symbol string, candles []models.Candle) error
}

// ProgressFunc receives job progress. It is called before and after every
// symbol and never concurrently.
type ProgressFunc func(p models.Progress)

// Result summarizes a finished job.
type Result struct {
	// Symbols is the resolved universe.
	Symbols []string

	// Failed holds symbols still carried forward after the last round,
	// including those that only produced small samples.
	Failed []string

	// SmallSamples holds symbols written from the small-sample cache.
	SmallSamples []string

	// Saved counts successful writes.
	Saved int
}

type symbolStatus int

const (
	statusNormal symbolStatus = iota
	statusCached
	statusFailed
)

// Collector runs one job against one exchange.
type Collector struct {
	cfg      Config
	exchange Exchange
	saver    Saver
	logger   *logrus.Entry
	now      func() time.Time
}

func New(cfg Config, exchange Exchange, saver Saver, logger logrus.FieldLogger) (*Collector, error) {
	if exchange == nil || saver == nil {
		return nil, fmt.Errorf("collector needs an exchange and a saver")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Collector{
		cfg:      cfg.withDefaults(),
		exchange: exchange,
		saver:    saver,
		logger: logger.WithFields(logrus.Fields{
			"component": "collector",
			"exchange":  exchange.Name(),
			"interval":  string(cfg.Interval),
		}),
		now: time.Now,
	}, nil
}

// jobState carries the counters, the carry-forward set and the cache of one
// Run. Counters are guarded by mu.
type jobState struct {
	mu        sync.Mutex
	total     int
	completed int
	failed    int
	saved     int
	cache     *sampleCache
	progress  ProgressFunc
}

func (s *jobState) report(current string) {
	if s.progress == nil {
		return
	}
	s.progress(models.Progress{
		Total:     s.total,
		Completed: s.completed,
		Failed:    s.failed,
		Current:   current,
	})
}

func (s *jobState) begin(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report(symbol)
}

// finish moves a symbol into the completed or failed counter. A symbol retried
// from a previous round leaves the failed counter first.
func (s *jobState) finish(symbol string, status symbolStatus, retried bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if retried {
		s.failed--
	}
	if status == statusNormal {
		s.completed++
	} else {
		s.failed++
	}
	s.report(symbol)
}

func (s *jobState) addSaved() {
	s.mu.Lock()
	s.saved++
	s.mu.Unlock()
}

// Run resolves the universe, collects it in rounds and flushes the
// small-sample cache. Per-symbol failures are reported in the result, never
// returned.
func (c *Collector) Run(ctx context.Context, progress ProgressFunc) (*Result, error) {
	symbols := c.resolveSymbols(ctx)
	start, end := c.cfg.window(c.now())

	c.logger.WithFields(logrus.Fields{
		"symbols": len(symbols),
		"start":   start.Format(time.DateTime),
		"end":     end.Format(time.DateTime),
		"workers": c.cfg.MaxWorkers,
	}).Info("Starting collection")

	st := &jobState{total: len(symbols), cache: newSampleCache(), progress: progress}

	pending := symbols
	for round := 0; round < c.cfg.MaxRounds && len(pending) > 0; round++ {
		c.logger.WithFields(logrus.Fields{"round": round + 1, "symbols": len(pending)}).Info("Starting round")
		pending = c.runRound(ctx, round, pending, start, end, st)
	}

	// Cached samples were already fetched; persist them even after cancellation.
	flushed := c.flushSmallSamples(context.WithoutCancel(ctx), st)

	res := &Result{
		Symbols:      symbols,
		Failed:       pending,
		SmallSamples: flushed,
		Saved:        st.saved,
	}
	c.logger.WithFields(logrus.Fields{
		"symbols":       len(res.Symbols),
		"failed":        len(res.Failed),
		"small_samples": len(res.SmallSamples),
		"saved":         res.Saved,
	}).Info("Collection finished")
	return res, nil
}

func (c *Collector) resolveSymbols(ctx context.Context) []string {
	raw := c.cfg.Symbols
	if len(raw) == 0 {
		var err error
		raw, err = c.exchange.DiscoverSymbols(ctx, c.cfg.Kind)
		if err != nil {
			c.logger.WithError(err).Error("Symbol discovery failed, nothing to collect")
			raw = nil
		}
	}

	seen := make(map[string]struct{}, len(raw))
	symbols := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	if c.cfg.LimitNums > 0 && len(symbols) > c.cfg.LimitNums {
		symbols = symbols[:c.cfg.LimitNums]
	}
	return symbols
}

// runRound collects pending symbols with at most MaxWorkers in flight and
// returns the sorted carry-forward set.
func (c *Collector) runRound(ctx context.Context, round int, pending []string, start, end time.Time, st *jobState) []string {
	var (
		g     errgroup.Group
		mu    sync.Mutex
		carry []string
	)
	g.SetLimit(c.cfg.MaxWorkers)

	for _, symbol := range pending {
		symbol := symbol
		g.Go(func() error {
			st.begin(symbol)
			status := c.collectSymbol(ctx, symbol, start, end, st)
			st.finish(symbol, status, round > 0)
			if status != statusNormal {
				mu.Lock()
				carry = append(carry, symbol)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(carry)
	return carry
}

func (c *Collector) collectSymbol(ctx context.Context, symbol string, start, end time.Time, st *jobState) (status symbolStatus) {
	log := c.logger.WithField("symbol", symbol)
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Panic while collecting: %v", r)
			status = statusFailed
		}
	}()

	if c.cfg.Delay > 0 {
		select {
		case <-ctx.Done():
			return statusFailed
		case <-time.After(c.cfg.Delay):
		}
	}

	rows, err := c.exchange.FetchCandles(ctx, symbol, c.cfg.Interval, start, end)
	if err != nil {
		log.WithError(err).Warn("Failed to fetch candles")
		return statusFailed
	}

	canonical := c.exchange.NormalizeSymbol(symbol)
	candles := NormalizeCandles(log, canonical, rows, start, end)

	if c.cfg.CheckDataLength > 0 {
		if len(candles) < c.cfg.CheckDataLength {
			log.WithFields(logrus.Fields{"rows": len(candles), "min": c.cfg.CheckDataLength}).Info("Small sample cached")
			st.cache.add(symbol, candles)
			return statusCached
		}
		st.cache.remove(symbol)
	}

	if err := c.save(ctx, canonical, candles, st); err != nil {
		log.WithError(err).Error("Failed to save candles")
		return statusFailed
	}
	return statusNormal
}

func (c *Collector) save(ctx context.Context, canonical string, candles []models.Candle, st *jobState) error {
	if len(candles) == 0 {
		c.logger.WithField("symbol", canonical).Warn("No candles in window")
		return nil
	}
	if err := c.saver.Save(ctx, canonical, candles); err != nil {
		return err
	}
	st.addSaved()
	return nil
}

// flushSmallSamples writes each cached symbol once, after the last round.
func (c *Collector) flushSmallSamples(ctx context.Context, st *jobState) []string {
	var flushed []string
	for _, symbol := range st.cache.symbols() {
		candles := st.cache.merged(symbol)
		if len(candles) == 0 {
			continue
		}
		canonical := c.exchange.NormalizeSymbol(symbol)
		if err := c.save(ctx, canonical, candles, st); err != nil {
			c.logger.WithField("symbol", symbol).WithError(err).Error("Failed to flush small sample")
			continue
		}
		flushed = append(flushed, symbol)
	}
	return flushed
}
