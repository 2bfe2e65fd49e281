package collector

import (
	"fmt"
	"time"

	"github.com/navid-fn/radar-history/internal/models"
)

const (
	DefaultMaxWorkers = 4
	DefaultMaxRounds  = 2
	DefaultMinuteSpan = 30 * 24 * time.Hour
)

// DefaultDailyStart is where daily history starts when no start is given.
var DefaultDailyStart = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Config describes one collection job for one interval.
type Config struct {
	Interval models.Interval
	Kind     models.ContractKind

	// Start and End bound the window [Start, End). Zero values fall back to
	// interval defaults.
	Start time.Time
	End   time.Time

	// MaxWorkers bounds concurrent symbols within a round.
	MaxWorkers int

	// MaxRounds bounds how many times failed symbols are retried.
	MaxRounds int

	// Delay is slept before each symbol fetch.
	Delay time.Duration

	// CheckDataLength is the minimum row count for a NORMAL result.
	// Zero disables small-sample caching.
	CheckDataLength int

	// LimitNums caps the symbol universe. Zero means no cap.
	LimitNums int

	// Symbols is an explicit universe. Empty means discover all.
	Symbols []string
}

func (c Config) validate() error {
	if c.Interval.Duration() == 0 {
		return fmt.Errorf("unsupported interval %q", c.Interval)
	}
	if c.MaxWorkers < 0 || c.MaxRounds < 0 || c.CheckDataLength < 0 || c.LimitNums < 0 || c.Delay < 0 {
		return fmt.Errorf("numeric options must not be negative")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Kind == "" {
		c.Kind = models.KindSpot
	}
	if c.MaxWorkers == 0 {
		c.MaxWorkers = DefaultMaxWorkers
	}
	if c.MaxRounds == 0 {
		c.MaxRounds = DefaultMaxRounds
	}
	return c
}

// window resolves the collection window relative to now.
// Daily bars default to 2000-01-01 .. now+1d, other bars to the last 30 days.
func (c Config) window(now time.Time) (time.Time, time.Time) {
	start, end := c.Start, c.End
	now = now.UTC()
	if c.Interval.IsDaily() {
		if start.IsZero() {
			start = DefaultDailyStart
		}
		if end.IsZero() {
			end = now.Add(24 * time.Hour)
		}
		return start, end
	}
	if start.IsZero() {
		start = now.Add(-DefaultMinuteSpan)
	}
	if end.IsZero() {
		end = now
	}
	return start, end
}
