// Package collector downloads historical candles for a universe of symbols
// from one exchange, in bounded-concurrency rounds, and hands normalized rows
// to a Saver.
package collector

import (
	"context"
	"strings"
	"time"

	"github.com/navid-fn/radar-history/internal/models"
)

// RawCandle is one K-line row as the exchange returned it. OpenTime is kept
// as the raw token so that its unit can be detected for the whole batch.
type RawCandle struct {
	OpenTime string
	Open     string
	High     string
	Low      string
	Close    string
	Volume   string
}

// Exchange is implemented by every exchange driver.
type Exchange interface {
	// Name is the short exchange id (e.g. "binance").
	Name() string

	// DiscoverSymbols lists tradable instruments of the given kind.
	// Unsupported kinds yield an empty list and no error.
	DiscoverSymbols(ctx context.Context, kind models.ContractKind) ([]string, error)

	// NormalizeSymbol maps an exchange symbol to its canonical ticker.
	// It must be idempotent.
	NormalizeSymbol(raw string) string

	// FetchCandles returns candles of symbol for [start, end). An empty
	// result is not an error.
	FetchCandles(ctx context.Context, symbol string, interval models.Interval, start, end time.Time) ([]RawCandle, error)
}

// StripSeparators removes the given separators and upper-cases the rest.
// Example: StripSeparators("btc-usdt", "/", "-") -> "BTCUSDT"
func StripSeparators(raw string, separators ...string) string {
	s := strings.TrimSpace(raw)
	for _, sep := range separators {
		s = strings.ReplaceAll(s, sep, "")
	}
	return strings.ToUpper(s)
}
