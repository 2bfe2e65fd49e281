package models

import (
	"fmt"
	"strings"
	"time"
)

// Interval is a canonical candle bar size.
type Interval string

const (
	Interval1Min  Interval = "1min"
	Interval5Min  Interval = "5min"
	Interval15Min Interval = "15min"
	Interval30Min Interval = "30min"
	Interval1H    Interval = "1h"
	Interval4H    Interval = "4h"
	Interval1D    Interval = "1d"
)

var intervalAliases = map[string]Interval{
	"1m":    Interval1Min,
	"1min":  Interval1Min,
	"5m":    Interval5Min,
	"5min":  Interval5Min,
	"15m":   Interval15Min,
	"15min": Interval15Min,
	"30m":   Interval30Min,
	"30min": Interval30Min,
	"60min": Interval1H,
	"1h":    Interval1H,
	"4h":    Interval4H,
	"1d":    Interval1D,
	"1day":  Interval1D,
}

var intervalDurations = map[Interval]time.Duration{
	Interval1Min:  time.Minute,
	Interval5Min:  5 * time.Minute,
	Interval15Min: 15 * time.Minute,
	Interval30Min: 30 * time.Minute,
	Interval1H:    time.Hour,
	Interval4H:    4 * time.Hour,
	Interval1D:    24 * time.Hour,
}

// ParseInterval accepts both exchange style ("1m", "1D") and long style
// ("1min") codes.
func ParseInterval(s string) (Interval, error) {
	if iv, ok := intervalAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return iv, nil
	}
	return "", fmt.Errorf("%w: unsupported interval %q", ErrInvalidParams, s)
}

// Duration returns the bar length.
func (i Interval) Duration() time.Duration {
	return intervalDurations[i]
}

// IsDaily reports whether the interval is a daily bar.
func (i Interval) IsDaily() bool {
	return i == Interval1D
}

// ContractKind selects the market an adapter talks to.
type ContractKind string

const (
	KindSpot    ContractKind = "spot"
	KindFutures ContractKind = "futures"
	KindOption  ContractKind = "option"
)

// ParseContractKind validates a candle type string. Empty means spot.
func ParseContractKind(s string) (ContractKind, error) {
	switch ContractKind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindSpot:
		return KindSpot, nil
	case KindFutures:
		return KindFutures, nil
	case KindOption:
		return KindOption, nil
	}
	return "", fmt.Errorf("%w: unsupported candle type %q", ErrInvalidParams, s)
}
