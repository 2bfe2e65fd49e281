package collector

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Timestamp units detected by DecodeTimestamps.
const (
	UnitMilli    = "ms"
	UnitMicro    = "us"
	UnitNano     = "ns"
	UnitDatetime = "datetime"
	UnitUnknown  = "unknown"
)

// DecodeStats summarizes one DecodeTimestamps call.
type DecodeStats struct {
	Unit    string
	Valid   int
	Dropped int
}

var datetimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// DecodeTimestamps converts raw epoch tokens of unknown unit into UTC times.
// The unit is chosen once per batch from the digit count of the first
// non-empty value: 13 digits are milliseconds, 16 microseconds and 19
// nanoseconds. Anything else is first parsed as formatted date strings and
// then as epochs divided by 1e3, 1e6 and 1e9, keeping the first divisor that
// decodes at least one row.
//
// Tokens that cannot be decoded, or whose instant does not fit a nanosecond
// epoch, come back as the zero time and are counted in Dropped.
func DecodeTimestamps(values []string) ([]time.Time, DecodeStats) {
	switch firstDigitCount(values) {
	case 13:
		return decodeAll(values, UnitMilli, int64(time.Millisecond))
	case 16:
		return decodeAll(values, UnitMicro, int64(time.Microsecond))
	case 19:
		return decodeAll(values, UnitNano, 1)
	}

	out, stats := decodeDatetimes(values)
	if stats.Valid > 0 {
		return out, stats
	}
	for _, d := range []struct {
		unit string
		mult int64
	}{
		{UnitMilli, int64(time.Millisecond)},
		{UnitMicro, int64(time.Microsecond)},
		{UnitNano, 1},
	} {
		out, stats = decodeAll(values, d.unit, d.mult)
		if stats.Valid > 0 {
			return out, stats
		}
	}
	stats.Unit = UnitUnknown
	return out, stats
}

func firstDigitCount(values []string) int {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		n, ok := parseEpoch(v)
		if !ok {
			return 0
		}
		if n < 0 {
			n = -n
		}
		return len(strconv.FormatFloat(n, 'f', 0, 64))
	}
	return 0
}

// parseEpoch accepts integer and float tokens ("1700000000000", "1.7e12").
func parseEpoch(s string) (float64, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return float64(i), true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// decodeAll decodes every value as an epoch where one unit is mult
// nanoseconds.
func decodeAll(values []string, unit string, mult int64) ([]time.Time, DecodeStats) {
	out := make([]time.Time, len(values))
	stats := DecodeStats{Unit: unit}
	for i, v := range values {
		t, ok := decodeEpoch(strings.TrimSpace(v), mult)
		if !ok {
			stats.Dropped++
			continue
		}
		out[i] = t
		stats.Valid++
	}
	return out, stats
}

func decodeEpoch(s string, mult int64) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		if v > math.MaxInt64/mult || v < math.MinInt64/mult {
			return time.Time{}, false
		}
		return time.Unix(0, v*mult).UTC(), true
	}
	f, ok := parseEpoch(s)
	if !ok {
		return time.Time{}, false
	}
	ns := f * float64(mult)
	if ns >= math.MaxInt64 || ns <= math.MinInt64 {
		return time.Time{}, false
	}
	return time.Unix(0, int64(ns)).UTC(), true
}

func decodeDatetimes(values []string) ([]time.Time, DecodeStats) {
	out := make([]time.Time, len(values))
	stats := DecodeStats{Unit: UnitDatetime}
	for i, v := range values {
		t, ok := parseDatetime(strings.TrimSpace(v))
		if !ok {
			stats.Dropped++
			continue
		}
		out[i] = t
		stats.Valid++
	}
	return out, stats
}

func parseDatetime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range datetimeLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err != nil {
			continue
		}
		// keep only instants representable as nanosecond epochs
		if t.Year() < 1678 || t.Year() > 2261 {
			return time.Time{}, false
		}
		return t.UTC(), true
	}
	return time.Time{}, false
}
