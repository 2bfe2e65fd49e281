package collector

import (
	"testing"
	"time"
)

func TestDecodeTimestampsUnits(t *testing.T) {
	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name   string
		values []string
		unit   string
	}{
		{"Milliseconds", []string{"1704164645000"}, UnitMilli},
		{"Microseconds", []string{"1704164645000000"}, UnitMicro},
		{"Nanoseconds", []string{"1704164645000000000"}, UnitNano},
		{"Datetime string", []string{"2024-01-02 03:04:05"}, UnitDatetime},
		{"RFC3339", []string{"2024-01-02T03:04:05Z"}, UnitDatetime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, stats := DecodeTimestamps(tt.values)
			if stats.Unit != tt.unit {
				t.Errorf("Expected unit %s, got %s", tt.unit, stats.Unit)
			}
			if stats.Valid != 1 || stats.Dropped != 0 {
				t.Errorf("Expected 1 valid 0 dropped, got %d/%d", stats.Valid, stats.Dropped)
			}
			if !got[0].Equal(want) {
				t.Errorf("Expected %v, got %v", want, got[0])
			}
		})
	}
}

func TestDecodeTimestampsDropsCorruptedValue(t *testing.T) {
	values := []string{
		"1704067200000",
		"1704153600000",
		"1704240000000000000",
		"1704326400000",
	}

	got, stats := DecodeTimestamps(values)

	if stats.Unit != UnitMilli {
		t.Errorf("Expected unit %s, got %s", UnitMilli, stats.Unit)
	}
	if stats.Valid != 3 || stats.Dropped != 1 {
		t.Errorf("Expected 3 valid 1 dropped, got %d/%d", stats.Valid, stats.Dropped)
	}
	if !got[2].IsZero() {
		t.Errorf("Expected corrupted row to decode to zero time, got %v", got[2])
	}
	if got[3].Year() != 2024 {
		t.Errorf("Expected 2024, got %v", got[3])
	}
}

func TestDecodeTimestampsGarbage(t *testing.T) {
	values := []string{"", "abc", "1704067200000"}
	got, stats := DecodeTimestamps(values)

	if stats.Valid != 1 || stats.Dropped != 2 {
		t.Errorf("Expected 1 valid 2 dropped, got %d/%d", stats.Valid, stats.Dropped)
	}
	if got[2].IsZero() {
		t.Error("Expected last value to decode")
	}
}

func TestDecodeTimestampsDivisorFallback(t *testing.T) {
	// 12 digits is neither ms, us nor ns; the first divisor that decodes wins.
	got, stats := DecodeTimestamps([]string{"170406720000"})

	if stats.Unit != UnitMilli {
		t.Errorf("Expected unit %s, got %s", UnitMilli, stats.Unit)
	}
	want := time.UnixMilli(170406720000).UTC()
	if !got[0].Equal(want) {
		t.Errorf("Expected %v, got %v", want, got[0])
	}
}

func TestDecodeTimestampsNothingDecodes(t *testing.T) {
	_, stats := DecodeTimestamps([]string{"x", "y"})
	if stats.Unit != UnitUnknown {
		t.Errorf("Expected unit %s, got %s", UnitUnknown, stats.Unit)
	}
	if stats.Valid != 0 || stats.Dropped != 2 {
		t.Errorf("Expected 0 valid 2 dropped, got %d/%d", stats.Valid, stats.Dropped)
	}
}

func TestDecodeTimestampsDeterministic(t *testing.T) {
	values := []string{"1704067200000", "1704153600000", "bad"}
	first, s1 := DecodeTimestamps(values)
	second, s2 := DecodeTimestamps(values)

	if s1 != s2 {
		t.Errorf("Expected equal stats, got %+v and %+v", s1, s2)
	}
	for i := range first {
		if !first[i].Equal(second[i]) {
			t.Errorf("Row %d differs: %v vs %v", i, first[i], second[i])
		}
	}
}
