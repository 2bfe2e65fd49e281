package collector

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/navid-fn/radar-history/internal/models"
)

// NormalizeCandles turns raw rows into sorted candles of symbol inside
// [start, end). Rows with undecodable timestamps or malformed numbers are
// dropped, and duplicate open times keep the first row.
func NormalizeCandles(logger logrus.FieldLogger, symbol string, rows []RawCandle, start, end time.Time) []models.Candle {
	if len(rows) == 0 {
		return nil
	}

	tokens := make([]string, len(rows))
	for i, r := range rows {
		tokens[i] = r.OpenTime
	}
	times, stats := DecodeTimestamps(tokens)

	entry := logger.WithFields(logrus.Fields{
		"symbol":  symbol,
		"unit":    stats.Unit,
		"valid":   stats.Valid,
		"dropped": stats.Dropped,
	})
	if stats.Dropped > 0 {
		entry.Warn("Dropped rows with undecodable timestamps")
	} else {
		entry.Debug("Decoded timestamps")
	}

	candles := make([]models.Candle, 0, len(rows))
	malformed := 0
	for i, r := range rows {
		ts := times[i]
		if ts.IsZero() {
			continue
		}
		if (!start.IsZero() && ts.Before(start)) || (!end.IsZero() && !ts.Before(end)) {
			continue
		}
		c, ok := parseCandle(symbol, ts, r)
		if !ok {
			malformed++
			continue
		}
		candles = append(candles, c)
	}
	if malformed > 0 {
		logger.WithFields(logrus.Fields{"symbol": symbol, "dropped": malformed}).Warn("Dropped rows with malformed prices")
	}

	return SortCandles(candles)
}

func parseCandle(symbol string, ts time.Time, r RawCandle) (models.Candle, bool) {
	fields := [5]decimal.Decimal{}
	for i, s := range [5]string{r.Open, r.High, r.Low, r.Close, r.Volume} {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return models.Candle{}, false
		}
		fields[i] = d
	}
	return models.Candle{
		Symbol: symbol,
		Date:   ts,
		Open:   fields[0],
		High:   fields[1],
		Low:    fields[2],
		Close:  fields[3],
		Volume: fields[4],
	}, true
}

// SortCandles sorts by date ascending and drops repeated dates, keeping the
// earliest occurrence in input order.
func SortCandles(candles []models.Candle) []models.Candle {
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Date.Before(candles[j].Date)
	})
	out := candles[:0]
	for i, c := range candles {
		if i > 0 && c.Date.Equal(out[len(out)-1].Date) {
			continue
		}
		out = append(out, c)
	}
	return out
}
