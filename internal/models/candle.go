package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CandleColumns is the column order of persisted candle files.
var CandleColumns = []string{"date", "open", "high", "low", "close", "volume", "symbol"}

// Candle is one normalized OHLCV row of a single symbol.
type Candle struct {
	// Symbol is the canonical ticker (e.g. "BTCUSDT").
	Symbol string `json:"symbol"`

	// Date is the candle open time in UTC.
	Date time.Time `json:"date"`

	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}
