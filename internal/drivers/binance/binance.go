// Package binance implements the Binance spot and USDⓈ-M futures adapter.
//
// API Doc: https://developers.binance.com/docs/binance-spot-api-docs/rest-api
//
// exchangeInfo response format (trimmed):
//
//	{
//	  "symbols": [
//	    {"symbol": "BTCUSDT", "status": "TRADING", "baseAsset": "BTC", "quoteAsset": "USDT"}
//	  ]
//	}
//
// klines response format:
//
//	[
//	  [
//	    1499040000000,      // open time
//	    "0.01634790",       // open
//	    "0.80000000",       // high
//	    "0.01575800",       // low
//	    "0.01577100",       // close
//	    "148976.11427815",  // volume
//	    1499644799999,      // close time
//	    ...
//	  ]
//	]
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/navid-fn/radar-history/internal/collector"
	"github.com/navid-fn/radar-history/internal/models"
)

const (
	DefaultSpotURL    = "https://api.binance.com"
	DefaultFuturesURL = "https://fapi.binance.com"

	klinesLimit = 1000
)

var intervalCodes = map[models.Interval]string{
	models.Interval1Min:  "1m",
	models.Interval5Min:  "5m",
	models.Interval15Min: "15m",
	models.Interval30Min: "30m",
	models.Interval1H:    "1h",
	models.Interval4H:    "4h",
	models.Interval1D:    "1d",
}

// Options configures the adapter. Zero values use production defaults.
type Options struct {
	SpotURL           string
	FuturesURL        string
	Kind              models.ContractKind
	RequestsPerSecond float64
	RetryAttempts     uint
	RetryDelay        time.Duration
}

type exchangeInfo struct {
	Symbols []struct {
		Symbol string `json:"symbol"`
		Status string `json:"status"`
	} `json:"symbols"`
}

// Binance talks to the public Binance REST API.
type Binance struct {
	kind          models.ContractKind
	spot          *collector.HTTPClient
	futures       *collector.HTTPClient
	logger        *logrus.Entry
	retryAttempts uint
	retryDelay    time.Duration
}

func New(opts Options, logger logrus.FieldLogger) *Binance {
	if opts.SpotURL == "" {
		opts.SpotURL = DefaultSpotURL
	}
	if opts.FuturesURL == "" {
		opts.FuturesURL = DefaultFuturesURL
	}
	if opts.Kind == "" {
		opts.Kind = models.KindSpot
	}
	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = collector.DefaultRetryAttempts
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = collector.DefaultRetryDelay
	}
	return &Binance{
		kind:          opts.Kind,
		spot:          collector.NewHTTPClient(collector.DefaultHTTPConfig(opts.SpotURL, opts.RequestsPerSecond)),
		futures:       collector.NewHTTPClient(collector.DefaultHTTPConfig(opts.FuturesURL, opts.RequestsPerSecond)),
		logger:        logger.WithField("exchange", "binance"),
		retryAttempts: opts.RetryAttempts,
		retryDelay:    opts.RetryDelay,
	}
}

func (b *Binance) Name() string { return "binance" }

// NormalizeSymbol: "BTC/USDT" -> "BTCUSDT"
func (b *Binance) NormalizeSymbol(raw string) string {
	return collector.StripSeparators(raw, "/")
}

// DiscoverSymbols returns every instrument with status TRADING.
func (b *Binance) DiscoverSymbols(ctx context.Context, kind models.ContractKind) ([]string, error) {
	var (
		client *collector.HTTPClient
		path   string
	)
	switch kind {
	case models.KindSpot:
		client, path = b.spot, "/api/v3/exchangeInfo"
	case models.KindFutures:
		client, path = b.futures, "/fapi/v1/exchangeInfo"
	default:
		b.logger.WithField("kind", kind).Warn("Unsupported contract kind")
		return nil, nil
	}

	var info exchangeInfo
	err := collector.Retry(ctx, b.logger, "binance exchangeInfo", b.retryAttempts, b.retryDelay, func() error {
		info = exchangeInfo{}
		return client.GetJSON(ctx, path, nil, &info)
	})
	if err != nil {
		return nil, fmt.Errorf("binance: fetch markets: %w", err)
	}

	symbols := make([]string, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Symbol == "" || s.Status != "TRADING" {
			continue
		}
		symbols = append(symbols, s.Symbol)
	}
	sort.Strings(symbols)

	b.logger.WithFields(logrus.Fields{"kind": kind, "count": len(symbols)}).Info("Discovered markets")
	return symbols, nil
}

// FetchCandles pages through klines for [start, end), moving the cursor to
// the last open time + 1ms after each page.
func (b *Binance) FetchCandles(ctx context.Context, symbol string, interval models.Interval, start, end time.Time) ([]collector.RawCandle, error) {
	code, ok := intervalCodes[interval]
	if !ok {
		return nil, fmt.Errorf("binance: unsupported interval %q", interval)
	}

	var (
		client *collector.HTTPClient
		path   string
	)
	switch b.kind {
	case models.KindSpot:
		client, path = b.spot, "/api/v3/klines"
	case models.KindFutures:
		client, path = b.futures, "/fapi/v1/klines"
	default:
		return nil, fmt.Errorf("binance: unsupported contract kind %q", b.kind)
	}

	apiSymbol := b.NormalizeSymbol(symbol)
	cursor := start.UnixMilli()
	last := end.UnixMilli() - 1

	var out []collector.RawCandle
	for cursor <= last {
		query := url.Values{
			"symbol":    {apiSymbol},
			"interval":  {code},
			"startTime": {strconv.FormatInt(cursor, 10)},
			"endTime":   {strconv.FormatInt(last, 10)},
			"limit":     {strconv.Itoa(klinesLimit)},
		}

		var page [][]json.RawMessage
		err := collector.Retry(ctx, b.logger, "binance klines", b.retryAttempts, b.retryDelay, func() error {
			page = nil
			return client.GetJSON(ctx, path, query, &page)
		})
		if err != nil {
			return nil, fmt.Errorf("binance: klines %s: %w", apiSymbol, err)
		}
		if len(page) == 0 {
			break
		}

		for _, row := range page {
			if len(row) < 6 {
				continue
			}
			out = append(out, collector.RawCandle{
				OpenTime: collector.RawToken(row[0]),
				Open:     collector.RawToken(row[1]),
				High:     collector.RawToken(row[2]),
				Low:      collector.RawToken(row[3]),
				Close:    collector.RawToken(row[4]),
				Volume:   collector.RawToken(row[5]),
			})
		}

		lastRow := page[len(page)-1]
		if len(lastRow) == 0 {
			break
		}
		lastOpen, err := strconv.ParseInt(collector.RawToken(lastRow[0]), 10, 64)
		if err != nil || lastOpen+1 <= cursor {
			break
		}
		cursor = lastOpen + 1

		if len(page) < klinesLimit {
			break
		}
	}

	b.logger.WithFields(logrus.Fields{"symbol": apiSymbol, "interval": code, "rows": len(out)}).Debug("Fetched klines")
	return out, nil
}
