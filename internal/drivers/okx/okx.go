// Package okx implements the OKX SPOT and SWAP adapter.
//
// API Doc: https://www.okx.com/docs-v5/en/#public-data-rest-api
//
// Every response uses the same envelope:
//
//	{"code": "0", "msg": "", "data": [...]}
//
// instruments data item (trimmed):
//
//	{"instId": "BTC-USDT", "instType": "SPOT", "state": "live"}
//
// history-candles data item, newest first:
//
//	["1597026383085", "3.721", "3.743", "3.677", "3.708", "8422410", "22698348.04", "12698348.04", "1"]
//	 ts               open     high     low      close    vol
package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/navid-fn/radar-history/internal/collector"
	"github.com/navid-fn/radar-history/internal/models"
)

const (
	DefaultBaseURL = "https://www.okx.com"

	candlesLimit = 100
)

var barCodes = map[models.Interval]string{
	models.Interval1Min:  "1m",
	models.Interval5Min:  "5m",
	models.Interval15Min: "15m",
	models.Interval30Min: "30m",
	models.Interval1H:    "1H",
	models.Interval4H:    "4H",
	models.Interval1D:    "1Dutc",
}

var instTypes = map[models.ContractKind]string{
	models.KindSpot:    "SPOT",
	models.KindFutures: "SWAP",
}

type envelope[T any] struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data T      `json:"data"`
}

func (e *envelope[T]) err() error {
	if e.Code != "0" {
		return fmt.Errorf("okx: code %s: %s", e.Code, e.Msg)
	}
	return nil
}

type instrument struct {
	InstID string `json:"instId"`
	State  string `json:"state"`
}

// Options configures the adapter. Zero values use production defaults.
type Options struct {
	BaseURL           string
	Kind              models.ContractKind
	RequestsPerSecond float64
	RetryAttempts     uint
	RetryDelay        time.Duration
}

// OKX talks to the public OKX v5 REST API.
type OKX struct {
	kind          models.ContractKind
	client        *collector.HTTPClient
	logger        *logrus.Entry
	retryAttempts uint
	retryDelay    time.Duration
}

func New(opts Options, logger logrus.FieldLogger) *OKX {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
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
	return &OKX{
		kind:          opts.Kind,
		client:        collector.NewHTTPClient(collector.DefaultHTTPConfig(opts.BaseURL, opts.RequestsPerSecond)),
		logger:        logger.WithField("exchange", "okx"),
		retryAttempts: opts.RetryAttempts,
		retryDelay:    opts.RetryDelay,
	}
}

func (o *OKX) Name() string { return "okx" }

// NormalizeSymbol: "BTC-USDT" -> "BTCUSDT", "BTC/USDT" -> "BTCUSDT"
func (o *OKX) NormalizeSymbol(raw string) string {
	return collector.StripSeparators(raw, "/", "-")
}

// quoteCurrencies are tried longest first when splitting an undashed symbol.
var quoteCurrencies = []string{"USDT", "USDC", "EURC", "USD", "EUR", "BTC", "ETH", "DAI", "OKB"}

// instID turns a symbol into an OKX instrument id. Dashed ids pass through,
// "BTC/USDT" becomes "BTC-USDT" and a canonical "BTCUSDT" is split on its
// quote currency. Futures ids get the "-SWAP" suffix when it is missing.
func (o *OKX) instID(symbol string) string {
	id := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(symbol), "/", "-"))
	if !strings.Contains(id, "-") {
		for _, quote := range quoteCurrencies {
			if base, ok := strings.CutSuffix(id, quote); ok && base != "" {
				id = base + "-" + quote
				break
			}
		}
	}
	if o.kind == models.KindFutures && strings.Count(id, "-") == 1 {
		id += "-SWAP"
	}
	return id
}

// DiscoverSymbols returns every live instrument id of kind.
func (o *OKX) DiscoverSymbols(ctx context.Context, kind models.ContractKind) ([]string, error) {
	instType, ok := instTypes[kind]
	if !ok {
		o.logger.WithField("kind", kind).Warn("Unsupported contract kind")
		return nil, nil
	}

	var resp envelope[[]instrument]
	err := collector.Retry(ctx, o.logger, "okx instruments", o.retryAttempts, o.retryDelay, func() error {
		resp = envelope[[]instrument]{}
		if err := o.client.GetJSON(ctx, "/api/v5/public/instruments", url.Values{"instType": {instType}}, &resp); err != nil {
			return err
		}
		return resp.err()
	})
	if err != nil {
		return nil, fmt.Errorf("okx: fetch instruments: %w", err)
	}

	symbols := make([]string, 0, len(resp.Data))
	for _, inst := range resp.Data {
		if inst.InstID == "" || inst.State != "live" {
			continue
		}
		symbols = append(symbols, inst.InstID)
	}
	sort.Strings(symbols)

	o.logger.WithFields(logrus.Fields{"kind": kind, "count": len(symbols)}).Info("Discovered markets")
	return symbols, nil
}

// FetchCandles walks history-candles backwards from end using the `after`
// cursor and returns rows oldest first.
func (o *OKX) FetchCandles(ctx context.Context, symbol string, interval models.Interval, start, end time.Time) ([]collector.RawCandle, error) {
	bar, ok := barCodes[interval]
	if !ok {
		return nil, fmt.Errorf("okx: unsupported interval %q", interval)
	}
	if _, ok := instTypes[o.kind]; !ok {
		return nil, fmt.Errorf("okx: unsupported contract kind %q", o.kind)
	}

	instID := o.instID(symbol)
	startMs := start.UnixMilli()
	cursor := end.UnixMilli()

	var out []collector.RawCandle
	for cursor > startMs {
		query := url.Values{
			"instId": {instID},
			"bar":    {bar},
			"after":  {strconv.FormatInt(cursor, 10)},
			"limit":  {strconv.Itoa(candlesLimit)},
		}

		var resp envelope[[][]json.RawMessage]
		err := collector.Retry(ctx, o.logger, "okx history-candles", o.retryAttempts, o.retryDelay, func() error {
			resp = envelope[[][]json.RawMessage]{}
			if err := o.client.GetJSON(ctx, "/api/v5/market/history-candles", query, &resp); err != nil {
				return err
			}
			return resp.err()
		})
		if err != nil {
			return nil, fmt.Errorf("okx: candles %s: %w", instID, err)
		}
		if len(resp.Data) == 0 {
			break
		}

		for _, row := range resp.Data {
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

		oldestRow := resp.Data[len(resp.Data)-1]
		if len(oldestRow) == 0 {
			break
		}
		oldest, err := strconv.ParseInt(collector.RawToken(oldestRow[0]), 10, 64)
		if err != nil || oldest >= cursor {
			break
		}
		cursor = oldest

		if len(resp.Data) < candlesLimit {
			break
		}
	}

	slices.Reverse(out)

	o.logger.WithFields(logrus.Fields{"symbol": instID, "bar": bar, "rows": len(out)}).Debug("Fetched candles")
	return out, nil
}
