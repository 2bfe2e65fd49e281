package okx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/navid-fn/radar-history/internal/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestOKX(url string) *OKX {
	return New(Options{BaseURL: url, RequestsPerSecond: 1000, RetryDelay: time.Millisecond}, quietLogger())
}

func TestDiscoverSymbols(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("instType") {
		case "SPOT":
			fmt.Fprint(w, `{"code":"0","msg":"","data":[
				{"instId":"ETH-USDT","state":"live"},
				{"instId":"BTC-USDT","state":"live"},
				{"instId":"OLD-USDT","state":"suspend"}
			]}`)
		case "SWAP":
			fmt.Fprint(w, `{"code":"0","msg":"","data":[{"instId":"BTC-USDT-SWAP","state":"live"}]}`)
		default:
			fmt.Fprint(w, `{"code":"51000","msg":"bad instType","data":[]}`)
		}
	}))
	defer server.Close()

	o := newTestOKX(server.URL)

	tests := []struct {
		name string
		kind models.ContractKind
		want []string
	}{
		{"Spot", models.KindSpot, []string{"BTC-USDT", "ETH-USDT"}},
		{"Swap", models.KindFutures, []string{"BTC-USDT-SWAP"}},
		{"Option", models.KindOption, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := o.DiscoverSymbols(context.Background(), tt.kind)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestDiscoverSymbolsEnvelopeError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"code":"50011","msg":"Too Many Requests","data":[]}`)
	}))
	defer server.Close()

	if _, err := newTestOKX(server.URL).DiscoverSymbols(context.Background(), models.KindSpot); err == nil {
		t.Error("Expected envelope error")
	}
	if calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls)
	}
}

func TestFetchCandlesWalksBackwards(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	total := 150

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("instId") != "BTC-USDT" {
			t.Errorf("Expected instId BTC-USDT, got %s", q.Get("instId"))
		}
		if q.Get("bar") != "1H" {
			t.Errorf("Expected bar 1H, got %s", q.Get("bar"))
		}
		after, _ := strconv.ParseInt(q.Get("after"), 10, 64)

		var items []string
		for i := total - 1; i >= 0 && len(items) < candlesLimit; i-- {
			ts := start.Add(time.Duration(i) * time.Hour).UnixMilli()
			if ts >= after {
				continue
			}
			items = append(items, fmt.Sprintf(`["%d","1","2","0.5","1.5","10","15","15","1"]`, ts))
		}
		fmt.Fprintf(w, `{"code":"0","msg":"","data":[%s]}`, strings.Join(items, ","))
	}))
	defer server.Close()

	rows, err := newTestOKX(server.URL).FetchCandles(context.Background(), "BTC/USDT", models.Interval1H, start, start.Add(time.Duration(total)*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != total {
		t.Fatalf("Expected %d rows, got %d", total, len(rows))
	}
	first, _ := strconv.ParseInt(rows[0].OpenTime, 10, 64)
	last, _ := strconv.ParseInt(rows[len(rows)-1].OpenTime, 10, 64)
	if first != start.UnixMilli() || last <= first {
		t.Errorf("Expected oldest first, got first=%d last=%d", first, last)
	}
}

func TestNormalizeSymbol(t *testing.T) {
	o := newTestOKX("http://localhost")
	for _, in := range []string{"BTC-USDT", "BTC/USDT", "BTCUSDT"} {
		got := o.NormalizeSymbol(in)
		if got != "BTCUSDT" {
			t.Errorf("NormalizeSymbol(%q): expected BTCUSDT, got %s", in, got)
		}
		if o.NormalizeSymbol(got) != got {
			t.Errorf("Expected idempotent normalization for %q", got)
		}
	}
}

func TestInstID(t *testing.T) {
	tests := []struct {
		kind   models.ContractKind
		symbol string
		want   string
	}{
		{models.KindSpot, "BTC-USDT", "BTC-USDT"},
		{models.KindSpot, "btc/usdt", "BTC-USDT"},
		{models.KindSpot, "BTCUSDT", "BTC-USDT"},
		{models.KindSpot, "ETHUSDC", "ETH-USDC"},
		{models.KindSpot, "ETHBTC", "ETH-BTC"},
		{models.KindSpot, "BTCUSD", "BTC-USD"},
		{models.KindSpot, "USDT", "USDT"},
		{models.KindFutures, "BTC-USDT-SWAP", "BTC-USDT-SWAP"},
		{models.KindFutures, "BTCUSDT", "BTC-USDT-SWAP"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind)+"/"+tt.symbol, func(t *testing.T) {
			o := New(Options{BaseURL: "http://localhost", Kind: tt.kind}, quietLogger())
			if got := o.instID(tt.symbol); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestFetchCandlesCanonicalSymbol(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var got atomic.Value

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.URL.Query().Get("instId"))
		fmt.Fprintf(w, `{"code":"0","msg":"","data":[["%d","1","2","0.5","1.5","10","15","15","1"]]}`, start.UnixMilli())
	}))
	defer server.Close()

	rows, err := newTestOKX(server.URL).FetchCandles(context.Background(), "BTCUSDT", models.Interval1D, start, start.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("Expected 1 row, got %d", len(rows))
	}
	if id, _ := got.Load().(string); id != "BTC-USDT" {
		t.Errorf("Expected instId BTC-USDT, got %s", id)
	}
}
