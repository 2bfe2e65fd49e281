package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/navid-fn/radar-history/configs"
	"github.com/navid-fn/radar-history/internal/models"
	"github.com/navid-fn/radar-history/internal/service"
	"github.com/navid-fn/radar-history/internal/taskmgr"
)

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func main() {
	cfg, err := configs.AppLoad()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var (
		params    models.DownloadParams
		intervals string
		symbols   string
		checkLen  int
	)
	flag.StringVar(&params.Exchange, "exchange", "", "Exchange to download from: "+strings.Join(service.SupportedExchanges, ", ")+" (required)")
	flag.StringVar(&intervals, "intervals", "1d", "Comma-separated candle intervals (1min, 5min, 15min, 30min, 1h, 4h, 1d)")
	flag.StringVar(&params.Start, "start", "", "Window start, inclusive (default depends on interval)")
	flag.StringVar(&params.End, "end", "", "Window end, exclusive")
	flag.StringVar(&symbols, "symbols", "", "Comma-separated symbols (default: discover all)")
	flag.StringVar(&params.CandleType, "candle-type", "spot", "Contract kind: spot, futures")
	flag.IntVar(&params.MaxWorkers, "workers", cfg.Collector.MaxWorkers, "Concurrent symbols per round")
	flag.IntVar(&params.MaxRounds, "rounds", cfg.Collector.MaxRounds, "Collection rounds")
	flag.Float64Var(&params.DelaySeconds, "delay", cfg.Collector.DelaySeconds, "Pause before each symbol, in seconds")
	flag.IntVar(&checkLen, "check-data-length", cfg.Collector.CheckDataLength, "Results shorter than this are small samples")
	flag.IntVar(&params.LimitNums, "limit", 0, "Keep only the first N symbols")
	flag.StringVar(&params.SaveDir, "save-dir", cfg.CryptoDir(), "Directory or bucket URL for CSV files")
	flag.Parse()

	if params.Exchange == "" {
		fmt.Fprintf(os.Stderr, "Error: -exchange flag is required\n")
		fmt.Fprintf(os.Stderr, "Usage: %s -exchange <name> [flags]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -exchange binance -intervals 1d,4h\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -exchange okx -symbols BTC-USDT -start 2024-01-01 -intervals 1h\n", os.Args[0])
		os.Exit(1)
	}
	params.Intervals = splitList(intervals)
	params.Symbols = splitList(symbols)
	params.CheckDataLength = &checkLen

	logger := configs.NewLogger(cfg.LogLevel)
	logger.Infof("Starting download from exchange: %s", params.Exchange)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tasks := taskmgr.New(nil, logger)
	defer tasks.Close()

	exchanges := service.NewExchangeFactory(service.ExchangeOptions{
		BinanceSpotURL:    cfg.Exchanges.BinanceSpotURL,
		BinanceFuturesURL: cfg.Exchanges.BinanceFuturesURL,
		OKXURL:            cfg.Exchanges.OKXURL,
		RequestsPerSecond: cfg.Exchanges.RequestsPerSecond,
	}, logger)
	svc := service.NewDownloadService(tasks, exchanges, service.Options{SaveDir: cfg.CryptoDir()}, logger)

	id, err := tasks.Create(params)
	if err != nil {
		logger.Fatalf("Invalid download: %v", err)
	}
	if err := svc.Run(ctx, id, params); err != nil {
		logger.Errorf("Download failed: %v", err)
		os.Exit(1)
	}

	if task, err := tasks.Get(ctx, id); err == nil {
		logger.WithField("progress", task.Progress).Info("Download complete")
	}
}
