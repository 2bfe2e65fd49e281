package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/navid-fn/radar-history/internal/collector"
	"github.com/navid-fn/radar-history/internal/drivers/binance"
	"github.com/navid-fn/radar-history/internal/drivers/okx"
	"github.com/navid-fn/radar-history/internal/models"
)

var ErrUnknownExchange = errors.New("unknown exchange")

// ExchangeFactory builds an adapter for an exchange name and contract kind.
type ExchangeFactory func(name string, kind models.ContractKind) (collector.Exchange, error)

// ExchangeOptions overrides adapter endpoints and pacing.
type ExchangeOptions struct {
	BinanceSpotURL    string
	BinanceFuturesURL string
	OKXURL            string
	RequestsPerSecond float64
}

// SupportedExchanges lists the names NewExchangeFactory understands.
var SupportedExchanges = []string{"binance", "okx"}

func NewExchangeFactory(opts ExchangeOptions, logger logrus.FieldLogger) ExchangeFactory {
	return func(name string, kind models.ContractKind) (collector.Exchange, error) {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "binance":
			return binance.New(binance.Options{
				SpotURL:           opts.BinanceSpotURL,
				FuturesURL:        opts.BinanceFuturesURL,
				Kind:              kind,
				RequestsPerSecond: opts.RequestsPerSecond,
			}, logger), nil
		case "okx":
			return okx.New(okx.Options{
				BaseURL:           opts.OKXURL,
				Kind:              kind,
				RequestsPerSecond: opts.RequestsPerSecond,
			}, logger), nil
		}
		return nil, fmt.Errorf("%w: %q", ErrUnknownExchange, name)
	}
}
