// Package exchange implements the exchange bounded context: market metadata,
// order books and order management against Binance or a paper venue.
package exchange

import (
	"context"

	"github.com/fd1az/triarb-bot/business/exchange/app"
	exchangeDI "github.com/fd1az/triarb-bot/business/exchange/di"
	"github.com/fd1az/triarb-bot/business/exchange/infra/binance"
	"github.com/fd1az/triarb-bot/business/exchange/infra/paper"
	"github.com/fd1az/triarb-bot/internal/config"
	"github.com/fd1az/triarb-bot/internal/di"
	"github.com/fd1az/triarb-bot/internal/logger"
	"github.com/fd1az/triarb-bot/internal/monolith"
)

// Module implements the exchange bounded context.
type Module struct{}

// RegisterServices registers all exchange services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register the venue adapter - private dependency
	di.RegisterToken(c, exchangeDI.Adapter, func(sr di.ServiceRegistry) app.Exchange {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		ex, err := NewAdapter(cfg.Exchange, log)
		if err != nil {
			panic("failed to create exchange adapter: " + err.Error())
		}
		return ex
	})

	// Register ExchangeService (public - exposed to other modules)
	di.RegisterToken(c, exchangeDI.ExchangeService, func(sr di.ServiceRegistry) *app.ExchangeService {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		fees := app.Fees{
			Taker: cfg.Exchange.TakerFeeDecimal(),
			Maker: cfg.Exchange.MakerFeeDecimal(),
		}
		return app.NewExchangeService(exchangeDI.GetAdapter(sr), fees, log)
	})

	return nil
}

// NewAdapter builds the configured venue. The paper venue prices against
// Binance public market data.
func NewAdapter(cfg config.ExchangeConfig, log logger.LoggerInterface) (app.Exchange, error) {
	bcfg := binance.Config{
		REST: binance.RESTConfig{
			BaseURL:         cfg.RestURL,
			APIKey:          cfg.APIKey,
			APISecret:       cfg.APISecret,
			RecvWindow:      cfg.RecvWindow,
			Timeout:         cfg.RequestTimeout,
			WeightPerMinute: cfg.RequestWeightPerMinute,
		},
		Stream: binance.StreamConfig{
			BaseURL:      cfg.WebSocketURL,
			StaleTimeout: cfg.StaleTimeout,
		},
		UseStream: cfg.StreamDepth,
		TakerFee:  cfg.TakerFeeDecimal(),
	}

	if cfg.Name == config.ExchangePaper {
		// Market data needs no credentials.
		bcfg.REST.APIKey, bcfg.REST.APISecret = "", ""
	}

	bn, err := binance.NewExchange(bcfg, log)
	if err != nil {
		return nil, err
	}
	if cfg.Name != config.ExchangePaper {
		return bn, nil
	}

	return paper.NewExchange(bn, paper.Config{
		Balances: cfg.PaperBalancesDecimal(),
		TakerFee: cfg.TakerFeeDecimal(),
	}, log), nil
}

// Startup loads the market catalog.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	svc := exchangeDI.GetExchangeService(mono.Services())
	if err := svc.LoadMarkets(ctx); err != nil {
		return err
	}

	log.Info(ctx, "exchange module started", "exchange", svc.Name(), "markets", len(svc.Markets()))
	return nil
}
