// Package arbitrage implements the arbitrage bounded context: cycle
// discovery, evaluation, scheduling and execution.
package arbitrage

import (
	"context"
	"os"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"

	"github.com/fd1az/triarb-bot/business/arbitrage/app"
	arbitrageDI "github.com/fd1az/triarb-bot/business/arbitrage/di"
	"github.com/fd1az/triarb-bot/business/arbitrage/domain"
	"github.com/fd1az/triarb-bot/business/arbitrage/infra"
	exchangeDI "github.com/fd1az/triarb-bot/business/exchange/di"
	exchangeDomain "github.com/fd1az/triarb-bot/business/exchange/domain"
	"github.com/fd1az/triarb-bot/internal/apperror"
	"github.com/fd1az/triarb-bot/internal/config"
	"github.com/fd1az/triarb-bot/internal/di"
	"github.com/fd1az/triarb-bot/internal/logger"
	"github.com/fd1az/triarb-bot/internal/monolith"
	"github.com/fd1az/triarb-bot/pkg/ui"
)

// Module implements the arbitrage bounded context.
type Module struct{}

// RegisterServices registers all arbitrage services with the DI container.
// Cycles and the engine are built lazily, after the exchange module has
// loaded its markets.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, arbitrageDI.Cycles, func(sr di.ServiceRegistry) []domain.Cycle {
		cfg := sr.Get("config").(*config.Config)
		svc := exchangeDI.GetExchangeService(sr)
		return domain.BuildCycles(svc.Markets(), cfg.Engine.AnchorAssetsUpper())
	})

	di.RegisterToken(c, arbitrageDI.Ledger, func(sr di.ServiceRegistry) *infra.SQLiteLedger {
		cfg := sr.Get("config").(*config.Config)
		if cfg.Storage.SQLitePath == "" {
			return nil
		}
		l, err := infra.NewSQLiteLedger(cfg.Storage.SQLitePath)
		if err != nil {
			panic("failed to open ledger: " + err.Error())
		}
		return l
	})

	di.RegisterToken(c, arbitrageDI.Console, func(sr di.ServiceRegistry) *infra.ConsoleReporter {
		return infra.NewConsoleReporter(os.Stdout)
	})

	// Sinks - private dependency
	di.RegisterToken(c, arbitrageDI.Sinks, func(sr di.ServiceRegistry) app.EventSinks {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		sinks := app.EventSinks{infra.NewLogSink(log)}
		if cfg.Telemetry.Enabled {
			ms, err := infra.NewMetricsSink(otel.Meter("arbitrage"))
			if err != nil {
				log.Warn(context.Background(), "metrics sink disabled", "error", err)
			} else {
				sinks = append(sinks, ms)
			}
		}
		if cfg.App.TUIMode {
			sinks = append(sinks, infra.NewTUISink(ui.Send))
		} else {
			sinks = append(sinks, arbitrageDI.GetConsole(sr))
		}
		return sinks
	})

	// Engine (public - exposed to main)
	di.RegisterToken(c, arbitrageDI.Engine, func(sr di.ServiceRegistry) *app.Engine {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		svc := exchangeDI.GetExchangeService(sr)
		sinks := arbitrageDI.GetSinks(sr)

		var ledger app.Ledger = app.NopLedger
		if l := arbitrageDI.GetLedger(sr); l != nil {
			ledger = l
		}

		ec := cfg.Engine
		evaluator := app.NewEvaluator(svc, ec.MaxRefinements)
		scheduler := app.NewScheduler(arbitrageDI.GetCycles(sr), app.SchedulerConfig{
			Mode:         ec.SchedulerMode,
			Reward:       ec.Reward,
			Penalty:      ec.Penalty,
			FloorEnabled: ec.ScoreFloorEnabled,
			Floor:        ec.ScoreFloor,
		})
		executor := app.NewExecutor(svc, ledger, sinks, app.ExecutorConfig{
			PollInterval: ec.PollInterval,
			PollAttempts: ec.PollAttempts,
			UnwindPolicy: ec.UnwindPolicy,
		}, nil, log)

		bc := app.DefaultBackoffConfig()
		if len(ec.NetworkSleeps) > 0 {
			bc.NetworkSleeps = ec.NetworkSleeps
		}
		if ec.ExchangeSleep > 0 {
			bc.ExchangeSleep = ec.ExchangeSleep
		}
		if ec.ExchangeErrorCap > 0 {
			bc.ExchangeErrorCap = ec.ExchangeErrorCap
		}

		return app.NewEngine(svc, evaluator, scheduler, executor, app.NewBackoffController(bc, nil), ledger, sinks,
			app.EngineConfig{
				MinProfit:           ec.MinProfitDecimal(),
				Slippage:            ec.SlippageDecimals(),
				PriceSource:         ec.PriceSource,
				DepthLimit:          cfg.Exchange.DepthLimit,
				BalanceRefreshEvery: ec.BalanceRefreshEvery,
				DryRun:              ec.DryRun,
			}, log)
	})

	return nil
}

// Startup builds the cycles and, when enabled, subscribes the depth stream
// to every market they trade.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	cfg := mono.Config()
	log := mono.Logger()
	sr := mono.Services()

	anchors := cfg.Engine.AnchorAssetsUpper()
	cycles := arbitrageDI.GetCycles(sr)
	if len(cycles) == 0 {
		return apperror.New(apperror.CodeInvalidState,
			apperror.WithContext("no cycles for anchors "+strings.Join(anchors, ",")))
	}
	log.Info(ctx, "cycles built", "anchors", anchors, "cycles", len(cycles))

	// Resolve now so wiring failures surface before the run starts.
	arbitrageDI.GetEngine(sr)

	if cfg.Exchange.StreamDepth {
		svc := exchangeDI.GetExchangeService(sr)
		symbols := cycleSymbols(cycles)
		err := svc.StreamDepth(ctx, symbols)
		arbitrageDI.GetSinks(sr).Emit(ctx, domain.ConnectionEvent{
			Name:      svc.Name() + " depth",
			Connected: err == nil,
		})
		if err != nil {
			log.Warn(ctx, "depth stream unavailable, using REST books", "error", err)
		} else {
			log.Info(ctx, "depth stream subscribed", "symbols", len(symbols))
		}
	}

	log.Info(ctx, "arbitrage module started",
		"dry_run", cfg.Engine.DryRun,
		"price_source", cfg.Engine.PriceSource,
		"scheduler", cfg.Engine.SchedulerMode,
	)
	return nil
}

// cycleSymbols returns every market traded by cycles, once, sorted.
func cycleSymbols(cycles []domain.Cycle) []exchangeDomain.Symbol {
	seen := make(map[exchangeDomain.Symbol]struct{})
	var out []exchangeDomain.Symbol
	for _, c := range cycles {
		for _, s := range c.Symbols() {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
