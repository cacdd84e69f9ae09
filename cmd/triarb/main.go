// Package main is the entry point for the triangular arbitrage bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/fd1az/triarb-bot/business/arbitrage"
	arbitrageApp "github.com/fd1az/triarb-bot/business/arbitrage/app"
	arbitrageDI "github.com/fd1az/triarb-bot/business/arbitrage/di"
	"github.com/fd1az/triarb-bot/business/exchange"
	exchangeDI "github.com/fd1az/triarb-bot/business/exchange/di"
	"github.com/fd1az/triarb-bot/internal/apm"
	"github.com/fd1az/triarb-bot/internal/config"
	"github.com/fd1az/triarb-bot/internal/health"
	"github.com/fd1az/triarb-bot/internal/logger"
	"github.com/fd1az/triarb-bot/internal/metrics"
	"github.com/fd1az/triarb-bot/internal/monolith"
	"github.com/fd1az/triarb-bot/pkg/ui"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// aliveWindow is how long the engine may go without finishing a round
// before the health check reports it down.
const aliveWindow = 5 * time.Minute

type options struct {
	configPath string
	tuiMode    bool
	cycles     bool
	history    int
}

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	cliMode := flag.Bool("cli", false, "Run in CLI mode with logs (no TUI)")
	showVersion := flag.Bool("version", false, "Show version information")
	showCycles := flag.Bool("cycles", false, "Print the cycles built from the exchange markets as YAML and exit")
	history := flag.Int("history", 0, "Print the last N recorded operations and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("triarb-bot %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	opts := options{
		configPath: *configPath,
		// TUI is the default, CLI is for servers and debugging
		tuiMode: !*cliMode && !*showCycles && *history == 0,
		cycles:  *showCycles,
		history: *history,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		if !opts.tuiMode {
			fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		}
		cancel()
	}()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.App.TUIMode = opts.tuiMode

	// The TUI owns the terminal, so logs are discarded there.
	var out io.Writer = os.Stderr
	if opts.tuiMode {
		out = io.Discard
	}
	log := logger.New(out, logger.ParseLevel(cfg.App.LogLevel), cfg.App.Name, apm.TraceID)
	log.Info(ctx, "starting triangular arbitrage bot",
		"version", version,
		"environment", cfg.App.Environment,
		"exchange", cfg.Exchange.Name,
		"dry_run", cfg.Engine.DryRun,
	)

	if cfg.Telemetry.Enabled {
		stop, err := startTelemetry(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer stop()
	}

	mono := monolith.New(cfg, log)
	defer mono.Close()

	exchangeModule := &exchange.Module{}
	arbitrageModule := &arbitrage.Module{}
	if err := mono.RegisterModules(exchangeModule, arbitrageModule); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}

	if opts.history > 0 {
		return printHistory(ctx, mono, opts.history)
	}

	if opts.cycles {
		if err := mono.StartModules(ctx, exchangeModule); err != nil {
			return fmt.Errorf("failed to start exchange: %w", err)
		}
		mono.OnClose(exchangeDI.GetExchangeService(mono.Services()))
		return yaml.NewEncoder(os.Stdout).Encode(arbitrageDI.GetCycles(mono.Services()))
	}

	// Set once startup completes; health checks fail until then.
	var engineRef atomic.Pointer[arbitrageApp.Engine]
	if cfg.Health.Enabled {
		hs := health.NewServer(cfg.Health.Port, version, log)
		hs.RegisterCheck("engine", func(context.Context) (bool, string) {
			engine := engineRef.Load()
			switch {
			case engine == nil:
				return false, "starting"
			case engine.Alive(aliveWindow):
				return true, "iterating"
			default:
				return false, "no round finished in " + aliveWindow.String()
			}
		})
		hs.Start(ctx)
		defer hs.Stop(context.WithoutCancel(ctx))
		log.Info(ctx, "health server started", "port", cfg.Health.Port)
	}

	start := func() (*arbitrageApp.Engine, error) {
		ui.Send(ui.StartupMsg{Step: "config", Status: "done"})

		ui.Send(ui.StartupMsg{Step: "markets", Status: "connecting"})
		if err := mono.StartModules(ctx, exchangeModule); err != nil {
			ui.Send(ui.StartupMsg{Step: "markets", Status: "failed", Message: err.Error()})
			return nil, fmt.Errorf("failed to start exchange: %w", err)
		}
		svc := exchangeDI.GetExchangeService(mono.Services())
		mono.OnClose(svc)
		ui.Send(ui.StartupMsg{Step: "markets", Status: "done"})

		ui.Send(ui.StartupMsg{Step: "stream", Status: "connecting"})
		if err := mono.StartModules(ctx, arbitrageModule); err != nil {
			ui.Send(ui.StartupMsg{Step: "stream", Status: "failed", Message: err.Error()})
			return nil, fmt.Errorf("failed to start arbitrage: %w", err)
		}
		if ledger := arbitrageDI.GetLedger(mono.Services()); ledger != nil {
			mono.OnClose(ledger)
		}
		ui.Send(ui.StartupMsg{Step: "stream", Status: "done"})

		engine := arbitrageDI.GetEngine(mono.Services())
		engineRef.Store(engine)
		ui.Send(ui.StartupMsg{Step: "engine", Status: "done"})
		return engine, nil
	}

	if opts.tuiMode {
		return runTUI(ctx, cfg, start)
	}
	return runCLI(ctx, cfg, log, start)
}

// startTelemetry installs the trace and meter providers and serves the
// Prometheus endpoint. The returned func shuts them down.
func startTelemetry(ctx context.Context, cfg *config.Config, log logger.LoggerInterface) (func(), error) {
	tp, err := apm.NewTraceProvider(cfg.Telemetry, log)
	if err != nil {
		return nil, fmt.Errorf("failed to start tracing: %w", err)
	}
	log.Info(ctx, "tracing initialized", "provider", cfg.Telemetry.TraceProvider)

	opts := []metrics.OptionFn{
		metrics.WithServiceName(cfg.Telemetry.ServiceName),
		metrics.WithPrometheus(),
	}
	if cfg.Telemetry.OTLPEndpoint != "" {
		opts = append(opts, metrics.WithOtelCollector(cfg.Telemetry.OTLPEndpoint, apm.ParseHeaders(cfg.Telemetry.OTLPHeaders), true))
	}
	mp, err := metrics.NewMetricProvider(opts...)
	if err != nil {
		tp.Stop()
		return nil, fmt.Errorf("failed to start metrics: %w", err)
	}

	prom := metrics.NewPrometheusServer(cfg.Telemetry.PrometheusPort, log)
	prom.Start(ctx)
	log.Info(ctx, "prometheus metrics server started", "port", cfg.Telemetry.PrometheusPort)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := prom.Stop(shutdownCtx); err != nil {
			log.Warn(shutdownCtx, "prometheus server shutdown", "error", err)
		}
		if err := mp.Shutdown(shutdownCtx); err != nil {
			log.Warn(shutdownCtx, "meter provider shutdown", "error", err)
		}
		if err := tp.Stop(); err != nil {
			log.Warn(shutdownCtx, "trace provider shutdown", "error", err)
		}
	}, nil
}

// printHistory prints the newest recorded operations.
func printHistory(ctx context.Context, mono monolith.Monolith, n int) error {
	ledger := arbitrageDI.GetLedger(mono.Services())
	if ledger == nil {
		return fmt.Errorf("storage.sqlite_path is not set")
	}
	defer ledger.Close()

	ops, err := ledger.RecentOperations(ctx, n)
	if err != nil {
		return fmt.Errorf("failed to read operations: %w", err)
	}
	arbitrageDI.GetConsole(mono.Services()).PrintOperations(ops)

	total, profitable, err := ledger.CountEvaluations(ctx)
	if err != nil {
		return fmt.Errorf("failed to count evaluations: %w", err)
	}
	fmt.Printf("\n%d evaluations recorded, %d profitable\n", total, profitable)
	return nil
}

func runCLI(ctx context.Context, cfg *config.Config, log logger.LoggerInterface, start func() (*arbitrageApp.Engine, error)) error {
	engine, err := start()
	if err != nil {
		return err
	}
	log.Info(ctx, "all modules started, beginning arbitrage loop")

	return engine.RunLoop(ctx, cfg.Engine.InitialInvestmentDecimal())
}

func runTUI(ctx context.Context, cfg *config.Config, start func() (*arbitrageApp.Engine, error)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Fired by the model when the welcome screen completes
	startSignal := make(chan struct{}, 1)
	ui.OnStartModules = func() {
		select {
		case startSignal <- struct{}{}:
		default:
		}
	}

	// Create the program first so the welcome screen shows immediately
	p := tea.NewProgram(ui.New(), tea.WithAltScreen(), tea.WithContext(ctx))
	ui.Program = p

	errCh := make(chan error, 1)
	go func() {
		select {
		case <-startSignal:
		case <-ctx.Done():
			errCh <- nil
			return
		}

		engine, err := start()
		if err != nil {
			ui.Send(ui.ErrorMsg{Error: err, Class: "startup", Fatal: true})
			errCh <- err
			return
		}

		go pushSummaries(ctx, engine)

		err = engine.RunLoop(ctx, cfg.Engine.InitialInvestmentDecimal())
		if err != nil {
			ui.Send(ui.ErrorMsg{Error: err, Class: "engine", Fatal: true})
		}
		errCh <- err
	}()

	_, runErr := p.Run()
	cancel()
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", runErr)
	}

	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		return nil
	}
}

// pushSummaries keeps the stats panel current between balance refreshes.
func pushSummaries(ctx context.Context, engine *arbitrageApp.Engine) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ui.Send(ui.SummaryMsg{Summary: engine.Summary()})
			if b := engine.Balances(); b != nil {
				ui.Send(ui.BalanceMsg{Balances: b})
			}
		}
	}
}
