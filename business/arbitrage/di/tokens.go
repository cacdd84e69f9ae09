// Package di contains dependency injection tokens for the arbitrage context.
package di

import (
	"github.com/fd1az/triarb-bot/business/arbitrage/app"
	"github.com/fd1az/triarb-bot/business/arbitrage/domain"
	"github.com/fd1az/triarb-bot/business/arbitrage/infra"
	"github.com/fd1az/triarb-bot/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Engine = di.NewToken[*app.Engine]("arbitrage.Engine")
	// Ledger is nil when storage is disabled.
	Ledger  = di.NewToken[*infra.SQLiteLedger]("arbitrage.Ledger")
	Cycles  = di.NewToken[[]domain.Cycle]("arbitrage.Cycles")
	Console = di.NewToken[*infra.ConsoleReporter]("arbitrage.Console")
)

// Private dependency tokens - internal to arbitrage module
var (
	Sinks = di.NewToken[app.EventSinks]("arbitrage:sinks")
)

// Helper functions for type-safe access
func GetEngine(c di.ServiceRegistry) *app.Engine {
	return di.GetToken(c, Engine)
}

func GetLedger(c di.ServiceRegistry) *infra.SQLiteLedger {
	return di.GetToken(c, Ledger)
}

func GetCycles(c di.ServiceRegistry) []domain.Cycle {
	return di.GetToken(c, Cycles)
}

func GetConsole(c di.ServiceRegistry) *infra.ConsoleReporter {
	return di.GetToken(c, Console)
}

func GetSinks(c di.ServiceRegistry) app.EventSinks {
	return di.GetToken(c, Sinks)
}
