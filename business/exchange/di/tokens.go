// Package di contains dependency injection tokens for the exchange context.
package di

import (
	"github.com/fd1az/triarb-bot/business/exchange/app"
	"github.com/fd1az/triarb-bot/internal/di"
)

// Public service tokens - exposed to other modules
var (
	ExchangeService = di.NewToken[*app.ExchangeService]("exchange.ExchangeService")
)

// Private dependency tokens - internal to exchange module
var (
	Adapter = di.NewToken[app.Exchange]("exchange:adapter")
)

// Helper functions for type-safe access
func GetExchangeService(c di.ServiceRegistry) *app.ExchangeService {
	return di.GetToken(c, ExchangeService)
}

func GetAdapter(c di.ServiceRegistry) app.Exchange {
	return di.GetToken(c, Adapter)
}
