// Package domain contains the core domain types for the arbitrage context.
package domain

import (
	exchangeDomain "github.com/fd1az/triarb-bot/business/exchange/domain"
)

// Direction is the order of sides taken around a cycle.
type Direction string

const (
	// DirectionBBS buys intermediate with base, buys ticker with
	// intermediate and sells ticker for base.
	DirectionBBS Direction = "BBS"

	// DirectionBSS buys ticker with base, sells ticker for intermediate and
	// sells intermediate for base.
	DirectionBSS Direction = "BSS"
)

// Directions lists both directions in evaluation order.
var Directions = []Direction{DirectionBBS, DirectionBSS}

// String returns a human-readable description of the direction.
func (d Direction) String() string {
	switch d {
	case DirectionBBS:
		return "BBS (buy, buy, sell)"
	case DirectionBSS:
		return "BSS (buy, sell, sell)"
	default:
		return "Unknown"
	}
}

// LegPlan identifies one trade of a cycle.
type LegPlan struct {
	Symbol exchangeDomain.Symbol
	Side   exchangeDomain.Side
}

// InputAsset is the asset spent by the leg.
func (l LegPlan) InputAsset() string {
	if l.Side == exchangeDomain.SideBuy {
		return l.Symbol.Quote
	}
	return l.Symbol.Base
}

// OutputAsset is the asset received by the leg.
func (l LegPlan) OutputAsset() string {
	if l.Side == exchangeDomain.SideBuy {
		return l.Symbol.Base
	}
	return l.Symbol.Quote
}

// Legs returns the three trades of c in execution order.
func (d Direction) Legs(c Cycle) [3]LegPlan {
	s := c.Symbols()
	intermediateBase, tickerIntermediate, tickerBase := s[0], s[1], s[2]

	if d == DirectionBSS {
		return [3]LegPlan{
			{Symbol: tickerBase, Side: exchangeDomain.SideBuy},
			{Symbol: tickerIntermediate, Side: exchangeDomain.SideSell},
			{Symbol: intermediateBase, Side: exchangeDomain.SideSell},
		}
	}
	return [3]LegPlan{
		{Symbol: intermediateBase, Side: exchangeDomain.SideBuy},
		{Symbol: tickerIntermediate, Side: exchangeDomain.SideBuy},
		{Symbol: tickerBase, Side: exchangeDomain.SideSell},
	}
}
