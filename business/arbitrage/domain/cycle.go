package domain

import (
	"sort"
	"strings"

	exchangeDomain "github.com/fd1az/triarb-bot/business/exchange/domain"
)

// Cycle is a closed three-asset loop base -> intermediate -> ticker -> base.
// Its markets are intermediate/base, ticker/intermediate and ticker/base.
type Cycle struct {
	Base         string `yaml:"base"`
	Intermediate string `yaml:"intermediate"`
	Ticker       string `yaml:"ticker"`
}

// NewCycle normalizes the asset codes to upper case.
func NewCycle(base, intermediate, ticker string) Cycle {
	return Cycle{
		Base:         strings.ToUpper(base),
		Intermediate: strings.ToUpper(intermediate),
		Ticker:       strings.ToUpper(ticker),
	}
}

// ID returns "base_intermediate_ticker".
func (c Cycle) ID() string {
	return c.Base + "_" + c.Intermediate + "_" + c.Ticker
}

func (c Cycle) String() string {
	return c.Base + " → " + c.Intermediate + " → " + c.Ticker + " → " + c.Base
}

// Symbols returns the three markets of the cycle in a fixed order.
func (c Cycle) Symbols() [3]exchangeDomain.Symbol {
	return [3]exchangeDomain.Symbol{
		exchangeDomain.NewSymbol(c.Intermediate, c.Base),
		exchangeDomain.NewSymbol(c.Ticker, c.Intermediate),
		exchangeDomain.NewSymbol(c.Ticker, c.Base),
	}
}

// BuildCycles enumerates every cycle that starts and ends in one of the
// anchor assets. Markets are indexed by quote asset, so each anchor costs
// O(intermediates × tickers per intermediate) lookups. The result is sorted
// by cycle id and holds no duplicates.
func BuildCycles(markets []exchangeDomain.Market, anchors []string) []Cycle {
	// quote -> set of bases
	byQuote := make(map[string]map[string]struct{})
	for _, m := range markets {
		if !m.Active {
			continue
		}
		bases, ok := byQuote[m.Symbol.Quote]
		if !ok {
			bases = make(map[string]struct{})
			byQuote[m.Symbol.Quote] = bases
		}
		bases[m.Symbol.Base] = struct{}{}
	}

	seen := make(map[string]struct{})
	var cycles []Cycle
	for _, anchor := range anchors {
		anchor = strings.ToUpper(anchor)
		anchored := byQuote[anchor]
		for intermediate := range anchored {
			for ticker := range byQuote[intermediate] {
				if ticker == anchor {
					continue
				}
				if _, ok := anchored[ticker]; !ok {
					continue
				}
				c := Cycle{Base: anchor, Intermediate: intermediate, Ticker: ticker}
				if _, dup := seen[c.ID()]; dup {
					continue
				}
				seen[c.ID()] = struct{}{}
				cycles = append(cycles, c)
			}
		}
	}

	sort.Slice(cycles, func(i, j int) bool { return cycles[i].ID() < cycles[j].ID() })
	return cycles
}
