package domain

import (
	"github.com/shopspring/decimal"
)

// MinReturn is the smallest return that makes invested worth trading:
// invested × (1 + minProfit).
func MinReturn(invested, minProfit decimal.Decimal) decimal.Decimal {
	return invested.Mul(decimal.NewFromInt(1).Add(minProfit))
}

// IsProfitable reports whether netReturn clears the relative threshold.
// Nothing invested is never profitable.
func IsProfitable(netReturn, invested, minProfit decimal.Decimal) bool {
	if !invested.IsPositive() {
		return false
	}
	return netReturn.GreaterThanOrEqual(MinReturn(invested, minProfit))
}

// ProfitResult summarises the return of a cycle against its cost.
type ProfitResult struct {
	Invested     decimal.Decimal
	Return       decimal.Decimal
	MinReturn    decimal.Decimal
	NetProfit    decimal.Decimal
	NetProfitPct decimal.Decimal // as percentage (e.g., 2.38 for 2.38%)
	IsProfitable bool
}

// NewProfitResult applies the profitability decision.
func NewProfitResult(invested, netReturn, minProfit decimal.Decimal) ProfitResult {
	net := netReturn.Sub(invested)
	pct := decimal.Zero
	if invested.IsPositive() {
		pct = net.Div(invested).Mul(decimal.NewFromInt(100))
	}
	return ProfitResult{
		Invested:     invested,
		Return:       netReturn,
		MinReturn:    MinReturn(invested, minProfit),
		NetProfit:    net,
		NetProfitPct: pct,
		IsProfitable: IsProfitable(netReturn, invested, minProfit),
	}
}
