// Package domain contains the core domain types for the exchange context.
package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fd1az/triarb-bot/internal/apperror"
)

// Symbol is a spot trading pair, e.g. ETH/BTC.
type Symbol struct {
	Base  string
	Quote string
}

// NewSymbol creates a symbol with upper-cased assets.
func NewSymbol(base, quote string) Symbol {
	return Symbol{Base: strings.ToUpper(base), Quote: strings.ToUpper(quote)}
}

// ParseSymbol parses the "BASE/QUOTE" form.
func ParseSymbol(s string) (Symbol, error) {
	base, quote, ok := strings.Cut(s, "/")
	if !ok || base == "" || quote == "" {
		return Symbol{}, apperror.Validation(apperror.CodeInvalidInput, "symbol "+s)
	}
	return NewSymbol(base, quote), nil
}

// String returns the unified "BASE/QUOTE" form.
func (s Symbol) String() string {
	return s.Base + "/" + s.Quote
}

// ExchangeID returns the concatenated venue form, e.g. ETHBTC.
func (s Symbol) ExchangeID() string {
	return s.Base + s.Quote
}

// IsZero reports whether the symbol is unset.
func (s Symbol) IsZero() bool {
	return s.Base == "" && s.Quote == ""
}

// Limits bounds a quantity. A zero Max means unbounded.
type Limits struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// Contains reports whether v lies within the limits.
func (l Limits) Contains(v decimal.Decimal) bool {
	if v.LessThan(l.Min) {
		return false
	}
	return l.Max.IsZero() || v.LessThanOrEqual(l.Max)
}

// Precision holds the number of decimal places accepted per quantity.
type Precision struct {
	Amount int32
	Price  int32
	Cost   int32
}

// Market describes a tradable symbol and its trading rules.
type Market struct {
	Symbol    Symbol
	ID        string // venue identifier, e.g. ETHBTC
	Active    bool
	TakerFee  decimal.Decimal
	MakerFee  decimal.Decimal
	Amount    Limits
	Cost      Limits
	Precision Precision
}

// AmountToPrecision truncates an order amount to the market's amount precision.
func (m Market) AmountToPrecision(v decimal.Decimal) decimal.Decimal {
	return v.Truncate(m.Precision.Amount)
}

// PriceToPrecision rounds a price to the market's price precision.
func (m Market) PriceToPrecision(v decimal.Decimal) decimal.Decimal {
	return v.Round(m.Precision.Price)
}

// CostToPrecision truncates a cost to the market's cost precision.
func (m Market) CostToPrecision(v decimal.Decimal) decimal.Decimal {
	return v.Truncate(m.Precision.Cost)
}

// CheckOrder verifies that an already rounded amount and its cost satisfy the
// market limits.
func (m Market) CheckOrder(amount, price decimal.Decimal) error {
	if !amount.IsPositive() || !m.Amount.Contains(amount) {
		return apperror.New(apperror.CodePrecisionViolation,
			apperror.WithContext(fmt.Sprintf("%s amount %s outside [%s, %s]",
				m.Symbol, amount, m.Amount.Min, m.Amount.Max)))
	}
	cost := amount.Mul(price)
	if !m.Cost.Contains(cost) {
		return apperror.New(apperror.CodePrecisionViolation,
			apperror.WithContext(fmt.Sprintf("%s cost %s outside [%s, %s]",
				m.Symbol, cost, m.Cost.Min, m.Cost.Max)))
	}
	return nil
}

// Validate checks the market definition itself.
func (m Market) Validate() error {
	if m.Symbol.Base == "" || m.Symbol.Quote == "" {
		return apperror.Validation(apperror.CodeInvalidInput, "market symbol")
	}
	if m.Precision.Amount < 0 || m.Precision.Price < 0 || m.Precision.Cost < 0 {
		return apperror.Validation(apperror.CodeInvalidInput, m.Symbol.String()+": negative precision")
	}
	if !m.Amount.Max.IsZero() && m.Amount.Max.LessThan(m.Amount.Min) {
		return apperror.Validation(apperror.CodeInvalidInput, m.Symbol.String()+": amount max below min")
	}
	return nil
}

// DecimalsFromStep converts a step or tick size such as "0.00100000" into a
// number of decimal places (3). A step of 1 or more gives 0.
func DecimalsFromStep(step decimal.Decimal) int32 {
	if !step.IsPositive() {
		return 0
	}
	var places int32
	one := decimal.NewFromInt(1)
	for step.LessThan(one) && places < 18 {
		step = step.Shift(1)
		places++
	}
	return places
}
