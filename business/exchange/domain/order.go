package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state reported by the venue.
type OrderStatus string

const (
	OrderOpen            OrderStatus = "open"
	OrderPartiallyFilled OrderStatus = "partially_filled"
	OrderClosed          OrderStatus = "closed"
	OrderCanceled        OrderStatus = "canceled"
)

func (s OrderStatus) rank() int {
	switch s {
	case OrderPartiallyFilled:
		return 1
	case OrderClosed, OrderCanceled:
		return 2
	default:
		return 0
	}
}

// Terminal reports whether no further fills can happen.
func (s OrderStatus) Terminal() bool {
	return s.rank() == 2
}

// CanTransition reports whether a status may follow s. Statuses never move
// backwards and a terminal status never changes.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	if s.Terminal() {
		return s == to
	}
	return to.rank() >= s.rank()
}

// Fee is the commission charged on a fill.
type Fee struct {
	Cost     decimal.Decimal
	Currency string
}

// Order is a limit order and its fill state.
type Order struct {
	ID        string
	Symbol    Symbol
	Side      Side
	Status    OrderStatus
	Price     decimal.Decimal // limit price
	Amount    decimal.Decimal // requested base amount
	Filled    decimal.Decimal // executed base amount
	Cost      decimal.Decimal // executed quote amount
	Fee       Fee
	Timestamp time.Time
}

// Remaining returns the unfilled base amount.
func (o *Order) Remaining() decimal.Decimal {
	r := o.Amount.Sub(o.Filled)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// Average returns the average fill price, zero when nothing filled.
func (o *Order) Average() decimal.Decimal {
	if !o.Filled.IsPositive() {
		return decimal.Zero
	}
	return o.Cost.Div(o.Filled)
}

// Received returns what the order delivered to the account net of fees
// charged in the received asset: base for buys, quote for sells.
func (o *Order) Received() decimal.Decimal {
	if o.Side == SideBuy {
		if o.Fee.Currency == o.Symbol.Base {
			return o.Filled.Sub(o.Fee.Cost)
		}
		return o.Filled
	}
	if o.Fee.Currency == o.Symbol.Quote {
		return o.Cost.Sub(o.Fee.Cost)
	}
	return o.Cost
}

// Spent returns what the order took from the account: quote for buys, base
// for sells.
func (o *Order) Spent() decimal.Decimal {
	if o.Side == SideBuy {
		return o.Cost
	}
	return o.Filled
}

// Update applies a newer snapshot of the same order, keeping the status
// monotonic.
func (o *Order) Update(next *Order) {
	if o.Status.CanTransition(next.Status) {
		o.Status = next.Status
	}
	if next.Filled.GreaterThan(o.Filled) {
		o.Filled = next.Filled
		o.Cost = next.Cost
		o.Fee = next.Fee
	}
	if !next.Timestamp.IsZero() {
		o.Timestamp = next.Timestamp
	}
}
