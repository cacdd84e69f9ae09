package domain

import (
	"github.com/shopspring/decimal"

	exchangeDomain "github.com/fd1az/triarb-bot/business/exchange/domain"
	"github.com/fd1az/triarb-bot/internal/apperror"
)

// TargetKind says which quantity a depth walk is sized by.
type TargetKind int

const (
	// ByCost sizes the walk in quote units.
	ByCost TargetKind = iota
	// ByAmount sizes the walk in base units.
	ByAmount
)

// Target is the size a depth walk tries to fill.
type Target struct {
	Kind  TargetKind
	Value decimal.Decimal
}

// CostTarget returns a target of cost quote units.
func CostTarget(cost decimal.Decimal) Target { return Target{Kind: ByCost, Value: cost} }

// AmountTarget returns a target of amount base units.
func AmountTarget(amount decimal.Decimal) Target { return Target{Kind: ByAmount, Value: amount} }

// PonderedPrice is the result of walking one side of a book.
type PonderedPrice struct {
	// AchievedPrice is TotalCost / TotalAmount.
	AchievedPrice decimal.Decimal
	// LimitPrice is the price of the last level consumed.
	LimitPrice  decimal.Decimal
	TotalCost   decimal.Decimal
	TotalAmount decimal.Decimal
	// Complete is false when the book ran out before the target was met;
	// the totals then hold the whole available depth.
	Complete bool
}

// Ponder walks the levels a taker of side consumes (asks for a buy, bids for
// a sell) from best to worst until target is met. The crossing level is
// taken fractionally.
//
// An empty book or a non-positive target yields UNDEFINED_PRICE.
func Ponder(book *exchangeDomain.Orderbook, side exchangeDomain.Side, target Target) (PonderedPrice, error) {
	if book == nil {
		return PonderedPrice{}, apperror.New(apperror.CodeUndefinedPrice, apperror.WithContext("no order book"))
	}
	return PonderLevels(book.Levels(side), target)
}

// PonderLevels is Ponder over an already selected side.
func PonderLevels(levels []exchangeDomain.OrderbookLevel, target Target) (PonderedPrice, error) {
	if !target.Value.IsPositive() {
		return PonderedPrice{}, apperror.New(apperror.CodeUndefinedPrice,
			apperror.WithContext("non-positive target "+target.Value.String()))
	}

	var res PonderedPrice
	for _, level := range levels {
		if !level.Price.IsPositive() || !level.Amount.IsPositive() {
			continue
		}
		levelCost := level.Cost()
		res.LimitPrice = level.Price

		if target.Kind == ByCost && res.TotalCost.Add(levelCost).GreaterThanOrEqual(target.Value) {
			remaining := target.Value.Sub(res.TotalCost)
			res.TotalAmount = res.TotalAmount.Add(remaining.Div(level.Price))
			res.TotalCost = target.Value
			res.Complete = true
			break
		}
		if target.Kind == ByAmount && res.TotalAmount.Add(level.Amount).GreaterThanOrEqual(target.Value) {
			remaining := target.Value.Sub(res.TotalAmount)
			res.TotalCost = res.TotalCost.Add(remaining.Mul(level.Price))
			res.TotalAmount = target.Value
			res.Complete = true
			break
		}

		res.TotalCost = res.TotalCost.Add(levelCost)
		res.TotalAmount = res.TotalAmount.Add(level.Amount)
	}

	if !res.TotalAmount.IsPositive() {
		return PonderedPrice{}, apperror.New(apperror.CodeUndefinedPrice,
			apperror.WithContext("no depth consumed"))
	}
	res.AchievedPrice = res.TotalCost.Div(res.TotalAmount)
	return res, nil
}
