package app

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/triarb-bot/business/arbitrage/domain"
	exchangeDomain "github.com/fd1az/triarb-bot/business/exchange/domain"
	"github.com/fd1az/triarb-bot/internal/apperror"
)

// DefaultMaxRefinements bounds the back-propagation passes.
const DefaultMaxRefinements = 8

// Evaluator computes the fee-adjusted, depth-limited return of a cycle.
// It is a pure function of its inputs and safe for concurrent use.
type Evaluator struct {
	rules          MarketRules
	maxRefinements int
	now            func() time.Time
}

// NewEvaluator creates a new Evaluator.
func NewEvaluator(rules MarketRules, maxRefinements int) *Evaluator {
	if maxRefinements < 1 {
		maxRefinements = DefaultMaxRefinements
	}
	return &Evaluator{
		rules:          rules,
		maxRefinements: maxRefinements,
		now:            time.Now,
	}
}

type legInput struct {
	plan   domain.LegPlan
	market exchangeDomain.Market
	book   *exchangeDomain.Orderbook
	keep   decimal.Decimal // 1 - taker fee
}

// Evaluate chains the three legs of cycle in direction dir starting from at
// most investment units of the base asset. books holds the order book of
// each leg in execution order.
//
// When a leg cannot absorb what the previous leg delivers, the leg 1 input
// is recomputed backward from that leg and the chain is walked again, until
// every leg fits or the refinement budget runs out.
//
// Errors classified as no opportunity (INSUFFICIENT_LIQUIDITY,
// UNDEFINED_PRICE, PRECISION_VIOLATION) mean the cycle is not tradable now.
func (e *Evaluator) Evaluate(
	cycle domain.Cycle,
	dir domain.Direction,
	books [3]*exchangeDomain.Orderbook,
	investment decimal.Decimal,
	minProfit decimal.Decimal,
) (*domain.Evaluation, error) {
	start := e.now()

	var legs [3]legInput
	for i, plan := range dir.Legs(cycle) {
		m, err := e.rules.Market(plan.Symbol)
		if err != nil {
			return nil, err
		}
		if books[i] == nil {
			return nil, apperror.New(apperror.CodeUndefinedPrice,
				apperror.WithContext("no order book for "+plan.Symbol.String()))
		}
		keep := decimal.NewFromInt(1).Sub(m.TakerFee)
		if !keep.IsPositive() {
			return nil, apperror.Validation(apperror.CodeInvalidInput,
				fmt.Sprintf("%s taker fee %s", plan.Symbol, m.TakerFee))
		}
		legs[i] = legInput{plan: plan, market: m, book: books[i], keep: keep}
	}

	input := legs[0].market.CostToPrecision(investment)
	for pass := 0; pass < e.maxRefinements; pass++ {
		if !input.IsPositive() {
			return nil, insufficientLiquidity(cycle, dir, "nothing to invest")
		}

		quotes, stuck, capacity, err := e.forward(legs, input)
		if err != nil {
			return nil, err
		}
		if stuck < 0 {
			return &domain.Evaluation{
				Cycle:       cycle,
				Direction:   dir,
				Legs:        quotes,
				Investment:  investment,
				Profit:      domain.NewProfitResult(quotes[0].Cost, quotes[2].Output, minProfit),
				Refinements: pass,
				Timestamp:   start,
				Duration:    e.now().Sub(start),
			}, nil
		}

		next, err := e.backward(legs, stuck, capacity)
		if err != nil {
			return nil, err
		}
		if !next.LessThan(input) {
			return nil, insufficientLiquidity(cycle, dir,
				fmt.Sprintf("leg %d input did not shrink below %s", stuck+1, input))
		}
		input = next
	}

	return nil, insufficientLiquidity(cycle, dir,
		fmt.Sprintf("no fit after %d refinements", e.maxRefinements))
}

// forward walks the chain from a leg 1 input. It stops at the first leg
// whose book cannot absorb its input and returns that leg's index and the
// input it can take; stuck is -1 when every leg fits.
func (e *Evaluator) forward(legs [3]legInput, input decimal.Decimal) ([3]domain.LegQuote, int, decimal.Decimal, error) {
	var quotes [3]domain.LegQuote
	for i, leg := range legs {
		q, complete, err := quoteLeg(leg, input)
		if err != nil {
			return quotes, 0, decimal.Zero, err
		}
		quotes[i] = q
		if !complete {
			return quotes, i, q.Input, nil
		}
		if err := leg.market.CheckOrder(q.Amount, q.LimitPrice); err != nil {
			return quotes, 0, decimal.Zero, err
		}
		input = q.Output
	}
	return quotes, -1, decimal.Zero, nil
}

// backward finds the leg 1 input whose output chain delivers exactly
// capacity into leg stuck.
func (e *Evaluator) backward(legs [3]legInput, stuck int, capacity decimal.Decimal) (decimal.Decimal, error) {
	need := capacity
	for j := stuck - 1; j >= 0; j-- {
		leg := legs[j]
		gross := need.Div(leg.keep)

		target := domain.AmountTarget(gross)
		if leg.plan.Side == exchangeDomain.SideSell {
			target = domain.CostTarget(gross)
		}
		p, err := domain.Ponder(leg.book, leg.plan.Side, target)
		if err != nil {
			return decimal.Zero, err
		}
		if leg.plan.Side == exchangeDomain.SideBuy {
			need = p.TotalCost
		} else {
			need = p.TotalAmount
		}
	}
	// Leg 1 always spends the base asset as quote.
	return legs[0].market.CostToPrecision(need), nil
}

// quoteLeg prices one leg for input units of its input asset. Every derived
// quantity is rounded to the market precision before it is used.
func quoteLeg(leg legInput, input decimal.Decimal) (domain.LegQuote, bool, error) {
	m := leg.market
	q := domain.LegQuote{LegPlan: leg.plan}

	if leg.plan.Side == exchangeDomain.SideBuy {
		spend := m.CostToPrecision(input)
		p, err := domain.Ponder(leg.book, exchangeDomain.SideBuy, domain.CostTarget(spend))
		if err != nil {
			return q, false, err
		}
		q.Amount = m.AmountToPrecision(p.TotalAmount)
		q.Cost = m.CostToPrecision(p.TotalCost)
		q.Input = q.Cost
		q.Output = m.AmountToPrecision(q.Amount.Mul(leg.keep))
		q.Fee = q.Amount.Sub(q.Output)
		q.Price = m.PriceToPrecision(p.AchievedPrice)
		q.LimitPrice = p.LimitPrice
		return q, p.Complete, nil
	}

	sell := m.AmountToPrecision(input)
	p, err := domain.Ponder(leg.book, exchangeDomain.SideSell, domain.AmountTarget(sell))
	if err != nil {
		return q, false, err
	}
	q.Amount = m.AmountToPrecision(p.TotalAmount)
	q.Cost = m.CostToPrecision(p.TotalCost)
	q.Input = q.Amount
	q.Output = m.CostToPrecision(q.Cost.Mul(leg.keep))
	q.Fee = q.Cost.Sub(q.Output)
	q.Price = m.PriceToPrecision(p.AchievedPrice)
	q.LimitPrice = p.LimitPrice
	return q, p.Complete, nil
}

func insufficientLiquidity(cycle domain.Cycle, dir domain.Direction, why string) error {
	return apperror.New(apperror.CodeInsufficientLiquidity,
		apperror.WithContext(fmt.Sprintf("%s %s: %s", cycle.ID(), dir, why)))
}
