package domain

import (
	"testing"

	"github.com/shopspring/decimal"

	exchangeDomain "github.com/fd1az/triarb-bot/business/exchange/domain"
	"github.com/fd1az/triarb-bot/internal/apperror"
)

func market(symbol string, active bool) exchangeDomain.Market {
	s, err := exchangeDomain.ParseSymbol(symbol)
	if err != nil {
		panic(err)
	}
	return exchangeDomain.Market{Symbol: s, ID: s.ExchangeID(), Active: active}
}

func level(price, amount string) exchangeDomain.OrderbookLevel {
	return exchangeDomain.OrderbookLevel{
		Price:  decimal.RequireFromString(price),
		Amount: decimal.RequireFromString(amount),
	}
}

func TestBuildCycles(t *testing.T) {
	markets := []exchangeDomain.Market{
		market("BTC/USDT", true),
		market("ETH/BTC", true),
		market("ETH/USDT", true),
		market("BNB/USDT", true),
		market("BNB/BTC", true),
		market("XRP/ETH", true), // no XRP/USDT to close the loop
		market("SOL/BTC", true),
		market("SOL/USDT", false), // inactive
	}

	cycles := BuildCycles(markets, []string{"usdt", "EUR"})

	want := []string{"USDT_BTC_BNB", "USDT_BTC_ETH"}
	if len(cycles) != len(want) {
		t.Fatalf("got %d cycles %v, want %v", len(cycles), cycles, want)
	}
	for i, id := range want {
		if cycles[i].ID() != id {
			t.Errorf("cycle %d = %s, want %s", i, cycles[i].ID(), id)
		}
	}
}

func TestBuildCycles_DuplicateAnchors(t *testing.T) {
	markets := []exchangeDomain.Market{
		market("BTC/USDT", true),
		market("ETH/BTC", true),
		market("ETH/USDT", true),
	}

	cycles := BuildCycles(markets, []string{"USDT", "USDT"})
	if len(cycles) != 1 {
		t.Fatalf("got %d cycles, want 1", len(cycles))
	}
}

func TestCycle_MarketsCloseTheLoop(t *testing.T) {
	c := NewCycle("usdt", "btc", "eth")

	if c.ID() != "USDT_BTC_ETH" {
		t.Errorf("ID() = %s", c.ID())
	}

	for _, dir := range Directions {
		legs := dir.Legs(c)
		held := c.Base
		for i, leg := range legs {
			if leg.InputAsset() != held {
				t.Fatalf("%s leg %d spends %s while holding %s", dir, i+1, leg.InputAsset(), held)
			}
			held = leg.OutputAsset()
		}
		if held != c.Base {
			t.Errorf("%s ends in %s, want %s", dir, held, c.Base)
		}
	}
}

func TestDirection_Legs(t *testing.T) {
	c := NewCycle("USDT", "BTC", "ETH")

	tests := []struct {
		dir   Direction
		want  [3]string
		sides [3]exchangeDomain.Side
	}{
		{
			dir:   DirectionBBS,
			want:  [3]string{"BTC/USDT", "ETH/BTC", "ETH/USDT"},
			sides: [3]exchangeDomain.Side{exchangeDomain.SideBuy, exchangeDomain.SideBuy, exchangeDomain.SideSell},
		},
		{
			dir:   DirectionBSS,
			want:  [3]string{"ETH/USDT", "ETH/BTC", "BTC/USDT"},
			sides: [3]exchangeDomain.Side{exchangeDomain.SideBuy, exchangeDomain.SideSell, exchangeDomain.SideSell},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.dir), func(t *testing.T) {
			legs := tt.dir.Legs(c)
			for i := range legs {
				if legs[i].Symbol.String() != tt.want[i] || legs[i].Side != tt.sides[i] {
					t.Errorf("leg %d = %s %s, want %s %s", i+1, legs[i].Side, legs[i].Symbol, tt.sides[i], tt.want[i])
				}
			}
		})
	}
}

func TestPonderLevels(t *testing.T) {
	asks := []exchangeDomain.OrderbookLevel{level("100", "1"), level("101", "2")}
	bids := []exchangeDomain.OrderbookLevel{level("99", "1"), level("98", "2")}

	tests := []struct {
		name         string
		levels       []exchangeDomain.OrderbookLevel
		target       Target
		wantCost     string
		wantAmount   string
		wantAchieved string
		wantLimit    string
		wantComplete bool
	}{
		{
			name:         "buy_by_cost_crosses_second_level",
			levels:       asks,
			target:       CostTarget(decimal.RequireFromString("201")),
			wantCost:     "201",
			wantAmount:   "2",
			wantAchieved: "100.5",
			wantLimit:    "101",
			wantComplete: true,
		},
		{
			name:         "buy_by_cost_exact_first_level",
			levels:       asks,
			target:       CostTarget(decimal.RequireFromString("100")),
			wantCost:     "100",
			wantAmount:   "1",
			wantAchieved: "100",
			wantLimit:    "100",
			wantComplete: true,
		},
		{
			name:         "buy_by_cost_exhausts_depth",
			levels:       asks,
			target:       CostTarget(decimal.RequireFromString("1000")),
			wantCost:     "302",
			wantAmount:   "3",
			wantAchieved: "100.6666666666666667",
			wantLimit:    "101",
			wantComplete: false,
		},
		{
			name:         "buy_by_amount",
			levels:       asks,
			target:       AmountTarget(decimal.RequireFromString("1.5")),
			wantCost:     "150.5",
			wantAmount:   "1.5",
			wantAchieved: "100.3333333333333333",
			wantLimit:    "101",
			wantComplete: true,
		},
		{
			name:         "sell_by_amount_crosses_second_level",
			levels:       bids,
			target:       AmountTarget(decimal.RequireFromString("2")),
			wantCost:     "197",
			wantAmount:   "2",
			wantAchieved: "98.5",
			wantLimit:    "98",
			wantComplete: true,
		},
		{
			name:         "sell_by_amount_exhausts_depth",
			levels:       bids,
			target:       AmountTarget(decimal.RequireFromString("5")),
			wantCost:     "295",
			wantAmount:   "3",
			wantAchieved: "98.3333333333333333",
			wantLimit:    "98",
			wantComplete: false,
		},
		{
			name:         "sell_by_cost",
			levels:       bids,
			target:       CostTarget(decimal.RequireFromString("148")),
			wantCost:     "148",
			wantAmount:   "1.5",
			wantAchieved: "98.6666666666666667",
			wantLimit:    "98",
			wantComplete: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PonderLevels(tt.levels, tt.target)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.TotalCost.Equal(decimal.RequireFromString(tt.wantCost)) {
				t.Errorf("TotalCost = %s, want %s", got.TotalCost, tt.wantCost)
			}
			if !got.TotalAmount.Equal(decimal.RequireFromString(tt.wantAmount)) {
				t.Errorf("TotalAmount = %s, want %s", got.TotalAmount, tt.wantAmount)
			}
			if !got.AchievedPrice.Equal(decimal.RequireFromString(tt.wantAchieved)) {
				t.Errorf("AchievedPrice = %s, want %s", got.AchievedPrice, tt.wantAchieved)
			}
			if !got.LimitPrice.Equal(decimal.RequireFromString(tt.wantLimit)) {
				t.Errorf("LimitPrice = %s, want %s", got.LimitPrice, tt.wantLimit)
			}
			if got.Complete != tt.wantComplete {
				t.Errorf("Complete = %v, want %v", got.Complete, tt.wantComplete)
			}
		})
	}
}

func TestPonderLevels_UndefinedPrice(t *testing.T) {
	tests := []struct {
		name   string
		levels []exchangeDomain.OrderbookLevel
		target Target
	}{
		{"empty_book", nil, CostTarget(decimal.NewFromInt(100))},
		{"zero_target", []exchangeDomain.OrderbookLevel{level("100", "1")}, CostTarget(decimal.Zero)},
		{"only_empty_levels", []exchangeDomain.OrderbookLevel{level("100", "0")}, AmountTarget(decimal.NewFromInt(1))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PonderLevels(tt.levels, tt.target)
			if !apperror.HasCode(err, apperror.CodeUndefinedPrice) {
				t.Fatalf("error = %v, want UNDEFINED_PRICE", err)
			}
			if !apperror.IsNoOpportunity(err) {
				t.Error("undefined price should classify as no opportunity")
			}
		})
	}
}

func TestPonder_UsesSideOfBook(t *testing.T) {
	book := &exchangeDomain.Orderbook{
		Symbol: exchangeDomain.NewSymbol("ETH", "USDT"),
		Bids:   []exchangeDomain.OrderbookLevel{level("2149", "10")},
		Asks:   []exchangeDomain.OrderbookLevel{level("2151", "10")},
	}

	buy, err := Ponder(book, exchangeDomain.SideBuy, AmountTarget(decimal.NewFromInt(1)))
	if err != nil {
		t.Fatal(err)
	}
	sell, err := Ponder(book, exchangeDomain.SideSell, AmountTarget(decimal.NewFromInt(1)))
	if err != nil {
		t.Fatal(err)
	}

	if !buy.AchievedPrice.Equal(decimal.NewFromInt(2151)) {
		t.Errorf("buy price = %s, want 2151", buy.AchievedPrice)
	}
	if !sell.AchievedPrice.Equal(decimal.NewFromInt(2149)) {
		t.Errorf("sell price = %s, want 2149", sell.AchievedPrice)
	}
}

func TestOperationRecord_Finalize(t *testing.T) {
	rec := OperationRecord{}
	rec.Legs[0] = LegResult{State: LegFilled, Cost: decimal.RequireFromString("100")}
	rec.Legs[1] = LegResult{State: LegCanceled, Cost: decimal.RequireFromString("0.001")}
	rec.Legs[2] = LegResult{State: LegFilled, Cost: decimal.RequireFromString("40")}
	rec.Unwinds = []LegResult{{State: LegFilled, Cost: decimal.RequireFromString("59.5")}}

	rec.Finalize(rec.StartedAt)

	if rec.Completed() {
		t.Error("Completed() = true with a canceled leg")
	}
	if !rec.PnL.Equal(decimal.RequireFromString("-0.5")) {
		t.Errorf("PnL = %s, want -0.5", rec.PnL)
	}
}
