// Package components provides reusable TUI components.
package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

// PriceRow is one leg of the last evaluated cycle.
type PriceRow struct {
	Symbol string
	Side   string
	Price  decimal.Decimal
	Limit  decimal.Decimal
	Amount decimal.Decimal
	Cost   decimal.Decimal
}

// CostBreakdown holds the evaluated figures for display. Everything is
// computed by the engine; the component only formats.
type CostBreakdown struct {
	Investment    decimal.Decimal
	Invested      decimal.Decimal
	MinReturn     decimal.Decimal
	Return        decimal.Decimal
	NetProfit     decimal.Decimal
	NetProfitPct  decimal.Decimal
	Refinements   int
	IsProfitable  bool
	NoOpportunity string
}

// PricesComponent renders the legs of the last evaluated cycle.
type PricesComponent struct {
	rows          []PriceRow
	cycle         string
	costBreakdown *CostBreakdown
}

// NewPricesComponent creates a new prices component.
func NewPricesComponent() *PricesComponent {
	return &PricesComponent{
		rows: make([]PriceRow, 0, 3),
	}
}

// Update replaces the leg rows.
func (p *PricesComponent) Update(rows []PriceRow) {
	p.rows = rows
}

// SetCycle sets the title, e.g. "USDT_BTC_ETH BBS".
func (p *PricesComponent) SetCycle(cycle string) {
	p.cycle = cycle
}

// SetCostBreakdown sets the evaluated figures.
func (p *PricesComponent) SetCostBreakdown(breakdown CostBreakdown) {
	p.costBreakdown = &breakdown
}

// View renders the prices component.
func (p *PricesComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	positiveStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	negativeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	if p.cycle == "" {
		return headerStyle.Render("LAST EVALUATION") + "\n\n" + dimStyle.Render("Waiting for order books...")
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("LAST EVALUATION (" + p.cycle + ")"))
	b.WriteString("\n\n")

	if len(p.rows) > 0 {
		b.WriteString(fmt.Sprintf("  %-10s %-4s %14s %14s %14s %12s\n",
			"Symbol", "Side", "Price", "Limit", "Amount", "Cost"))
		b.WriteString(dimStyle.Render("  "+strings.Repeat("─", 74)) + "\n")
		for _, row := range p.rows {
			b.WriteString(fmt.Sprintf("  %-10s %-4s %14s %14s %14s %12s\n",
				row.Symbol, row.Side,
				row.Price.String(), row.Limit.String(),
				row.Amount.String(), row.Cost.String()))
		}
		b.WriteString("\n")
	}

	cb := p.costBreakdown
	if cb == nil {
		return b.String()
	}
	if cb.NoOpportunity != "" {
		b.WriteString(headerStyle.Render("  NO OPPORTUNITY"))
		b.WriteString("\n\n  ")
		b.WriteString(dimStyle.Render(cb.NoOpportunity))
		b.WriteString("\n")
		return b.String()
	}

	if cb.IsProfitable {
		b.WriteString(headerStyle.Render("  OPPORTUNITY FOUND!") + "\n\n")
	} else {
		b.WriteString(headerStyle.Render("  BELOW THRESHOLD") + "\n\n")
	}
	b.WriteString(fmt.Sprintf("  Offered:      %s\n", dimStyle.Render(cb.Investment.String())))
	b.WriteString(fmt.Sprintf("  Invested:     %s\n", dimStyle.Render(cb.Invested.String())))
	b.WriteString(fmt.Sprintf("  Min return:   %s\n", dimStyle.Render(cb.MinReturn.String())))
	b.WriteString(fmt.Sprintf("  Return:       %s\n", dimStyle.Render(cb.Return.String())))

	profitStyle := positiveStyle
	if cb.NetProfit.IsNegative() {
		profitStyle = negativeStyle
	}
	b.WriteString(fmt.Sprintf("  Net profit:   %s\n", profitStyle.Render(
		fmt.Sprintf("%s (%+.4f%%)", cb.NetProfit.String(), cb.NetProfitPct.InexactFloat64()))))
	if cb.Refinements > 0 {
		b.WriteString(fmt.Sprintf("  Depth-capped: %s\n", dimStyle.Render(fmt.Sprintf("%d refinements", cb.Refinements))))
	}
	return b.String()
}
