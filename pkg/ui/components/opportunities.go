// Package components provides reusable TUI components.
package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

// OpportunityRow is one evaluation in the list.
type OpportunityRow struct {
	Time       string
	Cycle      string
	Direction  string
	Invested   decimal.Decimal
	Return     decimal.Decimal
	ProfitPct  decimal.Decimal
	Score      int
	Status     string
	Profitable bool
}

// OpportunitiesComponent renders the most recent evaluations, newest first.
type OpportunitiesComponent struct {
	rows    []OpportunityRow
	maxRows int
	visible int
	offset  int
}

// NewOpportunitiesComponent keeps maxRows rows and shows visible of them.
func NewOpportunitiesComponent(maxRows, visible int) *OpportunitiesComponent {
	return &OpportunitiesComponent{
		rows:    make([]OpportunityRow, 0, maxRows),
		maxRows: maxRows,
		visible: visible,
	}
}

// Add adds a new row on top.
func (o *OpportunitiesComponent) Add(row OpportunityRow) {
	o.rows = append([]OpportunityRow{row}, o.rows...)
	if len(o.rows) > o.maxRows {
		o.rows = o.rows[:o.maxRows]
	}
	// keep the rows the user scrolled to in view
	if o.offset > 0 {
		o.offset = min(o.offset+1, o.maxOffset())
	}
}

// Clear clears all rows.
func (o *OpportunitiesComponent) Clear() {
	o.rows = o.rows[:0]
	o.offset = 0
}

// Len returns the number of stored rows.
func (o *OpportunitiesComponent) Len() int { return len(o.rows) }

// ScrollUp moves the window towards newer rows.
func (o *OpportunitiesComponent) ScrollUp() {
	if o.offset > 0 {
		o.offset--
	}
}

// ScrollDown moves the window towards older rows.
func (o *OpportunitiesComponent) ScrollDown() {
	o.offset = min(o.offset+1, o.maxOffset())
}

func (o *OpportunitiesComponent) maxOffset() int {
	return max(len(o.rows)-o.visible, 0)
}

// View renders the opportunities component.
func (o *OpportunitiesComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	if len(o.rows) == 0 {
		return headerStyle.Render("EVALUATIONS") + "\n\nNo cycle evaluated yet..."
	}

	profitableStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	unprofitableStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	mutedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	end := min(o.offset+o.visible, len(o.rows))
	result := headerStyle.Render(fmt.Sprintf("EVALUATIONS (%d-%d of %d)", o.offset+1, end, len(o.rows))) + "\n"
	result += "┌──────────┬────────────────┬─────┬──────────┬──────────┬─────────┬───────┬────────────────┐\n"
	result += "│   Time   │     Cycle      │ Dir │ Invested │  Return  │ Profit  │ Score │     Status     │\n"
	result += "├──────────┼────────────────┼─────┼──────────┼──────────┼─────────┼───────┼────────────────┤\n"

	for _, row := range o.rows[o.offset:end] {
		statusStyle := mutedStyle
		statusIcon := "·"
		switch {
		case row.Profitable:
			statusStyle = profitableStyle
			statusIcon = "✓"
		case !row.Invested.IsZero():
			statusStyle = unprofitableStyle
			statusIcon = "✗"
		}

		result += fmt.Sprintf("│ %8s │ %-14s │ %3s │%9s │%9s │%8s │%6d │ %s %s│\n",
			row.Time,
			truncate(row.Cycle, 14),
			row.Direction,
			row.Invested.StringFixed(2),
			row.Return.StringFixed(2),
			fmt.Sprintf("%+.3f%%", row.ProfitPct.InexactFloat64()),
			row.Score,
			statusIcon,
			statusStyle.Render(fmt.Sprintf("%-13s", truncate(row.Status, 13))),
		)
	}

	result += "└──────────┴────────────────┴─────┴──────────┴──────────┴─────────┴───────┴────────────────┘"

	return result
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
