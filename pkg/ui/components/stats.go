// Package components provides reusable TUI components.
package components

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

// Stats holds run totals for display.
type Stats struct {
	Checks     int
	Profitable int
	Operations int
	Failed     int
	Errors     int
	PnL        decimal.Decimal
	Uptime     time.Duration
}

// StatsComponent renders statistics.
type StatsComponent struct {
	stats Stats
}

// NewStatsComponent creates a new stats component.
func NewStatsComponent() *StatsComponent {
	return &StatsComponent{}
}

// Update updates the statistics.
func (s *StatsComponent) Update(stats Stats) {
	s.stats = stats
}

// Stats returns the current statistics.
func (s *StatsComponent) Stats() Stats {
	return s.stats
}

// View renders the stats component.
func (s *StatsComponent) View() string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true)
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	positiveStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)

	profitableRate := float64(0)
	if s.stats.Checks > 0 {
		profitableRate = float64(s.stats.Profitable) / float64(s.stats.Checks) * 100
	}

	errorsDisplay := valueStyle.Render(fmt.Sprintf("%d", s.stats.Errors))
	if s.stats.Errors > 0 {
		errorsDisplay = errorStyle.Render(fmt.Sprintf("%d", s.stats.Errors))
	}
	pnlDisplay := positiveStyle.Render(s.stats.PnL.String())
	if s.stats.PnL.IsNegative() {
		pnlDisplay = errorStyle.Render(s.stats.PnL.String())
	}

	return style.Render("STATS") + "\n" +
		fmt.Sprintf("Checks: %s  │  Profitable: %s (%.2f%%)  │  Operations: %s (failed %s)\n",
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Checks)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Profitable)),
			profitableRate,
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Operations)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Failed)),
		) +
		fmt.Sprintf("PnL: %s  │  Errors: %s  │  Uptime: %s",
			pnlDisplay,
			errorsDisplay,
			valueStyle.Render(s.stats.Uptime.Round(time.Second).String()),
		)
}
