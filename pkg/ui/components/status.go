// Package components provides reusable TUI components.
package components

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

// ConnectionStatus represents a connection's status.
type ConnectionStatus struct {
	Name       string
	Connected  bool
	Latency    time.Duration
	LastUpdate time.Time
}

// StatusComponent renders connection status and the tracked balances.
type StatusComponent struct {
	connections []ConnectionStatus
	balances    map[string]decimal.Decimal
}

// NewStatusComponent creates a new status component.
func NewStatusComponent() *StatusComponent {
	return &StatusComponent{
		connections: make([]ConnectionStatus, 0),
	}
}

// Update updates a connection's status.
func (s *StatusComponent) Update(status ConnectionStatus) {
	for i, conn := range s.connections {
		if conn.Name == status.Name {
			s.connections[i] = status
			return
		}
	}
	s.connections = append(s.connections, status)
}

// SetBalances replaces the displayed balances.
func (s *StatusComponent) SetBalances(balances map[string]decimal.Decimal) {
	s.balances = balances
}

// View renders the status component.
func (s *StatusComponent) View() string {
	var b strings.Builder
	if len(s.connections) == 0 {
		b.WriteString("No connections\n")
	}
	for _, conn := range s.connections {
		status := "● Connected"
		style := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
		if !conn.Connected {
			status = "○ Disconnected"
			style = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
		}

		line := fmt.Sprintf("├─ %s: %s", conn.Name, style.Render(status))
		if conn.Connected && conn.Latency > 0 {
			line += fmt.Sprintf(" (%s)", conn.Latency.Round(time.Millisecond))
		}
		b.WriteString(line + "\n")
	}

	if len(s.balances) > 0 {
		assets := make([]string, 0, len(s.balances))
		for asset, free := range s.balances {
			if free.IsPositive() {
				assets = append(assets, asset)
			}
		}
		sort.Strings(assets)
		b.WriteString("└─ Balances:")
		for _, asset := range assets {
			b.WriteString(fmt.Sprintf(" %s %s", s.balances[asset].String(), asset))
		}
		b.WriteString("\n")
	}
	return b.String()
}
