// Package ui provides the Bubble Tea TUI for the arbitrage bot.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fd1az/triarb-bot/pkg/ui/components"
)

// StartupStep represents a step in the startup process.
type StartupStep struct {
	Name   string
	Status string // "pending", "connecting", "connected", "done", "failed"
}

// Phase represents the current UI phase.
type Phase string

const (
	PhaseWelcome   Phase = "welcome"   // Initial welcome screen
	PhaseStartup   Phase = "startup"   // Loading/connecting
	PhaseDashboard Phase = "dashboard" // Main dashboard
)

// WelcomeDuration is how long the welcome screen shows before auto-advancing.
const WelcomeDuration = 2 * time.Second

// startupOrder is the display order of the startup steps.
var startupOrder = []string{"config", "markets", "stream", "engine"}

// ErrorEntry represents an error with timestamp.
type ErrorEntry struct {
	Message   string
	Class     string
	Sleep     time.Duration
	Timestamp time.Time
}

// Model is the main Bubble Tea model for the TUI.
type Model struct {
	// Components
	prices        *components.PricesComponent
	opportunities *components.OpportunitiesComponent
	stats         *components.StatsComponent
	status        *components.StatusComponent
	keys          KeyMap
	help          help.Model

	// Phase state
	phase        Phase
	welcomeStart time.Time

	// State
	ready      bool
	quitting   bool
	paused     bool
	fatal      string
	width      int
	height     int
	lastUpdate time.Time
	errors     []ErrorEntry // last 3
	logs       []string

	// Startup state
	startupSteps map[string]*StartupStep
	startupTime  time.Time

	// Activity tracking
	activityFeed []string
	lastEvalTime time.Time
	startedAt    time.Time
}

// New creates a new TUI model.
func New() Model {
	now := time.Now()
	return Model{
		prices:        components.NewPricesComponent(),
		opportunities: components.NewOpportunitiesComponent(100, 12),
		stats:         components.NewStatsComponent(),
		status:        components.NewStatusComponent(),
		keys:          DefaultKeyMap(),
		help:          help.New(),
		phase:         PhaseWelcome,
		welcomeStart:  now,
		logs:          make([]string, 0, 5),
		errors:        make([]ErrorEntry, 0, 3),
		activityFeed:  make([]string, 0, 6),
		startupSteps: map[string]*StartupStep{
			"config":  {Name: "Loading configuration", Status: "pending"},
			"markets": {Name: "Loading markets and cycles", Status: "pending"},
			"stream":  {Name: "Connecting order book stream", Status: "pending"},
			"engine":  {Name: "Starting engine", Status: "pending"},
		},
		startupTime: now,
	}
}

// Init initializes the TUI model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// tickCmd returns a command that sends a tick every 100ms for smooth animations.
func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg{}
	})
}

func (m *Model) leaveWelcome() {
	m.phase = PhaseStartup
	m.startupTime = time.Now()
	// Send() must not be called from within Update
	if OnStartModules != nil {
		go OnStartModules()
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		if m.phase == PhaseWelcome {
			m.leaveWelcome()
			return m, nil
		}
		switch {
		case key.Matches(msg, m.keys.Clear):
			m.opportunities.Clear()
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
		case key.Matches(msg, m.keys.Up):
			m.opportunities.ScrollUp()
		case key.Matches(msg, m.keys.Down):
			m.opportunities.ScrollDown()
		case key.Matches(msg, m.keys.ClearErrors):
			m.errors = m.errors[:0]
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.ready = true

	case TickMsg:
		if m.phase == PhaseWelcome && time.Since(m.welcomeStart) >= WelcomeDuration {
			m.leaveWelcome()
		}
		if !m.startedAt.IsZero() {
			stats := m.stats.Stats()
			stats.Uptime = time.Since(m.startedAt)
			m.stats.Update(stats)
		}
		return m, tickCmd()

	case EvaluationMsg:
		m.toDashboard()
		m.lastEvalTime = time.Now()
		m.lastUpdate = m.lastEvalTime
		if m.paused {
			return m, nil
		}
		rec := msg.Record
		m.opportunities.Add(opportunityRow(rec, msg.Score))
		m.prices.SetCycle(rec.CycleID + " " + string(rec.Direction))
		m.prices.Update(priceRows(rec.Evaluation))
		m.prices.SetCostBreakdown(costBreakdown(rec))
		if rec.Profitable() {
			m.activityFeed = addActivity(m.activityFeed, fmt.Sprintf("%s %s profitable: %+.4f%%",
				rec.CycleID, rec.Direction, rec.Evaluation.Profit.NetProfitPct.InexactFloat64()))
		}

	case LegMsg:
		leg := msg.Leg
		line := fmt.Sprintf("leg %d %s %s %s: %s", leg.Index+1, leg.Side, leg.Amount, leg.Symbol, leg.State)
		if leg.Error != "" {
			line += " (" + leg.Error + ")"
		}
		m.activityFeed = addActivity(m.activityFeed, line)
		m.lastUpdate = time.Now()

	case OperationMsg:
		op := msg.Record
		state := "completed"
		if !op.Completed() {
			state = "incomplete"
		}
		m.activityFeed = addActivity(m.activityFeed, fmt.Sprintf("operation %s %s %s: PnL %s",
			op.CycleID, op.Direction, state, op.PnL))
		m.lastUpdate = time.Now()

	case BalanceMsg:
		m.status.SetBalances(msg.Balances)
		m.lastUpdate = time.Now()

	case SummaryMsg:
		if m.startedAt.IsZero() && !msg.Summary.StartedAt.IsZero() {
			m.startedAt = msg.Summary.StartedAt
		}
		m.stats.Update(statsFromSummary(msg.Summary))

	case ConnectionStatusMsg:
		m.status.Update(components.ConnectionStatus{
			Name:       msg.Name,
			Connected:  msg.Connected,
			Latency:    msg.Latency,
			LastUpdate: time.Now(),
		})
		m.lastUpdate = time.Now()

	case ErrorMsg:
		text := fmt.Sprint(msg.Error)
		m.logs = addLog(m.logs, "error", text)
		m.errors = append(m.errors, ErrorEntry{
			Message:   text,
			Class:     msg.Class,
			Sleep:     msg.Sleep,
			Timestamp: time.Now(),
		})
		if len(m.errors) > 3 {
			m.errors = m.errors[len(m.errors)-3:]
		}
		if msg.Fatal {
			m.fatal = text
		}

	case LogMsg:
		m.logs = addLog(m.logs, msg.Level, msg.Message)

	case StartupMsg:
		if step, ok := m.startupSteps[msg.Step]; ok {
			step.Status = msg.Status
		}
		if msg.Status == "failed" {
			m.logs = addLog(m.logs, "error", msg.Message)
		}
		if m.startupComplete() {
			m.toDashboard()
		}
	}

	return m, nil
}

func (m *Model) startupComplete() bool {
	for _, step := range m.startupSteps {
		if step.Status != "connected" && step.Status != "done" {
			return false
		}
	}
	return true
}

func (m *Model) toDashboard() { m.phase = PhaseDashboard }

// addLog adds a log message and returns the updated slice (keeps last 5).
func addLog(logs []string, level, message string) []string {
	timestamp := time.Now().Format("15:04:05")
	logs = append(logs, fmt.Sprintf("[%s] %s: %s", timestamp, level, message))
	if len(logs) > 5 {
		logs = logs[len(logs)-5:]
	}
	return logs
}

// addActivity adds an activity message and returns the updated slice (keeps last 6).
func addActivity(feed []string, message string) []string {
	timestamp := time.Now().Format("15:04:05")
	feed = append(feed, fmt.Sprintf("[%s] %s", timestamp, message))
	if len(feed) > 6 {
		feed = feed[len(feed)-6:]
	}
	return feed
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "\n  Goodbye!\n\n"
	}

	switch m.phase {
	case PhaseWelcome:
		return m.renderWelcomeScreen()
	case PhaseStartup:
		return m.renderStartupScreen()
	}

	var b strings.Builder

	b.WriteString(TitleStyle.Render(" Triangular Arbitrage Bot "))
	b.WriteString("\n\n")
	b.WriteString(m.renderStatusBar())
	b.WriteString("\n")
	b.WriteString(m.status.View())
	b.WriteString("\n")

	leftCol := m.prices.View() + "\n\n" + m.renderActivityFeed()
	rightCol := m.opportunities.View()

	width := max(m.width, 40)
	if width > 140 {
		left := BoxStyle.Width(width*2/5 - 2).Render(leftCol)
		right := BoxStyle.Width(width*3/5 - 2).Render(rightCol)
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, right))
	} else {
		b.WriteString(BoxStyle.Width(width - 4).Render(leftCol))
		b.WriteString("\n")
		b.WriteString(BoxStyle.Width(width - 4).Render(rightCol))
	}
	b.WriteString("\n")
	b.WriteString(BoxStyle.Width(width - 4).Render(m.stats.View()))
	b.WriteString("\n\n")

	if m.fatal != "" {
		b.WriteString(FatalStyle.Render("STOPPED: " + m.fatal))
		b.WriteString("\n\n")
	}

	if len(m.errors) > 0 {
		b.WriteString(FatalStyle.Render("ERRORS"))
		b.WriteString(MutedValue.Render(" (e: clear)"))
		b.WriteString("\n")
		for _, err := range m.errors {
			ago := time.Since(err.Timestamp).Round(time.Second)
			line := fmt.Sprintf("  • [%s] %s ", err.Class, err.Message)
			b.WriteString(NegativeValue.Render(line))
			detail := fmt.Sprintf("(%s ago", ago)
			if err.Sleep > 0 {
				detail += fmt.Sprintf(", paused %s", err.Sleep)
			}
			b.WriteString(MutedValue.Render(detail + ")"))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if m.paused {
		pauseStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorWarning)
		b.WriteString(pauseStyle.Render("⏸ PAUSED"))
		b.WriteString(" • ")
	}
	b.WriteString(m.help.View(m.keys))

	return b.String()
}

// renderActivityFeed renders the recent activity feed.
func (m Model) renderActivityFeed() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	legStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#60A5FA"))

	var sb strings.Builder
	sb.WriteString(headerStyle.Render("LIVE ACTIVITY"))
	sb.WriteString("\n\n")

	if len(m.activityFeed) == 0 {
		sb.WriteString(MutedValue.Render("  Waiting for a profitable cycle..."))
		return sb.String()
	}
	for _, activity := range m.activityFeed {
		if strings.Contains(activity, "] leg ") {
			sb.WriteString(legStyle.Render("  " + activity))
		} else {
			sb.WriteString(MutedValue.Render("  " + activity))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// renderWelcomeScreen renders the animated welcome screen.
func (m Model) renderWelcomeScreen() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	goldStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorWarning)
	greenStyle := lipgloss.NewStyle().Foreground(ColorSecondary)

	dotCount := int(time.Since(m.welcomeStart).Milliseconds()/300) % 4
	dots := strings.Repeat(".", dotCount)

	var sb strings.Builder
	sb.WriteString("\n\n\n\n")

	logo := `
   ████████╗██████╗ ██╗ █████╗ ██████╗ ██████╗
   ╚══██╔══╝██╔══██╗██║██╔══██╗██╔══██╗██╔══██╗
      ██║   ██████╔╝██║███████║██████╔╝██████╔╝
      ██║   ██╔══██╗██║██╔══██║██╔══██╗██╔══██╗
      ██║   ██║  ██║██║██║  ██║██║  ██║██████╔╝
      ╚═╝   ╚═╝  ╚═╝╚═╝╚═╝  ╚═╝╚═╝  ╚═╝╚═════╝
`
	sb.WriteString(titleStyle.Render(logo))
	sb.WriteString("\n")
	sb.WriteString(MutedValue.Render("        T R I A N G U L A R   A R B I T R A G E"))
	sb.WriteString("\n\n\n")
	sb.WriteString(goldStyle.Render("             base → intermediate → ticker → base"))
	sb.WriteString("\n\n\n")
	sb.WriteString(greenStyle.Render(fmt.Sprintf("                  Initializing%s", dots)))
	sb.WriteString("\n\n")
	sb.WriteString(MutedValue.Render("            Press any key to skip, or wait..."))
	sb.WriteString("\n")

	return sb.String()
}

// renderStartupScreen renders the loading/startup screen.
func (m Model) renderStartupScreen() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary).MarginBottom(1)
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF"))
	successStyle := lipgloss.NewStyle().Foreground(ColorSecondary)
	connectingStyle := lipgloss.NewStyle().Foreground(ColorWarning)
	failedStyle := lipgloss.NewStyle().Foreground(ColorDanger)

	var sb strings.Builder
	sb.WriteString("\n\n")
	sb.WriteString(titleStyle.Render("  Triangular Arbitrage Bot"))
	sb.WriteString("\n\n")
	sb.WriteString(headerStyle.Render("  Starting up..."))
	sb.WriteString("\n\n")

	for _, name := range startupOrder {
		step, ok := m.startupSteps[name]
		if !ok {
			continue
		}

		var icon, statusText string
		var style lipgloss.Style
		switch step.Status {
		case "connected", "done":
			icon, statusText, style = "✓", "Ready", successStyle
		case "connecting":
			spinners := []string{"◐", "◓", "◑", "◒"}
			idx := int(time.Since(m.startupTime).Milliseconds()/200) % len(spinners)
			icon, statusText, style = spinners[idx], "Connecting...", connectingStyle
		case "failed":
			icon, statusText, style = "✗", "Failed", failedStyle
		default:
			icon, statusText, style = "○", "Pending", MutedValue
		}

		sb.WriteString(fmt.Sprintf("  %s %s %s\n",
			style.Render(icon),
			MutedValue.Render(step.Name),
			style.Render(statusText),
		))
	}

	sb.WriteString("\n")
	elapsed := time.Since(m.startupTime).Round(time.Second)
	sb.WriteString(MutedValue.Render(fmt.Sprintf("  Elapsed: %s", elapsed)))
	sb.WriteString("\n")

	for _, line := range m.logs {
		sb.WriteString(failedStyle.Render("  " + line))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m Model) renderStatusBar() string {
	var parts []string

	if time.Since(m.lastEvalTime) < 500*time.Millisecond {
		spinners := []string{"⟳", "◐", "◓", "◑", "◒"}
		idx := int(time.Now().UnixMilli()/100) % len(spinners)
		scanningStyle := lipgloss.NewStyle().Foreground(ColorSecondary).Bold(true)
		parts = append(parts, scanningStyle.Render(spinners[idx]+" Evaluating"))
	}

	if stats := m.stats.Stats(); stats.Checks > 0 {
		parts = append(parts, PositiveValue.Render(fmt.Sprintf("Checks: %d", stats.Checks)))
	}

	if !m.lastUpdate.IsZero() {
		ago := time.Since(m.lastUpdate).Round(time.Second)
		indicator := ""
		if ago < 2*time.Second {
			indicator = "▪"
		}
		parts = append(parts, MutedValue.Render(fmt.Sprintf("Updated: %s ago %s", ago, indicator)))
	}

	return strings.Join(parts, "  │  ")
}

// Program holds the Bubble Tea program instance for external access.
var Program *tea.Program

// OnStartModules is called when the welcome screen completes and modules
// should start. main sets it before Run.
var OnStartModules func()

// Run starts the Bubble Tea program.
func Run() error {
	Program = tea.NewProgram(New(), tea.WithAltScreen())
	_, err := Program.Run()
	return err
}

// Send sends a message to the running program.
func Send(msg tea.Msg) {
	if Program != nil {
		Program.Send(msg)
	}
}
