package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/stream-ripper/internal/ripper"
	"github.com/randomizedcoder/stream-ripper/internal/supervisor"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// SnapshotMsg carries updated ripper state.
type SnapshotMsg struct {
	State     supervisor.State
	Snapshots []ripper.Snapshot
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// Model represents the TUI state.
type Model struct {
	// Configuration
	template     string
	metricsAddr  string
	pollInterval time.Duration

	// Current state
	state        supervisor.State
	snapshots    []ripper.Snapshot
	startTime    time.Time
	lastUpdate   time.Time
	detailedView bool

	// Display options
	width  int
	height int

	source SnapshotSource

	// Quit flag
	quitting bool
}

// SnapshotSource provides supervisor state. *supervisor.Supervisor
// satisfies it.
type SnapshotSource interface {
	Snapshots() []ripper.Snapshot
	State() supervisor.State
}

// Config holds TUI configuration.
type Config struct {
	Template     string
	MetricsAddr  string
	PollInterval time.Duration
	Source       SnapshotSource
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		template:     cfg.Template,
		metricsAddr:  cfg.MetricsAddr,
		pollInterval: cfg.PollInterval,
		source:       cfg.Source,
		startTime:    time.Now(),
		lastUpdate:   time.Now(),
		width:        80,
		height:       24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	// tea.WithAltScreen() is passed when creating the program.
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "d":
			m.detailedView = !m.detailedView
			return m, nil
		case "r":
			// Force refresh
			return m, tickCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		if m.source != nil {
			m.snapshots = m.source.Snapshots()
			m.state = m.source.State()
		}
		m.lastUpdate = time.Now()
		if m.state.IsTerminal() {
			m.quitting = true
			return m, tea.Quit
		}
		return m, tickCmd()

	case SnapshotMsg:
		m.state = msg.State
		m.snapshots = msg.Snapshots
		m.lastUpdate = time.Now()
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.detailedView {
		return m.renderDetailedView()
	}
	return m.renderSummaryView()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the dashboard started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// Targets returns the number of targets in the last snapshot.
func (m Model) Targets() int {
	return len(m.snapshots)
}

// RunningCount returns how many targets have a live process.
func (m Model) RunningCount() int {
	n := 0
	for _, s := range m.snapshots {
		if s.Running {
			n++
		}
	}
	return n
}

// TotalRestarts sums restarts across targets.
func (m Model) TotalRestarts() int {
	n := 0
	for _, s := range m.snapshots {
		n += s.Restarts
	}
	return n
}

// RunningRatio returns live targets over all targets (0.0 to 1.0).
func (m Model) RunningRatio() float64 {
	if len(m.snapshots) == 0 {
		return 0
	}
	return float64(m.RunningCount()) / float64(len(m.snapshots))
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendSnapshots pushes a state update to the TUI.
func SendSnapshots(p *tea.Program, state supervisor.State, snaps []ripper.Snapshot) {
	if p != nil {
		p.Send(SnapshotMsg{State: state, Snapshots: snaps})
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatExit renders the last exit of a target, or "-" when it never exited.
func formatExit(s ripper.Snapshot) string {
	if s.LastExit == nil {
		return "-"
	}
	return s.LastExit.String()
}

// truncate shortens s to at most n display columns.
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 3 || len(r) <= n {
		if len(r) > n && n > 0 {
			return string(r[:n])
		}
		return s
	}
	return string(r[:n-3]) + "..."
}
