package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/stream-ripper/internal/process"
	"github.com/randomizedcoder/stream-ripper/internal/ripper"
	"github.com/randomizedcoder/stream-ripper/internal/supervisor"
)

// =============================================================================
// Mock SnapshotSource
// =============================================================================

type mockSource struct {
	state supervisor.State
	snaps []ripper.Snapshot
}

func (m *mockSource) Snapshots() []ripper.Snapshot { return m.snaps }
func (m *mockSource) State() supervisor.State { return m.state }

func testSnapshots() []ripper.Snapshot {
	return []ripper.Snapshot{
		{
			Target:    "https://www.twitch.tv/alpha",
			Running:   true,
			Pid:       4242,
			StartedAt: time.Now().Add(-90 * time.Second),
		},
		{
			Target:   "https://www.twitch.tv/bravo",
			Restarts: 3,
			LastExit: &process.ExitStatus{Code: 1},
		},
		{
			Target:    "https://www.twitch.tv/charlie",
			Restarts:  12,
			LastError: "spawn streamlink: executable file not found in $PATH",
		},
	}
}

// =============================================================================
// Tests: New / Init
// =============================================================================

func TestNew(t *testing.T) {
	model := New(Config{
		Template:     "streamlink {url} best",
		MetricsAddr:  "127.0.0.1:17092",
		PollInterval: 15 * time.Second,
	})

	if model.template != "streamlink {url} best" {
		t.Errorf("template = %q", model.template)
	}
	if model.metricsAddr != "127.0.0.1:17092" {
		t.Errorf("metricsAddr = %q", model.metricsAddr)
	}
	if model.width != 80 || model.height != 24 {
		t.Errorf("size = %dx%d, want 80x24", model.width, model.height)
	}
}

func TestModel_Init(t *testing.T) {
	if cmd := New(Config{}).Init(); cmd == nil {
		t.Error("Init() returned nil cmd")
	}
}

// =============================================================================
// Tests: Update
// =============================================================================

func TestModel_Update_QuitKeys(t *testing.T) {
	tests := []struct {
		key      string
		wantQuit bool
	}{
		{"q", true},
		{"ctrl+c", true},
		{"esc", true},
		{"d", false},
		{"r", false},
		{"x", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			model := New(Config{})

			var msg tea.KeyMsg
			switch tt.key {
			case "ctrl+c":
				msg = tea.KeyMsg{Type: tea.KeyCtrlC}
			case "esc":
				msg = tea.KeyMsg{Type: tea.KeyEsc}
			default:
				msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(tt.key)}
			}

			updated, _ := model.Update(msg)
			if got := updated.(Model).quitting; got != tt.wantQuit {
				t.Errorf("quitting = %v, want %v", got, tt.wantQuit)
			}
		})
	}
}

func TestModel_Update_ToggleDetails(t *testing.T) {
	model := New(Config{})
	key := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")}

	updated, _ := model.Update(key)
	if !updated.(Model).detailedView {
		t.Error("detailedView should be on after first 'd'")
	}
	updated, _ = updated.Update(key)
	if updated.(Model).detailedView {
		t.Error("detailedView should be off after second 'd'")
	}
}

func TestModel_Update_WindowSize(t *testing.T) {
	updated, _ := New(Config{}).Update(tea.WindowSizeMsg{Width: 160, Height: 50})
	m := updated.(Model)
	if m.width != 160 || m.height != 50 {
		t.Errorf("size = %dx%d, want 160x50", m.width, m.height)
	}
}

func TestModel_Update_TickPullsSource(t *testing.T) {
	src := &mockSource{state: supervisor.StateRunning, snaps: testSnapshots()}
	model := New(Config{Source: src})

	updated, cmd := model.Update(TickMsg(time.Now()))
	m := updated.(Model)

	if m.Targets() != 3 {
		t.Errorf("Targets() = %d, want 3", m.Targets())
	}
	if m.state != supervisor.StateRunning {
		t.Errorf("state = %v, want running", m.state)
	}
	if cmd == nil {
		t.Error("tick should schedule the next tick")
	}
}

func TestModel_Update_TickQuitsWhenStopped(t *testing.T) {
	src := &mockSource{state: supervisor.StateStopped}
	updated, _ := New(Config{Source: src}).Update(TickMsg(time.Now()))

	if !updated.(Model).quitting {
		t.Error("dashboard should quit once the supervisor stopped")
	}
}

func TestModel_Update_SnapshotMsg(t *testing.T) {
	updated, _ := New(Config{}).Update(SnapshotMsg{
		State:     supervisor.StateRunning,
		Snapshots: testSnapshots(),
	})
	m := updated.(Model)

	if m.RunningCount() != 1 {
		t.Errorf("RunningCount() = %d, want 1", m.RunningCount())
	}
	if m.TotalRestarts() != 15 {
		t.Errorf("TotalRestarts() = %d, want 15", m.TotalRestarts())
	}
}

func TestModel_Update_QuitMsg(t *testing.T) {
	updated, _ := New(Config{}).Update(QuitMsg{})
	if !updated.(Model).quitting {
		t.Error("QuitMsg should set quitting")
	}
}

// =============================================================================
// Tests: Accessors
// =============================================================================

func TestModel_RunningRatio(t *testing.T) {
	tests := []struct {
		name  string
		snaps []ripper.Snapshot
		want  float64
	}{
		{"empty", nil, 0},
		{"all up", []ripper.Snapshot{{Running: true}, {Running: true}}, 1},
		{"half", []ripper.Snapshot{{Running: true}, {}}, 0.5},
		{"none", []ripper.Snapshot{{}, {}}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(Config{})
			m.snapshots = tt.snaps
			if got := m.RunningRatio(); got != tt.want {
				t.Errorf("RunningRatio() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSendHelpers_NilProgram(t *testing.T) {
	// Must not panic.
	SendSnapshots(nil, supervisor.StateRunning, nil)
	SendQuit(nil)
}

// =============================================================================
// Tests: View
// =============================================================================

func TestModel_View_Summary(t *testing.T) {
	m := New(Config{Template: "streamlink {url} best", MetricsAddr: "127.0.0.1:17092"})
	m.width = 140
	m.state = supervisor.StateRunning
	m.snapshots = testSnapshots()

	out := m.View()
	for _, want := range []string{
		"stream-ripper",
		"Running: 1/3",
		"alpha",
		"4242",
		"exit code 1",
		"failed",
		"q: quit",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestModel_View_Detailed(t *testing.T) {
	m := New(Config{})
	m.width = 140
	m.detailedView = true
	m.snapshots = testSnapshots()

	out := m.View()
	if !strings.Contains(out, "Target Details") {
		t.Error("detailed view missing section header")
	}
	if !strings.Contains(out, "executable file not found") {
		t.Error("detailed view should show the last spawn error")
	}
}

func TestModel_View_Empty(t *testing.T) {
	out := New(Config{}).View()
	if !strings.Contains(out, "No targets yet.") {
		t.Errorf("empty view missing placeholder:\n%s", out)
	}
}

func TestModel_View_Quitting(t *testing.T) {
	m := New(Config{})
	m.quitting = true
	if out := m.View(); out != "" {
		t.Errorf("View() while quitting = %q, want empty", out)
	}
}

func TestModel_View_ManyTargets(t *testing.T) {
	m := New(Config{})
	m.height = 10
	for i := 0; i < 20; i++ {
		m.snapshots = append(m.snapshots, ripper.Snapshot{Target: "https://x.tv/t"})
	}

	if out := m.View(); !strings.Contains(out, "... and 15 more targets") {
		t.Error("table should be cut to fit the screen")
	}
}

// =============================================================================
// Tests: Formatting Helpers
// =============================================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00"},
		{-time.Second, "00:00:00"},
		{90 * time.Second, "00:01:30"},
		{26*time.Hour + 3*time.Minute + 4*time.Second, "26:03:04"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatExit(t *testing.T) {
	if got := formatExit(ripper.Snapshot{}); got != "-" {
		t.Errorf("formatExit(no exit) = %q, want -", got)
	}
	s := ripper.Snapshot{LastExit: &process.ExitStatus{Code: 137}}
	if got := formatExit(s); !strings.Contains(got, "137") {
		t.Errorf("formatExit(137) = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s    string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"https://www.twitch.tv/someone", 15, "https://www...."},
		{"abcdef", 3, "abc"},
		{"abc", 0, "abc"},
	}

	for _, tt := range tests {
		if got := truncate(tt.s, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.s, tt.n, got, tt.want)
		}
	}
}
