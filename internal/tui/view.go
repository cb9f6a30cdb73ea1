package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/stream-ripper/internal/ripper"
)

// =============================================================================
// Main View Rendering
// =============================================================================

// renderSummaryView renders the main dashboard.
func (m Model) renderSummaryView() string {
	sections := []string{
		m.renderHeader(),
		m.renderOverview(),
		m.renderTargetTable(),
		m.renderFooter(),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderDetailedView renders the command and last error of every target.
func (m Model) renderDetailedView() string {
	sections := []string{
		m.renderHeader(),
		m.renderTargetDetails(),
		m.renderFooter(),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" stream-ripper │ %s │ Running: %d/%d │ Elapsed: %s ",
		m.state,
		m.RunningCount(),
		m.Targets(),
		formatDuration(m.Elapsed()),
	)

	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Overview
// =============================================================================

func (m Model) renderOverview() string {
	barWidth := m.width - 30
	if barWidth < 20 {
		barWidth = 20
	}

	var status string
	switch {
	case m.Targets() == 0:
		status = statusInfo.Render("Waiting for first poll...")
	case m.RunningCount() == m.Targets():
		status = statusOK.Render("✓ All rippers running")
	default:
		status = statusWarning.Render(fmt.Sprintf("%d target(s) down, restart on next poll", m.Targets()-m.RunningCount()))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Supervisor"),
		RenderProgressBar(m.RunningRatio(), barWidth),
		status,
		RenderKeyValue("Restarts", fmt.Sprintf("%d", m.TotalRestarts())),
		RenderKeyValue("Poll interval", m.pollInterval.String()),
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Target Table
// =============================================================================

func (m Model) renderTargetTable() string {
	if len(m.snapshots) == 0 {
		return boxStyle.Width(m.width - 2).Render(
			dimStyle.Render("No targets yet."),
		)
	}

	targetWidth := m.width - 70
	if targetWidth < 20 {
		targetWidth = 20
	}

	header := tableHeaderStyle.Render(
		fmt.Sprintf("%-*s %-7s %-8s %-9s %-8s %-24s",
			targetWidth, "Target", "Status", "PID", "Uptime", "Restarts", "Last exit"),
	)

	// Limit rows to fit screen
	maxRows := m.height - 14
	if maxRows < 5 {
		maxRows = 5
	}

	var rows []string
	for i, s := range m.snapshots {
		if i >= maxRows {
			rows = append(rows, dimStyle.Render(fmt.Sprintf("... and %d more targets", len(m.snapshots)-maxRows)))
			break
		}

		rowStyle := tableRowEvenStyle
		if i%2 == 1 {
			rowStyle = tableRowOddStyle
		}

		status := GetRipperStatus(s.Running, s.LastError)
		pid := "-"
		if s.Running {
			pid = fmt.Sprintf("%d", s.Pid)
		}

		row := fmt.Sprintf("%-*s %s %-8s %-9s %s %-24s",
			targetWidth, truncate(s.Target, targetWidth),
			GetRipperStyle(status).Render(fmt.Sprintf("%-7s", status)),
			pid,
			formatDuration(s.Uptime()),
			GetRestartStyle(s.Restarts).Render(fmt.Sprintf("%-8d", s.Restarts)),
			truncate(formatExit(s), 24),
		)
		rows = append(rows, rowStyle.Render(row))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{
			sectionHeaderStyle.Render("Targets"),
			header,
		}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Target Details (Detailed View)
// =============================================================================

func (m Model) renderTargetDetails() string {
	if len(m.snapshots) == 0 {
		return boxStyle.Width(m.width - 2).Render(
			dimStyle.Render("No targets yet. Press 'd' to toggle."),
		)
	}

	lines := []string{sectionHeaderStyle.Render("Target Details")}
	for _, s := range m.snapshots {
		status := GetRipperStatus(s.Running, s.LastError)
		lines = append(lines,
			GetRipperStyle(status).Render("● ")+s.Target,
			RenderKeyValue("  Started", formatStarted(s)),
			RenderKeyValue("  Last exit", formatExit(s)),
		)
		if s.LastError != "" {
			lines = append(lines, RenderKeyValue("  Last error", statusError.Render(truncate(s.LastError, m.width-26))))
		}
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// formatStarted renders when the current process started and its uptime.
func formatStarted(s ripper.Snapshot) string {
	if !s.Running || s.StartedAt.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%s (up %s)", s.StartedAt.Format(time.DateTime), formatDuration(s.Uptime()))
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	shortcuts := []string{
		"q: quit",
		"d: toggle details",
		"r: refresh",
	}

	tmpl := m.template
	maxLen := m.width - 60
	if maxLen > 10 {
		tmpl = truncate(tmpl, maxLen)
	}

	left := dimStyle.Render(strings.Join(shortcuts, " │ "))
	right := dimStyle.Render("Command: " + tmpl)
	if m.metricsAddr != "" {
		right = dimStyle.Render("Metrics: http://"+m.metricsAddr+"/metrics") + mutedStyle.Render(" │ ") + right
	}

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			right,
		),
	)
}
