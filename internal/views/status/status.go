package status

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/wigennn/novel-tui/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	Connection string // realtime state name
	User       string
	Queued     int
	Running    int
	Finished   int
	Width      int
}

// New creates a status bar model.
func New() Model {
	return Model{Connection: "disconnected"}
}

// SetCounts updates the task counts.
func (m *Model) SetCounts(queued, running, finished int) {
	m.Queued = queued
	m.Running = running
	m.Finished = finished
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	glyph := "○ "
	if m.Connection == "connected" {
		glyph = "● "
	}
	connStr := lipgloss.NewStyle().Foreground(theme.ConnectionColor(m.Connection)).Render(glyph + m.Connection)

	user := theme.StyleDimmed.Render("signed out")
	if m.User != "" {
		user = theme.StyleHeader.Render(m.User)
	}

	counts := fmt.Sprintf("%d queued  %d running  %d finished", m.Queued, m.Running, m.Finished)

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + user + sep + counts

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
