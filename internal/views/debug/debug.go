// Package debug provides the event log overlay: realtime state changes,
// navigation, session events and errors, filterable by kind.
package debug

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/wigennn/novel-tui/internal/theme"
)

const maxEntries = 200

// Kind tags an entry with the part of the client that produced it.
type Kind string

const (
	KindRealtime Kind = "rt"
	KindNav      Kind = "nav"
	KindAuth     Kind = "auth"
	KindErr      Kind = "err"
)

// Kinds lists the kinds in filter order.
var Kinds = []Kind{KindRealtime, KindNav, KindAuth, KindErr}

// Entry is a single event log line.
type Entry struct {
	Time    time.Time
	Kind    Kind
	Message string
}

// Model holds event log state.
type Model struct {
	Entries []Entry
	Offset  int // scroll offset from the bottom of the filtered entries
	// Filter shows only one kind. Empty shows everything.
	Filter Kind
}

func New() Model {
	return Model{}
}

// Add appends an entry, caps the buffer and scrolls back to the bottom.
func (m *Model) Add(kind Kind, message string) {
	m.Entries = append(m.Entries, Entry{
		Time:    time.Now(),
		Kind:    kind,
		Message: message,
	})
	if len(m.Entries) > maxEntries {
		m.Entries = m.Entries[len(m.Entries)-maxEntries:]
	}
	m.Offset = 0
}

// CycleFilter steps through all, rt, nav, auth, err and back to all.
func (m *Model) CycleFilter() {
	m.Offset = 0
	if m.Filter == "" {
		m.Filter = Kinds[0]
		return
	}
	for i, k := range Kinds {
		if k == m.Filter {
			if i+1 < len(Kinds) {
				m.Filter = Kinds[i+1]
			} else {
				m.Filter = ""
			}
			return
		}
	}
	m.Filter = ""
}

// Visible returns the entries the current filter lets through, oldest
// first.
func (m Model) Visible() []Entry {
	if m.Filter == "" {
		return m.Entries
	}
	var out []Entry
	for _, e := range m.Entries {
		if e.Kind == m.Filter {
			out = append(out, e)
		}
	}
	return out
}

// Count reports how many entries of kind are held.
func (m Model) Count(kind Kind) int {
	n := 0
	for _, e := range m.Entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (m *Model) ScrollUp(n int) {
	m.Offset += n
	limit := max(len(m.Visible())-1, 0)
	if m.Offset > limit {
		m.Offset = limit
	}
}

func (m *Model) ScrollDown(n int) {
	m.Offset = max(m.Offset-n, 0)
}

func panelStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder)
}

// View renders the log as an overlay panel.
func (m Model) View(width, height int) string {
	innerW := max(width-4, 20)
	visible := max(height-6, 3)

	title := theme.StyleHeader.Render(" EVENT LOG ")
	if m.Filter != "" {
		title += " " + badge(m.Filter)
	}
	help := theme.StyleDimmed.Render("j/k:scroll  f:filter  esc:close  ") + m.tally()

	entries := m.Visible()
	if len(entries) == 0 {
		placeholder := "  Nothing happened yet."
		if m.Filter != "" {
			placeholder = fmt.Sprintf("  No %s events.", m.Filter)
		}
		body := theme.StyleDimmed.Render(placeholder)
		return panelStyle(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, title, "", body, "", help))
	}

	end := max(len(entries)-m.Offset, 0)
	start := max(end-visible, 0)

	lines := make([]string, 0, end-start)
	for _, e := range entries[start:end] {
		ts := theme.StyleDimmed.Render(e.Time.Format("15:04:05.000"))
		msg := e.Message
		if len(msg) > innerW-20 && innerW > 23 {
			msg = msg[:innerW-23] + "..."
		}
		lines = append(lines, fmt.Sprintf("%s %s %s", ts, badge(e.Kind), messageStyle(e).Render(msg)))
	}

	more := ""
	if m.Offset > 0 {
		more = theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d more", m.Offset))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n"), more, help)
	return panelStyle(innerW).Render(content)
}

// tally renders per-kind counts, e.g. "rt 3 nav 5 auth 1 err 0".
func (m Model) tally() string {
	parts := make([]string, 0, len(Kinds))
	for _, k := range Kinds {
		parts = append(parts, fmt.Sprintf("%s %d", badge(k), m.Count(k)))
	}
	return strings.Join(parts, " ")
}

func badge(kind Kind) string {
	return lipgloss.NewStyle().Foreground(kindColor(kind)).Width(5).Render(string(kind))
}

// messageStyle colors realtime state changes by connection health and
// errors in red. Everything else is plain.
func messageStyle(e Entry) lipgloss.Style {
	switch e.Kind {
	case KindRealtime:
		switch e.Message {
		case "connected", "connecting", "reconnecting", "disconnected":
			return lipgloss.NewStyle().Foreground(theme.ConnectionColor(e.Message))
		}
	case KindErr:
		return lipgloss.NewStyle().Foreground(theme.ColorFailed)
	}
	return lipgloss.NewStyle()
}

func kindColor(kind Kind) lipgloss.Color {
	switch kind {
	case KindRealtime:
		return theme.ColorRunning
	case KindErr:
		return theme.ColorFailed
	case KindNav:
		return theme.ColorQueued
	case KindAuth:
		return theme.ColorWarning
	default:
		return theme.ColorDimmed
	}
}
