// Package tasklist renders generation tasks with spring-animated progress
// bars.
package tasklist

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
	"github.com/wigennn/novel-tui/internal/tasks"
	"github.com/wigennn/novel-tui/internal/theme"
)

const (
	fps      = 60
	barWidth = 16
	settle   = 0.002
)

// FrameMsg advances the bar animation by one frame.
type FrameMsg struct{}

type bar struct {
	pos, vel, target float64
}

func (b *bar) settled() bool {
	return math.Abs(b.pos-b.target) < settle && math.Abs(b.vel) < settle
}

// Model holds the task list state.
type Model struct {
	Tasks    []tasks.Snapshot
	Selected int
	Width    int
	Title    string

	spring    harmonica.Spring
	bars      map[int64]*bar
	animating bool
}

// New creates an empty list.
func New(title string) Model {
	return Model{
		Title:  title,
		spring: harmonica.NewSpring(harmonica.FPS(fps), 6.0, 0.7),
		bars:   make(map[int64]*bar),
	}
}

// Progress is where a status puts the bar. Running tasks have no
// reported progress, so they sit halfway.
func Progress(s tasks.Status) float64 {
	switch s {
	case tasks.Queued:
		return 0.05
	case tasks.Running:
		return 0.5
	case tasks.Succeeded, tasks.Failed:
		return 1
	}
	return 0
}

// SetTasks replaces the list and retargets the bars. It returns a frame
// command when an animation has to start.
func (m *Model) SetTasks(list []tasks.Snapshot) tea.Cmd {
	m.Tasks = list
	if m.bars == nil {
		m.bars = make(map[int64]*bar)
	}
	seen := make(map[int64]bool, len(list))
	for _, s := range list {
		seen[s.ID] = true
		b, ok := m.bars[s.ID]
		if !ok {
			b = &bar{}
			m.bars[s.ID] = b
		}
		b.target = Progress(s.Status)
	}
	for id := range m.bars {
		if !seen[id] {
			delete(m.bars, id)
		}
	}
	if m.Selected >= len(list) {
		m.Selected = max(len(list)-1, 0)
	}
	if m.animating || m.allSettled() {
		return nil
	}
	m.animating = true
	return frame()
}

// Animate steps every bar one frame and keeps ticking until they rest.
func (m *Model) Animate() tea.Cmd {
	for _, b := range m.bars {
		if b.settled() {
			b.pos, b.vel = b.target, 0
			continue
		}
		b.pos, b.vel = m.spring.Update(b.pos, b.vel, b.target)
	}
	if m.allSettled() {
		m.animating = false
		return nil
	}
	return frame()
}

func (m *Model) allSettled() bool {
	for _, b := range m.bars {
		if !b.settled() {
			return false
		}
	}
	return true
}

func frame() tea.Cmd {
	return tea.Tick(time.Second/fps, func(time.Time) tea.Msg { return FrameMsg{} })
}

func (m *Model) Up() {
	if len(m.Tasks) > 0 {
		m.Selected = (m.Selected - 1 + len(m.Tasks)) % len(m.Tasks)
	}
}

func (m *Model) Down() {
	if len(m.Tasks) > 0 {
		m.Selected = (m.Selected + 1) % len(m.Tasks)
	}
}

// Current returns the highlighted task.
func (m Model) Current() (tasks.Snapshot, bool) {
	if m.Selected < 0 || m.Selected >= len(m.Tasks) {
		return tasks.Snapshot{}, false
	}
	return m.Tasks[m.Selected], true
}

// View renders the list.
func (m Model) View() string {
	lines := []string{theme.StyleHeader.Render(m.Title)}
	if len(m.Tasks) == 0 {
		lines = append(lines, theme.StyleDimmed.Render("  No tasks"))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	nameW := m.Width - barWidth - 30
	if nameW < 12 {
		nameW = 12
	}
	for i, s := range m.Tasks {
		prefix := "  "
		if i == m.Selected {
			prefix = "> "
		}
		status := int(s.Status)
		color := theme.StatusColor(status)
		nameStyle := lipgloss.NewStyle().Width(nameW)
		if i == m.Selected {
			nameStyle = theme.StyleSelected.Width(nameW)
		}
		line := fmt.Sprintf("%s%s %s %s %s %s",
			prefix,
			lipgloss.NewStyle().Foreground(color).Width(2).Render(theme.StatusGlyph(status)),
			theme.TypeBadge(s.Type),
			nameStyle.Render(truncate(s.Name, nameW)),
			m.renderBar(s),
			lipgloss.NewStyle().Foreground(color).Render(s.Status.String()),
		)
		lines = append(lines, line)
	}

	if cur, ok := m.Current(); ok {
		switch {
		case cur.Error != "":
			lines = append(lines, "", theme.StyleError.Render("  "+cur.Error))
		case cur.Result != "":
			lines = append(lines, "", theme.StyleDimmed.Render("  "+truncate(cur.Result, m.Width-4)))
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderBar(s tasks.Snapshot) string {
	pos := Progress(s.Status)
	if b, ok := m.bars[s.ID]; ok {
		pos = b.pos
	}
	filled := int(math.Round(math.Min(math.Max(pos, 0), 1) * barWidth))
	color := theme.StatusColor(int(s.Status))
	return lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("█", filled)) +
		theme.StyleDimmed.Render(strings.Repeat("░", barWidth-filled))
}

func truncate(s string, n int) string {
	if n < 4 {
		n = 4
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
