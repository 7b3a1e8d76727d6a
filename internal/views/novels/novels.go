package novels

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/wigennn/novel-tui/internal/client"
	"github.com/wigennn/novel-tui/internal/theme"
)

// Model is the list of the signed-in user's novels.
type Model struct {
	Novels   []client.Novel
	Selected int
	Loading  bool
	Err      string
	Width    int
}

func New() Model {
	return Model{Loading: true}
}

func (m *Model) SetNovels(list []client.Novel) {
	m.Novels = list
	m.Loading = false
	m.Err = ""
	if m.Selected >= len(list) {
		m.Selected = max(len(list)-1, 0)
	}
}

func (m *Model) Up() {
	if len(m.Novels) > 0 {
		m.Selected = (m.Selected - 1 + len(m.Novels)) % len(m.Novels)
	}
}

func (m *Model) Down() {
	if len(m.Novels) > 0 {
		m.Selected = (m.Selected + 1) % len(m.Novels)
	}
}

// Current returns the highlighted novel.
func (m Model) Current() (client.Novel, bool) {
	if m.Selected < 0 || m.Selected >= len(m.Novels) {
		return client.Novel{}, false
	}
	return m.Novels[m.Selected], true
}

func (m Model) View() string {
	lines := []string{theme.StyleHeader.Render("Novels")}
	switch {
	case m.Err != "":
		lines = append(lines, theme.StyleError.Render("  "+m.Err))
	case m.Loading:
		lines = append(lines, theme.StyleDimmed.Render("  Loading..."))
	case len(m.Novels) == 0:
		lines = append(lines, theme.StyleDimmed.Render("  No novels yet"))
	}

	titleW := max(m.Width-30, 16)
	for i, n := range m.Novels {
		prefix, style := "  ", lipgloss.NewStyle().Width(titleW)
		if i == m.Selected {
			prefix, style = "> ", theme.StyleSelected.Width(titleW)
		}
		meta := theme.StyleDimmed.Render(fmt.Sprintf("%-12s %3d ch", n.Genre, n.ChapterNumber))
		lines = append(lines, prefix+style.Render(n.Title)+" "+meta)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
