// Package detail renders one novel: its structure, chapter list and the
// text of a generation stream, as markdown.
package detail

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/wigennn/novel-tui/internal/client"
	"github.com/wigennn/novel-tui/internal/tasks"
	"github.com/wigennn/novel-tui/internal/theme"
)

// Chapter status codes stored by the backend.
const (
	chapterDraft      = 0
	chapterGenerating = 1
	chapterWritten    = 2
)

// StreamView is what the screen knows about a running generation.
type StreamView struct {
	Label  string
	Status tasks.Status
	Text   string
	Err    string
}

// Model holds the detail screen state.
type Model struct {
	Novel    *client.Novel
	Chapters []client.Chapter
	Stream   *StreamView
	Loading  bool
	Err      string

	Width  int
	Height int
	Offset int  // first visible line
	Follow bool // keep the last line in view while text streams in

	// Style is a glamour standard style name.
	Style string

	cache *renderCache
}

type renderCache struct {
	source string
	width  int
	style  string
	out    string
}

func New() Model {
	return Model{Style: "dark", Follow: true, cache: &renderCache{}}
}

// SetNovel replaces the novel and its chapters and scrolls to the top.
func (m *Model) SetNovel(n *client.Novel, chapters []client.Chapter) {
	m.Novel = n
	m.Chapters = chapters
	m.Loading = false
	m.Err = ""
	m.Offset = 0
}

// NextChapter is the first chapter without text, or the one after the
// last chapter.
func (m Model) NextChapter() client.Chapter {
	last := 0
	for _, c := range m.Chapters {
		if c.Status != chapterWritten {
			return c
		}
		last = max(last, c.ChapterNumber)
	}
	next := client.Chapter{ChapterNumber: last + 1, Title: fmt.Sprintf("Chapter %d", last+1)}
	if m.Novel != nil {
		next.NovelID = m.Novel.ID
	}
	return next
}

// Markdown builds the document the screen renders.
func (m Model) Markdown() string {
	if m.Novel == nil {
		return ""
	}
	n := m.Novel
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", n.Title)
	if n.Genre != "" {
		fmt.Fprintf(&b, "*%s* · ", n.Genre)
	}
	fmt.Fprintf(&b, "%d chapters\n\n", len(m.Chapters))
	if n.SettingText != "" {
		fmt.Fprintf(&b, "> %s\n\n", n.SettingText)
	}

	if n.Structure != "" {
		b.WriteString("## Structure\n\n")
		b.WriteString(demote(n.Structure))
		b.WriteString("\n\n")
	}

	if len(m.Chapters) > 0 {
		b.WriteString("## Chapters\n\n")
		for _, c := range m.Chapters {
			fmt.Fprintf(&b, "%d. **%s** (%s)", c.ChapterNumber, c.Title, chapterLabel(c.Status))
			if c.AbstractContent != "" {
				fmt.Fprintf(&b, ": %s", c.AbstractContent)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if s := m.Stream; s != nil {
		fmt.Fprintf(&b, "## %s (%s)\n\n", s.Label, s.Status)
		if s.Err != "" {
			fmt.Fprintf(&b, "**%s**\n\n", s.Err)
		}
		b.WriteString(demote(s.Text))
		b.WriteString("\n")
	}
	return b.String()
}

// demote pushes headings of embedded text below the screen's own.
func demote(md string) string {
	lines := strings.Split(md, "\n")
	for i, l := range lines {
		if strings.HasPrefix(l, "#") {
			lines[i] = "##" + l
		}
	}
	return strings.Join(lines, "\n")
}

func chapterLabel(status int) string {
	switch status {
	case chapterDraft:
		return "outline"
	case chapterGenerating:
		return "generating"
	case chapterWritten:
		return "written"
	}
	return "unknown"
}

// Render turns the markdown into terminal output, reusing the previous
// result when nothing changed.
func (m Model) Render() (string, error) {
	src := m.Markdown()
	width := max(m.Width-4, 20)
	if m.cache != nil && m.cache.source == src && m.cache.width == width && m.cache.style == m.Style {
		return m.cache.out, nil
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.Style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	out, err := r.Render(src)
	if err != nil {
		return "", err
	}
	if m.cache != nil {
		*m.cache = renderCache{source: src, width: width, style: m.Style, out: out}
	}
	return out, nil
}

func (m *Model) ScrollUp(n int) {
	m.Follow = false
	m.Offset = max(m.Offset-n, 0)
}

func (m *Model) ScrollDown(n int) {
	m.Offset += n
	out, err := m.Render()
	if err != nil {
		return
	}
	lines := strings.Count(strings.TrimRight(out, " \n"), "\n") + 1
	if limit := max(lines-m.Height, 0); m.Offset >= limit {
		m.Offset = limit
		m.Follow = true
	}
}

// View renders the visible window of the document.
func (m Model) View() string {
	switch {
	case m.Err != "":
		return theme.StyleError.Render("  " + m.Err)
	case m.Loading || m.Novel == nil:
		return theme.StyleDimmed.Render("  Loading novel...")
	}

	out, err := m.Render()
	if err != nil {
		return theme.StyleError.Render("  render: " + err.Error())
	}
	lines := strings.Split(strings.TrimRight(out, " \n"), "\n")

	height := m.Height
	if height <= 0 {
		height = len(lines)
	}
	limit := max(len(lines)-height, 0)
	offset := min(m.Offset, limit)
	if m.Follow && m.Stream != nil && !m.Stream.Status.Terminal() {
		offset = limit
	}
	end := min(offset+height, len(lines))

	body := strings.Join(lines[offset:end], "\n")
	if limit > 0 {
		pos := theme.StyleDimmed.Render(fmt.Sprintf("  %d-%d of %d lines", offset+1, end, len(lines)))
		return lipgloss.JoinVertical(lipgloss.Left, body, pos)
	}
	return body
}
