// Package theme provides the Lip Gloss color palette and reusable styles
// for the novel-tui screens. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Task status colors.
var (
	ColorQueued    = lipgloss.Color("#7c3aed")
	ColorRunning   = lipgloss.Color("#2563eb")
	ColorSucceeded = lipgloss.Color("#16a34a")
	ColorFailed    = lipgloss.Color("#dc2626")
	ColorDefault   = lipgloss.Color("#9ca3af")
)

// Task type colors.
var (
	ColorStructure = lipgloss.Color("#a855f7")
	ColorOutline   = lipgloss.Color("#06b6d4")
	ColorChapter   = lipgloss.Color("#d97706")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorAccent  = lipgloss.Color("#3b82f6")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// StatusColor returns the color for a task status code
// (0 queued, 1 running, 2 succeeded, 3 failed).
func StatusColor(status int) lipgloss.Color {
	switch status {
	case 0:
		return ColorQueued
	case 1:
		return ColorRunning
	case 2:
		return ColorSucceeded
	case 3:
		return ColorFailed
	default:
		return ColorDefault
	}
}

// StatusGlyph returns a Unicode glyph for a task status code.
func StatusGlyph(status int) string {
	switch status {
	case 0:
		return "◌"
	case 1:
		return "●>"
	case 2:
		return "✓"
	case 3:
		return "✗"
	default:
		return "·"
	}
}

// TypeColor returns the color for a backend task type.
func TypeColor(taskType string) lipgloss.Color {
	switch taskType {
	case "GENERATE_NOVEL_STRUCTURE":
		return ColorStructure
	case "GENERATE_CHAPTER_OUTLINE":
		return ColorOutline
	case "GENERATE_CHAPTER":
		return ColorChapter
	default:
		return ColorDefault
	}
}

// TypeBadge returns a short colored badge for a backend task type.
func TypeBadge(taskType string) string {
	label := "[?]"
	switch taskType {
	case "GENERATE_NOVEL_STRUCTURE":
		label = "[S]"
	case "GENERATE_CHAPTER_OUTLINE":
		label = "[O]"
	case "GENERATE_CHAPTER":
		label = "[C]"
	}
	return lipgloss.NewStyle().Foreground(TypeColor(taskType)).Render(label)
}

// ConnectionColor returns the color for a realtime state name.
func ConnectionColor(state string) lipgloss.Color {
	switch state {
	case "connected":
		return ColorHealthy
	case "connecting", "reconnecting":
		return ColorWarning
	default:
		return ColorDanger
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
		Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleError = lipgloss.NewStyle().
		Foreground(ColorDanger)
)
