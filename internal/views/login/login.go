// Package login is the sign-in and registration form.
package login

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/wigennn/novel-tui/internal/theme"
)

// Mode selects how the user authenticates.
type Mode int

const (
	ModePassword Mode = iota
	ModeCode
	ModeRegister
)

func (m Mode) String() string {
	switch m {
	case ModeCode:
		return "Email code"
	case ModeRegister:
		return "Register"
	default:
		return "Password"
	}
}

// Field indexes into the form inputs.
type Field int

const (
	FieldUsername Field = iota
	FieldEmail
	FieldPassword
	FieldCode
	fieldCount
)

// SubmitMsg asks the app to authenticate with the form values.
type SubmitMsg struct {
	Mode     Mode
	Username string
	Email    string
	Password string
	Code     string
}

// SendCodeMsg asks the app to email a verification code.
type SendCodeMsg struct {
	Email string
}

type keyMap struct {
	Next     key.Binding
	Prev     key.Binding
	Submit   key.Binding
	Mode     key.Binding
	SendCode key.Binding
}

var keys = keyMap{
	Next:     key.NewBinding(key.WithKeys("tab", "down"), key.WithHelp("tab", "next field")),
	Prev:     key.NewBinding(key.WithKeys("shift+tab", "up"), key.WithHelp("shift+tab", "prev field")),
	Submit:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "submit")),
	Mode:     key.NewBinding(key.WithKeys("ctrl+t"), key.WithHelp("ctrl+t", "switch mode")),
	SendCode: key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "send code")),
}

// Model holds the form state.
type Model struct {
	Mode   Mode
	Busy   bool
	Err    string
	Info   string
	Width  int
	inputs [fieldCount]textinput.Model
	focus  int // index into fields()
}

// New creates a form in the given mode with the email field focused.
func New(mode Mode) Model {
	m := Model{Mode: mode}
	for i := range m.inputs {
		in := textinput.New()
		in.Prompt = ""
		in.CharLimit = 128
		m.inputs[i] = in
	}
	m.inputs[FieldUsername].Placeholder = "pen name (optional)"
	m.inputs[FieldEmail].Placeholder = "you@example.com"
	m.inputs[FieldPassword].Placeholder = "password"
	m.inputs[FieldPassword].EchoMode = textinput.EchoPassword
	m.inputs[FieldPassword].EchoCharacter = '•'
	m.inputs[FieldCode].Placeholder = "6-digit code"
	m.inputs[FieldCode].CharLimit = 6
	m.SetMode(mode)
	return m
}

func (m Model) fields() []Field {
	switch m.Mode {
	case ModeCode:
		return []Field{FieldEmail, FieldCode}
	case ModeRegister:
		return []Field{FieldUsername, FieldEmail, FieldPassword}
	default:
		return []Field{FieldEmail, FieldPassword}
	}
}

// SetMode switches the form, keeping typed values, and focuses the email.
func (m *Model) SetMode(mode Mode) {
	m.Mode = mode
	m.Err, m.Info = "", ""
	for i, f := range m.fields() {
		if f == FieldEmail {
			m.focus = i
		}
	}
	m.refocus()
}

func (m *Model) refocus() {
	active := m.fields()[m.focus]
	for i := range m.inputs {
		if Field(i) == active {
			m.inputs[i].Focus()
		} else {
			m.inputs[i].Blur()
		}
	}
}

// Value returns the trimmed content of a field. Passwords are not trimmed.
func (m Model) Value(f Field) string {
	v := m.inputs[f].Value()
	if f == FieldPassword {
		return v
	}
	return strings.TrimSpace(v)
}

// SetValue fills a field.
func (m *Model) SetValue(f Field, v string) {
	m.inputs[f].SetValue(v)
}

// Focused reports which field has the cursor.
func (m Model) Focused() Field {
	return m.fields()[m.focus]
}

// Update handles form keys. Submissions come back as SubmitMsg or
// SendCodeMsg commands.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	k, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		f := m.Focused()
		m.inputs[f], cmd = m.inputs[f].Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(k, keys.Mode):
		m.SetMode((m.Mode + 1) % 3)
		return m, nil

	case key.Matches(k, keys.Next):
		m.focus = (m.focus + 1) % len(m.fields())
		m.refocus()
		return m, nil

	case key.Matches(k, keys.Prev):
		m.focus = (m.focus - 1 + len(m.fields())) % len(m.fields())
		m.refocus()
		return m, nil

	case key.Matches(k, keys.SendCode):
		if m.Mode != ModeCode || m.Busy {
			return m, nil
		}
		email := m.Value(FieldEmail)
		if email == "" {
			m.Err = "email is required"
			return m, nil
		}
		m.Err = ""
		return m, func() tea.Msg { return SendCodeMsg{Email: email} }

	case key.Matches(k, keys.Submit):
		if m.focus < len(m.fields())-1 {
			m.focus++
			m.refocus()
			return m, nil
		}
		if m.Busy {
			return m, nil
		}
		sub, err := m.submission()
		if err != "" {
			m.Err = err
			return m, nil
		}
		m.Err = ""
		return m, func() tea.Msg { return sub }
	}

	var cmd tea.Cmd
	f := m.Focused()
	m.inputs[f], cmd = m.inputs[f].Update(msg)
	return m, cmd
}

func (m Model) submission() (SubmitMsg, string) {
	sub := SubmitMsg{
		Mode:     m.Mode,
		Username: m.Value(FieldUsername),
		Email:    m.Value(FieldEmail),
		Password: m.Value(FieldPassword),
		Code:     m.Value(FieldCode),
	}
	switch {
	case sub.Email == "":
		return sub, "email is required"
	case m.Mode == ModeCode && sub.Code == "":
		return sub, "enter the code from your email"
	case m.Mode != ModeCode && sub.Password == "":
		return sub, "password is required"
	}
	return sub, ""
}

var labels = [fieldCount]string{
	FieldUsername: "Pen name",
	FieldEmail:    "Email",
	FieldPassword: "Password",
	FieldCode:     "Code",
}

// View renders the form.
func (m Model) View() string {
	width := max(m.Width, 40)

	var tabs []string
	for _, mode := range []Mode{ModePassword, ModeCode, ModeRegister} {
		if mode == m.Mode {
			tabs = append(tabs, theme.StyleSelected.Render("["+mode.String()+"]"))
		} else {
			tabs = append(tabs, theme.StyleDimmed.Render(" "+mode.String()+" "))
		}
	}
	lines := []string{strings.Join(tabs, " "), ""}

	labelStyle := lipgloss.NewStyle().Width(10).Foreground(theme.ColorDimmed)
	for i, f := range m.fields() {
		prefix := "  "
		if i == m.focus {
			prefix = lipgloss.NewStyle().Foreground(theme.ColorAccent).Render("> ")
		}
		lines = append(lines, prefix+labelStyle.Render(labels[f])+m.inputs[f].View())
	}
	lines = append(lines, "")

	switch {
	case m.Busy:
		lines = append(lines, theme.StyleDimmed.Render("  working..."))
	case m.Err != "":
		lines = append(lines, theme.StyleError.Render("  "+m.Err))
	case m.Info != "":
		lines = append(lines, lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("  "+m.Info))
	}

	help := "tab:next  enter:submit  ctrl+t:mode"
	if m.Mode == ModeCode {
		help += "  ctrl+s:send code"
	}
	lines = append(lines, theme.StyleDimmed.Render("  "+help+"  esc:back"))

	return theme.StyleBorder.Width(width - 2).Padding(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
