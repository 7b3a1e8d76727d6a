package login

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func typeText(m Model, s string) Model {
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return m
}

func press(m Model, t tea.KeyType) (Model, tea.Msg) {
	m, cmd := m.Update(tea.KeyMsg{Type: t})
	if cmd == nil {
		return m, nil
	}
	return m, cmd()
}

func TestPasswordSubmit(t *testing.T) {
	m := New(ModePassword)
	if m.Focused() != FieldEmail {
		t.Fatalf("focused %v, want email", m.Focused())
	}
	m = typeText(m, " demo@example.com ")

	m, msg := press(m, tea.KeyEnter)
	if msg != nil || m.Focused() != FieldPassword {
		t.Fatalf("enter on email: msg %v, focus %v", msg, m.Focused())
	}
	m = typeText(m, "demo1234")

	_, msg = press(m, tea.KeyEnter)
	sub, ok := msg.(SubmitMsg)
	if !ok {
		t.Fatalf("got %T, want SubmitMsg", msg)
	}
	if sub.Mode != ModePassword || sub.Email != "demo@example.com" || sub.Password != "demo1234" {
		t.Errorf("submission = %+v", sub)
	}
}

func TestSubmitValidates(t *testing.T) {
	m := New(ModePassword)
	m, _ = press(m, tea.KeyTab)
	m, msg := press(m, tea.KeyEnter)
	if msg != nil || m.Err != "email is required" {
		t.Errorf("msg %v, err %q", msg, m.Err)
	}

	m.SetValue(FieldEmail, "demo@example.com")
	m, msg = press(m, tea.KeyEnter)
	if msg != nil || m.Err != "password is required" {
		t.Errorf("msg %v, err %q", msg, m.Err)
	}
}

func TestBusyFormIgnoresSubmit(t *testing.T) {
	m := New(ModePassword)
	m.SetValue(FieldEmail, "demo@example.com")
	m.SetValue(FieldPassword, "pw")
	m, _ = press(m, tea.KeyTab)
	m.Busy = true
	if _, msg := press(m, tea.KeyEnter); msg != nil {
		t.Errorf("busy form submitted %v", msg)
	}
}

func TestCodeMode(t *testing.T) {
	m := New(ModePassword)
	m, _ = press(m, tea.KeyCtrlT)
	if m.Mode != ModeCode || m.Focused() != FieldEmail {
		t.Fatalf("mode %v focus %v", m.Mode, m.Focused())
	}

	m, msg := press(m, tea.KeyCtrlS)
	if msg != nil || m.Err == "" {
		t.Errorf("send without email: msg %v, err %q", msg, m.Err)
	}

	m = typeText(m, "new@example.com")
	m, msg = press(m, tea.KeyCtrlS)
	if sc, ok := msg.(SendCodeMsg); !ok || sc.Email != "new@example.com" {
		t.Fatalf("got %#v, want SendCodeMsg", msg)
	}

	m, _ = press(m, tea.KeyTab)
	m = typeText(m, "1234567")
	if got := m.Value(FieldCode); got != "123456" {
		t.Errorf("code = %q, want it capped at 6 digits", got)
	}
	_, msg = press(m, tea.KeyEnter)
	if sub, ok := msg.(SubmitMsg); !ok || sub.Mode != ModeCode || sub.Code != "123456" {
		t.Errorf("got %#v", msg)
	}
}

func TestRegisterModeFields(t *testing.T) {
	m := New(ModeRegister)
	if got := m.fields(); len(got) != 3 || got[0] != FieldUsername {
		t.Fatalf("fields = %v", got)
	}
	if m.Focused() != FieldEmail {
		t.Errorf("focus = %v, want email", m.Focused())
	}
	m, _ = press(m, tea.KeyShiftTab)
	m = typeText(m, "ada")
	m.SetValue(FieldEmail, "ada@example.com")
	m.SetValue(FieldPassword, "pw")
	m, _ = press(m, tea.KeyShiftTab)

	_, msg := press(m, tea.KeyEnter)
	sub, ok := msg.(SubmitMsg)
	if !ok || sub.Username != "ada" || sub.Mode != ModeRegister {
		t.Errorf("got %#v", msg)
	}
}

func TestView(t *testing.T) {
	m := New(ModeCode)
	m.Width = 120
	m.Err = "code expired"
	out := m.View()
	for _, want := range []string{"[Email code]", "Email", "Code", "code expired", "ctrl+s:send code"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q:\n%s", want, out)
		}
	}
}
