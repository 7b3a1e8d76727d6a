package debug

import (
	"strings"
	"testing"
)

func TestAddEntry(t *testing.T) {
	m := New()
	m.Add("rt", "connected")
	if len(m.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(m.Entries))
	}
	if m.Entries[0].Kind != "rt" {
		t.Errorf("expected kind 'rt', got %q", m.Entries[0].Kind)
	}
}

func TestMaxEntries(t *testing.T) {
	m := New()
	for i := 0; i < maxEntries+50; i++ {
		m.Add("rt", "msg")
	}
	if len(m.Entries) != maxEntries {
		t.Errorf("expected %d entries, got %d", maxEntries, len(m.Entries))
	}
}

func TestScroll(t *testing.T) {
	m := New()
	for i := 0; i < 20; i++ {
		m.Add("nav", "msg")
	}

	m.ScrollUp(5)
	if m.Offset != 5 {
		t.Errorf("expected offset 5, got %d", m.Offset)
	}
	m.ScrollDown(3)
	if m.Offset != 2 {
		t.Errorf("expected offset 2, got %d", m.Offset)
	}
	m.ScrollDown(10)
	if m.Offset != 0 {
		t.Errorf("expected offset 0, got %d", m.Offset)
	}
	m.ScrollUp(100)
	if m.Offset != 19 {
		t.Errorf("expected offset capped at 19, got %d", m.Offset)
	}

	m.Add("rt", "new")
	if m.Offset != 0 {
		t.Error("Add should scroll back to the bottom")
	}
}

func TestViewEmpty(t *testing.T) {
	out := New().View(80, 24)
	if !strings.Contains(out, "Nothing happened yet") {
		t.Errorf("empty view missing placeholder:\n%s", out)
	}
}

func TestViewShowsNewestEntries(t *testing.T) {
	m := New()
	m.Add("auth", "first")
	m.Add("err", "second")
	out := m.View(80, 24)
	if !strings.Contains(out, "first") || !strings.Contains(out, "second") {
		t.Errorf("view missing entries:\n%s", out)
	}
	if !strings.Contains(out, "f:filter") {
		t.Errorf("view missing filter help:\n%s", out)
	}
}

func TestCycleFilter(t *testing.T) {
	m := New()
	var got []Kind
	for i := 0; i < len(Kinds)+1; i++ {
		m.CycleFilter()
		got = append(got, m.Filter)
	}
	want := []Kind{KindRealtime, KindNav, KindAuth, KindErr, ""}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("filters = %q, want %q", got, want)
		}
	}
}

func TestFilterLimitsEntriesAndScroll(t *testing.T) {
	m := New()
	m.Add(KindRealtime, "connecting")
	m.Add(KindNav, "/tasks")
	m.Add(KindRealtime, "connected")
	m.Add(KindErr, "connect: refused")

	m.CycleFilter()
	vis := m.Visible()
	if len(vis) != 2 || vis[0].Message != "connecting" || vis[1].Message != "connected" {
		t.Errorf("rt entries = %+v", vis)
	}
	if m.Count(KindErr) != 1 || m.Count(KindAuth) != 0 {
		t.Errorf("counts err=%d auth=%d", m.Count(KindErr), m.Count(KindAuth))
	}

	m.ScrollUp(10)
	if m.Offset != 1 {
		t.Errorf("offset = %d, want capped at the filtered length", m.Offset)
	}

	out := m.View(80, 24)
	if strings.Contains(out, "/tasks") || strings.Contains(out, "refused") {
		t.Errorf("rt filter shows other kinds:\n%s", out)
	}
	if !strings.Contains(out, "connecting") {
		t.Errorf("rt filter hides realtime entries:\n%s", out)
	}
}

func TestFilteredViewWithoutMatches(t *testing.T) {
	m := New()
	m.Add(KindNav, "/")
	m.Filter = KindAuth
	if out := m.View(80, 24); !strings.Contains(out, "No auth events") {
		t.Errorf("view missing filtered placeholder:\n%s", out)
	}
}
