package tasklist

import (
	"math"
	"strings"
	"testing"

	"github.com/wigennn/novel-tui/internal/tasks"
)

func sample() []tasks.Snapshot {
	return []tasks.Snapshot{
		{ID: 3, Name: "Chapter 3", Type: tasks.TypeChapter, Status: tasks.Running},
		{ID: 2, Name: "Outline", Type: tasks.TypeChapterOutline, Status: tasks.Failed, Error: "model quota exceeded"},
		{ID: 1, Name: "Structure", Type: tasks.TypeNovelStructure, Status: tasks.Queued},
	}
}

func TestSetTasksStartsAnimationOnce(t *testing.T) {
	m := New("Tasks")
	if cmd := m.SetTasks(sample()); cmd == nil {
		t.Fatal("new bars should start an animation")
	}
	if cmd := m.SetTasks(sample()); cmd != nil {
		t.Error("a running animation should not be started twice")
	}
}

func TestAnimateSettlesOnTargets(t *testing.T) {
	m := New("Tasks")
	m.SetTasks(sample())

	frames := 0
	for m.Animate() != nil {
		frames++
		if frames > 1000 {
			t.Fatal("bars never settled")
		}
	}
	if frames == 0 {
		t.Error("bars settled without moving")
	}
	for _, s := range sample() {
		b := m.bars[s.ID]
		if math.Abs(b.pos-Progress(s.Status)) > settle {
			t.Errorf("task %d bar at %.3f, want %.3f", s.ID, b.pos, Progress(s.Status))
		}
	}

	// Settled bars need no frames until a target moves.
	if cmd := m.SetTasks(sample()); cmd != nil {
		t.Error("unchanged tasks restarted the animation")
	}
	next := sample()
	next[0].Status = tasks.Succeeded
	if cmd := m.SetTasks(next); cmd == nil {
		t.Error("status change should animate")
	}
}

func TestSetTasksDropsVanishedBars(t *testing.T) {
	m := New("Tasks")
	m.SetTasks(sample())
	m.Selected = 2
	m.SetTasks(sample()[:1])
	if len(m.bars) != 1 {
		t.Errorf("bars = %d, want 1", len(m.bars))
	}
	if m.Selected != 0 {
		t.Errorf("Selected = %d, want clamped to 0", m.Selected)
	}
}

func TestSelectionWraps(t *testing.T) {
	m := New("Tasks")
	m.SetTasks(sample())

	m.Up()
	if m.Selected != 2 {
		t.Errorf("Up from top: Selected = %d, want 2", m.Selected)
	}
	m.Down()
	if m.Selected != 0 {
		t.Errorf("Down from bottom: Selected = %d, want 0", m.Selected)
	}
	m.Down()
	if cur, ok := m.Current(); !ok || cur.ID != 2 {
		t.Errorf("Current = %+v, %v", cur, ok)
	}
}

func TestView(t *testing.T) {
	m := New("Tasks")
	if !strings.Contains(m.View(), "No tasks") {
		t.Error("empty list should say so")
	}

	m.Width = 100
	m.SetTasks(sample())
	m.Selected = 1
	out := m.View()
	for _, want := range []string{"Chapter 3", "Outline", "running", "failed", "queued", "model quota exceeded"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q:\n%s", want, out)
		}
	}
}
