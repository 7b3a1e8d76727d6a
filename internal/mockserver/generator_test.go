package mockserver

import (
	"strings"
	"testing"

	"github.com/wigennn/novel-tui/internal/client"
	"github.com/wigennn/novel-tui/internal/logging"
)

func TestStepWalksLifecycle(t *testing.T) {
	store := NewStore()
	gen := NewGenerator(store, NewBroker(0, logging.Discard()), logging.Discard())

	ok := gen.Enqueue(7, client.Task{Name: "Chapter 1", Type: TypeChapter}, 2, false)
	bad := gen.Enqueue(7, client.Task{Name: "Chapter 2", Type: TypeChapter}, 1, true)

	status := func(id int64) int {
		task, _ := store.Task(id)
		return task.Status
	}

	steps := []struct {
		changed int
		ok, bad int
	}{
		{2, statusRunning, statusRunning},
		{1, statusRunning, statusFailed},
		{1, statusDone, statusFailed},
		{0, statusDone, statusFailed},
	}
	for i, want := range steps {
		if got := gen.Step(); got != want.changed {
			t.Errorf("step %d changed %d tasks, want %d", i+1, got, want.changed)
		}
		if status(ok.ID) != want.ok || status(bad.ID) != want.bad {
			t.Fatalf("step %d: statuses %d/%d, want %d/%d", i+1, status(ok.ID), status(bad.ID), want.ok, want.bad)
		}
	}

	done, _ := store.Task(ok.ID)
	if done.Result != "generated chapter 1" || done.Error != "" {
		t.Errorf("succeeded task = %+v", done)
	}
	failed, _ := store.Task(bad.ID)
	if failed.Error == "" || failed.Result != "" {
		t.Errorf("failed task = %+v", failed)
	}
}

func TestStepAdoptsTasksWithoutPlan(t *testing.T) {
	store := NewStore()
	gen := NewGenerator(store, NewBroker(0, logging.Discard()), logging.Discard())
	task := store.AddTask(1, client.Task{Name: "orphan"})

	gen.Step()
	gen.Step()
	if got, _ := store.Task(task.ID); got.Status != statusDone {
		t.Errorf("status = %d, want done", got.Status)
	}
}

func TestCannedText(t *testing.T) {
	n := client.Novel{ID: 3, Title: "Salt Orchard", Genre: "literary"}
	if s := structureText(n); !strings.HasPrefix(s, "# Salt Orchard\n") || !strings.Contains(s, "*literary*") {
		t.Errorf("structureText = %q", s)
	}

	chs := outlineChapters(n, 4, 3)
	if len(chs) != 3 || chs[0].ChapterNumber != 4 || chs[2].Title != "Chapter 6" || chs[0].NovelID != 3 {
		t.Errorf("outlineChapters = %+v", chs)
	}

	text := chapterText(n, client.Chapter{ChapterNumber: 2})
	if !strings.HasPrefix(text, "## Chapter 2\n") {
		t.Errorf("chapterText = %q", text)
	}
	if got := firstSentence(text); got != "The wind off the water found every gap in the walls of Salt Orchard." {
		t.Errorf("firstSentence = %q", got)
	}
}
