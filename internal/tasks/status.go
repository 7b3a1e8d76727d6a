// Package tasks keeps the client's view of background generation tasks
// consistent with the server. Updates may arrive late, twice or out of
// order; a task's status only ever moves forward.
package tasks

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/wigennn/novel-tui/internal/client"
)

// Status values match the backend's taskStatus integers.
type Status int

const (
	Queued    Status = 0
	Running   Status = 1
	Succeeded Status = 2
	Failed    Status = 3
)

// Task types created by the backend.
const (
	TypeNovelStructure = "GENERATE_NOVEL_STRUCTURE"
	TypeChapterOutline = "GENERATE_CHAPTER_OUTLINE"
	TypeChapter        = "GENERATE_CHAPTER"
)

func (s Status) String() string {
	switch s {
	case Queued:
		return "queued"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return "status(" + strconv.Itoa(int(s)) + ")"
}

// rank orders the lifecycle. Both terminal states share the top rank, so
// neither can replace the other.
func (s Status) rank() int {
	switch s {
	case Queued:
		return 0
	case Running:
		return 1
	case Succeeded, Failed:
		return 2
	}
	return -1
}

func (s Status) Valid() bool { return s.rank() >= 0 }

func (s Status) Terminal() bool { return s == Succeeded || s == Failed }

// Advances reports whether moving from prev to s is forward progress.
func (s Status) Advances(prev Status) bool {
	return s.Valid() && s.rank() > prev.rank()
}

// Snapshot is the client's best knowledge of one task.
type Snapshot struct {
	ID         int64
	Name       string
	Type       string
	RelationID int64
	Status     Status
	Result     string
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// FromTask converts a REST or pushed TaskDTO.
func FromTask(t client.Task) Snapshot {
	return Snapshot{
		ID:         t.ID,
		Name:       t.Name,
		Type:       t.Type,
		RelationID: t.RelationID,
		Status:     Status(t.Status),
		Result:     t.Result,
		Error:      t.Error,
		CreatedAt:  t.CreatedAt.Time,
	}
}

// FromTasks converts a REST task list.
func FromTasks(ts []client.Task) []Snapshot {
	out := make([]Snapshot, len(ts))
	for i, t := range ts {
		out[i] = FromTask(t)
	}
	return out
}

// Delta is one pushed task update. The backend pushes whole TaskDTOs;
// empty fields leave the snapshot's value alone.
type Delta struct {
	ID         int64
	Name       string
	Type       string
	RelationID int64
	Status     Status
	Result     string
	Error      string
}

// DecodeDelta parses a realtime message body.
func DecodeDelta(body []byte) (Delta, error) {
	var t client.Task
	if err := json.Unmarshal(body, &t); err != nil {
		return Delta{}, fmt.Errorf("decode task update: %w", err)
	}
	if t.ID == 0 {
		return Delta{}, fmt.Errorf("decode task update: missing id")
	}
	s := Status(t.Status)
	if !s.Valid() {
		return Delta{}, fmt.Errorf("decode task update: unknown status %d", t.Status)
	}
	return Delta{
		ID:         t.ID,
		Name:       t.Name,
		Type:       t.Type,
		RelationID: t.RelationID,
		Status:     s,
		Result:     t.Result,
		Error:      t.Error,
	}, nil
}
