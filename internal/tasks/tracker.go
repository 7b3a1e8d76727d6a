package tasks

import (
	"sort"
	"sync"
	"time"
)

// Tracker holds task snapshots keyed by id.
type Tracker struct {
	mu    sync.RWMutex
	tasks map[int64]*Snapshot
	now   func() time.Time

	watchMu  sync.Mutex
	watchers map[int]func(Snapshot)
	nextID   int
}

func NewTracker() *Tracker {
	return &Tracker{
		tasks:    make(map[int64]*Snapshot),
		now:      time.Now,
		watchers: make(map[int]func(Snapshot)),
	}
}

// Seed merges an authoritative query result. A snapshot that already moved
// further than the query reports (a push overtook the query), or already
// finished, keeps its status with its result and error; everything else
// takes the query's view. Tasks missing from the result are kept.
func (t *Tracker) Seed(list []Snapshot) {
	var changed []Snapshot

	t.mu.Lock()
	for _, in := range list {
		cur, ok := t.tasks[in.ID]
		if !ok {
			s := in
			s.UpdatedAt = t.now()
			t.tasks[in.ID] = &s
			changed = append(changed, s)
			continue
		}
		next := in
		switch {
		case cur.Status.Terminal():
			next.Status, next.Result, next.Error = cur.Status, cur.Result, cur.Error
		case cur.Status.Advances(in.Status):
			next.Status = cur.Status
			if next.Result == "" {
				next.Result = cur.Result
			}
			if next.Error == "" {
				next.Error = cur.Error
			}
		}
		next.UpdatedAt = cur.UpdatedAt
		if next != *cur {
			next.UpdatedAt = t.now()
			*cur = next
			changed = append(changed, next)
		}
	}
	t.mu.Unlock()

	t.notify(changed...)
}

// Apply merges one pushed update and reports whether it was accepted. An
// update for an unknown task creates it; otherwise the status must
// advance, so duplicates and stale updates are rejected.
func (t *Tracker) Apply(d Delta) bool {
	t.mu.Lock()
	cur, ok := t.tasks[d.ID]
	if ok && !d.Status.Advances(cur.Status) {
		t.mu.Unlock()
		return false
	}
	if !ok {
		cur = &Snapshot{ID: d.ID, CreatedAt: t.now()}
		t.tasks[d.ID] = cur
	}
	cur.Status = d.Status
	if d.Name != "" {
		cur.Name = d.Name
	}
	if d.Type != "" {
		cur.Type = d.Type
	}
	if d.RelationID != 0 {
		cur.RelationID = d.RelationID
	}
	if d.Result != "" {
		cur.Result = d.Result
	}
	if d.Error != "" {
		cur.Error = d.Error
	}
	cur.UpdatedAt = t.now()
	snap := *cur
	t.mu.Unlock()

	t.notify(snap)
	return true
}

func (t *Tracker) Get(id int64) (Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.tasks[id]
	if !ok {
		return Snapshot{}, false
	}
	return *s, true
}

// List returns matching snapshots, newest task first. A nil filter
// matches everything.
func (t *Tracker) List(filter func(Snapshot) bool) []Snapshot {
	t.mu.RLock()
	out := make([]Snapshot, 0, len(t.tasks))
	for _, s := range t.tasks {
		if filter == nil || filter(*s) {
			out = append(out, *s)
		}
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tasks)
}

// Watch calls fn with every snapshot that changes.
func (t *Tracker) Watch(fn func(Snapshot)) (cancel func()) {
	t.watchMu.Lock()
	id := t.nextID
	t.nextID++
	t.watchers[id] = fn
	t.watchMu.Unlock()

	return func() {
		t.watchMu.Lock()
		delete(t.watchers, id)
		t.watchMu.Unlock()
	}
}

func (t *Tracker) notify(snaps ...Snapshot) {
	if len(snaps) == 0 {
		return
	}
	t.watchMu.Lock()
	fns := make([]func(Snapshot), 0, len(t.watchers))
	for _, fn := range t.watchers {
		fns = append(fns, fn)
	}
	t.watchMu.Unlock()

	for _, s := range snaps {
		for _, fn := range fns {
			fn(s)
		}
	}
}

// Active reports tasks that have not finished.
func Active(s Snapshot) bool { return !s.Status.Terminal() }

// ForRelation matches tasks attached to one novel or chapter.
func ForRelation(id int64) func(Snapshot) bool {
	return func(s Snapshot) bool { return s.RelationID == id }
}
