package app

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/wigennn/novel-tui/internal/realtime"
	"github.com/wigennn/novel-tui/internal/views/debug"
)

// refreshMsg asks the model to re-read the session, tracker and stream.
type refreshMsg struct{}

// stateMsg carries a realtime state transition.
type stateMsg realtime.State

// noteMsg is an event log line from a background goroutine.
type noteMsg struct {
	kind debug.Kind
	text string
}

// bridge carries events from realtime, tracker and session callbacks into
// the Bubble Tea loop. Callbacks may run under other packages' locks, so
// nothing here blocks: change notifications coalesce into one pending
// refresh and notes are dropped when the buffer is full.
type bridge struct {
	changed chan struct{}
	notes   chan noteMsg
	states  <-chan realtime.State
	done    chan struct{}
	once    sync.Once
}

func newBridge(states <-chan realtime.State) *bridge {
	return &bridge{
		changed: make(chan struct{}, 1),
		notes:   make(chan noteMsg, 64),
		states:  states,
		done:    make(chan struct{}),
	}
}

func (b *bridge) poke() {
	select {
	case b.changed <- struct{}{}:
	default:
	}
}

func (b *bridge) note(kind debug.Kind, text string) {
	select {
	case b.notes <- noteMsg{kind: kind, text: text}:
	default:
	}
}

func (b *bridge) close() {
	b.once.Do(func() { close(b.done) })
}

// wait delivers the next event. The model re-issues it after handling each
// one, like a read loop.
func (b *bridge) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-b.changed:
			return refreshMsg{}
		case n := <-b.notes:
			return n
		case s, ok := <-b.states:
			if !ok {
				return nil
			}
			return stateMsg(s)
		case <-b.done:
			return nil
		}
	}
}
