package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/wigennn/novel-tui/internal/logging"
	"github.com/wigennn/novel-tui/internal/realtime"
)

const defaultQueryTimeout = 15 * time.Second

// Subscriber is the part of the realtime manager a Feed uses.
type Subscriber interface {
	Subscribe(topic string, h realtime.Handler, opts ...realtime.SubscribeOption)
	Unsubscribe(topic string)
}

// QueryFunc fetches the authoritative task list for a feed.
type QueryFunc func(ctx context.Context) ([]Snapshot, error)

// Feed binds one topic to a Tracker. Every time the subscription goes live
// it re-queries the server, seeds the tracker, then replays the updates
// that arrived while the query was in flight. Live updates after that are
// applied directly.
type Feed struct {
	topic   string
	sub     Subscriber
	tracker *Tracker
	query   QueryFunc
	logger  *log.Logger

	QueryTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	epoch   uint64
	syncing bool
	buffer  []Delta
	closed  bool
	onSync  func(error)
}

func NewFeed(sub Subscriber, topic string, tracker *Tracker, query QueryFunc, logger *log.Logger) *Feed {
	ctx, cancel := context.WithCancel(context.Background())
	return &Feed{
		topic:        topic,
		sub:          sub,
		tracker:      tracker,
		query:        query,
		logger:       logging.Component(logger, "feed").With("topic", topic),
		QueryTimeout: defaultQueryTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// OnSync registers fn to run after each resync with the query's error, if
// any. Set it before Start.
func (f *Feed) OnSync(fn func(error)) {
	f.mu.Lock()
	f.onSync = fn
	f.mu.Unlock()
}

func (f *Feed) Topic() string { return f.topic }

// Start subscribes. Activation, and with it the first query, happens when
// the channel is connected.
func (f *Feed) Start() {
	f.sub.Subscribe(f.topic, f.handle, realtime.OnActive(f.activate))
}

// Close unsubscribes and drops any resync still in flight.
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.epoch++
	f.buffer = nil
	f.mu.Unlock()

	f.cancel()
	f.sub.Unsubscribe(f.topic)
}

// Syncing reports whether a resync is in flight.
func (f *Feed) Syncing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.syncing
}

// activate runs under the channel's lock, so the query runs elsewhere.
func (f *Feed) activate() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.epoch++
	epoch := f.epoch
	f.syncing = true
	f.buffer = nil
	f.mu.Unlock()

	go f.resync(epoch)
}

func (f *Feed) resync(epoch uint64) {
	ctx, cancel := context.WithTimeout(f.ctx, f.QueryTimeout)
	snaps, err := f.query(ctx)
	cancel()

	f.mu.Lock()
	if f.closed || f.epoch != epoch {
		f.mu.Unlock()
		f.logger.Debug("dropping superseded resync")
		return
	}
	if err != nil {
		f.logger.Warn("resync query failed", "err", err)
	} else {
		f.tracker.Seed(snaps)
	}
	replayed, stale := 0, 0
	for _, d := range f.buffer {
		if f.tracker.Apply(d) {
			replayed++
		} else {
			stale++
		}
	}
	f.buffer = nil
	f.syncing = false
	onSync := f.onSync
	f.mu.Unlock()

	f.logger.Debug("resynced", "tasks", len(snaps), "replayed", replayed, "stale", stale)
	if onSync != nil {
		onSync(err)
	}
}

func (f *Feed) handle(m realtime.Message) {
	d, err := DecodeDelta(m.Body)
	if err != nil {
		f.logger.Debug("ignoring undecodable update", "err", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	if f.syncing {
		f.buffer = append(f.buffer, d)
		return
	}
	if !f.tracker.Apply(d) {
		f.logger.Debug("discarding stale update", "task", d.ID, "status", d.Status)
	}
}
