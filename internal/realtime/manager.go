// Package realtime keeps one STOMP connection to the backend alive and
// routes topic messages to subscribers across reconnects.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-stomp/stomp/v3/frame"

	"github.com/wigennn/novel-tui/internal/logging"
	"github.com/wigennn/novel-tui/internal/stomp"
)

var (
	// ErrDisconnected is returned to Connect callers still waiting when
	// Disconnect is called.
	ErrDisconnected = errors.New("realtime: disconnected")
	// ErrHeartbeatTimeout ends a connection that went silent for longer
	// than twice the negotiated heart-beat.
	ErrHeartbeatTimeout = errors.New("realtime: heartbeat timeout")
	ErrNotConnected     = errors.New("realtime: not connected")
	ErrConnectTimeout   = errors.New("realtime: connect timeout")
	// ErrConnectRejected wraps an ERROR frame received instead of CONNECTED.
	ErrConnectRejected = errors.New("realtime: connect rejected")
	ErrServerError     = errors.New("realtime: server error")
)

// State of the channel.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// Transport moves STOMP text in both directions. Receive is only ever
// called from one goroutine. Close may be called more than once.
type Transport interface {
	Receive() (string, error)
	Send(string) error
	Close() error
}

// Dialer opens a fresh transport.
type Dialer func(ctx context.Context) (Transport, error)

type Options struct {
	// Host is sent in the CONNECT frame.
	Host              string
	HeartbeatOutgoing time.Duration
	HeartbeatIncoming time.Duration
	ReconnectDelay    time.Duration
	// MaxReconnectAttempts bounds consecutive failed reconnects before the
	// manager gives up and settles in Disconnected. Zero retries forever.
	MaxReconnectAttempts int
	ConnectTimeout       time.Duration
}

// DefaultOptions mirrors the web client's stompjs settings.
func DefaultOptions() Options {
	return Options{
		HeartbeatOutgoing: 4 * time.Second,
		HeartbeatIncoming: 4 * time.Second,
		ReconnectDelay:    5 * time.Second,
		ConnectTimeout:    10 * time.Second,
	}
}

// Message is one MESSAGE frame delivered to a subscriber.
type Message struct {
	Topic  string
	Header *frame.Header
	Body   []byte
}

// Handler consumes messages of one topic. Calls for a topic never overlap
// and arrive in wire order.
type Handler func(Message)

// SubscribeOption customises a subscription.
type SubscribeOption func(*subscription)

// OnActive registers fn to run every time the subscription goes live on a
// connection, before any message of that activation is delivered. fn runs
// with the manager locked and must not call back into it.
func OnActive(fn func()) SubscribeOption {
	return func(s *subscription) { s.onActive = fn }
}

// ActivationHook extracts the OnActive hook from opts, for Subscriber
// implementations other than Manager.
func ActivationHook(opts ...SubscribeOption) func() {
	var s subscription
	for _, o := range opts {
		o(&s)
	}
	return s.onActive
}

type subscription struct {
	id       string
	seq      int
	topic    string
	handler  Handler
	onActive func()
}

type attempt struct {
	done chan struct{}
	err  error
}

func newAttempt() *attempt {
	return &attempt{done: make(chan struct{})}
}

// Manager owns the single realtime connection.
type Manager struct {
	dial   Dialer
	opts   Options
	logger *log.Logger

	mu       sync.Mutex
	state    State
	epoch    uint64
	cancel   context.CancelFunc
	done     chan struct{} // closed when the current run has released its transport
	attempt  *attempt
	conn     *conn
	subs     map[string]*subscription
	byID     map[string]*subscription
	nextSub  int
	watchers map[int]chan State
	nextW    int
}

func New(dial Dialer, opts Options, logger *log.Logger) *Manager {
	def := DefaultOptions()
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = def.ReconnectDelay
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = def.ConnectTimeout
	}
	return &Manager{
		dial:     dial,
		opts:     opts,
		logger:   logging.Component(logger, "realtime"),
		subs:     make(map[string]*subscription),
		byID:     make(map[string]*subscription),
		watchers: make(map[int]chan State),
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Watch streams state transitions. Slow readers miss transitions rather
// than block the manager.
func (m *Manager) Watch() (<-chan State, func()) {
	ch := make(chan State, 64)
	m.mu.Lock()
	id := m.nextW
	m.nextW++
	m.watchers[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.watchers, id)
			m.mu.Unlock()
		})
	}
}

// Connect starts the connection if it is not already running and waits for
// the outcome of the current attempt. It never dials twice concurrently.
// A failed first attempt is returned, but the manager keeps retrying in the
// background. ctx only bounds the wait.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case Connected:
		m.mu.Unlock()
		return nil
	case Disconnected:
		runCtx, cancel := context.WithCancel(context.Background())
		prev, done := m.done, make(chan struct{})
		m.epoch++
		m.cancel = cancel
		m.done = done
		m.attempt = newAttempt()
		m.setState(Connecting)
		go m.run(runCtx, m.epoch, prev, done)
	}
	a := m.attempt
	m.mu.Unlock()

	if a == nil {
		return nil
	}
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect closes the connection and stops reconnecting until the next
// Connect. The live transport is closed before Disconnect returns.
// Subscriptions are kept.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.state == Disconnected {
		m.mu.Unlock()
		return
	}
	m.epoch++
	cancel := m.cancel
	c := m.conn
	m.cancel = nil
	m.conn = nil
	m.resolve(ErrDisconnected)
	m.setState(Disconnected)
	m.mu.Unlock()

	if c != nil {
		if err := c.write(stomp.Encode(frame.New(frame.DISCONNECT))); err != nil {
			m.logger.Debug("DISCONNECT not delivered", "err", err)
		}
		c.t.Close()
	}
	if cancel != nil {
		cancel()
	}
}

// Subscribe routes messages on topic to h. Subscribing to a topic twice
// replaces its handler without a second SUBSCRIBE. The subscription is
// restored after every reconnect until Unsubscribe.
func (m *Manager) Subscribe(topic string, h Handler, opts ...SubscribeOption) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.subs[topic]; ok {
		s.handler = h
		for _, o := range opts {
			o(s)
		}
		return
	}

	s := &subscription{
		id:      "sub-" + strconv.Itoa(m.nextSub),
		seq:     m.nextSub,
		topic:   topic,
		handler: h,
	}
	m.nextSub++
	for _, o := range opts {
		o(s)
	}
	m.subs[topic] = s
	m.byID[s.id] = s

	if m.state == Connected && m.conn != nil {
		m.activate(m.conn, s)
	}
}

// Unsubscribe stops delivery for topic. Unknown topics are ignored.
func (m *Manager) Unsubscribe(topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.subs[topic]
	if !ok {
		return
	}
	delete(m.subs, topic)
	delete(m.byID, s.id)

	if m.state == Connected && m.conn != nil {
		f := frame.New(frame.UNSUBSCRIBE, frame.Id, s.id)
		if err := m.conn.write(stomp.Encode(f)); err != nil {
			m.logger.Debug("UNSUBSCRIBE failed", "topic", topic, "err", err)
		}
	}
}

// Topics lists the current subscriptions.
func (m *Manager) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.subs))
	for _, s := range m.sortedSubs() {
		out = append(out, s.topic)
	}
	return out
}

// Send publishes body to an application destination such as
// "/app/chapters/stream".
func (m *Manager) Send(destination string, body []byte) error {
	m.mu.Lock()
	c := m.conn
	connected := m.state == Connected
	m.mu.Unlock()
	if !connected || c == nil {
		return ErrNotConnected
	}

	f := frame.New(frame.SEND,
		frame.Destination, destination,
		frame.ContentType, "application/json",
	)
	f.Body = body
	if err := c.write(stomp.Encode(f)); err != nil {
		return fmt.Errorf("send %s: %w", destination, err)
	}
	return nil
}

// run drives connect, serve and reconnect until ctx is cancelled or the
// retry budget is spent. It dials only once the previous run, if any, has
// returned.
func (m *Manager) run(ctx context.Context, epoch uint64, prev <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			return
		}
	}

	retries := 0
	for {
		live, err := m.serve(ctx, epoch)
		if ctx.Err() != nil {
			return
		}
		if live {
			retries = 0
		}

		m.mu.Lock()
		if m.epoch != epoch {
			m.mu.Unlock()
			return
		}
		m.conn = nil
		m.resolve(err)
		if limit := m.opts.MaxReconnectAttempts; limit > 0 && retries >= limit {
			m.logger.Warn("giving up on realtime connection", "attempts", retries, "err", err)
			cancel := m.cancel
			m.epoch++
			m.cancel = nil
			m.setState(Disconnected)
			m.mu.Unlock()
			if cancel != nil {
				cancel()
			}
			return
		}
		retries++
		m.attempt = newAttempt()
		m.setState(Reconnecting)
		m.mu.Unlock()

		m.logger.Info("connection lost", "err", err, "retry_in", m.opts.ReconnectDelay)

		timer := time.NewTimer(m.opts.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		m.mu.Lock()
		if m.epoch != epoch {
			m.mu.Unlock()
			return
		}
		m.setState(Connecting)
		m.mu.Unlock()
	}
}

// serve runs one connection from dial to close. live reports whether the
// handshake completed.
func (m *Manager) serve(ctx context.Context, epoch uint64) (live bool, err error) {
	deadline := time.Now().Add(m.opts.ConnectTimeout)
	dctx, cancel := context.WithDeadline(ctx, deadline)
	t, err := m.dial(dctx)
	cancel()
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer t.Close()
	stop := context.AfterFunc(ctx, func() { t.Close() })
	defer stop()

	c := &conn{t: t}
	fr := stomp.NewReader(func() (string, error) {
		msg, err := t.Receive()
		if err == nil {
			c.touch()
		}
		return msg, err
	})
	hello := frame.New(frame.CONNECT,
		frame.AcceptVersion, "1.2,1.1,1.0",
		frame.HeartBeat, stomp.FormatHeartBeat(m.opts.HeartbeatOutgoing, m.opts.HeartbeatIncoming),
	)
	if m.opts.Host != "" {
		hello.Header.Add(frame.Host, m.opts.Host)
	}
	if err := c.write(stomp.Encode(hello)); err != nil {
		return false, fmt.Errorf("send CONNECT: %w", err)
	}

	var timedOut atomic.Bool
	timer := time.AfterFunc(time.Until(deadline), func() {
		timedOut.Store(true)
		t.Close()
	})

	connected, err := handshake(fr)
	if !timer.Stop() || timedOut.Load() {
		return false, ErrConnectTimeout
	}
	if err != nil {
		return false, err
	}

	sx, sy, err := stomp.ParseHeartBeat(connected.Header.Get(frame.HeartBeat))
	if err != nil {
		return false, err
	}
	send, expect := stomp.Negotiate(m.opts.HeartbeatOutgoing, m.opts.HeartbeatIncoming, sx, sy)

	if !m.online(epoch, c) {
		return false, ErrDisconnected
	}
	m.logger.Info("connected",
		"version", connected.Header.Get(frame.Version),
		"heartbeat_send", send, "heartbeat_expect", expect)

	hbCtx, hbCancel := context.WithCancel(ctx)
	defer hbCancel()
	var missed atomic.Bool
	if send > 0 {
		go c.beat(hbCtx, send)
	}
	if expect > 0 {
		go c.watchdog(hbCtx, 2*expect, func() {
			missed.Store(true)
			t.Close()
		})
	}

	for {
		f, err := fr.Read()
		if err != nil {
			if missed.Load() {
				return true, ErrHeartbeatTimeout
			}
			return true, err
		}
		if f == nil {
			continue
		}
		if err := m.dispatch(epoch, f); err != nil {
			return true, err
		}
	}
}

// handshake reads until CONNECTED or ERROR. Frames after CONNECTED stay
// buffered in fr.
func handshake(fr *frame.Reader) (*frame.Frame, error) {
	for {
		f, err := fr.Read()
		if err != nil {
			return nil, fmt.Errorf("handshake: %w", err)
		}
		if f == nil {
			continue
		}
		switch f.Command {
		case frame.CONNECTED:
			return f, nil
		case frame.ERROR:
			return nil, fmt.Errorf("%w: %s", ErrConnectRejected, errorText(f))
		}
	}
}

// online publishes c as the live connection and restores every
// subscription on it. It fails if Disconnect won the race.
func (m *Manager) online(epoch uint64, c *conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		return false
	}
	m.conn = c
	m.setState(Connected)
	for _, s := range m.sortedSubs() {
		m.activate(c, s)
	}
	m.resolve(nil)
	return true
}

// activate must be called with m.mu held.
func (m *Manager) activate(c *conn, s *subscription) {
	if s.onActive != nil {
		s.onActive()
	}
	f := frame.New(frame.SUBSCRIBE,
		frame.Id, s.id,
		frame.Destination, s.topic,
		frame.Ack, "auto",
	)
	if err := c.write(stomp.Encode(f)); err != nil {
		// The read loop sees the broken transport and reconnects, which
		// subscribes again.
		m.logger.Debug("SUBSCRIBE failed", "topic", s.topic, "err", err)
	}
}

// dispatch routes one frame read by the run of epoch. Messages that
// arrive after a Disconnect are dropped even if the new run reuses the
// subscription id.
func (m *Manager) dispatch(epoch uint64, f *frame.Frame) error {
	switch f.Command {
	case frame.MESSAGE:
		id := f.Header.Get(frame.Subscription)
		m.mu.Lock()
		if m.epoch != epoch {
			m.mu.Unlock()
			return nil
		}
		s, ok := m.byID[id]
		var h Handler
		var topic string
		if ok {
			h, topic = s.handler, s.topic
		}
		m.mu.Unlock()
		if !ok || h == nil {
			m.logger.Debug("dropping message for inactive subscription", "subscription", id,
				"destination", f.Header.Get(frame.Destination))
			return nil
		}
		h(Message{Topic: topic, Header: f.Header, Body: f.Body})
	case frame.ERROR:
		return fmt.Errorf("%w: %s", ErrServerError, errorText(f))
	case frame.RECEIPT:
	default:
		m.logger.Debug("ignoring frame", "command", f.Command)
	}
	return nil
}

func (m *Manager) sortedSubs() []*subscription {
	out := make([]*subscription, 0, len(m.subs))
	for _, s := range m.subs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// resolve settles the pending attempt, if any. Caller holds m.mu.
func (m *Manager) resolve(err error) {
	if m.attempt == nil {
		return
	}
	m.attempt.err = err
	close(m.attempt.done)
	m.attempt = nil
}

// setState must be called with m.mu held.
func (m *Manager) setState(s State) {
	if m.state == s {
		return
	}
	m.logger.Debug("state change", "from", m.state, "to", s)
	m.state = s
	for _, ch := range m.watchers {
		select {
		case ch <- s:
		default:
		}
	}
}

func errorText(f *frame.Frame) string {
	if msg := f.Header.Get(frame.Message); msg != "" {
		return msg
	}
	return string(f.Body)
}

// conn is the write side of one live transport plus its liveness clock.
type conn struct {
	t        Transport
	writeMu  sync.Mutex
	lastRecv atomic.Int64
}

func (c *conn) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.t.Send(string(data))
}

func (c *conn) touch() {
	c.lastRecv.Store(time.Now().UnixNano())
}

// beat sends an EOL heart-beat every interval.
func (c *conn) beat(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.write(stomp.Encode(nil)); err != nil {
				return
			}
		}
	}
}

// watchdog calls expire once nothing has been received for timeout.
func (c *conn) watchdog(ctx context.Context, timeout time.Duration, expire func()) {
	ticker := time.NewTicker(max(timeout/4, 5*time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			last := time.Unix(0, c.lastRecv.Load())
			if time.Since(last) > timeout {
				expire()
				return
			}
		}
	}
}
