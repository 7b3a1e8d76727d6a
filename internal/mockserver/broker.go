package mockserver

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/igm/sockjs-go/v3/sockjs"

	"github.com/wigennn/novel-tui/internal/logging"
	"github.com/wigennn/novel-tui/internal/stomp"
)

const (
	topicPrefix = "/topic/"
	appPrefix   = "/app/"
	sendBuffer  = 64
	serverName  = "novel-tui-mock/1.0"

	// SockJS close code for a server-initiated shutdown.
	goAway = 3000
)

// AppHandler serves a SEND to an /app destination. userID is zero for an
// anonymous connection.
type AppHandler func(userID int64, body []byte)

type stompClient struct {
	b       *Broker
	sess    sockjs.Session
	session string
	userID  int64

	mu     sync.Mutex
	send   chan []byte
	closed bool
	subs   map[string]string // subscription id -> destination

	// read loop only
	connected bool
	expect    time.Duration
	idle      *time.Timer
	stopBeat  chan struct{}
}

func (c *stompClient) writePump() {
	defer c.sess.Close(goAway, "Go away!")
	for msg := range c.send {
		if err := c.sess.Send(string(msg)); err != nil {
			c.b.RemoveClient(c)
			// drain so enqueue never blocks on a dead client
			for range c.send {
			}
			return
		}
	}
}

// enqueue reports false when the client is gone or cannot keep up.
func (c *stompClient) enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *stompClient) close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

func (c *stompClient) matching(dest string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []string
	for id, d := range c.subs {
		if d == dest {
			ids = append(ids, id)
		}
	}
	return ids
}

// Broker is an in-memory STOMP broker. /topic destinations fan out to
// subscribers; /app destinations go to registered handlers.
type Broker struct {
	mu      sync.RWMutex
	clients map[*stompClient]bool
	apps    map[string]AppHandler

	heartbeat time.Duration
	msgSeq    atomic.Uint64
	logger    *log.Logger
}

// NewBroker creates a broker offering heartbeat in both directions. Zero
// disables heart-beating.
func NewBroker(heartbeat time.Duration, logger *log.Logger) *Broker {
	return &Broker{
		clients:   make(map[*stompClient]bool),
		apps:      make(map[string]AppHandler),
		heartbeat: heartbeat,
		logger:    logging.Component(logger, "broker"),
	}
}

// Handle registers h for SENDs to dest.
func (b *Broker) Handle(dest string, h AppHandler) {
	b.mu.Lock()
	b.apps[dest] = h
	b.mu.Unlock()
}

func (b *Broker) addClient(sess sockjs.Session, userID int64) *stompClient {
	c := &stompClient{
		b:        b,
		sess:     sess,
		session:  strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		userID:   userID,
		send:     make(chan []byte, sendBuffer),
		subs:     make(map[string]string),
		stopBeat: make(chan struct{}),
	}
	go c.writePump()

	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()
	return c
}

func (b *Broker) RemoveClient(c *stompClient) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Subscribers counts subscriptions to dest across clients.
func (b *Broker) Subscribers(dest string) int {
	n := 0
	for _, c := range b.snapshot() {
		n += len(c.matching(dest))
	}
	return n
}

// CloseAll drops every connection.
func (b *Broker) CloseAll() {
	for _, c := range b.snapshot() {
		b.RemoveClient(c)
	}
}

func (b *Broker) snapshot() []*stompClient {
	b.mu.RLock()
	defer b.mu.RUnlock()
	clients := make([]*stompClient, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	return clients
}

// Publish delivers body to every subscription on dest and returns the
// number of deliveries.
func (b *Broker) Publish(dest string, body []byte) int {
	delivered := 0
	for _, c := range b.snapshot() {
		for _, id := range c.matching(dest) {
			f := frame.New(frame.MESSAGE,
				frame.Destination, dest,
				frame.ContentType, "application/json",
				frame.Subscription, id,
				frame.MessageId, c.session+"-"+strconv.FormatUint(b.msgSeq.Add(1), 10),
			)
			f.Body = body
			if !c.enqueue(stomp.Encode(f)) {
				b.logger.Warn("stomp client too slow, disconnecting", "session", c.session)
				b.RemoveClient(c)
				break
			}
			delivered++
		}
	}
	return delivered
}

// PublishJSON marshals v and publishes it.
func (b *Broker) PublishJSON(dest string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b.Publish(dest, data)
	return nil
}

// Serve runs one SockJS session until it closes. userID comes from the
// HTTP session presented at handshake.
func (b *Broker) Serve(sess sockjs.Session, userID int64) {
	c := b.addClient(sess, userID)
	defer func() {
		if c.idle != nil {
			c.idle.Stop()
		}
		close(c.stopBeat)
		b.RemoveClient(c)
	}()

	var gone error
	fr := stomp.NewReader(func() (string, error) {
		msg, err := sess.Recv()
		if err != nil {
			gone = err
			return "", err
		}
		c.alive()
		return msg, nil
	})
	for {
		f, err := fr.Read()
		if err != nil {
			if gone == nil {
				c.fail(err.Error())
			}
			b.logger.Debug("stomp client gone", "session", c.session, "err", err)
			return
		}
		if f == nil {
			continue
		}
		if !b.handle(c, f) {
			return
		}
	}
}

// handle processes one client frame and reports whether to keep reading.
func (b *Broker) handle(c *stompClient, f *frame.Frame) bool {
	if !c.connected && f.Command != frame.CONNECT && f.Command != frame.STOMP {
		c.fail("expected CONNECT, got " + f.Command)
		return false
	}

	switch f.Command {
	case frame.CONNECT, frame.STOMP:
		if c.connected {
			c.fail("already connected")
			return false
		}
		return b.connect(c, f)

	case frame.SUBSCRIBE:
		id, dest := f.Header.Get(frame.Id), f.Header.Get(frame.Destination)
		if id == "" || !strings.HasPrefix(dest, topicPrefix) {
			c.fail("SUBSCRIBE needs an id and a /topic destination")
			return false
		}
		c.mu.Lock()
		c.subs[id] = dest
		c.mu.Unlock()
		b.logger.Debug("subscribe", "session", c.session, "id", id, "destination", dest)

	case frame.UNSUBSCRIBE:
		c.mu.Lock()
		delete(c.subs, f.Header.Get(frame.Id))
		c.mu.Unlock()

	case frame.SEND:
		dest := f.Header.Get(frame.Destination)
		switch {
		case strings.HasPrefix(dest, appPrefix):
			b.mu.RLock()
			h := b.apps[dest]
			b.mu.RUnlock()
			if h == nil {
				b.logger.Debug("no handler", "destination", dest)
				break
			}
			h(c.userID, f.Body)
		case strings.HasPrefix(dest, topicPrefix):
			b.Publish(dest, f.Body)
		default:
			c.fail("unknown destination " + dest)
			return false
		}

	case frame.DISCONNECT:
		c.receipt(f)
		return false

	case frame.ACK, frame.NACK, frame.BEGIN, frame.COMMIT, frame.ABORT:

	default:
		c.fail("unsupported command " + f.Command)
		return false
	}

	c.receipt(f)
	return true
}

func (b *Broker) connect(c *stompClient, f *frame.Frame) bool {
	versions := f.Header.Get(frame.AcceptVersion)
	if versions != "" && !strings.Contains(versions, "1.2") && !strings.Contains(versions, "1.1") {
		c.fail("supported protocol versions are 1.1 1.2")
		return false
	}
	theirOut, theirIn, err := stomp.ParseHeartBeat(f.Header.Get(frame.HeartBeat))
	if err != nil {
		c.fail(err.Error())
		return false
	}
	send, expect := stomp.Negotiate(b.heartbeat, b.heartbeat, theirOut, theirIn)

	reply := frame.New(frame.CONNECTED,
		frame.Version, "1.2",
		frame.HeartBeat, stomp.FormatHeartBeat(b.heartbeat, b.heartbeat),
		frame.Server, serverName,
		frame.Session, c.session,
	)
	if !c.enqueue(stomp.Encode(reply)) {
		return false
	}
	c.connected = true
	c.expect = expect
	if expect > 0 {
		c.idle = time.AfterFunc(2*expect, func() {
			b.logger.Debug("stomp client silent, dropping", "session", c.session)
			b.RemoveClient(c)
		})
	}
	if send > 0 {
		go c.beat(send)
	}
	b.logger.Debug("stomp connected", "session", c.session, "user", c.userID, "send", send, "expect", expect)
	return true
}

func (c *stompClient) beat(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-c.stopBeat:
			return
		case <-t.C:
			if !c.enqueue(stomp.Encode(nil)) {
				return
			}
		}
	}
}

// alive pushes back the silence deadline. Read loop only.
func (c *stompClient) alive() {
	if c.idle != nil {
		c.idle.Reset(2 * c.expect)
	}
}

func (c *stompClient) receipt(f *frame.Frame) {
	if id := f.Header.Get(frame.Receipt); id != "" {
		c.enqueue(stomp.Encode(frame.New(frame.RECEIPT, frame.ReceiptId, id)))
	}
}

func (c *stompClient) fail(msg string) {
	c.b.logger.Debug("stomp error", "session", c.session, "msg", msg)
	f := frame.New(frame.ERROR, frame.Message, msg, frame.ContentType, "text/plain")
	f.Body = []byte(msg)
	c.enqueue(stomp.Encode(f))
}
