// Package sockjs carries text messages over the SockJS websocket transport,
// the framing Spring's STOMP endpoints speak, or over a raw websocket.
package sockjs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// ErrClosed is returned once the peer closed the session or Close was
// called.
var ErrClosed = errors.New("sockjs: session closed")

// CloseError carries the code and reason of a SockJS close frame.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("sockjs: closed by peer: %d %s", e.Code, e.Reason)
}

func (e *CloseError) Unwrap() error { return ErrClosed }

// Options tunes Dial.
type Options struct {
	// Jar supplies cookies for the handshake so the server sees the same
	// HTTP session as the REST client.
	Jar http.CookieJar
	// Raw dials baseURL as a plain websocket endpoint with no SockJS
	// framing.
	Raw              bool
	HandshakeTimeout time.Duration
	Subprotocols     []string
}

// Conn is one transport session. Receive must be called from a single
// goroutine; Send and Close are safe for concurrent use.
type Conn struct {
	ws  *websocket.Conn
	raw bool

	writeMu sync.Mutex
	pending []string

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial opens a session. For SockJS, baseURL is the http(s) endpoint
// (e.g. "http://localhost:8080/ws") and the websocket path is derived from
// it; for Raw it must be the ws(s) URL itself.
func Dial(ctx context.Context, baseURL string, opts Options) (*Conn, error) {
	target := baseURL
	if !opts.Raw {
		var err error
		if target, err = SessionURL(baseURL); err != nil {
			return nil, err
		}
	}

	d := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
		Jar:              opts.Jar,
		Subprotocols:     opts.Subprotocols,
	}
	if d.HandshakeTimeout <= 0 {
		d.HandshakeTimeout = 10 * time.Second
	}

	ws, resp, err := d.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (http %d)", target, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	c := &Conn{ws: ws, raw: opts.Raw, closed: make(chan struct{})}

	if !opts.Raw {
		// The server opens every SockJS session with "o".
		_, data, err := ws.ReadMessage()
		if err != nil {
			ws.Close()
			return nil, fmt.Errorf("sockjs open: %w", err)
		}
		if string(data) != "o" {
			ws.Close()
			return nil, fmt.Errorf("sockjs open: unexpected frame %q", truncate(string(data)))
		}
	}
	return c, nil
}

// SessionURL builds "{ws base}/{server}/{session}/websocket" from an http
// base URL.
func SessionURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("sockjs url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("sockjs url: unsupported scheme %q", u.Scheme)
	}
	server := fmt.Sprintf("%03d", rand.IntN(1000))
	session := strings.ReplaceAll(uuid.NewString(), "-", "")
	u.Path = strings.TrimRight(u.Path, "/") + "/" + server + "/" + session + "/websocket"
	return u.String(), nil
}

// Receive returns the next application message. SockJS heartbeats come
// back as empty strings so callers can count them as liveness.
func (c *Conn) Receive() (string, error) {
	if len(c.pending) > 0 {
		m := c.pending[0]
		c.pending = c.pending[1:]
		return m, nil
	}

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return "", ErrClosed
			default:
			}
			return "", err
		}
		if c.raw {
			return string(data), nil
		}

		msgs, err := decodeFrame(data)
		if err != nil {
			return "", err
		}
		if msgs == nil {
			continue
		}
		c.pending = msgs[1:]
		return msgs[0], nil
	}
}

// decodeFrame interprets one server frame. It returns nil for frames that
// carry nothing (a repeated open), a single "" for heartbeats.
func decodeFrame(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	switch data[0] {
	case 'o':
		return nil, nil
	case 'h':
		return []string{""}, nil
	case 'a':
		var msgs []string
		if err := json.Unmarshal(data[1:], &msgs); err != nil {
			return nil, fmt.Errorf("sockjs: bad array frame: %w", err)
		}
		if len(msgs) == 0 {
			return nil, nil
		}
		return msgs, nil
	case 'm':
		var msg string
		if err := json.Unmarshal(data[1:], &msg); err != nil {
			return nil, fmt.Errorf("sockjs: bad message frame: %w", err)
		}
		return []string{msg}, nil
	case 'c':
		var reason []any
		ce := &CloseError{}
		if err := json.Unmarshal(data[1:], &reason); err == nil && len(reason) == 2 {
			if code, ok := reason[0].(float64); ok {
				ce.Code = int(code)
			}
			ce.Reason, _ = reason[1].(string)
		}
		return nil, ce
	default:
		return nil, fmt.Errorf("sockjs: unknown frame %q", truncate(string(data)))
	}
}

// Send writes one message.
func (c *Conn) Send(msg string) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	payload := []byte(msg)
	if !c.raw {
		var err error
		if payload, err = json.Marshal([]string{msg}); err != nil {
			return err
		}
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

// Close ends the session. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

func truncate(s string) string {
	if len(s) > 64 {
		return s[:64] + "..."
	}
	return s
}
