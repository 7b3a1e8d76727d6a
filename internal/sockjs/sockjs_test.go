package sockjs

import (
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	sjs "github.com/igm/sockjs-go/v3/sockjs"
)

var sessionPath = regexp.MustCompile(`^/ws/\d{3}/[0-9a-f]{32}/websocket$`)

// echoServer runs a SockJS endpoint at /ws. Unless onOpen takes over the
// session, every message is echoed back prefixed with the JSESSIONID the
// handshake carried.
func echoServer(t *testing.T, heartbeat time.Duration, onOpen func(sjs.Session) bool) *httptest.Server {
	t.Helper()
	opts := sjs.DefaultOptions
	opts.RawWebsocket = true
	if heartbeat > 0 {
		opts.HeartbeatDelay = heartbeat
	}
	h := sjs.NewHandler("/ws", opts, func(sess sjs.Session) {
		if onOpen != nil && onOpen(sess) {
			return
		}
		cookie := ""
		if c, err := sess.Request().Cookie("JSESSIONID"); err == nil {
			cookie = c.Value
		}
		for {
			msg, err := sess.Recv()
			if err != nil {
				return
			}
			if err := sess.Send(cookie + ":" + msg); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

// receive skips SockJS heartbeats.
func receive(t *testing.T, c *Conn) string {
	t.Helper()
	for {
		m, err := c.Receive()
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		if m != "" {
			return m
		}
	}
}

func TestSessionURL(t *testing.T) {
	got, err := SessionURL("https://example.com/ws/")
	if err != nil {
		t.Fatal(err)
	}
	u, _ := url.Parse(got)
	if u.Scheme != "wss" || u.Host != "example.com" || !sessionPath.MatchString(u.Path) {
		t.Errorf("SessionURL = %q", got)
	}

	if _, err := SessionURL("ftp://example.com/ws"); err == nil {
		t.Error("expected error for ftp scheme")
	}
}

func TestDialSendReceive(t *testing.T) {
	srv := echoServer(t, 0, nil)

	jar, _ := cookiejar.New(nil)
	base, _ := url.Parse(srv.URL)
	jar.SetCookies(base, []*http.Cookie{{Name: "JSESSIONID", Value: "s1", Path: "/"}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, srv.URL+"/ws", Options{Jar: jar})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	payload := "SEND\ndestination:/app/x\n\n\"quoted\"\x00"
	if err := conn.Send(payload); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := receive(t, conn); got != "s1:"+payload {
		t.Errorf("Receive = %q", got)
	}
}

func TestHeartbeatsSurfaceAsEmptyMessages(t *testing.T) {
	srv := echoServer(t, 20*time.Millisecond, nil)
	conn, err := Dial(context.Background(), srv.URL+"/ws", Options{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	done := make(chan string, 1)
	go func() {
		m, err := conn.Receive()
		if err != nil {
			m = err.Error()
		}
		done <- m
	}()
	select {
	case m := <-done:
		if m != "" {
			t.Errorf("first message = %q, want a heartbeat", m)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no heartbeat")
	}
}

func TestDialRaw(t *testing.T) {
	srv := echoServer(t, 0, nil)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/websocket"

	conn, err := Dial(context.Background(), wsURL, Options{Raw: true})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := conn.Send("ping"); err != nil {
		t.Fatal(err)
	}
	if got, err := conn.Receive(); err != nil || got != ":ping" {
		t.Errorf("Receive = %q, %v", got, err)
	}
}

func TestPeerCloseFrame(t *testing.T) {
	srv := echoServer(t, 0, func(sess sjs.Session) bool {
		sess.Send("one")
		sess.Send("two")
		// wait for the client to have read both before closing
		if _, err := sess.Recv(); err == nil {
			sess.Close(3000, "Go away!")
		}
		return true
	})

	conn, err := Dial(context.Background(), srv.URL+"/ws", Options{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	for _, want := range []string{"one", "two"} {
		if got := receive(t, conn); got != want {
			t.Fatalf("Receive = %q; want %q", got, want)
		}
	}
	if err := conn.Send("ack"); err != nil {
		t.Fatal(err)
	}
	for {
		m, err := conn.Receive()
		if err == nil && m == "" {
			continue
		}
		var ce *CloseError
		if !errors.As(err, &ce) || ce.Code != 3000 || ce.Reason != "Go away!" {
			t.Fatalf("got %q, %v; want close frame 3000", m, err)
		}
		if !errors.Is(err, ErrClosed) {
			t.Error("CloseError should unwrap to ErrClosed")
		}
		return
	}
}

func TestSendAfterClose(t *testing.T) {
	srv := echoServer(t, 0, nil)
	conn, err := Dial(context.Background(), srv.URL+"/ws", Options{})
	if err != nil {
		t.Fatal(err)
	}
	conn.Close()
	conn.Close()
	if err := conn.Send("x"); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
	if _, err := conn.Receive(); !errors.Is(err, ErrClosed) {
		t.Errorf("Receive after Close = %v, want ErrClosed", err)
	}
}

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{"o", nil, false},
		{"h", []string{""}, false},
		{`a["x","y"]`, []string{"x", "y"}, false},
		{`a[]`, nil, false},
		{`m"z"`, []string{"z"}, false},
		{`a[bad`, nil, true},
		{"?", nil, true},
	}
	for _, tt := range tests {
		got, err := decodeFrame([]byte(tt.in))
		if (err != nil) != tt.wantErr {
			t.Errorf("decodeFrame(%q) err = %v", tt.in, err)
			continue
		}
		if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
			t.Errorf("decodeFrame(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
