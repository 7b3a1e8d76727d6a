package stomp

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
)

// feed returns a message source that yields msgs in order, then io.EOF.
func feed(msgs ...string) func() (string, error) {
	return func() (string, error) {
		if len(msgs) == 0 {
			return "", io.EOF
		}
		m := msgs[0]
		msgs = msgs[1:]
		return m, nil
	}
}

func TestEncode(t *testing.T) {
	f := frame.New(frame.SEND, frame.Destination, "/app/chapters:stream")
	f.Body = []byte(`{"n":1}`)

	got := string(Encode(f))
	if !strings.HasPrefix(got, "SEND\n") || !strings.HasSuffix(got, "\n\n{\"n\":1}\x00") {
		t.Errorf("Encode = %q", got)
	}
	if !strings.Contains(got, "content-length:7\n") {
		t.Errorf("content-length missing: %q", got)
	}
	if strings.Contains(got, "chapters:stream") {
		t.Errorf("header colon not escaped: %q", got)
	}

	if hb := string(Encode(nil)); hb != "\n" {
		t.Errorf("Encode(nil) = %q, want a heart-beat EOL", hb)
	}
}

func TestRoundTrip(t *testing.T) {
	in := frame.New(frame.MESSAGE,
		frame.Destination, "/topic/tasks/77",
		frame.Subscription, "sub-0",
		"x-note", "line1\nline2:\\",
	)
	in.Body = []byte("hello\x00world")

	r := NewReader(feed(string(Encode(in))))
	out, err := r.Read()
	if err != nil {
		t.Fatal(err)
	}
	if out.Command != frame.MESSAGE {
		t.Errorf("Command = %q", out.Command)
	}
	if out.Header.Get("x-note") != "line1\nline2:\\" {
		t.Errorf("x-note = %q", out.Header.Get("x-note"))
	}
	if string(out.Body) != "hello\x00world" {
		t.Errorf("Body = %q", out.Body)
	}
}

func TestReaderSplitMessagesAndHeartbeats(t *testing.T) {
	stream := "\nMESSAGE\ndestination:/topic/a\n\none\x00\nMESSAGE\ndestination:/topic/b\n\ntwo\x00"
	var msgs []string
	for i := 0; i < len(stream); i++ {
		msgs = append(msgs, stream[i:i+1])
	}

	r := NewReader(feed(msgs...))
	var got []*frame.Frame
	beats := 0
	for len(got) < 2 {
		f, err := r.Read()
		if err != nil {
			t.Fatalf("after %d frames: %v", len(got), err)
		}
		if f == nil {
			beats++
			continue
		}
		got = append(got, f)
	}
	if beats != 2 {
		t.Errorf("heart-beats = %d, want 2", beats)
	}
	if got[0].Header.Get(frame.Destination) != "/topic/a" || string(got[0].Body) != "one" {
		t.Errorf("frame 0 = %s %q", got[0].Command, got[0].Body)
	}
	if got[1].Header.Get(frame.Destination) != "/topic/b" || string(got[1].Body) != "two" {
		t.Errorf("frame 1 = %s %q", got[1].Command, got[1].Body)
	}
	if _, err := r.Read(); !errors.Is(err, io.EOF) {
		t.Errorf("Read past the end = %v, want EOF", err)
	}
}

func TestReaderSkipsEmptyMessages(t *testing.T) {
	r := NewReader(feed("", "RECEIPT\nreceipt-id:r1\n\n\x00"))
	f, err := r.Read()
	if err != nil {
		t.Fatal(err)
	}
	if f == nil || f.Command != frame.RECEIPT || f.Header.Get(frame.ReceiptId) != "r1" {
		t.Errorf("frame = %+v", f)
	}
}

func TestReaderRejectsUnknownCommand(t *testing.T) {
	r := NewReader(feed("HELLO\n\n\x00"))
	if _, err := r.Read(); err == nil {
		t.Error("unknown command should fail")
	}
}

func TestHeartBeat(t *testing.T) {
	if got := FormatHeartBeat(4*time.Second, 4*time.Second); got != "4000,4000" {
		t.Errorf("FormatHeartBeat = %q", got)
	}

	out, in, err := ParseHeartBeat("10000,0")
	if err != nil || out != 10*time.Second || in != 0 {
		t.Errorf("ParseHeartBeat = %v, %v, %v", out, in, err)
	}
	if out, in, err := ParseHeartBeat(""); err != nil || out != 0 || in != 0 {
		t.Errorf("ParseHeartBeat(\"\") = %v, %v, %v", out, in, err)
	}
	if _, _, err := ParseHeartBeat("1000"); err == nil {
		t.Error("ParseHeartBeat(1000) should fail")
	}

	tests := []struct {
		name                  string
		ourOut, ourIn, sx, sy time.Duration
		wantSend, wantExpect  time.Duration
	}{
		{"both sides", 4 * time.Second, 4 * time.Second, 10 * time.Second, 10 * time.Second, 10 * time.Second, 10 * time.Second},
		{"server silent", 4 * time.Second, 4 * time.Second, 0, 2 * time.Second, 4 * time.Second, 0},
		{"client silent", 0, 0, time.Second, time.Second, 0, 0},
		{"asymmetric", time.Second, 6 * time.Second, 3 * time.Second, 2 * time.Second, 2 * time.Second, 6 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			send, expect := Negotiate(tt.ourOut, tt.ourIn, tt.sx, tt.sy)
			if send != tt.wantSend || expect != tt.wantExpect {
				t.Errorf("Negotiate = %v, %v; want %v, %v", send, expect, tt.wantSend, tt.wantExpect)
			}
		})
	}
}
