// Package stomp carries go-stomp frames over a message-oriented transport,
// where one transport message may hold part of a frame, several frames or
// a bare heart-beat EOL.
package stomp

import (
	"bytes"
	"strconv"

	"github.com/go-stomp/stomp/v3/frame"
)

// Encode serialises f as one transport message. A nil frame is a
// heart-beat. Non-empty bodies get a content-length header.
func Encode(f *frame.Frame) []byte {
	if f != nil && len(f.Body) > 0 {
		if _, ok := f.Header.Contains(frame.ContentLength); !ok {
			f.Header.Set(frame.ContentLength, strconv.Itoa(len(f.Body)))
		}
	}
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		// bytes.Buffer only fails by panicking
		panic(err)
	}
	return buf.Bytes()
}

// NewReader decodes frames from the messages next returns. Read yields a
// nil frame for every heart-beat. next is only called from the goroutine
// calling Read.
func NewReader(next func() (string, error)) *frame.Reader {
	return frame.NewReader(&messages{next: next})
}

// messages joins transport messages into one byte stream.
type messages struct {
	next func() (string, error)
	cur  string
}

func (m *messages) Read(p []byte) (int, error) {
	for m.cur == "" {
		s, err := m.next()
		if err != nil {
			return 0, err
		}
		m.cur = s
	}
	n := copy(p, m.cur)
	m.cur = m.cur[n:]
	return n, nil
}
