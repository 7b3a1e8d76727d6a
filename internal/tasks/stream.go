package tasks

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/wigennn/novel-tui/internal/realtime"
)

// Stream event types pushed on generation topics.
const (
	EventDelta    = "delta"
	EventComplete = "complete"
	EventError    = "error"
	EventStopped  = "stopped"
)

// StreamEvent is the payload of structure, outline and chapter topics.
type StreamEvent struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// Stream accumulates generated text. Deltas move it to Running, complete to
// Succeeded, error or stopped to Failed; nothing is accepted after a
// terminal event.
type Stream struct {
	mu     sync.Mutex
	status Status
	text   strings.Builder
	err    string
	chunks int
}

// Apply folds one event in and reports whether it was accepted.
func (s *Stream) Apply(e StreamEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return false
	}
	switch e.Type {
	case EventDelta:
		s.status = Running
		s.text.WriteString(e.Content)
		s.chunks++
	case EventComplete:
		s.status = Succeeded
	case EventError:
		s.status = Failed
		s.err = e.Content
	case EventStopped:
		s.status = Failed
		s.err = "stopped"
	default:
		return false
	}
	return true
}

// ApplyMessage decodes and applies a realtime message.
func (s *Stream) ApplyMessage(m realtime.Message) (bool, error) {
	var e StreamEvent
	if err := json.Unmarshal(m.Body, &e); err != nil {
		return false, fmt.Errorf("decode stream event: %w", err)
	}
	return s.Apply(e), nil
}

// Reset clears the stream for a new run.
func (s *Stream) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = Queued
	s.text.Reset()
	s.err = ""
	s.chunks = 0
}

func (s *Stream) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Stream) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}

func (s *Stream) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) Chunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks
}

// Sender publishes to application destinations.
type Sender interface {
	Send(destination string, body []byte) error
}

// ChapterStreamRequest starts streamed generation of one chapter.
type ChapterStreamRequest struct {
	NovelID         int64  `json:"novelId"`
	ChapterNumber   int    `json:"chapterNumber"`
	Title           string `json:"title,omitempty"`
	AbstractContent string `json:"abstractContent,omitempty"`
}

// NovelStreamRequest starts streamed generation of a novel's structure or
// chapter outline.
type NovelStreamRequest struct {
	NovelID         int64  `json:"novelId"`
	StreamType      string `json:"streamType"`
	ContinueOutline bool   `json:"continueOutline,omitempty"`
}

// StopStreamRequest stops a running stream.
type StopStreamRequest struct {
	NovelID       int64  `json:"novelId"`
	ChapterNumber int    `json:"chapterNumber,omitempty"`
	StreamType    string `json:"streamType,omitempty"`
}

// Novel stream kinds.
const (
	StreamStructure = "structure"
	StreamOutline   = "outline"
	StreamChapter   = "chapter"
)

// StartChapter asks the server to stream a chapter. Subscribe to
// realtime.ChapterTopic first or the opening deltas are lost.
func StartChapter(s Sender, req ChapterStreamRequest) error {
	return send(s, realtime.DestChapterStream, req)
}

// StartNovel asks the server to stream a structure or outline.
func StartNovel(s Sender, req NovelStreamRequest) error {
	return send(s, realtime.DestNovelStream, req)
}

// Stop cancels a chapter stream when ChapterNumber is set, otherwise the
// novel stream named by StreamType.
func Stop(s Sender, req StopStreamRequest) error {
	dest := realtime.DestNovelStop
	if req.ChapterNumber > 0 {
		dest = realtime.DestChapterStop
		req.StreamType = StreamChapter
	}
	return send(s, dest, req)
}

func send(s Sender, dest string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Send(dest, body)
}

// StreamTopic maps a stream kind to its topic.
func StreamTopic(kind string, novelID int64, chapter int) (string, error) {
	switch kind {
	case StreamStructure:
		return realtime.NovelStructureTopic(novelID), nil
	case StreamOutline:
		return realtime.NovelOutlineTopic(novelID), nil
	case StreamChapter:
		return realtime.ChapterTopic(novelID, chapter), nil
	}
	return "", fmt.Errorf("unknown stream kind %q", kind)
}
