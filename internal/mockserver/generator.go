package mockserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/wigennn/novel-tui/internal/client"
	"github.com/wigennn/novel-tui/internal/logging"
)

// Task types.
const (
	TypeNovelStructure = "GENERATE_NOVEL_STRUCTURE"
	TypeChapterOutline = "GENERATE_CHAPTER_OUTLINE"
	TypeChapter        = "GENERATE_CHAPTER"
)

// Application destinations served by the generator.
const (
	destChapterStream = "/app/chapters/stream"
	destChapterStop   = "/app/chapters/stop"
	destNovelStream   = "/app/novels/stream"
	destNovelStop     = "/app/novels/stop"
)

func taskTopic(id int64) string {
	return "/topic/tasks/" + strconv.FormatInt(id, 10)
}

func userTasksTopic(uid int64) string {
	return "/topic/users/" + strconv.FormatInt(uid, 10) + "/tasks"
}

func novelTopic(novelID int64, kind string) string {
	return "/topic/novels/" + strconv.FormatInt(novelID, 10) + "/" + kind
}

func chapterTopic(novelID int64, number int) string {
	return fmt.Sprintf("/topic/chapters/%d/%d", novelID, number)
}

// streamPayload is what stream topics carry. Content is null on complete
// and stopped.
type streamPayload struct {
	Type    string  `json:"type"`
	Content *string `json:"content"`
}

func payload(typ, content string) streamPayload {
	return streamPayload{Type: typ, Content: &content}
}

type plan struct {
	runFor int
	ranFor int
	fail   bool
}

// Generator plays the part of the AI workers: it walks queued tasks
// through their lifecycle one step per tick and streams canned text for
// /app stream requests.
type Generator struct {
	store  *Store
	broker *Broker
	logger *log.Logger

	// StreamInterval spaces stream deltas.
	StreamInterval time.Duration

	ctx context.Context

	mu      sync.Mutex
	plans   map[int64]*plan
	streams map[string]*atomic.Bool
}

// NewGenerator registers the stream handlers on broker.
func NewGenerator(store *Store, broker *Broker, logger *log.Logger) *Generator {
	g := &Generator{
		store:          store,
		broker:         broker,
		logger:         logging.Component(logger, "generator"),
		StreamInterval: 80 * time.Millisecond,
		ctx:            context.Background(),
		plans:          make(map[int64]*plan),
		streams:        make(map[string]*atomic.Bool),
	}
	broker.Handle(destChapterStream, g.streamChapter)
	broker.Handle(destChapterStop, g.stopChapter)
	broker.Handle(destNovelStream, g.streamNovel)
	broker.Handle(destNovelStop, g.stopNovel)
	return g
}

// Start advances tasks every tick until ctx ends. Call it before serving.
func (g *Generator) Start(ctx context.Context, tick time.Duration) {
	g.ctx = ctx
	go g.run(ctx, tick)
}

func (g *Generator) run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Step()
		}
	}
}

// Enqueue stores a pending task that will run for runFor ticks and then
// succeed, or fail when fail is set.
func (g *Generator) Enqueue(userID int64, t client.Task, runFor int, fail bool) client.Task {
	t.Status = statusPending
	t = g.store.AddTask(userID, t)

	g.mu.Lock()
	g.plans[t.ID] = &plan{runFor: max(runFor, 1), fail: fail}
	g.mu.Unlock()

	g.publishTask(userID, t)
	return t
}

// Step moves every active task one step forward and returns how many
// changed.
func (g *Generator) Step() int {
	active := g.store.Tasks(activeTask)
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })

	changed := 0
	for _, t := range active {
		g.mu.Lock()
		p := g.plans[t.ID]
		if p == nil {
			p = &plan{runFor: 1}
			g.plans[t.ID] = p
		}
		next := t.Status
		switch t.Status {
		case statusPending:
			next = statusRunning
		case statusRunning:
			p.ranFor++
			if p.ranFor >= p.runFor {
				next = statusDone
				if p.fail {
					next = statusFailed
				}
			}
		}
		g.mu.Unlock()

		if next == t.Status {
			continue
		}
		updated, uid, ok := g.store.UpdateTask(t.ID, func(t *client.Task) {
			t.Status = next
			switch next {
			case statusDone:
				t.Result = "generated " + strings.ToLower(t.Name)
			case statusFailed:
				t.Error = "model quota exceeded"
			}
		})
		if !ok {
			continue
		}
		changed++
		g.logger.Debug("task advanced", "task", updated.ID, "status", updated.Status)
		g.publishTask(uid, updated)
	}
	return changed
}

func (g *Generator) publishTask(uid int64, t client.Task) {
	if err := g.broker.PublishJSON(taskTopic(t.ID), t); err != nil {
		g.logger.Error("publish task", "task", t.ID, "err", err)
		return
	}
	g.broker.PublishJSON(userTasksTopic(uid), t)
}

type chapterStreamRequest struct {
	NovelID         *int64 `json:"novelId"`
	ChapterNumber   *int   `json:"chapterNumber"`
	Title           string `json:"title"`
	AbstractContent string `json:"abstractContent"`
}

type novelStreamRequest struct {
	NovelID         *int64 `json:"novelId"`
	StreamType      string `json:"streamType"`
	ContinueOutline bool   `json:"continueOutline"`
}

type stopRequest struct {
	NovelID       *int64 `json:"novelId"`
	ChapterNumber *int   `json:"chapterNumber"`
	StreamType    string `json:"streamType"`
}

func (g *Generator) streamChapter(userID int64, body []byte) {
	var req chapterStreamRequest
	if err := json.Unmarshal(body, &req); err != nil || req.NovelID == nil || req.ChapterNumber == nil {
		g.logger.Warn("invalid chapter stream request", "body", string(body))
		return
	}
	novelID, number := *req.NovelID, *req.ChapterNumber
	dest := chapterTopic(novelID, number)

	novel, ok := g.authorize(userID, novelID, dest)
	if !ok {
		return
	}

	ch, exists := g.store.Chapter(novelID, number)
	if !exists {
		ch = client.Chapter{NovelID: novelID, ChapterNumber: number, Title: req.Title, AbstractContent: req.AbstractContent}
	}
	ch.Status = 1
	ch = g.store.PutChapter(ch)

	key := fmt.Sprintf("%d:%d", novelID, number)
	g.emit(key, dest, chapterText(novel, ch), func(full string) {
		ch.Content = full
		ch.Status = 2
		if ch.AbstractContent == "" {
			ch.AbstractContent = firstSentence(full)
		}
		g.store.PutChapter(ch)
	})
}

func (g *Generator) streamNovel(userID int64, body []byte) {
	var req novelStreamRequest
	if err := json.Unmarshal(body, &req); err != nil || req.NovelID == nil || req.StreamType == "" {
		g.logger.Warn("invalid novel stream request", "body", string(body))
		return
	}
	novelID := *req.NovelID
	dest := novelTopic(novelID, req.StreamType)
	if userID == 0 {
		g.broker.PublishJSON(dest, payload("error", "not logged in"))
		return
	}
	if req.StreamType != "structure" && req.StreamType != "outline" {
		g.logger.Warn("unknown stream type", "type", req.StreamType)
		return
	}

	novel, ok := g.authorize(userID, novelID, dest)
	if !ok {
		return
	}

	key := fmt.Sprintf("%d:%s", novelID, req.StreamType)
	if req.StreamType == "structure" {
		g.emit(key, dest, structureText(novel), func(full string) {
			g.store.UpdateNovel(novelID, func(n *client.Novel) { n.Structure = full })
		})
		return
	}

	start := 1
	if req.ContinueOutline {
		start = len(g.store.Chapters(novelID)) + 1
	}
	outline := outlineChapters(novel, start, 3)
	g.emit(key, dest, outlineText(outline), func(string) {
		for _, ch := range outline {
			g.store.PutChapter(ch)
		}
		g.store.UpdateNovel(novelID, func(n *client.Novel) {
			n.ChapterNumber = start + len(outline) - 1
		})
	})
}

// authorize publishes an error event on dest and reports false unless
// userID owns the novel.
func (g *Generator) authorize(userID, novelID int64, dest string) (client.Novel, bool) {
	if userID == 0 {
		g.broker.PublishJSON(dest, payload("error", "not logged in"))
		return client.Novel{}, false
	}
	novel, ok := g.store.Novel(novelID)
	if !ok {
		g.broker.PublishJSON(dest, payload("error", fmt.Sprintf("novel not found: %d", novelID)))
		return client.Novel{}, false
	}
	if novel.UserID != userID {
		g.broker.PublishJSON(dest, payload("error", "no permission for this novel"))
		return client.Novel{}, false
	}
	return novel, true
}

func (g *Generator) stopChapter(_ int64, body []byte) {
	var req stopRequest
	if err := json.Unmarshal(body, &req); err != nil || req.NovelID == nil || req.ChapterNumber == nil {
		g.logger.Warn("invalid stop chapter request", "body", string(body))
		return
	}
	g.stop(fmt.Sprintf("%d:%d", *req.NovelID, *req.ChapterNumber))
}

func (g *Generator) stopNovel(_ int64, body []byte) {
	var req stopRequest
	if err := json.Unmarshal(body, &req); err != nil || req.NovelID == nil || req.StreamType == "" {
		g.logger.Warn("invalid stop stream request", "body", string(body))
		return
	}
	g.stop(fmt.Sprintf("%d:%s", *req.NovelID, req.StreamType))
}

func (g *Generator) stop(key string) {
	g.mu.Lock()
	flag := g.streams[key]
	g.mu.Unlock()
	if flag == nil {
		g.logger.Warn("stream not found", "stream", key)
		return
	}
	flag.Store(true)
	g.logger.Info("stopped stream", "stream", key)
}

// emit streams text to dest in word-sized deltas, then either completes
// (calling done with the full text) or reports stopped.
func (g *Generator) emit(key, dest, text string, done func(full string)) {
	stopped := new(atomic.Bool)
	g.mu.Lock()
	g.streams[key] = stopped
	g.mu.Unlock()

	go func() {
		defer func() {
			g.mu.Lock()
			if g.streams[key] == stopped {
				delete(g.streams, key)
			}
			g.mu.Unlock()
		}()

		t := time.NewTicker(g.StreamInterval)
		defer t.Stop()

		var sent strings.Builder
		for _, chunk := range strings.SplitAfter(text, " ") {
			select {
			case <-g.ctx.Done():
				return
			case <-t.C:
			}
			if stopped.Load() {
				break
			}
			sent.WriteString(chunk)
			g.broker.PublishJSON(dest, payload("delta", chunk))
		}

		if stopped.Load() {
			g.broker.PublishJSON(dest, streamPayload{Type: "stopped"})
			return
		}
		done(sent.String())
		g.broker.PublishJSON(dest, streamPayload{Type: "complete"})
	}()
}

func structureText(n client.Novel) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", n.Title)
	if n.Genre != "" {
		fmt.Fprintf(&b, "*%s*\n\n", n.Genre)
	}
	b.WriteString("## Premise\n\n")
	if n.SettingText != "" {
		b.WriteString(n.SettingText)
	} else {
		b.WriteString("A quiet place hides a loud secret.")
	}
	b.WriteString("\n\n## Acts\n\n1. Arrival and the first omen\n2. The storm closes the road\n3. What the light was warning about\n")
	return b.String()
}

func outlineChapters(n client.Novel, start, count int) []client.Chapter {
	beats := []string{
		"a stranger arrives with a letter nobody sent",
		"the keeper's logbook is missing three nights",
		"the lamp goes dark at the worst possible hour",
		"an old debt is called in",
		"the tide reveals the wreck",
	}
	out := make([]client.Chapter, 0, count)
	for i := 0; i < count; i++ {
		num := start + i
		out = append(out, client.Chapter{
			NovelID:         n.ID,
			ChapterNumber:   num,
			Title:           fmt.Sprintf("Chapter %d", num),
			AbstractContent: beats[(num-1)%len(beats)],
		})
	}
	return out
}

func outlineText(chs []client.Chapter) string {
	var b strings.Builder
	for _, ch := range chs {
		fmt.Fprintf(&b, "### %s\n\n%s\n\n", ch.Title, ch.AbstractContent)
	}
	return b.String()
}

func chapterText(n client.Novel, ch client.Chapter) string {
	var b strings.Builder
	title := ch.Title
	if title == "" {
		title = fmt.Sprintf("Chapter %d", ch.ChapterNumber)
	}
	fmt.Fprintf(&b, "## %s\n\n", title)
	if ch.AbstractContent != "" {
		fmt.Fprintf(&b, "In which %s. ", ch.AbstractContent)
	}
	fmt.Fprintf(&b, "The wind off the water found every gap in the walls of %s. ", n.Title)
	b.WriteString("Nobody spoke of the light, though everyone watched it.\n\n")
	b.WriteString("By morning the harbour had gone quiet, and the quiet had weight.")
	return b.String()
}

func firstSentence(s string) string {
	s = strings.TrimSpace(strings.TrimLeft(s, "# "))
	if _, rest, ok := strings.Cut(s, "\n\n"); ok {
		s = rest
	}
	if i := strings.Index(s, ". "); i >= 0 {
		return s[:i+1]
	}
	return s
}
