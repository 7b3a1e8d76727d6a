package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/wigennn/novel-tui/internal/client"
	"github.com/wigennn/novel-tui/internal/logging"
	"github.com/wigennn/novel-tui/internal/nav"
	"github.com/wigennn/novel-tui/internal/realtime"
	"github.com/wigennn/novel-tui/internal/session"
	"github.com/wigennn/novel-tui/internal/tasks"
	"github.com/wigennn/novel-tui/internal/theme"
	"github.com/wigennn/novel-tui/internal/views/debug"
	"github.com/wigennn/novel-tui/internal/views/detail"
	"github.com/wigennn/novel-tui/internal/views/login"
	"github.com/wigennn/novel-tui/internal/views/novels"
	"github.com/wigennn/novel-tui/internal/views/status"
	"github.com/wigennn/novel-tui/internal/views/tasklist"
)

// API is the slice of the REST client the screens read from.
type API interface {
	ActiveTasks(ctx context.Context) ([]client.Task, error)
	TasksByRelation(ctx context.Context, relationID int64) ([]client.Task, error)
	NovelsByUser(ctx context.Context, userID int64) ([]client.Novel, error)
	Novel(ctx context.Context, id int64) (*client.Novel, error)
	Chapters(ctx context.Context, novelID int64) ([]client.Chapter, error)
}

// Realtime is the part of the realtime manager the screens use.
type Realtime interface {
	tasks.Subscriber
	tasks.Sender
	State() realtime.State
	Watch() (<-chan realtime.State, func())
	Connect(ctx context.Context) error
	Disconnect()
}

// Deps wires the model to the rest of the client.
type Deps struct {
	Session   *session.Cache
	API       API
	Realtime  Realtime
	Logger    *log.Logger
	StartPath string
}

type navResultMsg struct {
	seq      uint64
	path     string
	intent   nav.Intent
	decision nav.Decision
}

// backResultMsg is a navigation that must not push history.
type backResultMsg struct{ navResultMsg }

type authResultMsg struct {
	user *client.User
	err  error
}

type codeSentMsg struct {
	email string
	err   error
}

type logoutMsg struct{ err error }

type connectMsg struct{ err error }

type novelsMsg struct {
	userID int64
	list   []client.Novel
	err    error
}

type novelMsg struct {
	id       int64
	novel    *client.Novel
	chapters []client.Chapter
	err      error
}

type streamSentMsg struct {
	run *streamRun
	err error
}

// streamRun is one generation stream opened from the novel screen.
type streamRun struct {
	kind     string
	label    string
	novelID  int64
	chapter  client.Chapter
	resume   bool
	topic    string
	stream   tasks.Stream
	ready    atomic.Bool
	started  bool
	stopping bool
	ended    bool
}

// Model is the root Bubble Tea model.
type Model struct {
	session *session.Cache
	guard   *nav.Guard
	api     API
	rt      Realtime
	logger  *log.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	bridge  *bridge
	unwatch []func()

	keys   KeyMap
	width  int
	height int

	// Navigation. navSeq tags guard evaluations so only the latest one
	// moves the screen.
	path       string
	intent     nav.Intent
	history    []string
	navSeq     uint64
	navigating bool

	user *client.User

	tracker     *tasks.Tracker
	stopTracker func()
	feed        *tasks.Feed
	taskFilter  func(tasks.Snapshot) bool
	stream      *streamRun
	notice      string
	showDebug   bool

	// Sub-views.
	statusBar status.Model
	debugLog  debug.Model
	spinner   spinner.Model
	login     login.Model
	novels    novels.Model
	tasklist  tasklist.Model
	detail    detail.Model
}

// New creates the root model. The first screen is d.StartPath, or home.
func New(d Deps) Model {
	ctx, cancel := context.WithCancel(context.Background())
	start := d.StartPath
	if start == "" {
		start = "/"
	}

	states, stopStates := d.Realtime.Watch()
	b := newBridge(states)
	stopSession := d.Session.Watch(func(*client.User) { b.poke() })

	m := Model{
		session:    d.Session,
		guard:      nav.NewGuard(d.Session, d.Logger),
		api:        d.API,
		rt:         d.Realtime,
		logger:     logging.Component(d.Logger, "app"),
		ctx:        ctx,
		cancel:     cancel,
		bridge:     b,
		unwatch:    []func(){stopStates, stopSession},
		keys:       DefaultKeyMap(),
		path:       start,
		intent:     nav.Resolve(start),
		navSeq:     1,
		navigating: true,
		statusBar:  status.New(),
		debugLog:   debug.New(),
		spinner:    spinner.New(spinner.WithSpinner(spinner.Dot)),
		login:      login.New(login.ModePassword),
		novels:     novels.New(),
		tasklist:   tasklist.New("Tasks"),
		detail:     detail.New(),
	}
	m.statusBar.Connection = d.Realtime.State().String()
	m.resetTracker()
	return m
}

// Init resolves the start screen and starts listening for events.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.bridge.wait(),
		m.spinner.Tick,
		navigateCmd(m.ctx, m.guard, m.navSeq, m.path),
	)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.login.Width = min(msg.Width, 72)
		m.novels.Width = msg.Width
		m.tasklist.Width = msg.Width
		m.detail.Width = msg.Width
		m.detail.Height = m.bodyHeight()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tasklist.FrameMsg:
		cmd := m.tasklist.Animate()
		return m, cmd

	case refreshMsg:
		cmds := m.refresh()
		return m, tea.Batch(append(cmds, m.bridge.wait())...)

	case stateMsg:
		s := realtime.State(msg)
		m.statusBar.Connection = s.String()
		m.debugLog.Add(debug.KindRealtime, s.String())
		return m, m.bridge.wait()

	case noteMsg:
		m.debugLog.Add(msg.kind, msg.text)
		return m, m.bridge.wait()

	case navResultMsg:
		return m.handleNav(msg, true)

	case backResultMsg:
		return m.handleNav(msg.navResultMsg, false)

	case login.SubmitMsg:
		return m.submitAuth(msg)

	case login.SendCodeMsg:
		m.login.Busy = true
		cache, ctx := m.session, m.ctx
		return m, func() tea.Msg {
			return codeSentMsg{email: msg.Email, err: cache.SendCode(ctx, msg.Email)}
		}

	case authResultMsg:
		return m.handleAuth(msg)

	case codeSentMsg:
		m.login.Busy = false
		if msg.err != nil {
			m.login.Err = describeError(msg.err)
			return m, nil
		}
		m.login.Err = ""
		m.login.Info = "code sent to " + msg.email
		return m, nil

	case logoutMsg:
		if msg.err != nil {
			m.debugLog.Add(debug.KindErr, "logout: "+msg.err.Error())
		}
		cmd := tea.Batch(m.syncUser()...)
		return m, cmd

	case connectMsg:
		if msg.err != nil {
			m.debugLog.Add(debug.KindErr, "connect: "+msg.err.Error())
			m.notice = "realtime unavailable, retrying in the background"
		} else {
			m.notice = ""
		}
		return m, nil

	case novelsMsg:
		if m.user == nil || msg.userID != m.user.ID {
			return m, nil
		}
		if msg.err != nil {
			cmd := m.loadFailed(msg.err, func(s string) { m.novels.Err = s })
			return m, cmd
		}
		m.novels.SetNovels(msg.list)
		return m, nil

	case novelMsg:
		if id, ok := m.novelID(); !ok || id != msg.id {
			return m, nil
		}
		if msg.err != nil {
			cmd := m.loadFailed(msg.err, func(s string) { m.detail.Err = s })
			return m, cmd
		}
		offset := m.detail.Offset
		m.detail.SetNovel(msg.novel, msg.chapters)
		m.detail.Offset = offset
		return m, nil

	case streamSentMsg:
		if msg.err != nil {
			msg.run.stream.Apply(tasks.StreamEvent{Type: tasks.EventError, Content: msg.err.Error()})
			m.debugLog.Add(debug.KindErr, msg.run.label+": "+msg.err.Error())
			m.bridge.poke()
		}
		return m, nil
	}

	if m.onForm() {
		var cmd tea.Cmd
		m.login, cmd = m.login.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.ForceQuit) {
		return m.quit()
	}

	if m.showDebug {
		switch {
		case key.Matches(msg, m.keys.Back), key.Matches(msg, m.keys.Debug):
			m.showDebug = false
		case key.Matches(msg, m.keys.Up):
			m.debugLog.ScrollUp(1)
		case key.Matches(msg, m.keys.Down):
			m.debugLog.ScrollDown(1)
		case key.Matches(msg, m.keys.Filter):
			m.debugLog.CycleFilter()
		}
		return m, nil
	}

	if m.onForm() {
		if key.Matches(msg, m.keys.Back) {
			return m.back()
		}
		var cmd tea.Cmd
		m.login, cmd = m.login.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()
	case key.Matches(msg, m.keys.Back):
		return m.back()
	case key.Matches(msg, m.keys.Debug):
		m.showDebug = true
		return m, nil
	case key.Matches(msg, m.keys.Home):
		cmd := m.navigate("/")
		return m, cmd
	case key.Matches(msg, m.keys.Novels):
		cmd := m.navigate("/novels")
		return m, cmd
	case key.Matches(msg, m.keys.Tasks):
		cmd := m.navigate("/tasks")
		return m, cmd
	case key.Matches(msg, m.keys.Login):
		if m.user == nil {
			cmd := m.navigate(nav.LoginRedirect(m.path))
			return m, cmd
		}
		return m, nil
	case key.Matches(msg, m.keys.Logout):
		if m.user == nil {
			return m, nil
		}
		cache, ctx := m.session, m.ctx
		return m, func() tea.Msg { return logoutMsg{err: cache.Logout(ctx)} }
	case key.Matches(msg, m.keys.Refresh):
		if m.user == nil {
			return m, nil
		}
		return m, tea.Batch(m.connect(), m.reload())
	}

	switch m.intent.Name {
	case nav.RouteNovels, nav.RouteLibrary:
		switch {
		case key.Matches(msg, m.keys.Up):
			m.novels.Up()
		case key.Matches(msg, m.keys.Down):
			m.novels.Down()
		case key.Matches(msg, m.keys.Enter):
			if n, ok := m.novels.Current(); ok {
				cmd := m.navigate("/novels/" + strconv.FormatInt(n.ID, 10))
				return m, cmd
			}
		}

	case nav.RouteTasks:
		switch {
		case key.Matches(msg, m.keys.Up):
			m.tasklist.Up()
		case key.Matches(msg, m.keys.Down):
			m.tasklist.Down()
		}

	case nav.RouteNovel:
		switch {
		case key.Matches(msg, m.keys.Up):
			m.detail.ScrollUp(1)
		case key.Matches(msg, m.keys.Down):
			m.detail.ScrollDown(1)
		case key.Matches(msg, m.keys.PageUp):
			m.detail.ScrollUp(max(m.detail.Height-2, 1))
		case key.Matches(msg, m.keys.PageDown):
			m.detail.ScrollDown(max(m.detail.Height-2, 1))
		case key.Matches(msg, m.keys.Structure):
			cmd := m.startStream(tasks.StreamStructure)
			return m, cmd
		case key.Matches(msg, m.keys.Outline):
			cmd := m.startStream(tasks.StreamOutline)
			return m, cmd
		case key.Matches(msg, m.keys.Chapter):
			cmd := m.startStream(tasks.StreamChapter)
			return m, cmd
		case key.Matches(msg, m.keys.Stop):
			cmd := m.stopStream()
			return m, cmd
		}
	}
	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.leaveScreen()
	for _, fn := range m.unwatch {
		fn()
	}
	m.stopTracker()
	m.bridge.close()
	m.cancel()
	return m, tea.Quit
}

func (m Model) onForm() bool {
	return m.intent.Name == nav.RouteLogin || m.intent.Name == nav.RouteRegister
}

// navigateCmd runs the guard for path. The result carries seq so that a
// slower, older evaluation cannot override a newer one.
func navigateCmd(ctx context.Context, guard *nav.Guard, seq uint64, path string) tea.Cmd {
	intent := nav.Resolve(path)
	return func() tea.Msg {
		return navResultMsg{seq: seq, path: path, intent: intent, decision: guard.Evaluate(ctx, intent)}
	}
}

func (m *Model) navigate(path string) tea.Cmd {
	m.navSeq++
	m.navigating = true
	return navigateCmd(m.ctx, m.guard, m.navSeq, path)
}

func (m Model) handleNav(msg navResultMsg, push bool) (tea.Model, tea.Cmd) {
	if msg.seq != m.navSeq {
		m.debugLog.Add(debug.KindNav, "ignoring superseded navigation to "+msg.path)
		return m, nil
	}
	cmds := m.syncUser()
	m.navigating = false

	if !msg.decision.Allow {
		m.debugLog.Add(debug.KindNav, msg.path+" needs a session")
		cmds = append(cmds, m.enter(msg.decision.Redirect, nav.Resolve(msg.decision.Redirect), push))
		return m, tea.Batch(cmds...)
	}
	cmds = append(cmds, m.enter(msg.path, msg.intent, push))
	return m, tea.Batch(cmds...)
}

func (m Model) back() (tea.Model, tea.Cmd) {
	if len(m.history) == 0 {
		return m, nil
	}
	prev := m.history[len(m.history)-1]
	m.history = m.history[:len(m.history)-1]
	m.navSeq++
	m.navigating = true
	seq := m.navSeq
	intent := nav.Resolve(prev)
	guard, ctx := m.guard, m.ctx
	return m, func() tea.Msg {
		d := guard.Evaluate(ctx, intent)
		return backResultMsg{navResultMsg{seq: seq, path: prev, intent: intent, decision: d}}
	}
}

// enter switches to a screen the guard allowed and starts its loads.
func (m *Model) enter(path string, intent nav.Intent, push bool) tea.Cmd {
	if push && m.path != path && !m.onForm() {
		m.history = append(m.history, m.path)
		if len(m.history) > 50 {
			m.history = m.history[1:]
		}
	}
	m.leaveScreen()
	m.path, m.intent = path, intent
	m.notice = ""
	m.debugLog.Add(debug.KindNav, path)

	switch intent.Name {
	case nav.RouteLogin:
		m.login = login.New(login.ModePassword)
		m.login.Width = min(m.width, 72)
	case nav.RouteRegister:
		m.login = login.New(login.ModeRegister)
		m.login.Width = min(m.width, 72)
	case nav.RouteNovels, nav.RouteLibrary:
		m.novels = novels.New()
		m.novels.Width = m.width
		return m.loadNovels()
	case nav.RouteTasks:
		if m.user == nil {
			return nil
		}
		api := m.api
		return m.startFeed(realtime.UserTasksTopic(m.user.ID), nil, func(ctx context.Context) ([]tasks.Snapshot, error) {
			ts, err := api.ActiveTasks(ctx)
			return tasks.FromTasks(ts), err
		})
	case nav.RouteNovel:
		id, ok := m.novelID()
		if !ok || m.user == nil {
			m.detail = detail.New()
			m.detail.Err = "no such novel"
			return nil
		}
		m.detail = detail.New()
		m.detail.Width, m.detail.Height = m.width, m.bodyHeight()
		m.detail.Loading = true
		api := m.api
		m.tasklist.Title = "Tasks for this novel"
		return tea.Batch(
			m.loadNovel(id),
			m.startFeed(realtime.UserTasksTopic(m.user.ID), tasks.ForRelation(id), func(ctx context.Context) ([]tasks.Snapshot, error) {
				ts, err := api.TasksByRelation(ctx, id)
				return tasks.FromTasks(ts), err
			}),
		)
	}
	return nil
}

// leaveScreen unsubscribes whatever the current screen listened to.
func (m *Model) leaveScreen() {
	if m.feed != nil {
		m.feed.Close()
		m.feed = nil
	}
	if m.stream != nil {
		m.rt.Unsubscribe(m.stream.topic)
		m.stream = nil
	}
	m.taskFilter = nil
	m.tasklist.Title = "Tasks"
}

func (m *Model) startFeed(topic string, filter func(tasks.Snapshot) bool, query tasks.QueryFunc) tea.Cmd {
	f := tasks.NewFeed(m.rt, topic, m.tracker, query, m.logger)
	b := m.bridge
	f.OnSync(func(err error) {
		if err != nil {
			b.note(debug.KindErr, "task resync: "+err.Error())
		} else {
			b.note(debug.KindRealtime, "tasks resynced")
		}
		b.poke()
	})
	f.Start()
	m.feed = f
	m.taskFilter = filter
	return m.tasklist.SetTasks(m.tracker.List(filter))
}

// resetTracker drops every known task, e.g. when the user changes.
func (m *Model) resetTracker() {
	if m.stopTracker != nil {
		m.stopTracker()
	}
	m.tracker = tasks.NewTracker()
	b := m.bridge
	m.stopTracker = m.tracker.Watch(func(tasks.Snapshot) { b.poke() })
}

// refresh re-reads everything that background goroutines change.
func (m *Model) refresh() []tea.Cmd {
	cmds := m.syncUser()
	cmds = append(cmds, m.tasklist.SetTasks(m.tracker.List(m.taskFilter)))
	m.updateCounts()
	if cmd := m.syncStream(); cmd != nil {
		cmds = append(cmds, cmd)
	}
	return cmds
}

// syncUser reacts to sign-in and sign-out. Signing in connects the
// realtime channel; signing out disconnects it and re-checks a protected
// screen, which sends the user to the login form.
func (m *Model) syncUser() []tea.Cmd {
	u := m.session.Current()
	if sameUser(u, m.user) {
		return nil
	}
	prev := m.user
	m.user = u
	m.statusBar.User = u.DisplayName()

	if u == nil {
		m.debugLog.Add(debug.KindAuth, "signed out")
		m.leaveScreen()
		m.rt.Disconnect()
		m.resetTracker()
		m.updateCounts()
		if m.intent.RequiresAuth && !m.navigating {
			return []tea.Cmd{m.navigate(m.path)}
		}
		return nil
	}

	m.debugLog.Add(debug.KindAuth, "signed in as "+u.DisplayName())
	if prev != nil && prev.ID != u.ID {
		m.resetTracker()
	}
	return []tea.Cmd{m.connect()}
}

func sameUser(a, b *client.User) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}

func (m Model) connect() tea.Cmd {
	rt, ctx := m.rt, m.ctx
	return func() tea.Msg { return connectMsg{err: rt.Connect(ctx)} }
}

func (m *Model) updateCounts() {
	var queued, running, finished int
	for _, s := range m.tracker.List(nil) {
		switch s.Status {
		case tasks.Queued:
			queued++
		case tasks.Running:
			running++
		default:
			finished++
		}
	}
	m.statusBar.SetCounts(queued, running, finished)
}

func (m Model) submitAuth(sub login.SubmitMsg) (tea.Model, tea.Cmd) {
	m.login.Busy = true
	cache, ctx := m.session, m.ctx
	return m, func() tea.Msg {
		var (
			u   *client.User
			err error
		)
		switch sub.Mode {
		case login.ModeCode:
			u, err = cache.LoginByCode(ctx, sub.Email, sub.Code)
		case login.ModeRegister:
			u, err = cache.Register(ctx, client.RegisterRequest{
				Username: sub.Username,
				Email:    sub.Email,
				Password: sub.Password,
			})
		default:
			u, err = cache.Login(ctx, sub.Email, sub.Password)
		}
		return authResultMsg{user: u, err: err}
	}
}

func (m Model) handleAuth(msg authResultMsg) (tea.Model, tea.Cmd) {
	m.login.Busy = false
	if msg.err != nil {
		m.login.Err = describeError(msg.err)
		m.debugLog.Add(debug.KindAuth, msg.err.Error())
		return m, nil
	}
	cmds := m.syncUser()
	if m.onForm() {
		cmds = append(cmds, m.navigate(nav.ResumeTarget(m.path)))
	}
	return m, tea.Batch(cmds...)
}

// describeError turns an error into a line for the form.
func describeError(err error) string {
	var se *client.StatusError
	switch {
	case errors.Is(err, session.ErrAuthenticationFailed):
		return "those credentials were not accepted"
	case errors.As(err, &se) && se.Body != "":
		return se.Body
	}
	return err.Error()
}

func (m Model) loadNovels() tea.Cmd {
	if m.user == nil {
		return nil
	}
	api, ctx, uid := m.api, m.ctx, m.user.ID
	return func() tea.Msg {
		list, err := api.NovelsByUser(ctx, uid)
		return novelsMsg{userID: uid, list: list, err: err}
	}
}

func (m Model) loadNovel(id int64) tea.Cmd {
	api, ctx := m.api, m.ctx
	return func() tea.Msg {
		n, err := api.Novel(ctx, id)
		if err != nil {
			return novelMsg{id: id, err: err}
		}
		chs, err := api.Chapters(ctx, id)
		return novelMsg{id: id, novel: n, chapters: chs, err: err}
	}
}

// loadFailed reports a failed screen load. A 401 means the session ended
// behind our back, so the guard gets to decide again.
func (m *Model) loadFailed(err error, show func(string)) tea.Cmd {
	m.debugLog.Add(debug.KindErr, err.Error())
	if client.IsStatus(err, http.StatusUnauthorized) && !m.navigating {
		return m.navigate(m.path)
	}
	if client.IsStatus(err, http.StatusNotFound) {
		show("not found")
		return nil
	}
	show(describeError(err))
	return nil
}

// reload refetches the current screen's data.
func (m Model) reload() tea.Cmd {
	switch m.intent.Name {
	case nav.RouteNovels, nav.RouteLibrary:
		return m.loadNovels()
	case nav.RouteNovel:
		if id, ok := m.novelID(); ok {
			return m.loadNovel(id)
		}
	}
	return nil
}

func (m Model) novelID() (int64, bool) {
	if m.intent.Name != nav.RouteNovel {
		return 0, false
	}
	id, err := strconv.ParseInt(m.intent.Param("id"), 10, 64)
	return id, err == nil
}

// startStream subscribes to the stream topic and sends the start request
// once the subscription is live, so no opening delta is missed.
func (m *Model) startStream(kind string) tea.Cmd {
	n := m.detail.Novel
	if n == nil {
		return nil
	}
	if m.stream != nil && !m.stream.ended {
		m.notice = "a generation is already running, x stops it"
		return nil
	}
	if m.stream != nil {
		m.rt.Unsubscribe(m.stream.topic)
	}

	run := &streamRun{kind: kind, novelID: n.ID}
	number := 0
	switch kind {
	case tasks.StreamStructure:
		run.label = "Structure"
	case tasks.StreamOutline:
		run.label = "Outline"
		run.resume = len(m.detail.Chapters) > 0
	case tasks.StreamChapter:
		run.chapter = m.detail.NextChapter()
		run.label = run.chapter.Title
		number = run.chapter.ChapterNumber
	}
	topic, err := tasks.StreamTopic(kind, n.ID, number)
	if err != nil {
		m.debugLog.Add(debug.KindErr, err.Error())
		return nil
	}
	run.topic = topic

	b := m.bridge
	m.rt.Subscribe(topic, func(msg realtime.Message) {
		if _, err := run.stream.ApplyMessage(msg); err != nil {
			b.note(debug.KindErr, err.Error())
		}
		b.poke()
	}, realtime.OnActive(func() {
		run.ready.Store(true)
		b.poke()
	}))

	m.stream = run
	m.notice = ""
	m.detail.Stream = &detail.StreamView{Label: run.label, Status: tasks.Queued}
	m.detail.Follow = true
	m.debugLog.Add(debug.KindRealtime, "generating "+run.label)
	return nil
}

// syncStream mirrors the stream into the detail view, sends the start
// request once subscribed and reloads the novel when the stream ends.
func (m *Model) syncStream() tea.Cmd {
	run := m.stream
	if run == nil {
		return nil
	}
	m.detail.Stream = &detail.StreamView{
		Label:  run.label,
		Status: run.stream.Status(),
		Text:   run.stream.Text(),
		Err:    run.stream.Err(),
	}

	if run.ready.Load() && !run.started {
		run.started = true
		return sendStart(m.rt, run)
	}
	if !run.ended && run.stream.Status().Terminal() {
		run.ended = true
		m.rt.Unsubscribe(run.topic)
		m.debugLog.Add(debug.KindRealtime, fmt.Sprintf("%s %s", run.label, run.stream.Status()))
		return m.loadNovel(run.novelID)
	}
	return nil
}

func sendStart(s tasks.Sender, run *streamRun) tea.Cmd {
	return func() tea.Msg {
		var err error
		if run.kind == tasks.StreamChapter {
			err = tasks.StartChapter(s, tasks.ChapterStreamRequest{
				NovelID:         run.novelID,
				ChapterNumber:   run.chapter.ChapterNumber,
				Title:           run.chapter.Title,
				AbstractContent: run.chapter.AbstractContent,
			})
		} else {
			err = tasks.StartNovel(s, tasks.NovelStreamRequest{
				NovelID:         run.novelID,
				StreamType:      run.kind,
				ContinueOutline: run.resume,
			})
		}
		return streamSentMsg{run: run, err: err}
	}
}

func (m *Model) stopStream() tea.Cmd {
	run := m.stream
	if run == nil || run.ended || run.stopping {
		return nil
	}
	if !run.started {
		// Nothing reached the server yet.
		m.rt.Unsubscribe(run.topic)
		run.stream.Apply(tasks.StreamEvent{Type: tasks.EventStopped})
		run.ended = true
		m.detail.Stream.Status = tasks.Failed
		m.detail.Stream.Err = "stopped"
		return nil
	}
	run.stopping = true
	req := tasks.StopStreamRequest{NovelID: run.novelID, StreamType: run.kind}
	if run.kind == tasks.StreamChapter {
		req.ChapterNumber = run.chapter.ChapterNumber
	}
	rt := m.rt
	return func() tea.Msg {
		return streamSentMsg{run: run, err: tasks.Stop(rt, req)}
	}
}

func (m Model) bodyHeight() int {
	// status bar (3) + title + footer + notice
	return max(m.height-7, 5)
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	title := theme.StyleHeader.Render(screenTitle(m.intent))
	if m.navigating {
		title += " " + m.spinner.View()
	}

	body := m.body()
	if m.showDebug {
		body = m.debugLog.View(m.width, m.bodyHeight()+2)
	}

	sections := []string{m.statusBar.View(), title, body}
	if m.notice != "" {
		sections = append(sections, lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("  "+m.notice))
	}
	sections = append(sections, theme.StyleDimmed.Render("  "+m.help()))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) body() string {
	switch m.intent.Name {
	case nav.RouteHome:
		if m.user == nil {
			return theme.StyleDimmed.Render("  Sign in to follow your novels and generation tasks.")
		}
		return fmt.Sprintf("  Welcome back, %s.\n\n%s", m.user.DisplayName(), m.tasklistSummary())
	case nav.RouteLogin, nav.RouteRegister:
		return m.login.View()
	case nav.RouteNovels, nav.RouteLibrary:
		return m.novels.View()
	case nav.RouteTasks:
		return m.tasklist.View()
	case nav.RouteNovel:
		return lipgloss.JoinVertical(lipgloss.Left, m.detail.View(), "", m.tasklist.View())
	case nav.RouteNovelNew, nav.RouteNovelEdit:
		return theme.StyleDimmed.Render("  Novels are created and edited in the web app.")
	}
	return theme.StyleError.Render("  Nothing at " + m.path)
}

func (m Model) tasklistSummary() string {
	return theme.StyleDimmed.Render(fmt.Sprintf("  %d queued, %d running, %d finished. Press 3 for details.",
		m.statusBar.Queued, m.statusBar.Running, m.statusBar.Finished))
}

func screenTitle(in nav.Intent) string {
	switch in.Name {
	case nav.RouteHome:
		return "Home"
	case nav.RouteLogin:
		return "Sign in"
	case nav.RouteRegister:
		return "Create account"
	case nav.RouteNovels, nav.RouteLibrary:
		return "Library"
	case nav.RouteTasks:
		return "Tasks"
	case nav.RouteNovel:
		return "Novel " + in.Param("id")
	case nav.RouteNovelNew:
		return "New novel"
	case nav.RouteNovelEdit:
		return "Edit novel " + in.Param("id")
	}
	return "Not found"
}

func (m Model) help() string {
	switch {
	case m.showDebug:
		return "j/k:scroll  f:filter  esc:close"
	case m.onForm():
		return "esc:back  ctrl+c:quit"
	}
	s := "1:home  2:novels  3:tasks  d:log  esc:back  q:quit"
	if m.user == nil {
		s += "  l:sign in"
	} else {
		s += "  r:reconnect  L:sign out"
	}
	switch m.intent.Name {
	case nav.RouteNovels, nav.RouteLibrary:
		s = "j/k:select  enter:open  " + s
	case nav.RouteNovel:
		s = "s:structure  o:outline  c:chapter  x:stop  " + s
	}
	return s
}
