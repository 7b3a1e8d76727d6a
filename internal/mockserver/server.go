// Package mockserver is a development backend speaking the same REST and
// SockJS/STOMP contract as the novel generation service. State lives in
// memory; verification codes are logged instead of mailed.
package mockserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/igm/sockjs-go/v3/sockjs"
	"golang.org/x/time/rate"

	"github.com/wigennn/novel-tui/internal/client"
	"github.com/wigennn/novel-tui/internal/logging"
)

const sessionCookie = "JSESSIONID"

// Options tunes a Server.
type Options struct {
	// Heartbeat is the STOMP heart-beat the broker offers both ways.
	Heartbeat time.Duration
	// CodeCooldown is the minimum gap between two codes for one email.
	CodeCooldown   time.Duration
	AllowedOrigins []string
}

func DefaultOptions() Options {
	return Options{
		Heartbeat:    4 * time.Second,
		CodeCooldown: time.Minute,
	}
}

type Server struct {
	store     *Store
	broker    *Broker
	generator *Generator
	logger    *log.Logger

	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	cooldown       time.Duration

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter
}

type ctxKey struct{}

func New(opts Options, logger *log.Logger) *Server {
	logger = logging.Component(logger, "mock")
	store := NewStore()
	broker := NewBroker(opts.Heartbeat, logger)
	s := &Server{
		store:          store,
		broker:         broker,
		generator:      NewGenerator(store, broker, logger),
		logger:         logger,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		cooldown:       opts.CodeCooldown,
		limiters:       make(map[string]*rate.Limiter),
	}

	for _, origin := range opts.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}
	return s
}

func (s *Server) Store() *Store         { return s.store }
func (s *Server) Broker() *Broker       { return s.broker }
func (s *Server) Generator() *Generator { return s.generator }

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/send-code", s.handleSendCode)
		r.Post("/login-by-code", s.handleLoginByCode)
		r.Post("/login", s.handleLogin)
		r.Post("/register", s.handleRegister)
		r.Get("/me", s.handleMe)
		r.Post("/logout", s.handleLogout)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)

		r.Get("/api/tasks/active", s.handleActiveTasks)
		r.Get("/api/tasks/relation/{relationID}", s.handleTasksByRelation)
		r.Get("/api/tasks", s.handleTasks)

		r.Get("/api/novels/user/{userID}", s.handleNovelsByUser)
		r.Get("/api/novels/{id}", s.handleNovel)
		r.Post("/api/novels/{id}/regenerate-structure", s.handleGenerate(TypeNovelStructure))
		r.Post("/api/novels/{id}/generate-outline", s.handleGenerate(TypeChapterOutline))
		r.Get("/api/chapters/novel/{novelID}", s.handleChapters)
	})

	// SockJS serves /ws/info, /ws/{server}/{session}/websocket and the raw
	// /ws/websocket endpoint.
	r.Mount("/ws", sockjs.NewHandler("/ws", s.sockjsOptions(), s.serveRealtime))

	return r
}

// Start seeds the demo data and starts the generator.
func (s *Server) Start(ctx context.Context, tick time.Duration) error {
	u, err := SeedDemo(s.store, s.generator)
	if err != nil {
		return fmt.Errorf("seed demo data: %w", err)
	}
	s.logger.Info("demo account ready", "email", u.Email, "password", DemoPassword)
	s.generator.Start(ctx, tick)
	return nil
}

// ListenAndServe serves on addr until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.broker.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"took", time.Since(start),
			"req", middleware.GetReqID(r.Context()),
		)
	})
}

// sessionUser resolves the session cookie.
func (s *Server) sessionUser(r *http.Request) (client.User, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return client.User{}, false
	}
	return s.store.SessionUser(c.Value)
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := s.sessionUser(r)
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, u)))
	})
}

func userFrom(ctx context.Context) client.User {
	u, _ := ctx.Value(ctxKey{}).(client.User)
	return u
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, userID int64) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		s.store.EndSession(c.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    s.store.NewSession(userID),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) limiter(email string) *rate.Limiter {
	s.limMu.Lock()
	defer s.limMu.Unlock()
	l, ok := s.limiters[email]
	if !ok {
		l = rate.NewLimiter(rate.Every(s.cooldown), 1)
		s.limiters[email] = l
	}
	return l
}

func (s *Server) handleSendCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		writeMessage(w, http.StatusBadRequest, "email is required")
		return
	}
	email := normalizeEmail(req.Email)
	if s.cooldown > 0 && !s.limiter(email).Allow() {
		writeMessage(w, http.StatusBadRequest,
			fmt.Sprintf("sending too often, try again in %d seconds", int(s.cooldown.Seconds())))
		return
	}
	code := s.store.IssueCode(email)
	s.logger.Info("verification code", "email", email, "code", code)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLoginByCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := s.store.ConsumeCode(req.Email, req.Code)
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	s.startSession(w, r, u.ID)
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := s.store.Authenticate(req.Email, req.Password)
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	s.startSession(w, r, u.ID)
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req client.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "password is required")
		return
	}
	u, err := s.store.CreateUser(req)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	s.startSession(w, r, u.ID)
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, ok := s.sessionUser(r)
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		s.store.EndSession(c.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActiveTasks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Tasks(activeTask))
}

func (s *Server) handleTasksByRelation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "relationID")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.store.Tasks(func(t client.Task) bool { return t.RelationID == id }))
}

// handleTasks filters by type and status only when both are given;
// otherwise it lists the active tasks.
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	typ := r.URL.Query().Get("taskType")
	statusStr := r.URL.Query().Get("taskStatus")
	if typ == "" || statusStr == "" {
		writeJSON(w, http.StatusOK, s.store.Tasks(activeTask))
		return
	}
	status, err := strconv.Atoi(statusStr)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "taskStatus must be an integer")
		return
	}
	writeJSON(w, http.StatusOK, s.store.Tasks(func(t client.Task) bool {
		return t.Type == typ && t.Status == status
	}))
}

func (s *Server) handleNovelsByUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.store.NovelsByUser(id))
}

func (s *Server) handleNovel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	n, ok := s.store.Novel(id)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleGenerate(taskType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		n, ok := s.store.Novel(id)
		u := userFrom(r.Context())
		if !ok || n.UserID != u.ID {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		name := "Structure: " + n.Title
		if taskType == TypeChapterOutline {
			name = "Outline: " + n.Title
		}
		t := s.generator.Enqueue(u.ID, client.Task{Name: name, Type: taskType, RelationID: n.ID}, 3, false)
		writeJSON(w, http.StatusAccepted, t)
	}
}

func (s *Server) handleChapters(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "novelID")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.store.Chapters(id))
}

func (s *Server) sockjsOptions() sockjs.Options {
	opts := sockjs.DefaultOptions
	opts.RawWebsocket = true
	opts.WebsocketUpgrader = &websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return opts
}

// serveRealtime hands one SockJS session to the broker. The user is taken
// from the session cookie of the upgrade request; anonymous sessions may
// subscribe but cannot stream.
func (s *Server) serveRealtime(sess sockjs.Session) {
	r := sess.Request()
	var uid int64
	if u, ok := s.sessionUser(r); ok {
		uid = u.ID
	}
	s.logger.Debug("realtime client connected", "session", sess.ID(), "remote", r.RemoteAddr, "user", uid)
	s.broker.Serve(sess, uid)
	s.logger.Debug("realtime client disconnected", "session", sess.ID())
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Host == r.Host {
		return true
	}
	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"message": msg})
}
