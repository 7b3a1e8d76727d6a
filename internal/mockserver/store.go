package mockserver

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/wigennn/novel-tui/internal/client"
)

var (
	ErrEmailTaken     = errors.New("email already registered")
	ErrBadCredentials = errors.New("bad credentials")
	ErrNotFound       = errors.New("not found")
)

const codeTTL = 5 * time.Minute

type account struct {
	user client.User
	hash []byte
}

type pendingCode struct {
	code    string
	expires time.Time
}

type taskRecord struct {
	task   client.Task
	userID int64
}

// Store keeps everything the development server knows in memory. Getters
// return copies.
type Store struct {
	mu       sync.RWMutex
	users    map[int64]*account
	byEmail  map[string]int64
	sessions map[string]int64
	codes    map[string]pendingCode
	novels   map[int64]*client.Novel
	chapters map[int64][]client.Chapter
	tasks    map[int64]*taskRecord

	nextUser  int64
	nextNovel int64
	nextTask  int64

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:    make(map[int64]*account),
		byEmail:  make(map[string]int64),
		sessions: make(map[string]int64),
		codes:    make(map[string]pendingCode),
		novels:   make(map[int64]*client.Novel),
		chapters: make(map[int64][]client.Chapter),
		tasks:    make(map[int64]*taskRecord),
		now:      time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser registers an account. The password may be empty for accounts
// created by code login; such accounts cannot log in with a password.
func (s *Store) CreateUser(req client.RegisterRequest) (client.User, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return client.User{}, fmt.Errorf("email is required")
	}

	var hash []byte
	if req.Password != "" {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return client.User{}, fmt.Errorf("hash password: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[email]; ok {
		return client.User{}, ErrEmailTaken
	}
	s.nextUser++
	u := client.User{
		ID:        s.nextUser,
		Username:  req.Username,
		Phone:     req.Phone,
		Email:     email,
		CreatedAt: client.Timestamp{Time: s.now()},
	}
	if u.Username == "" {
		u.Username, _, _ = strings.Cut(email, "@")
	}
	s.users[u.ID] = &account{user: u, hash: hash}
	s.byEmail[email] = u.ID
	return u, nil
}

// Authenticate checks an email and password.
func (s *Store) Authenticate(email, password string) (client.User, error) {
	s.mu.RLock()
	id, ok := s.byEmail[normalizeEmail(email)]
	var acc account
	if ok {
		acc = *s.users[id]
	}
	s.mu.RUnlock()

	if !ok || acc.hash == nil {
		return client.User{}, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acc.hash, []byte(password)); err != nil {
		return client.User{}, ErrBadCredentials
	}
	return acc.user, nil
}

// IssueCode stores a fresh six digit code for email, replacing any earlier
// one.
func (s *Store) IssueCode(email string) string {
	code := fmt.Sprintf("%06d", rand.IntN(1000000))
	s.mu.Lock()
	s.codes[normalizeEmail(email)] = pendingCode{code: code, expires: s.now().Add(codeTTL)}
	s.mu.Unlock()
	return code
}

// ConsumeCode verifies a code and returns the matching account, creating
// it on first login. A code works once.
func (s *Store) ConsumeCode(email, code string) (client.User, error) {
	email = normalizeEmail(email)

	s.mu.Lock()
	pc, ok := s.codes[email]
	if !ok || pc.code != code || s.now().After(pc.expires) {
		s.mu.Unlock()
		return client.User{}, ErrBadCredentials
	}
	delete(s.codes, email)
	id, exists := s.byEmail[email]
	var u client.User
	if exists {
		u = s.users[id].user
	}
	s.mu.Unlock()

	if exists {
		return u, nil
	}
	u, err := s.CreateUser(client.RegisterRequest{Email: email})
	if errors.Is(err, ErrEmailTaken) {
		return s.userByEmail(email)
	}
	return u, err
}

func (s *Store) userByEmail(email string) (client.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return client.User{}, ErrNotFound
	}
	return s.users[id].user, nil
}

func (s *Store) User(id int64) (client.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.users[id]
	if !ok {
		return client.User{}, false
	}
	return acc.user, true
}

// NewSession opens an HTTP session for a user and returns its id.
func (s *Store) NewSession(userID int64) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	s.mu.Lock()
	s.sessions[id] = userID
	s.mu.Unlock()
	return id
}

// SessionUser resolves a session id to its user.
func (s *Store) SessionUser(sessionID string) (client.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	uid, ok := s.sessions[sessionID]
	if !ok {
		return client.User{}, false
	}
	acc, ok := s.users[uid]
	if !ok {
		return client.User{}, false
	}
	return acc.user, true
}

func (s *Store) EndSession(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

// AddNovel stores n under a new id.
func (s *Store) AddNovel(n client.Novel) client.Novel {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextNovel++
	n.ID = s.nextNovel
	if n.CreatedAt.IsZero() {
		n.CreatedAt = client.Timestamp{Time: s.now()}
	}
	cp := n
	s.novels[n.ID] = &cp
	return n
}

func (s *Store) Novel(id int64) (client.Novel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.novels[id]
	if !ok {
		return client.Novel{}, false
	}
	return *n, true
}

// UpdateNovel applies fn to a stored novel.
func (s *Store) UpdateNovel(id int64, fn func(*client.Novel)) (client.Novel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.novels[id]
	if !ok {
		return client.Novel{}, false
	}
	fn(n)
	return *n, true
}

// NovelsByUser lists a user's novels, newest first.
func (s *Store) NovelsByUser(userID int64) []client.Novel {
	s.mu.RLock()
	out := make([]client.Novel, 0)
	for _, n := range s.novels {
		if n.UserID == userID {
			out = append(out, *n)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// PutChapter inserts or replaces a chapter by number.
func (s *Store) PutChapter(ch client.Chapter) client.Chapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.chapters[ch.NovelID]
	for i := range list {
		if list[i].ChapterNumber == ch.ChapterNumber {
			ch.ID = list[i].ID
			ch.CreatedAt = list[i].CreatedAt
			list[i] = ch
			return ch
		}
	}
	ch.ID = ch.NovelID*1000 + int64(ch.ChapterNumber)
	ch.CreatedAt = client.Timestamp{Time: s.now()}
	list = append(list, ch)
	sort.Slice(list, func(i, j int) bool { return list[i].ChapterNumber < list[j].ChapterNumber })
	s.chapters[ch.NovelID] = list
	return ch
}

func (s *Store) Chapter(novelID int64, number int) (client.Chapter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.chapters[novelID] {
		if ch.ChapterNumber == number {
			return ch, true
		}
	}
	return client.Chapter{}, false
}

// Chapters lists a novel's chapters in order.
func (s *Store) Chapters(novelID int64) []client.Chapter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]client.Chapter{}, s.chapters[novelID]...)
}

// AddTask stores t for a user under a new id.
func (s *Store) AddTask(userID int64, t client.Task) client.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTask++
	t.ID = s.nextTask
	if t.CreatedAt.IsZero() {
		t.CreatedAt = client.Timestamp{Time: s.now()}
	}
	s.tasks[t.ID] = &taskRecord{task: t, userID: userID}
	return t
}

// UpdateTask applies fn to a stored task and returns the result with the
// owning user.
func (s *Store) UpdateTask(id int64, fn func(*client.Task)) (client.Task, int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tasks[id]
	if !ok {
		return client.Task{}, 0, false
	}
	fn(&rec.task)
	return rec.task, rec.userID, true
}

func (s *Store) Task(id int64) (client.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tasks[id]
	if !ok {
		return client.Task{}, false
	}
	return rec.task, true
}

// Tasks returns matching tasks, newest first. A nil filter matches all.
func (s *Store) Tasks(filter func(client.Task) bool) []client.Task {
	s.mu.RLock()
	out := make([]client.Task, 0)
	for _, rec := range s.tasks {
		if filter == nil || filter(rec.task) {
			out = append(out, rec.task)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// Task status values on the wire.
const (
	statusPending = 0
	statusRunning = 1
	statusDone    = 2
	statusFailed  = 3
)

func activeTask(t client.Task) bool {
	return t.Status == statusPending || t.Status == statusRunning
}
