// Package session holds the process-wide authenticated identity. All
// mutation goes through Cache methods; readers get immutable snapshots.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/wigennn/novel-tui/internal/client"
	"github.com/wigennn/novel-tui/internal/logging"
)

// ErrAuthenticationFailed wraps rejected credentials or codes.
var ErrAuthenticationFailed = errors.New("authentication failed")

// Authenticator is the slice of the REST client the cache depends on.
type Authenticator interface {
	Me(ctx context.Context) (*client.User, error)
	Login(ctx context.Context, email, password string) (*client.User, error)
	LoginByCode(ctx context.Context, email, code string) (*client.User, error)
	Register(ctx context.Context, req client.RegisterRequest) (*client.User, error)
	SendCode(ctx context.Context, email string) error
	Logout(ctx context.Context) error
}

// Cache holds the current user, or nil when nobody is signed in.
type Cache struct {
	auth   Authenticator
	logger *log.Logger

	current atomic.Pointer[client.User]

	// commits counts authoritative mutations (login, register, logout).
	// A lookup that started before the latest commit must not overwrite it.
	commitMu sync.Mutex
	commits  uint64

	watchMu  sync.Mutex
	watchers map[int]func(*client.User)
	nextID   int
}

func New(auth Authenticator, logger *log.Logger) *Cache {
	return &Cache{
		auth:     auth,
		logger:   logging.Component(logger, "session"),
		watchers: make(map[int]func(*client.User)),
	}
}

// Current returns a copy of the signed-in user, or nil.
func (c *Cache) Current() *client.User {
	u := c.current.Load()
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}

// UserID returns the signed-in user's id.
func (c *Cache) UserID() (int64, bool) {
	u := c.current.Load()
	if u == nil {
		return 0, false
	}
	return u.ID, true
}

// Load asks the backend who is signed in and replaces the cached value.
// It never fails: any error, including 401, means "no session".
func (c *Cache) Load(ctx context.Context) *client.User {
	c.commitMu.Lock()
	startedAt := c.commits
	c.commitMu.Unlock()

	u, err := c.auth.Me(ctx)
	if err != nil {
		if !client.IsStatus(err, http.StatusUnauthorized) {
			c.logger.Debug("session lookup failed", "err", err)
		}
		u = nil
	}

	c.commitMu.Lock()
	if c.commits != startedAt {
		c.commitMu.Unlock()
		c.logger.Debug("discarding session lookup superseded by a newer sign-in change")
		return c.Current()
	}
	changed := c.swap(u)
	c.commitMu.Unlock()

	if changed {
		c.notify(u)
	}
	return c.Current()
}

// Login exchanges email and password for a session.
func (c *Cache) Login(ctx context.Context, email, password string) (*client.User, error) {
	u, err := c.auth.Login(ctx, email, password)
	if err != nil {
		return nil, authError("login", err)
	}
	c.commit(u)
	return c.Current(), nil
}

// LoginByCode exchanges an emailed verification code for a session.
func (c *Cache) LoginByCode(ctx context.Context, email, code string) (*client.User, error) {
	u, err := c.auth.LoginByCode(ctx, email, code)
	if err != nil {
		return nil, authError("login by code", err)
	}
	c.commit(u)
	return c.Current(), nil
}

// Register creates an account and signs it in.
func (c *Cache) Register(ctx context.Context, req client.RegisterRequest) (*client.User, error) {
	u, err := c.auth.Register(ctx, req)
	if err != nil {
		return nil, authError("register", err)
	}
	c.commit(u)
	return c.Current(), nil
}

// SendCode asks the backend to email a verification code.
func (c *Cache) SendCode(ctx context.Context, email string) error {
	if err := c.auth.SendCode(ctx, email); err != nil {
		return fmt.Errorf("send code: %w", err)
	}
	return nil
}

// Logout clears the session once the server acknowledges it. On failure
// the cached user is kept so local state matches the server's.
func (c *Cache) Logout(ctx context.Context) error {
	if err := c.auth.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	c.commit(nil)
	return nil
}

// Watch registers fn to be called after every change of the cached user.
// Calls happen on the goroutine that made the change.
func (c *Cache) Watch(fn func(*client.User)) (cancel func()) {
	c.watchMu.Lock()
	id := c.nextID
	c.nextID++
	c.watchers[id] = fn
	c.watchMu.Unlock()

	return func() {
		c.watchMu.Lock()
		delete(c.watchers, id)
		c.watchMu.Unlock()
	}
}

func (c *Cache) commit(u *client.User) {
	c.commitMu.Lock()
	c.commits++
	changed := c.swap(u)
	c.commitMu.Unlock()

	if changed {
		c.notify(u)
	}
}

// swap stores a private copy of u and reports whether the identity changed.
func (c *Cache) swap(u *client.User) bool {
	var next *client.User
	if u != nil {
		cp := *u
		next = &cp
	}
	prev := c.current.Swap(next)
	switch {
	case prev == nil && next == nil:
		return false
	case prev == nil || next == nil:
		return true
	default:
		return *prev != *next
	}
}

func (c *Cache) notify(u *client.User) {
	c.watchMu.Lock()
	fns := make([]func(*client.User), 0, len(c.watchers))
	for _, fn := range c.watchers {
		fns = append(fns, fn)
	}
	c.watchMu.Unlock()

	for _, fn := range fns {
		var cp *client.User
		if u != nil {
			v := *u
			cp = &v
		}
		fn(cp)
	}
}

func authError(op string, err error) error {
	if client.IsStatus(err, http.StatusUnauthorized, http.StatusBadRequest, http.StatusForbidden) {
		return fmt.Errorf("%s: %w: %w", op, ErrAuthenticationFailed, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
