package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, msg)
}

// IsStatus reports whether err carries one of the given HTTP status codes.
func IsStatus(err error, codes ...int) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	for _, c := range codes {
		if se.Code == c {
			return true
		}
	}
	return false
}

// HTTPClient makes REST calls to the novel backend. Authentication rides on
// the session cookie kept in the client's jar.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *log.Logger
}

// NewHTTPClient creates a client targeting the API base URL
// (e.g. "http://127.0.0.1:8080/api").
func NewHTTPClient(baseURL string, jar http.CookieJar, timeout time.Duration, logger *log.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout, Jar: jar},
		logger:  logger,
	}
}

// Jar exposes the cookie jar so the realtime handshake can present the
// same session.
func (c *HTTPClient) Jar() http.CookieJar {
	return c.client.Jar
}

// SendCode sends POST /auth/send-code.
func (c *HTTPClient) SendCode(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/auth/send-code", map[string]string{"email": email}, nil)
}

// LoginByCode sends POST /auth/login-by-code.
func (c *HTTPClient) LoginByCode(ctx context.Context, email, code string) (*User, error) {
	var u User
	body := map[string]string{"email": email, "code": code}
	if err := c.do(ctx, http.MethodPost, "/auth/login-by-code", body, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Login sends POST /auth/login.
func (c *HTTPClient) Login(ctx context.Context, email, password string) (*User, error) {
	var u User
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Register sends POST /auth/register.
func (c *HTTPClient) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodPost, "/auth/register", req, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Me fetches /auth/me.
func (c *HTTPClient) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Logout sends POST /auth/logout.
func (c *HTTPClient) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

// ActiveTasks fetches /tasks/active.
func (c *HTTPClient) ActiveTasks(ctx context.Context) ([]Task, error) {
	var out []Task
	if err := c.do(ctx, http.MethodGet, "/tasks/active", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TasksByRelation fetches /tasks/relation/{id}.
func (c *HTTPClient) TasksByRelation(ctx context.Context, relationID int64) ([]Task, error) {
	var out []Task
	path := "/tasks/relation/" + strconv.FormatInt(relationID, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Tasks fetches /tasks with the optional filter.
func (c *HTTPClient) Tasks(ctx context.Context, f TaskFilter) ([]Task, error) {
	q := url.Values{}
	if f.Type != "" {
		q.Set("taskType", f.Type)
	}
	if f.Status != nil {
		q.Set("taskStatus", strconv.Itoa(*f.Status))
	}
	path := "/tasks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []Task
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// NovelsByUser fetches /novels/user/{id}.
func (c *HTTPClient) NovelsByUser(ctx context.Context, userID int64) ([]Novel, error) {
	var out []Novel
	if err := c.do(ctx, http.MethodGet, "/novels/user/"+strconv.FormatInt(userID, 10), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Novel fetches /novels/{id}.
func (c *HTTPClient) Novel(ctx context.Context, id int64) (*Novel, error) {
	var n Novel
	if err := c.do(ctx, http.MethodGet, "/novels/"+strconv.FormatInt(id, 10), nil, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// Chapters fetches /chapters/novel/{id}.
func (c *HTTPClient) Chapters(ctx context.Context, novelID int64) ([]Chapter, error) {
	var out []Chapter
	if err := c.do(ctx, http.MethodGet, "/chapters/novel/"+strconv.FormatInt(novelID, 10), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logf("api error", "method", method, "path", path, "err", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		se := &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(respBody)}
		c.logf("api error", "method", method, "path", path, "status", resp.StatusCode)
		return se
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *HTTPClient) logf(msg string, kv ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, kv...)
	}
}
