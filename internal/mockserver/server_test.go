package mockserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/wigennn/novel-tui/internal/client"
	"github.com/wigennn/novel-tui/internal/logging"
)

type testEnv struct {
	srv  *Server
	http *httptest.Server
	demo client.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s := New(Options{Heartbeat: 50 * time.Millisecond, CodeCooldown: time.Minute}, logging.Discard())
	s.generator.StreamInterval = 2 * time.Millisecond
	demo, err := SeedDemo(s.store, s.generator)
	if err != nil {
		t.Fatal(err)
	}
	hs := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.broker.CloseAll()
		hs.Close()
	})
	return &testEnv{srv: s, http: hs, demo: demo}
}

// apiClient returns a REST client with its own cookie jar.
func (e *testEnv) apiClient(t *testing.T) *client.HTTPClient {
	t.Helper()
	jar, err := client.NewPersistentJar("")
	if err != nil {
		t.Fatal(err)
	}
	return client.NewHTTPClient(e.http.URL+"/api", jar, 5*time.Second, logging.Discard())
}

func (e *testEnv) loggedIn(t *testing.T) *client.HTTPClient {
	t.Helper()
	c := e.apiClient(t)
	if _, err := c.Login(context.Background(), DemoEmail, DemoPassword); err != nil {
		t.Fatalf("login: %v", err)
	}
	return c
}

func TestPasswordLoginAndLogout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.apiClient(t)

	if _, err := c.Me(ctx); !client.IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("Me before login: err = %v, want 401", err)
	}
	if _, err := c.Login(ctx, DemoEmail, "wrong"); !client.IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("Login with wrong password: err = %v, want 401", err)
	}

	u, err := c.Login(ctx, "  Demo@Example.com ", DemoPassword)
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != env.demo.ID || u.Username != "demo" {
		t.Errorf("Login returned %+v", u)
	}
	me, err := c.Me(ctx)
	if err != nil || me.ID != env.demo.ID {
		t.Fatalf("Me = %+v, %v", me, err)
	}

	if err := c.Logout(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Me(ctx); !client.IsStatus(err, http.StatusUnauthorized) {
		t.Errorf("Me after logout: err = %v, want 401", err)
	}
}

func TestSendCodeIsThrottledAndCodesWorkOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.apiClient(t)

	if err := c.SendCode(ctx, "new@example.com"); err != nil {
		t.Fatal(err)
	}
	if err := c.SendCode(ctx, "new@example.com"); !client.IsStatus(err, http.StatusBadRequest) {
		t.Errorf("second SendCode: err = %v, want 400", err)
	}
	if err := c.SendCode(ctx, "other@example.com"); err != nil {
		t.Errorf("SendCode for another email: %v", err)
	}

	env.srv.store.mu.RLock()
	code := env.srv.store.codes["new@example.com"].code
	env.srv.store.mu.RUnlock()

	if _, err := c.LoginByCode(ctx, "new@example.com", "000000x"); !client.IsStatus(err, http.StatusUnauthorized) {
		t.Errorf("wrong code: err = %v, want 401", err)
	}
	u, err := c.LoginByCode(ctx, "new@example.com", code)
	if err != nil {
		t.Fatal(err)
	}
	if u.ID == 0 || u.Email != "new@example.com" || u.Username != "new" {
		t.Errorf("code login created %+v", u)
	}
	if _, err := c.LoginByCode(ctx, "new@example.com", code); !client.IsStatus(err, http.StatusUnauthorized) {
		t.Errorf("reused code: err = %v, want 401", err)
	}
	if me, err := c.Me(ctx); err != nil || me.ID != u.ID {
		t.Errorf("Me = %+v, %v", me, err)
	}
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.apiClient(t)

	u, err := c.Register(ctx, client.RegisterRequest{Username: "ada", Email: "ada@example.com", Password: "pw"})
	if err != nil {
		t.Fatal(err)
	}
	if me, err := c.Me(ctx); err != nil || me.ID != u.ID {
		t.Errorf("registration should log in: %+v, %v", me, err)
	}

	_, err = c.Register(ctx, client.RegisterRequest{Email: "ada@example.com", Password: "pw"})
	if !client.IsStatus(err, http.StatusBadRequest) {
		t.Errorf("duplicate Register: err = %v, want 400", err)
	}
	var se *client.StatusError
	if errors.As(err, &se) && se.Body == "" {
		t.Error("duplicate Register should explain itself")
	}

	if _, err := env.apiClient(t).Login(ctx, "ada@example.com", "pw"); err != nil {
		t.Errorf("login with new account: %v", err)
	}
}

func TestProtectedRoutesNeedSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.apiClient(t)

	if _, err := c.ActiveTasks(ctx); !client.IsStatus(err, http.StatusUnauthorized) {
		t.Errorf("ActiveTasks: err = %v, want 401", err)
	}
	if _, err := c.NovelsByUser(ctx, env.demo.ID); !client.IsStatus(err, http.StatusUnauthorized) {
		t.Errorf("NovelsByUser: err = %v, want 401", err)
	}
}

func TestTaskQueries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.loggedIn(t)

	active, err := c.ActiveTasks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 4 {
		t.Fatalf("ActiveTasks = %d tasks, want 4", len(active))
	}
	for i := 1; i < len(active); i++ {
		if active[i-1].ID < active[i].ID {
			t.Errorf("tasks not newest first: %d before %d", active[i-1].ID, active[i].ID)
		}
	}

	// Structure task runs for two ticks: pending, running, running, done.
	for i := 0; i < 3; i++ {
		env.srv.generator.Step()
	}
	active, _ = c.ActiveTasks(ctx)
	if len(active) != 3 {
		t.Errorf("after 3 steps ActiveTasks = %d, want 3", len(active))
	}

	done := 2
	byType, err := c.Tasks(ctx, client.TaskFilter{Type: TypeNovelStructure, Status: &done})
	if err != nil {
		t.Fatal(err)
	}
	if len(byType) != 1 || byType[0].Result == "" {
		t.Errorf("finished structure tasks = %+v", byType)
	}

	// Half a filter falls back to the active list.
	half, _ := c.Tasks(ctx, client.TaskFilter{Type: TypeNovelStructure})
	if len(half) != 3 {
		t.Errorf("type-only filter returned %d tasks, want the 3 active", len(half))
	}

	novels, _ := c.NovelsByUser(ctx, env.demo.ID)
	keeper := novels[len(novels)-1]
	rel, err := c.TasksByRelation(ctx, keeper.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rel) != 3 {
		t.Errorf("TasksByRelation(%d) = %d tasks, want 3", keeper.ID, len(rel))
	}
}

func TestNovelsAndChapters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.loggedIn(t)

	novels, err := c.NovelsByUser(ctx, env.demo.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(novels) != 2 || novels[0].Title != "Salt Orchard" {
		t.Fatalf("NovelsByUser = %+v", novels)
	}

	n, err := c.Novel(ctx, novels[1].ID)
	if err != nil || n.Title != "The Lighthouse Keeper" {
		t.Fatalf("Novel = %+v, %v", n, err)
	}
	if _, err := c.Novel(ctx, 999); !client.IsStatus(err, http.StatusNotFound) {
		t.Errorf("missing novel: err = %v, want 404", err)
	}

	chs, err := c.Chapters(ctx, n.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(chs) != 2 || chs[0].ChapterNumber != 1 || chs[1].Content == "" {
		t.Errorf("Chapters = %+v", chs)
	}
}

func TestGenerateEndpointQueuesTask(t *testing.T) {
	env := newTestEnv(t)
	c := env.loggedIn(t)
	novels, _ := c.NovelsByUser(context.Background(), env.demo.ID)

	req, _ := http.NewRequest(http.MethodPost, env.http.URL+"/api/novels/999/generate-outline", nil)
	resp, err := (&http.Client{Jar: c.Jar()}).Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown novel: status %d, want 404", resp.StatusCode)
	}

	before := len(env.srv.store.Tasks(activeTask))
	req, _ = http.NewRequest(http.MethodPost, env.http.URL+"/api/novels/"+strconv.FormatInt(novels[0].ID, 10)+"/generate-outline", nil)
	resp, err = (&http.Client{Jar: c.Jar()}).Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status %d, want 202", resp.StatusCode)
	}
	if got := len(env.srv.store.Tasks(activeTask)); got != before+1 {
		t.Errorf("active tasks = %d, want %d", got, before+1)
	}
}

func TestCheckOrigin(t *testing.T) {
	open := New(Options{}, logging.Discard())
	pinned := New(Options{AllowedOrigins: []string{"https://novel.example.com"}}, logging.Discard())

	tests := []struct {
		name   string
		srv    *Server
		origin string
		want   bool
	}{
		{"no origin", open, "", true},
		{"same host", open, "http://api.test:8080", true},
		{"localhost", open, "http://localhost:5173", true},
		{"loopback v6", open, "http://[::1]:3000", true},
		{"foreign", open, "https://evil.example", false},
		{"garbage", open, "::::", false},
		{"pinned match", pinned, "https://novel.example.com", true},
		{"pinned host other scheme", pinned, "http://novel.example.com", true},
		{"pinned rejects localhost", pinned, "http://localhost:5173", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "http://api.test:8080/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := tt.srv.checkOrigin(r); got != tt.want {
				t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}
