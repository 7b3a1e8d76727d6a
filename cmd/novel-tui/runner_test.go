package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wigennn/novel-tui/internal/client"
	"github.com/wigennn/novel-tui/internal/config"
	"github.com/wigennn/novel-tui/internal/logging"
	"github.com/wigennn/novel-tui/internal/mockserver"
	"github.com/wigennn/novel-tui/internal/tasks"
)

type cliEnv struct {
	url     string
	dir     string
	cookies string
	config  string
	// stray counts requests under /gone, a realtime path nothing serves.
	stray atomic.Int32
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	srv := mockserver.New(mockserver.Options{Heartbeat: 50 * time.Millisecond, CodeCooldown: time.Minute}, logging.Discard())
	if _, err := mockserver.SeedDemo(srv.Store(), srv.Generator()); err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	e := &cliEnv{
		dir:     dir,
		cookies: filepath.Join(dir, "cookies.json"),
		config:  filepath.Join(dir, "missing.yaml"),
	}
	h := srv.Handler()
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/gone/") {
			e.stray.Add(1)
		}
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(func() {
		srv.Broker().CloseAll()
		hs.Close()
	})
	e.url = hs.URL
	return e
}

// run executes one CLI invocation with a fresh Runner, the way separate
// processes would share only the cookie file.
func (e *cliEnv) run(args ...string) (string, error) {
	var out bytes.Buffer
	r := NewRunner(RunnerOpts{Output: &out, LogOutput: io.Discard})
	argv := append([]string{
		"novel-tui",
		"--config", e.config,
		"--base-url", e.url,
		"--cookie-file", e.cookies,
	}, args...)
	err := r.command().Run(context.Background(), argv)
	return out.String(), err
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner defaults", func(t *testing.T) {
		r := NewRunner(RunnerOpts{})
		if r.output == nil || r.logOut == nil {
			t.Error("expected default writers")
		}
		if len(r.register()) != 9 {
			t.Errorf("registered %d commands", len(r.register()))
		}
	})

	t.Run("invalid transport is rejected", func(t *testing.T) {
		e := newCLIEnv(t)
		_, err := e.run("--transport", "carrier-pigeon", "whoami")
		if !errors.Is(err, config.ErrInvalidConfig) {
			t.Errorf("err = %v, want ErrInvalidConfig", err)
		}
	})
}

func TestSessionSurvivesInvocations(t *testing.T) {
	e := newCLIEnv(t)

	if _, err := e.run("whoami"); !errors.Is(err, errNotSignedIn) {
		t.Fatalf("whoami before login: %v", err)
	}

	out, err := e.run("login", "--email", mockserver.DemoEmail, "--password", mockserver.DemoPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(out, "Signed in as demo") {
		t.Errorf("login output = %q", out)
	}

	out, err = e.run("whoami", "--json")
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	var u client.User
	if err := json.Unmarshal([]byte(out), &u); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if u.Email != mockserver.DemoEmail {
		t.Errorf("user = %+v", u)
	}

	out, err = e.run("tasks", "--json")
	if err != nil {
		t.Fatalf("tasks: %v", err)
	}
	var list []client.Task
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(list) == 0 {
		t.Error("demo account should have active tasks")
	}

	if _, err := e.run("logout"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := e.run("whoami"); !errors.Is(err, errNotSignedIn) {
		t.Errorf("whoami after logout: %v", err)
	}
}

func TestLoginNeedsSecret(t *testing.T) {
	e := newCLIEnv(t)
	if _, err := e.run("login", "--email", mockserver.DemoEmail); err == nil {
		t.Error("login without password or code should fail")
	}
}

func TestTaskTable(t *testing.T) {
	out := taskTable([]tasks.Snapshot{
		{ID: 3, Type: tasks.TypeChapter, RelationID: 1, Status: tasks.Running, Name: "Chapter 3"},
	})
	for _, want := range []string{"ID", "STATUS", "GENERATE_CHAPTER", "Chapter 3"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestWatchStopsRetryingWhenConnectFails(t *testing.T) {
	e := newCLIEnv(t)
	e.config = filepath.Join(e.dir, "config.yaml")
	yaml := "server:\n  ws_path: /gone\nrealtime:\n  reconnect_delay: 20ms\n  connect_timeout: 1s\n"
	if err := os.WriteFile(e.config, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := e.run("login", "--email", mockserver.DemoEmail, "--password", mockserver.DemoPassword); err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := e.run("watch"); err == nil {
		t.Fatal("watch should fail when the realtime endpoint is missing")
	}
	if e.stray.Load() == 0 {
		t.Fatal("watch never dialed the realtime endpoint")
	}

	time.Sleep(50 * time.Millisecond)
	before := e.stray.Load()
	time.Sleep(200 * time.Millisecond)
	if after := e.stray.Load(); after != before {
		t.Errorf("realtime dials kept going after watch returned: %d -> %d", before, after)
	}
}
