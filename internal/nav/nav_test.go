package nav

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/wigennn/novel-tui/internal/client"
)

type fakeLoader struct {
	user  *client.User
	calls atomic.Int32
}

func (f *fakeLoader) Load(ctx context.Context) *client.User {
	f.calls.Add(1)
	return f.user
}

func TestResolve(t *testing.T) {
	tests := []struct {
		path   string
		name   string
		auth   bool
		params map[string]string
	}{
		{"/", RouteHome, false, nil},
		{"", RouteHome, false, nil},
		{"/login", RouteLogin, false, nil},
		{"/login?redirect=/tasks", RouteLogin, false, nil},
		{"/register", RouteRegister, false, nil},
		{"/novels", RouteNovels, true, nil},
		{"/novels/", RouteNovels, true, nil},
		{"/novels/new", RouteNovelNew, true, nil},
		{"/novels/42", RouteNovel, true, map[string]string{"id": "42"}},
		{"/novels/42/edit", RouteNovelEdit, true, map[string]string{"id": "42"}},
		{"/library", RouteLibrary, true, nil},
		{"/tasks", RouteTasks, true, nil},
		{"/nope", RouteNotFound, true, nil},
		{"/novels/42/chapters/1", RouteNotFound, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			in := Resolve(tt.path)
			if in.Name != tt.name {
				t.Errorf("Name = %q, want %q", in.Name, tt.name)
			}
			if in.RequiresAuth != tt.auth {
				t.Errorf("RequiresAuth = %v, want %v", in.RequiresAuth, tt.auth)
			}
			for k, v := range tt.params {
				if in.Param(k) != v {
					t.Errorf("Param(%q) = %q, want %q", k, in.Param(k), v)
				}
			}
		})
	}
}

func TestEvaluateRedirectsWithoutSession(t *testing.T) {
	loader := &fakeLoader{}
	g := NewGuard(loader, nil)

	d := g.Evaluate(context.Background(), Resolve("/novels/42"))
	if d.Allow {
		t.Fatal("protected route allowed without a session")
	}
	if d.Redirect != "/login?redirect=/novels/42" {
		t.Errorf("Redirect = %q", d.Redirect)
	}
	if loader.calls.Load() != 1 {
		t.Errorf("Load called %d times, want 1", loader.calls.Load())
	}
}

func TestEvaluateAllowsWithSession(t *testing.T) {
	loader := &fakeLoader{user: &client.User{ID: 1}}
	g := NewGuard(loader, nil)

	d := g.Evaluate(context.Background(), Resolve("/tasks"))
	if !d.Allow || d.Redirect != "" {
		t.Fatalf("decision = %+v, want allow", d)
	}
	if d.User == nil || d.User.ID != 1 {
		t.Errorf("User = %+v", d.User)
	}
}

func TestEvaluatePublicAlwaysLoadsSession(t *testing.T) {
	loader := &fakeLoader{}
	g := NewGuard(loader, nil)

	for _, p := range []string{"/", "/login", "/register"} {
		if d := g.Evaluate(context.Background(), Resolve(p)); !d.Allow {
			t.Errorf("%s: public route denied", p)
		}
	}
	if loader.calls.Load() != 3 {
		t.Errorf("Load called %d times, want 3", loader.calls.Load())
	}
}

func TestEvaluateUnknownRouteNeedsAuth(t *testing.T) {
	g := NewGuard(&fakeLoader{}, nil)
	d := g.Evaluate(context.Background(), Resolve("/secret"))
	if d.Allow || d.Redirect != "/login?redirect=/secret" {
		t.Errorf("decision = %+v", d)
	}
}

func TestLoginRedirectEscapes(t *testing.T) {
	tests := []struct {
		target, want string
	}{
		{"/novels/42", "/login?redirect=/novels/42"},
		{"/tasks?status=1&type=CHAPTER", "/login?redirect=/tasks%3Fstatus%3D1%26type%3DCHAPTER"},
		{"", "/login?redirect=/"},
	}
	for _, tt := range tests {
		if got := LoginRedirect(tt.target); got != tt.want {
			t.Errorf("LoginRedirect(%q) = %q, want %q", tt.target, got, tt.want)
		}
	}
}

func TestResumeTarget(t *testing.T) {
	tests := []struct {
		loginURL, want string
	}{
		{"/login?redirect=/novels/42", "/novels/42"},
		{LoginRedirect("/tasks?status=1&type=CHAPTER"), "/tasks?status=1&type=CHAPTER"},
		{"/login", "/"},
		{"/login?redirect=", "/"},
		{"/login?redirect=//evil.example/x", "/"},
		{"/login?redirect=https://evil.example/", "/"},
		{"/login?redirect=novels/42", "/"},
		{"/login?redirect=/login", "/"},
		{"/login?redirect=/login?redirect=/tasks", "/"},
		{"/login?redirect=/%5Cevil", "/"},
	}
	for _, tt := range tests {
		if got := ResumeTarget(tt.loginURL); got != tt.want {
			t.Errorf("ResumeTarget(%q) = %q, want %q", tt.loginURL, got, tt.want)
		}
	}
}
