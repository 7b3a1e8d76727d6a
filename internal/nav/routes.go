// Package nav maps screen paths to route intents and decides whether a
// navigation may proceed given the current session.
package nav

import (
	"net/url"
	"strings"
)

// Route names. The TUI switches screens on these.
const (
	RouteHome       = "home"
	RouteLogin      = "login"
	RouteRegister   = "register"
	RouteNovels     = "novels"
	RouteNovelNew   = "novel-new"
	RouteNovelEdit  = "novel-edit"
	RouteNovel      = "novel"
	RouteLibrary    = "library"
	RouteTasks      = "tasks"
	RouteNotFound   = "not-found"
	LoginPath       = "/login"
	redirectParam   = "redirect"
	defaultResumeTo = "/"
)

// Intent is a requested navigation: where to, and whether it needs a
// signed-in user.
type Intent struct {
	Path         string
	Name         string
	Params       map[string]string
	RequiresAuth bool
}

// Param returns a named path segment such as "id".
func (i Intent) Param(name string) string {
	return i.Params[name]
}

type route struct {
	pattern      string
	name         string
	requiresAuth bool
}

// Order matters: literal segments must precede ":id" patterns that would
// otherwise swallow them.
var routes = []route{
	{"/", RouteHome, false},
	{"/login", RouteLogin, false},
	{"/register", RouteRegister, false},
	{"/novels", RouteNovels, true},
	{"/novels/new", RouteNovelNew, true},
	{"/novels/:id/edit", RouteNovelEdit, true},
	{"/novels/:id", RouteNovel, true},
	{"/library", RouteLibrary, true},
	{"/tasks", RouteTasks, true},
}

// Resolve builds the intent for path. The query string, if any, is kept in
// Intent.Path but ignored for matching. Unknown paths resolve to a
// not-found intent that still requires auth.
func Resolve(path string) Intent {
	if path == "" {
		path = "/"
	}
	clean := path
	if i := strings.IndexAny(clean, "?#"); i >= 0 {
		clean = clean[:i]
	}
	if len(clean) > 1 {
		clean = strings.TrimSuffix(clean, "/")
	}

	for _, r := range routes {
		if params, ok := match(r.pattern, clean); ok {
			return Intent{Path: path, Name: r.name, Params: params, RequiresAuth: r.requiresAuth}
		}
	}
	return Intent{Path: path, Name: RouteNotFound, RequiresAuth: true}
}

func match(pattern, path string) (map[string]string, bool) {
	if pattern == path {
		return nil, true
	}
	ps := strings.Split(strings.Trim(pattern, "/"), "/")
	xs := strings.Split(strings.Trim(path, "/"), "/")
	if len(ps) != len(xs) {
		return nil, false
	}
	var params map[string]string
	for i, p := range ps {
		if name, ok := strings.CutPrefix(p, ":"); ok {
			if xs[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string)
			}
			v, err := url.PathUnescape(xs[i])
			if err != nil {
				return nil, false
			}
			params[name] = v
			continue
		}
		if p != xs[i] {
			return nil, false
		}
	}
	return params, true
}
