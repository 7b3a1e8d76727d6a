package nav

import (
	"context"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/wigennn/novel-tui/internal/client"
	"github.com/wigennn/novel-tui/internal/logging"
)

// SessionLoader refreshes the session and reports who is signed in.
type SessionLoader interface {
	Load(ctx context.Context) *client.User
}

// Decision is the outcome of a guard check: either proceed to the intent,
// or go to Redirect instead.
type Decision struct {
	Allow    bool
	Redirect string
	User     *client.User
}

// Guard gates protected routes on an authoritative session lookup.
type Guard struct {
	session SessionLoader
	logger  *log.Logger
}

func NewGuard(session SessionLoader, logger *log.Logger) *Guard {
	return &Guard{session: session, logger: logging.Component(logger, "nav")}
}

// Evaluate always refreshes the session before deciding, so a stale cached
// login cannot open a protected screen. Public intents are allowed
// regardless of the lookup outcome.
func (g *Guard) Evaluate(ctx context.Context, intent Intent) Decision {
	user := g.session.Load(ctx)
	if !intent.RequiresAuth {
		return Decision{Allow: true, User: user}
	}
	if user == nil {
		to := LoginRedirect(intent.Path)
		g.logger.Debug("redirecting unauthenticated navigation", "from", intent.Path, "to", to)
		return Decision{Redirect: to}
	}
	return Decision{Allow: true, User: user}
}

// LoginRedirect builds the login URL that remembers target. Slashes stay
// readable; other reserved characters are escaped.
func LoginRedirect(target string) string {
	if target == "" {
		target = defaultResumeTo
	}
	v := url.QueryEscape(target)
	v = strings.ReplaceAll(v, "%2F", "/")
	return LoginPath + "?" + redirectParam + "=" + v
}

// ResumeTarget recovers the destination remembered by LoginRedirect. Only
// in-app absolute paths are honoured; anything else resumes at "/".
func ResumeTarget(loginURL string) string {
	u, err := url.Parse(loginURL)
	if err != nil {
		return defaultResumeTo
	}
	target := u.Query().Get(redirectParam)
	if !safeTarget(target) {
		return defaultResumeTo
	}
	return target
}

func safeTarget(target string) bool {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return false
	}
	if strings.ContainsAny(target, "\\\r\n") {
		return false
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return false
	}
	return Resolve(target).Name != RouteLogin
}
