package app

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/choreboard/choreboard/internal/platform/httpx"
	"github.com/choreboard/choreboard/internal/session"
	"github.com/choreboard/choreboard/internal/shared"
)

// Guard intercepts every request before any handler, resolves the session
// cookie to a principal and enforces public/protected route rules. Resolution
// always goes through the session manager's revalidating path; the cookie is
// never trusted on its own, so downstream policy evaluation observes a
// non-stale identity.
type Guard struct {
	Sessions *session.Manager
	Logger   *slog.Logger
}

// publicPaths require no principal.
var publicPaths = map[string]struct{}{
	"/login":         {},
	"/healthz":       {},
	"/metrics":       {},
	"/api/signup":    {},
	"/api/login":     {},
	"/api/login/pin": {},
}

// Middleware applies the route guard decision table.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Escape hatch for build and static-analysis time, before any
		// backing store is configured. Not a security boundary: a deployed
		// server always carries a session manager.
		if g.Sessions == nil {
			next.ServeHTTP(w, r)
			return
		}

		sess, err := g.Sessions.Resolve(r.Context(), r)
		if err != nil {
			if g.Logger != nil {
				g.Logger.Error("resolve session", slog.Any("error", err))
			}
			httpx.RespondError(w, shared.ErrUnavailable)
			return
		}

		path := r.URL.Path
		switch {
		case sess != nil && path == "/login":
			// Already signed in: the login page bounces to the landing page.
			http.Redirect(w, r, "/", http.StatusSeeOther)
		case sess == nil && !isPublic(path):
			if isAPI(path) {
				httpx.RespondError(w, shared.ErrUnauthorized)
				return
			}
			// Preserve the originally requested path for post-login return.
			http.Redirect(w, r, "/login?redirect="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
		default:
			if sess != nil {
				r = r.WithContext(session.ContextWith(r.Context(), sess))
			}
			next.ServeHTTP(w, r)
		}
	})
}

func isPublic(path string) bool {
	_, ok := publicPaths[path]
	return ok
}

func isAPI(path string) bool {
	return strings.HasPrefix(path, "/api/")
}
