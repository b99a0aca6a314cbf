package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/choreboard/choreboard/internal/auth"
	"github.com/choreboard/choreboard/internal/chores"
	"github.com/choreboard/choreboard/internal/kids"
	"github.com/choreboard/choreboard/internal/observability"
	"github.com/choreboard/choreboard/internal/platform/httpx"
	"github.com/choreboard/choreboard/internal/session"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger        *slog.Logger
	Config        *Config
	Guard         *Guard
	AuthHandler   *auth.Handler
	KidsHandler   *kids.Handler
	ChoresHandler *chores.Handler
	Metrics       *observability.Metrics
}

// NewRouter constructs the chi.Router with Choreboard defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Guard:   params.Guard,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	// The SPA owns the real pages; these two exist so browser navigations
	// the guard redirects always land on a route this server can answer.
	r.Get("/login", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"page": "login", "redirect": r.URL.Query().Get("redirect")})
	})
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		claims, _ := session.ClaimsFromContext(r.Context())
		httpx.JSON(w, http.StatusOK, map[string]any{"page": "home", "principalId": claims.PrincipalID})
	})

	r.Route("/api", func(api chi.Router) {
		params.AuthHandler.MountRoutes(api, LoginRateLimit())
		params.KidsHandler.MountRoutes(api)
		params.ChoresHandler.MountRoutes(api)
	})

	return r
}
