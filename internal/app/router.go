package app

import (
	"io"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/portal/internal/account"
	"github.com/odyssey-erp/portal/internal/allauth"
	"github.com/odyssey-erp/portal/internal/auth"
	"github.com/odyssey-erp/portal/internal/bootstrap"
	"github.com/odyssey-erp/portal/internal/guard"
	"github.com/odyssey-erp/portal/internal/observability"
	"github.com/odyssey-erp/portal/internal/platform/httpx"
	"github.com/odyssey-erp/portal/internal/shared"
	"github.com/odyssey-erp/portal/internal/view"
	"github.com/odyssey-erp/portal/web"
)

// UserSource is the read side of the process-wide session store.
type UserSource interface {
	User() (allauth.User, bool)
	Authenticated() bool
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Store          UserSource
	Bootstrap      *bootstrap.Sequence
	Rules          guard.Rules
	AuthHandler    *auth.Handler
	AccountHandler *account.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with portal defaults.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	mwCfg := MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}

	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(mwCfg) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !params.Bootstrap.Ready() {
			httpx.RespondError(w, httpx.ErrStarting)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(params.Bootstrap.Gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			httpx.RespondError(w, httpx.ErrStarting)
		})))
		params.AccountHandler.MountAPI(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(mwCfg))
		r.Use(SessionMiddleware(mwCfg))
		r.Use(CSRFMiddleware(mwCfg))
		r.Use(params.Bootstrap.Gate(loadingHandler(params)))
		r.Use(guard.Middleware(params.Rules, params.Store))

		r.Get("/", homeHandler(params))
		params.AuthHandler.MountRoutes(r)
		params.AccountHandler.MountRoutes(r)
	})

	return r
}

// loadingHandler renders the loading page while bootstrap runs.
func loadingHandler(params RouterParams) http.Handler {
	fallback := bootstrap.LoadingHandler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !params.Templates.Has("pages/loading.html") {
			fallback.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Refresh", "1")
		w.Header().Set("Cache-Control", "no-store")
		data := view.TemplateData{Title: "Starting up", CurrentPath: r.URL.Path}
		if err := params.Templates.Render(w, http.StatusServiceUnavailable, "pages/loading.html", data); err != nil {
			params.Logger.Error("render loading", slog.Any("error", err))
			fallback.ServeHTTP(w, r)
		}
	})
}

func homeHandler(params RouterParams) http.HandlerFunc {
	pages := view.NewRenderer(params.Logger, params.Templates, params.CSRFManager, params.Store)
	return func(w http.ResponseWriter, r *http.Request) {
		pages.Render(w, r, http.StatusOK, "pages/home.html", "Home", nil)
	}
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
