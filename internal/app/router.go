package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/proteamcare/access-engine/internal/audit/http"
	authzhttp "github.com/proteamcare/access-engine/internal/authz/http"
	isolationhttp "github.com/proteamcare/access-engine/internal/isolation/http"
	"github.com/proteamcare/access-engine/internal/menu"
	"github.com/proteamcare/access-engine/internal/observability"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	ServiceAuth      *ServiceAuth
	AuthzHandler     *authzhttp.Handler
	MenuHandler      *menu.Handler
	IsolationHandler *isolationhttp.Handler
	AuditHandler     *audithttp.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with engine defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	// Everything else requires the gateway service token and an actor.
	r.Group(func(r chi.Router) {
		if params.ServiceAuth != nil {
			r.Use(params.ServiceAuth.Middleware)
		}
		if params.AuthzHandler != nil {
			params.AuthzHandler.MountRoutes(r)
		}
		if params.MenuHandler != nil {
			params.MenuHandler.MountRoutes(r)
		}
		if params.IsolationHandler != nil {
			params.IsolationHandler.MountRoutes(r)
		}
		if params.AuditHandler != nil {
			params.AuditHandler.MountRoutes(r)
		}
	})

	return r
}
