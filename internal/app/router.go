package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-authz/internal/authz"
	"github.com/odyssey-erp/odyssey-authz/internal/observability"
	"github.com/odyssey-erp/odyssey-authz/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-authz/internal/rbac"
	"github.com/odyssey-erp/odyssey-authz/jobs"
)

// StoreHealth reports the grant store circuit state.
type StoreHealth interface {
	State() string
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger       *slog.Logger
	Config       *Config
	AuthzHandler *rbac.Handler
	JobHandler   *jobs.Handler
	Store        StoreHealth
	Metrics      *observability.Metrics
}

type healthResponse struct {
	Status     string `json:"status"`
	Catalog    string `json:"catalog_version"`
	GrantStore string `json:"grant_store,omitempty"`
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Catalog: authz.CatalogVersion}
		if params.Store != nil {
			resp.GrantStore = params.Store.State()
			if resp.GrantStore == "open" {
				resp.Status = "degraded"
			}
		}
		httpx.JSON(w, http.StatusOK, resp)
	})

	if params.AuthzHandler != nil {
		r.Route("/authz", params.AuthzHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
