// Package httpapi is OptiInfra's HTTP front door: credential management,
// on-demand collection triggers, metric queries, and recommendation/
// approval status, all behind a chi.Mux. Router construction (middleware
// stack, versioned route group, JSON error envelope) follows the shape
// kubernaut's gateway package exercises go-chi/chi and go-chi/cors for.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/archokshi/optiinfra/internal/adapter"
	"github.com/archokshi/optiinfra/internal/agentruntime"
	"github.com/archokshi/optiinfra/internal/cache"
	"github.com/archokshi/optiinfra/internal/collector"
	"github.com/archokshi/optiinfra/internal/store/relational"
	"github.com/archokshi/optiinfra/internal/store/timeseries"
	"github.com/archokshi/optiinfra/internal/workflow"
)

// Deps bundles every dependency a route handler needs.
type Deps struct {
	Relational  *relational.Store
	Credentials *relational.CredentialStore
	Reader      *timeseries.Reader
	Scheduler   *collector.Scheduler
	Registry    *adapter.Registry
	Agents      *agentruntime.Registry
	Workflow    *workflow.Engine
	Cache       cache.Cache
	CacheTTL    time.Duration
}

// NewRouter builds the process's HTTP mux.
func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", handleHealthz)
	r.Get("/health", handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	h := &handlers{deps: deps}

	// Per-domain agent surface, spec.md §6: "each agent ... domain reads
	// under /api/v2/{domain}/{customer_id}/{provider}/..., POST
	// /api/v2/{domain}/trigger-collection, POST /{domain}/approve". This
	// deployment runs all four domain agents in-process rather than as
	// separate services (see DESIGN.md), so they share this one router
	// instead of each listening on its own port.
	r.Route("/api/v2/{domain}", func(v2 chi.Router) {
		v2.Get("/{customerID}/{provider}/metrics", h.domainMetrics)
		v2.Post("/trigger-collection", h.domainTriggerCollection)
		v2.Post("/evaluate", h.domainEvaluate)
	})
	r.Post("/{domain}/approve", h.domainApprove)

	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/agents/register", h.registerAgent)
		api.Post("/agents/{agentID}/heartbeat", h.heartbeat)
		api.Get("/dashboard", h.dashboard)
		api.Post("/collect/trigger", h.collectTriggerFlat)

		api.Post("/credentials", h.createCredentialFlat)
		api.Get("/credentials/{provider}", h.getCredentialByProvider)
		api.Delete("/credentials/{provider}", h.deleteCredentialByProvider)

		api.Route("/customers/{customerID}/credentials", func(cr chi.Router) {
			cr.Post("/", h.createCredential)
			cr.Get("/", h.listCredentials)
		})
		api.Delete("/credentials/by-id/{credentialID}", h.deleteCredential)

		api.Post("/customers/{customerID}/collections", h.triggerCollection)

		api.Route("/customers/{customerID}/metrics", func(m chi.Router) {
			m.Get("/cost", h.queryCost)
			m.Get("/performance", h.queryPerformance)
			m.Get("/resource", h.queryResource)
			m.Get("/application", h.queryApplication)
		})

		api.Get("/agents/{agentType}", h.listAgentsByType)
		api.Post("/recommendations/{recommendationID}/approvals", h.recordApproval)
	})

	return r
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
