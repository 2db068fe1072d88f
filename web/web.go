// Package web provides the REST surface of the entity engine: generic
// module-scoped entity CRUD, conversion, module and role administration,
// relation resolution, and the inbound lead webhook. Authentication is an
// external collaborator; every handler takes the principal it supplies and
// runs it through the authorization gate inside the engine.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/artpar/crmgate/adapters/metrics"
	"github.com/artpar/crmgate/app"
	"github.com/artpar/crmgate/core/convert"
	"github.com/artpar/crmgate/core/engine"
	"github.com/artpar/crmgate/core/registry"
	"github.com/artpar/crmgate/core/relation"
	"github.com/artpar/crmgate/domain/authz"
	"github.com/artpar/crmgate/ports"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Authenticator derives the calling principal from a request. Implementations
// live in adapters/auth.
type Authenticator interface {
	Principal(r *http.Request) (authz.Principal, error)
}

// Handler provides the HTTP endpoints.
type Handler struct {
	registry  *registry.Registry
	engine    *engine.Engine
	converter *convert.Converter
	resolver  *relation.Resolver
	roles     ports.RoleStore
	rules     ports.RuleStore
	ingestor  *app.LeadIngestor
	auth      Authenticator
	ids       ports.IDGenerator
	metrics   *metrics.Collector
	logger    zerolog.Logger
}

// Config bundles the handler dependencies.
type Config struct {
	Registry  *registry.Registry
	Engine    *engine.Engine
	Converter *convert.Converter
	Resolver  *relation.Resolver
	Roles     ports.RoleStore
	Rules     ports.RuleStore
	Ingestor  *app.LeadIngestor
	Auth      Authenticator
	IDs       ports.IDGenerator
	Metrics   *metrics.Collector
	Logger    zerolog.Logger
}

// New creates the HTTP handler.
func New(cfg Config) *Handler {
	return &Handler{
		registry:  cfg.Registry,
		engine:    cfg.Engine,
		converter: cfg.Converter,
		resolver:  cfg.Resolver,
		roles:     cfg.Roles,
		rules:     cfg.Rules,
		ingestor:  cfg.Ingestor,
		auth:      cfg.Auth,
		ids:       cfg.IDs,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(h.observe)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	}

	r.Post("/webhooks/leads/{source}", h.handleWebhookLead)

	r.Route("/api", func(r chi.Router) {
		r.Get("/modules", h.handleListModules)
		r.Post("/modules", h.handleCreateModule)
		r.Patch("/modules/{id}", h.handleUpdateModule)
		r.Post("/modules/{id}/fields", h.handleAddField)

		r.Get("/roles", h.handleListRoles)
		r.Post("/roles", h.handleCreateRole)
		r.Patch("/roles/{id}", h.handleUpdateRole)

		r.Get("/rules", h.handleListRules)
		r.Post("/rules", h.handleCreateRule)

		r.Get("/relations/{module}", h.handleRelations)

		r.Route("/{module}", func(r chi.Router) {
			r.Get("/", h.handleQuery)
			r.Post("/", h.handleCreate)
			r.Post("/delete", h.handleBatchDelete)
			r.Get("/{id}", h.handleGet)
			r.Patch("/{id}", h.handleUpdate)
			r.Post("/{id}/convert", h.handleConvert)
		})
	})

	return r
}

// principal authenticates the request, writing the error response itself
// when the caller cannot be identified.
func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (authz.Principal, bool) {
	p, err := h.auth.Principal(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthenticated", Kind: "unauthenticated"})
		return authz.Principal{}, false
	}
	return p, true
}

// observe is the request metrics middleware.
func (h *Handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		h.metrics.RequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).
			Observe(time.Since(start).Seconds())
	})
}
