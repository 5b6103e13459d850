package app

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-crm/meridian/internal/auth"
	"github.com/meridian-crm/meridian/internal/customers"
	"github.com/meridian-crm/meridian/internal/impersonation"
	"github.com/meridian-crm/meridian/internal/platform/httpx"
	"github.com/meridian-crm/meridian/internal/roles"
	"github.com/meridian-crm/meridian/internal/shared"
	"github.com/meridian-crm/meridian/internal/tenancy"
	"github.com/meridian-crm/meridian/internal/tickets"
	"github.com/meridian-crm/meridian/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	Resolver       *tenancy.Resolver
	Gateway        *tenancy.Gateway

	AuthHandler          *auth.Handler
	CustomersHandler     *customers.Handler
	TicketsHandler       *tickets.Handler
	RolesHandler         *roles.Handler
	ImpersonationHandler *impersonation.Handler
	JobsHandler          *jobs.Handler
}

// NewRouter constructs the chi.Router with Meridian defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Resolver:       params.Resolver,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	if params.CustomersHandler != nil {
		r.Route("/customers", params.CustomersHandler.MountRoutes)
	}
	if params.TicketsHandler != nil {
		r.Route("/tickets", params.TicketsHandler.MountRoutes)
	}
	if params.RolesHandler != nil {
		r.Route("/roles", params.RolesHandler.MountRoutes)
	}

	r.Route("/admin", func(r chi.Router) {
		r.Use(requireSuperAdmin)
		if params.ImpersonationHandler != nil {
			r.Route("/impersonation", params.ImpersonationHandler.MountRoutes)
		}
		if params.Gateway != nil {
			r.Get("/audit/validations", auditValidationsHandler(params.Gateway))
		}
		if params.JobsHandler != nil {
			r.Route("/jobs", params.JobsHandler.MountRoutes)
		}
	})

	return r
}

// requireSuperAdmin fences the admin surface. Handlers behind it still
// re-check; the fence just keeps tenant traffic out of admin code paths.
func requireSuperAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := tenancy.PrincipalFromContext(r.Context())
		if p == nil {
			httpx.RespondError(w, shared.ErrNotAuthenticated)
			return
		}
		if !p.SuperAdmin {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "platform administrator access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// auditValidationsHandler returns the most recent tenant-validation audit
// entries, newest first.
func auditValidationsHandler(gateway *tenancy.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				verr := &shared.ValidationError{}
				verr.AddField("limit", "must be a non-negative integer")
				httpx.RespondError(w, verr)
				return
			}
			limit = parsed
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"data": gateway.ValidationAuditLog(limit)})
	}
}
