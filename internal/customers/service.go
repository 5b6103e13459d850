package customers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/meridian-crm/meridian/internal/crud"
	"github.com/meridian-crm/meridian/internal/query"
	"github.com/meridian-crm/meridian/internal/repo"
	"github.com/meridian-crm/meridian/internal/shared"
	"github.com/meridian-crm/meridian/internal/tenancy"
)

// Events receives fire-and-forget notifications after mutations commit.
// The asynq enqueuer implements it in production; failures are logged by
// the crud layer and never surface to the API caller.
type Events interface {
	CustomerCreated(ctx context.Context, c Customer) error
	CustomerDeleted(ctx context.Context, c Customer) error
}

// NoopEvents discards all notifications.
type NoopEvents struct{}

func (NoopEvents) CustomerCreated(context.Context, Customer) error { return nil }
func (NoopEvents) CustomerDeleted(context.Context, Customer) error { return nil }

// store is the surface the service needs beyond crud.Store.
type store interface {
	crud.Store[Customer, CreateInput, UpdateInput]
	Restore(ctx context.Context, p *tenancy.Principal, id string) (Customer, error)
}

// Service is the customers module service: the generic CRUD pipeline
// plus restore and the module's own hooks.
type Service struct {
	*crud.Service[Customer, CreateInput, UpdateInput]
	repo store
}

// NewRepository configures the generic repository for the customers table.
func NewRepository(db repo.Querier) *repo.Repository[Customer, CreateInput, UpdateInput] {
	return repo.New(db, repo.Config[Customer, CreateInput, UpdateInput]{
		Resource:   "customers",
		Table:      "customers",
		Columns:    columns,
		Searchable: []string{"name", "email", "company"},
		FilterHooks: map[string]repo.FilterHook{
			"email": func(value string) query.Filter {
				return query.Eq("email", strings.ToLower(strings.TrimSpace(value)))
			},
		},
		ToInsert: func(in CreateInput) map[string]any {
			status := in.Status
			if status == "" {
				status = StatusLead
			}
			return map[string]any{
				"name":        strings.TrimSpace(in.Name),
				"email":       strings.ToLower(strings.TrimSpace(in.Email)),
				"phone":       in.Phone,
				"company":     in.Company,
				"status":      status,
				"assigned_to": nullableID(in.AssignedTo),
				"notes":       in.Notes,
				"tenant_id":   in.TenantID,
			}
		},
		ToUpdate: func(in UpdateInput) map[string]any {
			return map[string]any{
				"name":        strings.TrimSpace(in.Name),
				"email":       strings.ToLower(strings.TrimSpace(in.Email)),
				"phone":       in.Phone,
				"company":     in.Company,
				"status":      in.Status,
				"assigned_to": nullableID(in.AssignedTo),
				"notes":       in.Notes,
			}
		},
	})
}

// NewService wires the hooks around the repository. Every mutation is
// validated through the gateway, so each decision lands in the audit
// trail before the repository is touched.
func NewService(r store, gateway *tenancy.Gateway, events Events, logger *slog.Logger) *Service {
	if events == nil {
		events = NoopEvents{}
	}
	hooks := &customerHooks{repo: r, gateway: gateway, events: events, validator: validator.New()}
	return &Service{
		Service: crud.NewService[Customer, CreateInput, UpdateInput]("customers", r, hooks, logger),
		repo:    r,
	}
}

// Restore undeletes a customer within tenant scope.
func (s *Service) Restore(ctx context.Context, p *tenancy.Principal, id string) (Customer, error) {
	return s.repo.Restore(ctx, p, id)
}

type customerHooks struct {
	crud.BaseHooks[Customer, CreateInput, UpdateInput]
	repo      store
	gateway   *tenancy.Gateway
	events    Events
	validator *validator.Validate
}

func (h *customerHooks) ValidateCreate(ctx context.Context, p *tenancy.Principal, input CreateInput) error {
	if err := h.gateway.ValidateTenantForOperation(p, input.TenantID, http.MethodPost, "customers"); err != nil {
		return err
	}
	if err := h.structErr(input); err != nil {
		return err
	}
	return h.checkDuplicateEmail(ctx, p, input.Email, "")
}

func (h *customerHooks) CheckUpdateAuthorization(_ context.Context, p *tenancy.Principal, entity Customer) error {
	return h.gateway.ValidateTenantAccess(p, derefTenant(entity.TenantID), http.MethodPut, "customers", entity.ID)
}

func (h *customerHooks) CheckDeleteAuthorization(_ context.Context, p *tenancy.Principal, entity Customer) error {
	return h.gateway.ValidateTenantAccess(p, derefTenant(entity.TenantID), http.MethodDelete, "customers", entity.ID)
}

func (h *customerHooks) ValidateUpdate(ctx context.Context, p *tenancy.Principal, id string, input UpdateInput) error {
	if err := h.structErr(input); err != nil {
		return err
	}
	return h.checkDuplicateEmail(ctx, p, input.Email, id)
}

func (h *customerHooks) OnCreated(ctx context.Context, _ *tenancy.Principal, created Customer) error {
	return h.events.CustomerCreated(ctx, created)
}

func (h *customerHooks) OnDeleted(ctx context.Context, _ *tenancy.Principal, deleted Customer) error {
	return h.events.CustomerDeleted(ctx, deleted)
}

func (h *customerHooks) structErr(v any) error {
	err := h.validator.Struct(v)
	if err == nil {
		return nil
	}
	verr := &shared.ValidationError{}
	for _, fieldErr := range err.(validator.ValidationErrors) {
		verr.AddField(fieldErr.Field(), fieldErr.Tag())
	}
	return verr
}

// checkDuplicateEmail rejects an email already used by another customer
// in the same tenant. The count is tenant-scoped by the repository, so
// the same address may exist in different tenants.
func (h *customerHooks) checkDuplicateEmail(ctx context.Context, p *tenancy.Principal, email, excludeID string) error {
	normalized := strings.ToLower(strings.TrimSpace(email))
	page, err := h.repo.FindMany(ctx, p, repo.ListParams{
		Filters:  map[string]string{"email": normalized},
		PageSize: 2,
	})
	if err != nil {
		return err
	}
	for _, existing := range page.Data {
		if existing.ID != excludeID {
			return &shared.ConflictError{Resource: "customers", Field: "email"}
		}
	}
	return nil
}

func derefTenant(t *string) string {
	if t == nil {
		return ""
	}
	return *t
}

func nullableID(s string) any {
	if s == "" {
		return nil
	}
	return s
}
