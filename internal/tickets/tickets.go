// Package tickets is a slim support-ticket module. It exists almost
// entirely as configuration over the generic repository and service;
// the only module-specific code is the priority filter and validation.
package tickets

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/meridian-crm/meridian/internal/crud"
	"github.com/meridian-crm/meridian/internal/query"
	"github.com/meridian-crm/meridian/internal/repo"
	"github.com/meridian-crm/meridian/internal/shared"
	"github.com/meridian-crm/meridian/internal/tenancy"
)

// Ticket is one support ticket row.
type Ticket struct {
	ID         string     `db:"id" json:"id"`
	TenantID   *string    `db:"tenant_id" json:"tenantId"`
	CustomerID string     `db:"customer_id" json:"customerId"`
	Subject    string     `db:"subject" json:"subject"`
	Body       string     `db:"body" json:"body,omitempty"`
	Status     string     `db:"status" json:"status"`
	Priority   string     `db:"priority" json:"priority"`
	AssignedTo *string    `db:"assigned_to" json:"assignedTo"`
	CreatedBy  string     `db:"created_by" json:"createdBy"`
	UpdatedBy  string     `db:"updated_by" json:"updatedBy"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updatedAt"`
	DeletedAt  *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
}

// Ticket statuses and priorities.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
	StatusClosed     = "closed"

	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// CreateInput is the payload for opening a ticket.
type CreateInput struct {
	CustomerID string `json:"customerId" validate:"required,uuid4"`
	Subject    string `json:"subject" validate:"required,min=3,max=300"`
	Body       string `json:"body" validate:"max=10000"`
	Priority   string `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	AssignedTo string `json:"assignedTo"`
	TenantID   string `json:"tenantId"`
}

// UpdateInput is the payload for updating a ticket.
type UpdateInput struct {
	Subject    string `json:"subject" validate:"required,min=3,max=300"`
	Body       string `json:"body" validate:"max=10000"`
	Status     string `json:"status" validate:"omitempty,oneof=open in_progress resolved closed"`
	Priority   string `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	AssignedTo string `json:"assignedTo"`
}

var columns = []string{
	"id", "tenant_id", "customer_id", "subject", "body", "status",
	"priority", "assigned_to", "created_by", "updated_by",
	"created_at", "updated_at", "deleted_at",
}

// NewRepository configures the generic repository for the tickets table.
func NewRepository(db repo.Querier) *repo.Repository[Ticket, CreateInput, UpdateInput] {
	return repo.New(db, repo.Config[Ticket, CreateInput, UpdateInput]{
		Resource:    "tickets",
		Table:       "tickets",
		Columns:     columns,
		Searchable:  []string{"subject", "body"},
		DefaultSort: "updated_at DESC",
		// customer_id is fixed at creation; moving a ticket between
		// customers goes through a dedicated flow, not a field update.
		ReadOnly: []string{"customer_id"},
		FilterHooks: map[string]repo.FilterHook{
			"priority": func(value string) query.Filter {
				return query.Eq("priority", strings.ToLower(value))
			},
		},
		ToInsert: func(in CreateInput) map[string]any {
			priority := in.Priority
			if priority == "" {
				priority = PriorityMedium
			}
			return map[string]any{
				"customer_id": in.CustomerID,
				"subject":     strings.TrimSpace(in.Subject),
				"body":        in.Body,
				"status":      StatusOpen,
				"priority":    priority,
				"assigned_to": nullableID(in.AssignedTo),
				"tenant_id":   in.TenantID,
			}
		},
		ToUpdate: func(in UpdateInput) map[string]any {
			return map[string]any{
				"subject":     strings.TrimSpace(in.Subject),
				"body":        in.Body,
				"status":      in.Status,
				"priority":    in.Priority,
				"assigned_to": nullableID(in.AssignedTo),
			}
		},
	})
}

// Service is the tickets CRUD pipeline.
type Service = crud.Service[Ticket, CreateInput, UpdateInput]

// NewService wires validation and tenant authorization hooks around the
// repository. Mutations pass through the gateway, so every decision on a
// ticket lands in the audit trail.
func NewService(store crud.Store[Ticket, CreateInput, UpdateInput], gateway *tenancy.Gateway, logger *slog.Logger) *Service {
	hooks := &ticketHooks{gateway: gateway, validator: validator.New()}
	return crud.NewService[Ticket, CreateInput, UpdateInput]("tickets", store, hooks, logger)
}

type ticketHooks struct {
	crud.BaseHooks[Ticket, CreateInput, UpdateInput]
	gateway   *tenancy.Gateway
	validator *validator.Validate
}

func (h *ticketHooks) ValidateCreate(_ context.Context, p *tenancy.Principal, input CreateInput) error {
	if err := h.gateway.ValidateTenantForOperation(p, input.TenantID, http.MethodPost, "tickets"); err != nil {
		return err
	}
	return h.structErr(input)
}

func (h *ticketHooks) CheckUpdateAuthorization(_ context.Context, p *tenancy.Principal, entity Ticket) error {
	return h.gateway.ValidateTenantAccess(p, derefTenant(entity.TenantID), http.MethodPut, "tickets", entity.ID)
}

func (h *ticketHooks) CheckDeleteAuthorization(_ context.Context, p *tenancy.Principal, entity Ticket) error {
	return h.gateway.ValidateTenantAccess(p, derefTenant(entity.TenantID), http.MethodDelete, "tickets", entity.ID)
}

func (h *ticketHooks) ValidateUpdate(_ context.Context, _ *tenancy.Principal, _ string, input UpdateInput) error {
	return h.structErr(input)
}

func (h *ticketHooks) structErr(v any) error {
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
