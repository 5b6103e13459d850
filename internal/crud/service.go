// Package crud provides the generic orchestration layer over the generic
// repository: lifecycle hooks, authorization checks, batch deletion and
// error normalization.
package crud

import (
	"context"
	"log/slog"

	"github.com/meridian-crm/meridian/internal/repo"
	"github.com/meridian-crm/meridian/internal/shared"
	"github.com/meridian-crm/meridian/internal/tenancy"
)

// Hooks is the lifecycle contract a concrete module may implement. Embed
// BaseHooks to pick up no-op defaults and override only what the module
// needs; the invocation order is fixed by the Service methods, not by
// convention.
type Hooks[T, C, U any] interface {
	BeforeGetAll(ctx context.Context, p *tenancy.Principal, params repo.ListParams) (repo.ListParams, error)
	AfterGetAll(ctx context.Context, p *tenancy.Principal, page repo.Page[T]) (repo.Page[T], error)

	BeforeGetByID(ctx context.Context, p *tenancy.Principal, id string) error
	AfterGetByID(ctx context.Context, p *tenancy.Principal, entity T) (T, error)

	ValidateCreate(ctx context.Context, p *tenancy.Principal, input C) error
	BeforeCreate(ctx context.Context, p *tenancy.Principal, input C) (C, error)
	AfterCreate(ctx context.Context, p *tenancy.Principal, created T) (T, error)
	OnCreated(ctx context.Context, p *tenancy.Principal, created T) error

	ValidateUpdate(ctx context.Context, p *tenancy.Principal, id string, input U) error
	BeforeUpdate(ctx context.Context, p *tenancy.Principal, id string, input U) (U, error)
	AfterUpdate(ctx context.Context, p *tenancy.Principal, updated T) (T, error)
	OnUpdated(ctx context.Context, p *tenancy.Principal, updated T) error

	BeforeDelete(ctx context.Context, p *tenancy.Principal, entity T) error
	AfterDelete(ctx context.Context, p *tenancy.Principal, entity T) error
	OnDeleted(ctx context.Context, p *tenancy.Principal, entity T) error

	CheckReadAuthorization(ctx context.Context, p *tenancy.Principal, entity T) error
	CheckUpdateAuthorization(ctx context.Context, p *tenancy.Principal, entity T) error
	CheckDeleteAuthorization(ctx context.Context, p *tenancy.Principal, entity T) error
}

// BaseHooks provides no-op defaults for every hook.
type BaseHooks[T, C, U any] struct{}

func (BaseHooks[T, C, U]) BeforeGetAll(_ context.Context, _ *tenancy.Principal, params repo.ListParams) (repo.ListParams, error) {
	return params, nil
}

func (BaseHooks[T, C, U]) AfterGetAll(_ context.Context, _ *tenancy.Principal, page repo.Page[T]) (repo.Page[T], error) {
	return page, nil
}

func (BaseHooks[T, C, U]) BeforeGetByID(context.Context, *tenancy.Principal, string) error {
	return nil
}

func (BaseHooks[T, C, U]) AfterGetByID(_ context.Context, _ *tenancy.Principal, entity T) (T, error) {
	return entity, nil
}

func (BaseHooks[T, C, U]) ValidateCreate(context.Context, *tenancy.Principal, C) error { return nil }

func (BaseHooks[T, C, U]) BeforeCreate(_ context.Context, _ *tenancy.Principal, input C) (C, error) {
	return input, nil
}

func (BaseHooks[T, C, U]) AfterCreate(_ context.Context, _ *tenancy.Principal, created T) (T, error) {
	return created, nil
}

func (BaseHooks[T, C, U]) OnCreated(context.Context, *tenancy.Principal, T) error { return nil }

func (BaseHooks[T, C, U]) ValidateUpdate(context.Context, *tenancy.Principal, string, U) error {
	return nil
}

func (BaseHooks[T, C, U]) BeforeUpdate(_ context.Context, _ *tenancy.Principal, _ string, input U) (U, error) {
	return input, nil
}

func (BaseHooks[T, C, U]) AfterUpdate(_ context.Context, _ *tenancy.Principal, updated T) (T, error) {
	return updated, nil
}

func (BaseHooks[T, C, U]) OnUpdated(context.Context, *tenancy.Principal, T) error { return nil }

func (BaseHooks[T, C, U]) BeforeDelete(context.Context, *tenancy.Principal, T) error { return nil }

func (BaseHooks[T, C, U]) AfterDelete(context.Context, *tenancy.Principal, T) error { return nil }

func (BaseHooks[T, C, U]) OnDeleted(context.Context, *tenancy.Principal, T) error { return nil }

func (BaseHooks[T, C, U]) CheckReadAuthorization(context.Context, *tenancy.Principal, T) error {
	return nil
}

func (BaseHooks[T, C, U]) CheckUpdateAuthorization(context.Context, *tenancy.Principal, T) error {
	return nil
}

func (BaseHooks[T, C, U]) CheckDeleteAuthorization(context.Context, *tenancy.Principal, T) error {
	return nil
}

// BatchError captures one failed id within a batch delete.
type BatchError struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// BatchDeleteResult aggregates the outcome of a batch delete.
type BatchDeleteResult struct {
	SuccessIDs   []string     `json:"successIds"`
	FailedIDs    []string     `json:"failedIds"`
	Errors       []BatchError `json:"errors"`
	SuccessCount int          `json:"successCount"`
	FailureCount int          `json:"failureCount"`
	Total        int          `json:"total"`
}

// Store is the repository surface the service drives.
type Store[T, C, U any] interface {
	FindMany(ctx context.Context, p *tenancy.Principal, params repo.ListParams) (repo.Page[T], error)
	FindByID(ctx context.Context, p *tenancy.Principal, id string) (T, error)
	Create(ctx context.Context, p *tenancy.Principal, input C) (T, error)
	Update(ctx context.Context, p *tenancy.Principal, id string, input U) (T, error)
	Delete(ctx context.Context, p *tenancy.Principal, id string) error
}

// Service wires the fixed lifecycle order around a Store. Every error
// leaving a Service method has been normalized into the typed hierarchy
// and logged with the operation name.
type Service[T, C, U any] struct {
	name   string
	store  Store[T, C, U]
	hooks  Hooks[T, C, U]
	logger *slog.Logger
}

// NewService constructs a Service. A nil hooks falls back to no-ops.
func NewService[T, C, U any](name string, store Store[T, C, U], hooks Hooks[T, C, U], logger *slog.Logger) *Service[T, C, U] {
	if hooks == nil {
		hooks = BaseHooks[T, C, U]{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service[T, C, U]{name: name, store: store, hooks: hooks, logger: logger}
}

// GetAll lists entities within tenant scope.
func (s *Service[T, C, U]) GetAll(ctx context.Context, p *tenancy.Principal, params repo.ListParams) (repo.Page[T], error) {
	params, err := s.hooks.BeforeGetAll(ctx, p, params)
	if err != nil {
		return repo.Page[T]{}, s.fail("getAll", err)
	}
	page, err := s.store.FindMany(ctx, p, params)
	if err != nil {
		return repo.Page[T]{}, s.fail("getAll", err)
	}
	page, err = s.hooks.AfterGetAll(ctx, p, page)
	if err != nil {
		return repo.Page[T]{}, s.fail("getAll", err)
	}
	return page, nil
}

// GetByID fetches one entity and runs the read authorization check on it.
func (s *Service[T, C, U]) GetByID(ctx context.Context, p *tenancy.Principal, id string) (T, error) {
	var zero T
	if err := s.hooks.BeforeGetByID(ctx, p, id); err != nil {
		return zero, s.fail("getById", err)
	}
	entity, err := s.store.FindByID(ctx, p, id)
	if err != nil {
		return zero, s.fail("getById", err)
	}
	if err := s.hooks.CheckReadAuthorization(ctx, p, entity); err != nil {
		return zero, s.fail("getById", err)
	}
	entity, err = s.hooks.AfterGetByID(ctx, p, entity)
	if err != nil {
		return zero, s.fail("getById", err)
	}
	return entity, nil
}

// Create runs validate, before, repository insert, after, then the
// fire-and-forget event hook.
func (s *Service[T, C, U]) Create(ctx context.Context, p *tenancy.Principal, input C) (T, error) {
	var zero T
	if err := s.hooks.ValidateCreate(ctx, p, input); err != nil {
		return zero, s.fail("create", err)
	}
	input, err := s.hooks.BeforeCreate(ctx, p, input)
	if err != nil {
		return zero, s.fail("create", err)
	}
	created, err := s.store.Create(ctx, p, input)
	if err != nil {
		return zero, s.fail("create", err)
	}
	created, err = s.hooks.AfterCreate(ctx, p, created)
	if err != nil {
		return zero, s.fail("create", err)
	}
	s.fireEvent("onCreated", func() error { return s.hooks.OnCreated(ctx, p, created) })
	return created, nil
}

// Update fetches the entity, checks update authorization before any
// mutating hook runs, then validate, before, repository update, after,
// and the event hook.
func (s *Service[T, C, U]) Update(ctx context.Context, p *tenancy.Principal, id string, input U) (T, error) {
	var zero T
	existing, err := s.store.FindByID(ctx, p, id)
	if err != nil {
		return zero, s.fail("update", err)
	}
	if err := s.hooks.CheckUpdateAuthorization(ctx, p, existing); err != nil {
		return zero, s.fail("update", err)
	}
	if err := s.hooks.ValidateUpdate(ctx, p, id, input); err != nil {
		return zero, s.fail("update", err)
	}
	input, err = s.hooks.BeforeUpdate(ctx, p, id, input)
	if err != nil {
		return zero, s.fail("update", err)
	}
	updated, err := s.store.Update(ctx, p, id, input)
	if err != nil {
		return zero, s.fail("update", err)
	}
	updated, err = s.hooks.AfterUpdate(ctx, p, updated)
	if err != nil {
		return zero, s.fail("update", err)
	}
	s.fireEvent("onUpdated", func() error { return s.hooks.OnUpdated(ctx, p, updated) })
	return updated, nil
}

// Delete fetches the entity, checks delete authorization, then runs
// before, repository delete, after and the event hook.
func (s *Service[T, C, U]) Delete(ctx context.Context, p *tenancy.Principal, id string) error {
	entity, err := s.store.FindByID(ctx, p, id)
	if err != nil {
		return s.fail("delete", err)
	}
	if err := s.hooks.CheckDeleteAuthorization(ctx, p, entity); err != nil {
		return s.fail("delete", err)
	}
	if err := s.hooks.BeforeDelete(ctx, p, entity); err != nil {
		return s.fail("delete", err)
	}
	if err := s.store.Delete(ctx, p, id); err != nil {
		return s.fail("delete", err)
	}
	if err := s.hooks.AfterDelete(ctx, p, entity); err != nil {
		return s.fail("delete", err)
	}
	s.fireEvent("onDeleted", func() error { return s.hooks.OnDeleted(ctx, p, entity) })
	return nil
}

// BatchDelete runs the full single-delete pipeline per id, sequentially.
// A failing id is recorded and the batch continues; one bad id never
// blocks deletion of the rest.
func (s *Service[T, C, U]) BatchDelete(ctx context.Context, p *tenancy.Principal, ids []string) BatchDeleteResult {
	result := BatchDeleteResult{
		SuccessIDs: []string{},
		FailedIDs:  []string{},
		Total:      len(ids),
	}
	for _, id := range ids {
		if err := s.Delete(ctx, p, id); err != nil {
			result.FailedIDs = append(result.FailedIDs, id)
			result.Errors = append(result.Errors, BatchError{ID: id, Message: err.Error(), Err: err})
			continue
		}
		result.SuccessIDs = append(result.SuccessIDs, id)
	}
	result.SuccessCount = len(result.SuccessIDs)
	result.FailureCount = len(result.FailedIDs)
	return result
}

// fireEvent runs an event hook whose failure is logged but never
// propagated: the mutation already committed and a notification failure
// must not surface as an API error.
func (s *Service[T, C, U]) fireEvent(hook string, fn func() error) {
	if err := fn(); err != nil {
		s.logger.Error("event hook failed",
			slog.String("service", s.name),
			slog.String("hook", hook),
			slog.Any("error", err))
	}
}

func (s *Service[T, C, U]) fail(op string, err error) error {
	normalized := shared.NormalizeError(s.name, err)
	s.logger.Error("service operation failed",
		slog.String("service", s.name),
		slog.String("operation", op),
		slog.Any("error", err))
	return normalized
}
