package roles

import (
	"context"

	"github.com/meridian-crm/meridian/internal/shared"
	"github.com/meridian-crm/meridian/internal/tenancy"
)

// Service applies the isolation policy to role administration. The
// repository fetch is unscoped; visibility is decided here so platform
// and tenant roles live in one table.
type Service struct {
	repo Repository
}

// NewService builds Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ListRoles returns the roles the principal may see.
func (s *Service) ListRoles(ctx context.Context, p *tenancy.Principal) ([]Role, error) {
	all, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	visible := make([]Role, 0, len(all))
	for _, role := range all {
		if tenancy.CanAccessRole(p, role.Record()) {
			visible = append(visible, role)
		}
	}
	return visible, nil
}

// GetRole returns one role. A role outside the principal's scope is
// indistinguishable from a missing one.
func (s *Service) GetRole(ctx context.Context, p *tenancy.Principal, id string) (Role, error) {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if !tenancy.CanAccessRole(p, role.Record()) {
		return Role{}, &shared.NotFoundError{Resource: "roles", ID: id}
	}
	return role, nil
}

// CreateRole creates a tenant role. The tenant is stamped from the
// principal; only super-admins may pick another tenant or create
// platform roles.
func (s *Service) CreateRole(ctx context.Context, p *tenancy.Principal, input CreateRoleInput) (Role, error) {
	if p == nil {
		return Role{}, &shared.UnauthorizedError{}
	}
	tenantID := tenancy.OperationTenantID(p, input.TenantID)
	role := Role{Name: input.Name, Description: input.Description}
	if tenantID != "" {
		role.TenantID = &tenantID
	} else if !p.SuperAdmin {
		return Role{}, &shared.TenantIsolationError{Reason: "tenant role requires a tenant"}
	}
	return s.repo.CreateRole(ctx, role)
}

// UpdateRole mutates a role the principal may modify.
func (s *Service) UpdateRole(ctx context.Context, p *tenancy.Principal, id string, input UpdateRoleInput) (Role, error) {
	role, err := s.GetRole(ctx, p, id)
	if err != nil {
		return Role{}, err
	}
	if !tenancy.CanModifyRole(p, role.Record()) {
		return Role{}, &shared.TenantIsolationError{Reason: "system roles are not modifiable"}
	}
	return s.repo.UpdateRole(ctx, id, input.Name, input.Description)
}

// DeleteRole removes a role the principal may modify.
func (s *Service) DeleteRole(ctx context.Context, p *tenancy.Principal, id string) error {
	role, err := s.GetRole(ctx, p, id)
	if err != nil {
		return err
	}
	if !tenancy.CanModifyRole(p, role.Record()) {
		return &shared.TenantIsolationError{Reason: "system roles are not modifiable"}
	}
	return s.repo.DeleteRole(ctx, id)
}

// ListPermissions returns the grants the principal may see.
func (s *Service) ListPermissions(ctx context.Context, p *tenancy.Principal) ([]Permission, error) {
	all, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	visible := make([]Permission, 0, len(all))
	for _, perm := range all {
		if tenancy.CanAccessPermission(p, perm.Record()) {
			visible = append(visible, perm)
		}
	}
	return visible, nil
}

// AssignRole grants a role to a user. The role must be within the
// principal's scope; assigning a platform role stays super-admin only.
func (s *Service) AssignRole(ctx context.Context, p *tenancy.Principal, userID, roleID string) error {
	role, err := s.GetRole(ctx, p, roleID)
	if err != nil {
		return err
	}
	if tenancy.IsPlatformRole(role.Record()) && !tenancy.IsSuperAdmin(p) {
		return &shared.TenantIsolationError{Reason: "platform roles are not assignable"}
	}
	return s.repo.AssignRole(ctx, userID, roleID)
}
