// Package tenancy implements the multi-tenant isolation core: principal
// resolution, the isolation policy, the validation gateway and its audit
// trail, and the tenant filter applied by every repository query.
package tenancy

import "context"

// Role enumerates the roles a principal may hold.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleAgent      Role = "agent"
	RoleEngineer   Role = "engineer"
	RoleCustomer   Role = "customer"
)

// Principal describes the acting user. It is resolved once per request and
// passed explicitly through every layer; nothing downstream re-resolves it.
type Principal struct {
	ID          string
	Role        Role
	TenantID    string // empty only for platform-level principals
	Permissions map[string]struct{}
	// SuperAdmin is the capability union computed at resolve time. The
	// source signals (role, permission grant, explicit flag) historically
	// disagreed, so they are OR'd here and downstream code reads only
	// this field.
	SuperAdmin bool

	// ImpersonatedBy carries the super-admin's user id while an
	// impersonation session is active.
	ImpersonatedBy string
}

// SuperAdminPermission is the permission grant that, on its own, confers
// super-admin capability.
const SuperAdminPermission = "super_admin"

// NewPrincipal builds a Principal, folding the redundant super-admin
// signals into the single SuperAdmin field.
func NewPrincipal(id string, role Role, tenantID string, permissions []string, superAdminFlag bool) *Principal {
	perms := make(map[string]struct{}, len(permissions))
	for _, name := range permissions {
		perms[name] = struct{}{}
	}
	p := &Principal{
		ID:          id,
		Role:        role,
		TenantID:    tenantID,
		Permissions: perms,
	}
	_, hasGrant := perms[SuperAdminPermission]
	p.SuperAdmin = role == RoleSuperAdmin || hasGrant || superAdminFlag
	return p
}

// HasPermission reports whether the principal holds the named permission.
func (p *Principal) HasPermission(name string) bool {
	if p == nil {
		return false
	}
	_, ok := p.Permissions[name]
	return ok
}

type principalContextKey struct{}

// ContextWithPrincipal stores the resolved principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context, nil when no
// authenticated session exists.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
