package tenancy

// PermissionCategory classifies a permission grant.
type PermissionCategory string

const (
	PermissionCategoryCore           PermissionCategory = "core"
	PermissionCategoryModule         PermissionCategory = "module"
	PermissionCategoryAdministrative PermissionCategory = "administrative"
	PermissionCategorySystem         PermissionCategory = "system"
)

// RoleRecord is the role shape the isolation policy classifies. A role is
// platform-level iff it is a system role with no tenant.
type RoleRecord struct {
	ID         string
	Name       string
	TenantID   string // empty for platform roles
	SystemRole bool
}

// PermissionRecord is the permission shape the isolation policy classifies.
type PermissionRecord struct {
	ID       string
	Name     string
	Category PermissionCategory
}

// platformPermissionNames are reserved grants that are platform-level
// regardless of category.
var platformPermissionNames = map[string]struct{}{
	SuperAdminPermission:      {},
	"manage_tenants":          {},
	"manage_platform_settings": {},
	"impersonate_users":       {},
	"view_all_tenants":        {},
}

// IsSuperAdmin reports whether p holds super-admin capability. Total and
// nil-safe, like every predicate in this file.
func IsSuperAdmin(p *Principal) bool {
	return p != nil && p.SuperAdmin
}

// IsPlatformRole reports whether the role is platform-level.
func IsPlatformRole(r RoleRecord) bool {
	return r.SystemRole && r.TenantID == ""
}

// IsPlatformPermission reports whether the permission is platform-level.
func IsPlatformPermission(perm PermissionRecord) bool {
	if perm.Category == PermissionCategorySystem {
		return true
	}
	_, reserved := platformPermissionNames[perm.Name]
	return reserved
}

// FilterRolesByTenant returns the roles p may see: everything for a
// super-admin, otherwise the principal's own tenant's non-platform roles.
// A principal without a tenant sees nothing.
func FilterRolesByTenant(roles []RoleRecord, p *Principal) []RoleRecord {
	if IsSuperAdmin(p) {
		return roles
	}
	if p == nil || p.TenantID == "" {
		return []RoleRecord{}
	}
	visible := make([]RoleRecord, 0, len(roles))
	for _, r := range roles {
		if r.TenantID == p.TenantID && !IsPlatformRole(r) {
			visible = append(visible, r)
		}
	}
	return visible
}

// FilterPermissionsByTenant returns the permissions p may see, excluding
// platform-level grants for everyone but super-admins.
func FilterPermissionsByTenant(perms []PermissionRecord, p *Principal) []PermissionRecord {
	if IsSuperAdmin(p) {
		return perms
	}
	if p == nil {
		return []PermissionRecord{}
	}
	visible := make([]PermissionRecord, 0, len(perms))
	for _, perm := range perms {
		if !IsPlatformPermission(perm) {
			visible = append(visible, perm)
		}
	}
	return visible
}

// CanAccessRole reports whether p may read the role.
func CanAccessRole(p *Principal, r RoleRecord) bool {
	if IsSuperAdmin(p) {
		return true
	}
	if p == nil || p.TenantID == "" {
		return false
	}
	return r.TenantID == p.TenantID && !IsPlatformRole(r)
}

// CanAccessPermission reports whether p may read the permission.
func CanAccessPermission(p *Principal, perm PermissionRecord) bool {
	if IsSuperAdmin(p) {
		return true
	}
	if p == nil {
		return false
	}
	return !IsPlatformPermission(perm)
}

// CanModifyRole reports whether p may mutate the role. Non-super-admins
// may never touch a system role, even one scoped to their own tenant.
func CanModifyRole(p *Principal, r RoleRecord) bool {
	if IsSuperAdmin(p) {
		return true
	}
	if p == nil || p.TenantID == "" {
		return false
	}
	if r.SystemRole {
		return false
	}
	return r.TenantID == p.TenantID
}
