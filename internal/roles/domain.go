// Package roles manages tenant role and permission administration. All
// visibility and mutation rules come from the tenancy policy: platform
// roles and grants never leak to tenant-scoped principals.
package roles

import (
	"time"

	"github.com/meridian-crm/meridian/internal/tenancy"
)

// Role represents a role row.
type Role struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	TenantID    *string   `db:"tenant_id" json:"tenantId"`
	SystemRole  bool      `db:"system_role" json:"systemRole"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// Record converts the row into the shape the isolation policy classifies.
func (r Role) Record() tenancy.RoleRecord {
	tenantID := ""
	if r.TenantID != nil {
		tenantID = *r.TenantID
	}
	return tenancy.RoleRecord{ID: r.ID, Name: r.Name, TenantID: tenantID, SystemRole: r.SystemRole}
}

// Permission represents a grantable permission.
type Permission struct {
	ID          string `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
	Category    string `db:"category" json:"category"`
}

// Record converts the row into the policy's permission shape.
func (p Permission) Record() tenancy.PermissionRecord {
	return tenancy.PermissionRecord{ID: p.ID, Name: p.Name, Category: tenancy.PermissionCategory(p.Category)}
}

// CreateRoleInput is the payload for creating a role.
type CreateRoleInput struct {
	Name        string `json:"name" validate:"required,min=2,max=100"`
	Description string `json:"description" validate:"max=500"`
	TenantID    string `json:"tenantId"`
}

// UpdateRoleInput is the payload for updating a role.
type UpdateRoleInput struct {
	Name        string `json:"name" validate:"required,min=2,max=100"`
	Description string `json:"description" validate:"max=500"`
}
