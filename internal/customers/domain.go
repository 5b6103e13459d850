// Package customers is the primary CRM entity module. It instantiates
// the generic repository and service; tenant scoping, soft deletion and
// audit all come from those layers, not from code here.
package customers

import "time"

// Customer is one customer row.
type Customer struct {
	ID         string     `db:"id" json:"id"`
	TenantID   *string    `db:"tenant_id" json:"tenantId"`
	Name       string     `db:"name" json:"name"`
	Email      string     `db:"email" json:"email"`
	Phone      string     `db:"phone" json:"phone,omitempty"`
	Company    string     `db:"company" json:"company,omitempty"`
	Status     string     `db:"status" json:"status"`
	AssignedTo *string    `db:"assigned_to" json:"assignedTo"`
	Notes      string     `db:"notes" json:"notes,omitempty"`
	CreatedBy  string     `db:"created_by" json:"createdBy"`
	UpdatedBy  string     `db:"updated_by" json:"updatedBy"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updatedAt"`
	DeletedAt  *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
}

// Customer statuses.
const (
	StatusLead     = "lead"
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusChurned  = "churned"
)

// CreateInput is the payload for creating a customer.
type CreateInput struct {
	Name       string `json:"name" validate:"required,min=2,max=200"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone" validate:"max=50"`
	Company    string `json:"company" validate:"max=200"`
	Status     string `json:"status" validate:"omitempty,oneof=lead active inactive churned"`
	AssignedTo string `json:"assignedTo"`
	Notes      string `json:"notes" validate:"max=5000"`
	TenantID   string `json:"tenantId"`
}

// UpdateInput is the payload for updating a customer.
type UpdateInput struct {
	Name       string `json:"name" validate:"required,min=2,max=200"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone" validate:"max=50"`
	Company    string `json:"company" validate:"max=200"`
	Status     string `json:"status" validate:"omitempty,oneof=lead active inactive churned"`
	AssignedTo string `json:"assignedTo"`
	Notes      string `json:"notes" validate:"max=5000"`
}

// columns is the full select list for the customers table.
var columns = []string{
	"id", "tenant_id", "name", "email", "phone", "company", "status",
	"assigned_to", "notes", "created_by", "updated_by",
	"created_at", "updated_at", "deleted_at",
}
