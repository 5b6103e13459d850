package roles

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/meridian-crm/meridian/internal/repo"
	"github.com/meridian-crm/meridian/internal/shared"
)

// Repository defines data access methods for roles.
type Repository interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id string) (Role, error)
	CreateRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, id, name, description string) (Role, error)
	DeleteRole(ctx context.Context, id string) error
	ListPermissions(ctx context.Context) ([]Permission, error)
	AssignRole(ctx context.Context, userID, roleID string) error
}

const roleColumns = `id, name, description, tenant_id, system_role, created_at, updated_at`

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	db repo.Querier
}

// NewRepository constructs a repository.
func NewRepository(db repo.Querier) *PGRepository {
	return &PGRepository{db: db}
}

func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.db.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, shared.NormalizeError("roles", err)
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[Role])
	if err != nil {
		return nil, shared.NormalizeError("roles", err)
	}
	return list, nil
}

func (r *PGRepository) GetRole(ctx context.Context, id string) (Role, error) {
	rows, err := r.db.Query(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
	if err != nil {
		return Role{}, shared.NormalizeError("roles", err)
	}
	role, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByNameLax[Role])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, &shared.NotFoundError{Resource: "roles", ID: id}
		}
		return Role{}, shared.NormalizeError("roles", err)
	}
	return role, nil
}

func (r *PGRepository) CreateRole(ctx context.Context, role Role) (Role, error) {
	if role.ID == "" {
		role.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	role.CreatedAt = now
	role.UpdatedAt = now
	_, err := r.db.Exec(ctx, `
		INSERT INTO roles (id, name, description, tenant_id, system_role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		role.ID, role.Name, role.Description, role.TenantID, role.SystemRole, role.CreatedAt, role.UpdatedAt)
	if err != nil {
		return Role{}, shared.NormalizeError("roles", err)
	}
	return role, nil
}

func (r *PGRepository) UpdateRole(ctx context.Context, id, name, description string) (Role, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE roles SET name = $2, description = $3, updated_at = $4
		WHERE id = $1
		RETURNING `+roleColumns,
		id, name, description, time.Now().UTC())
	if err != nil {
		return Role{}, shared.NormalizeError("roles", err)
	}
	role, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByNameLax[Role])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, &shared.NotFoundError{Resource: "roles", ID: id}
		}
		return Role{}, shared.NormalizeError("roles", err)
	}
	return role, nil
}

func (r *PGRepository) DeleteRole(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return shared.NormalizeError("roles", err)
	}
	if tag.RowsAffected() == 0 {
		return &shared.NotFoundError{Resource: "roles", ID: id}
	}
	return nil
}

func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, description, category FROM permissions ORDER BY category, name`)
	if err != nil {
		return nil, shared.NormalizeError("permissions", err)
	}
	perms, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[Permission])
	if err != nil {
		return nil, shared.NormalizeError("permissions", err)
	}
	return perms, nil
}

func (r *PGRepository) AssignRole(ctx context.Context, userID, roleID string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, role_id) DO NOTHING`,
		userID, roleID)
	if err != nil {
		return shared.NormalizeError("user_roles", err)
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
