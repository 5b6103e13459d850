package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/meridian-crm/meridian/internal/repo"
	"github.com/meridian-crm/meridian/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	CreateSession(ctx context.Context, id, userID string, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db repo.Querier
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(db repo.Querier) *PGRepository {
	return &PGRepository{db: db}
}

// FindByEmail fetches a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, email, password_hash, is_active, tenant_id, created_at, updated_at
		FROM users WHERE email = $1`,
		email)
	if err != nil {
		return nil, shared.NormalizeError("users", err)
	}
	user, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByNameLax[User])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &shared.NotFoundError{Resource: "users"}
		}
		return nil, shared.NormalizeError("users", err)
	}
	return &user, nil
}

// CreateSession persists a new login session for auditing.
func (r *PGRepository) CreateSession(ctx context.Context, id, userID string, expiresAt time.Time, ip, ua string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO login_sessions (id, user_id, created_at, expires_at, ip, ua)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))`,
		id, userID, time.Now().UTC(), expiresAt.UTC(), ip, ua)
	if err != nil {
		return shared.NormalizeError("login_sessions", err)
	}
	return nil
}

// DeleteSession removes a session record.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM login_sessions WHERE id = $1`, id); err != nil {
		return shared.NormalizeError("login_sessions", err)
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
