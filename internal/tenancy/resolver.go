package tenancy

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-crm/meridian/internal/shared"
)

// Session values maintained by the impersonation workflow: the user id
// a super-admin is currently impersonating and the limiter session
// tracking it.
const (
	SessionKeyImpersonatedUser     = "impersonated_user_id"
	SessionKeyImpersonationSession = "impersonation_session_id"
)

// PrincipalSource loads principal data for a user id.
type PrincipalSource interface {
	LoadPrincipal(ctx context.Context, userID string) (*Principal, error)
}

// Resolver derives the acting principal from session state. Resolution is
// side-effect-free and happens exactly once per request.
type Resolver struct {
	source PrincipalSource
	logger *slog.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(source PrincipalSource, logger *slog.Logger) *Resolver {
	return &Resolver{source: source, logger: logger}
}

// Resolve returns the principal for the session, or nil when no
// authenticated session exists. When the session carries an active
// impersonation and the real user is a super-admin, the impersonated
// user's principal is returned with ImpersonatedBy set.
func (r *Resolver) Resolve(ctx context.Context, sess *shared.Session) (*Principal, error) {
	if sess == nil || sess.User() == "" {
		return nil, nil
	}
	actor, err := r.source.LoadPrincipal(ctx, sess.User())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	target := sess.Get(SessionKeyImpersonatedUser)
	if target == "" || !actor.SuperAdmin {
		return actor, nil
	}
	impersonated, err := r.source.LoadPrincipal(ctx, target)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Stale impersonation target; fall back to the real identity.
			return actor, nil
		}
		return nil, err
	}
	impersonated.ImpersonatedBy = actor.ID
	if r.logger != nil {
		r.logger.Info("resolved impersonated principal",
			slog.String("super_admin_id", actor.ID),
			slog.String("user_id", impersonated.ID))
	}
	return impersonated, nil
}

// PGSource loads principals from PostgreSQL.
type PGSource struct {
	pool *pgxpool.Pool
}

// NewPGSource constructs a PGSource.
func NewPGSource(pool *pgxpool.Pool) *PGSource {
	return &PGSource{pool: pool}
}

// LoadPrincipal fetches the user row and its effective permission names.
func (s *PGSource) LoadPrincipal(ctx context.Context, userID string) (*Principal, error) {
	const userQuery = `
		SELECT id, role, COALESCE(tenant_id::text, ''), is_super_admin
		FROM users
		WHERE id = $1 AND deleted_at IS NULL`
	var (
		id       string
		role     string
		tenantID string
		flag     bool
	)
	if err := s.pool.QueryRow(ctx, userQuery, userID).Scan(&id, &role, &tenantID, &flag); err != nil {
		return nil, err
	}

	const permsQuery = `
		SELECT DISTINCT p.name
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		JOIN user_roles ur ON ur.role_id = rp.role_id
		WHERE ur.user_id = $1`
	rows, err := s.pool.Query(ctx, permsQuery, userID)
	if err != nil {
		return nil, err
	}
	perms, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	return NewPrincipal(id, Role(role), tenantID, perms, flag), nil
}

var _ PrincipalSource = (*PGSource)(nil)
