package impersonation

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/meridian-crm/meridian/internal/repo"
	"github.com/meridian-crm/meridian/internal/shared"
)

const sessionColumns = `id, super_admin_id, impersonated_user_id, tenant_id, started_at, ended_at, reason`

// PGSessionStore persists the session log in Postgres so usage survives
// restarts and is shared across instances.
type PGSessionStore struct {
	db repo.Querier
}

func NewPGSessionStore(db repo.Querier) *PGSessionStore {
	return &PGSessionStore{db: db}
}

func (s *PGSessionStore) Insert(ctx context.Context, sess Session) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO impersonation_sessions (id, super_admin_id, impersonated_user_id, tenant_id, started_at, reason)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sess.ID, sess.SuperAdminID, sess.ImpersonatedUserID, sess.TenantID, sess.StartedAt, sess.Reason)
	if err != nil {
		return shared.NormalizeError("impersonation_sessions", err)
	}
	return nil
}

func (s *PGSessionStore) End(ctx context.Context, id string, endedAt time.Time) (Session, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE impersonation_sessions SET ended_at = $2
		WHERE id = $1 AND ended_at IS NULL
		RETURNING `+sessionColumns,
		id, endedAt)
	if err != nil {
		return Session{}, shared.NormalizeError("impersonation_sessions", err)
	}
	sess, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByNameLax[Session])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, &shared.NotFoundError{Resource: "impersonation_sessions", ID: id}
		}
		return Session{}, shared.NormalizeError("impersonation_sessions", err)
	}
	return sess, nil
}

func (s *PGSessionStore) CountStartedSince(ctx context.Context, superAdminID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM impersonation_sessions
		WHERE super_admin_id = $1 AND started_at >= $2`,
		superAdminID, since).Scan(&count)
	if err != nil {
		return 0, shared.NormalizeError("impersonation_sessions", err)
	}
	return count, nil
}

func (s *PGSessionStore) ListOpen(ctx context.Context, superAdminID string) ([]Session, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+sessionColumns+` FROM impersonation_sessions
		WHERE super_admin_id = $1 AND ended_at IS NULL
		ORDER BY started_at`,
		superAdminID)
	if err != nil {
		return nil, shared.NormalizeError("impersonation_sessions", err)
	}
	sessions, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[Session])
	if err != nil {
		return nil, shared.NormalizeError("impersonation_sessions", err)
	}
	return sessions, nil
}

func (s *PGSessionStore) Purge(ctx context.Context, superAdminID string) error {
	var err error
	if superAdminID == "" {
		_, err = s.db.Exec(ctx, `DELETE FROM impersonation_sessions`)
	} else {
		_, err = s.db.Exec(ctx, `DELETE FROM impersonation_sessions WHERE super_admin_id = $1`, superAdminID)
	}
	if err != nil {
		return shared.NormalizeError("impersonation_sessions", err)
	}
	return nil
}

// PGConfigStore keeps the caps in a single-row table so updates apply
// to every instance.
type PGConfigStore struct {
	db repo.Querier
}

func NewPGConfigStore(db repo.Querier) *PGConfigStore {
	return &PGConfigStore{db: db}
}

func (s *PGConfigStore) Get(ctx context.Context) (Config, error) {
	var cfg Config
	err := s.db.QueryRow(ctx, `
		SELECT max_per_hour, max_concurrent, max_duration_minutes
		FROM impersonation_rate_limits WHERE id = 1`).
		Scan(&cfg.MaxPerHour, &cfg.MaxConcurrent, &cfg.MaxDurationMinutes)
	if errors.Is(err, pgx.ErrNoRows) {
		return DefaultConfig, nil
	}
	if err != nil {
		return Config{}, shared.NormalizeError("impersonation_rate_limits", err)
	}
	return cfg, nil
}

// Seed writes the boot-time caps only when no row exists yet, so
// restarts never clobber an admin's configuration edits.
func (s *PGConfigStore) Seed(ctx context.Context, cfg Config) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO impersonation_rate_limits (id, max_per_hour, max_concurrent, max_duration_minutes)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO NOTHING`,
		cfg.MaxPerHour, cfg.MaxConcurrent, cfg.MaxDurationMinutes)
	if err != nil {
		return shared.NormalizeError("impersonation_rate_limits", err)
	}
	return nil
}

func (s *PGConfigStore) Update(ctx context.Context, cfg Config) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO impersonation_rate_limits (id, max_per_hour, max_concurrent, max_duration_minutes)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			max_per_hour = EXCLUDED.max_per_hour,
			max_concurrent = EXCLUDED.max_concurrent,
			max_duration_minutes = EXCLUDED.max_duration_minutes`,
		cfg.MaxPerHour, cfg.MaxConcurrent, cfg.MaxDurationMinutes)
	if err != nil {
		return shared.NormalizeError("impersonation_rate_limits", err)
	}
	return nil
}
