package impersonation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-crm/meridian/internal/shared"
	"github.com/meridian-crm/meridian/internal/tenancy"
)

// Limiter evaluates the impersonation caps per super-admin. Check and
// StartSession run under a per-admin lock so two simultaneous starts
// cannot both pass the check and jointly exceed a cap.
type Limiter struct {
	sessions SessionStore
	config   ConfigStore
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLimiter(sessions SessionStore, config ConfigStore, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		sessions: sessions,
		config:   config,
		logger:   logger,
		now:      time.Now,
		locks:    map[string]*sync.Mutex{},
	}
}

func (l *Limiter) lockFor(superAdminID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[superAdminID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[superAdminID] = lock
	}
	return lock
}

// Check evaluates all three caps against current usage. Any store
// failure denies: the caps fail closed.
func (l *Limiter) Check(ctx context.Context, superAdminID string) (Decision, error) {
	lock := l.lockFor(superAdminID)
	lock.Lock()
	defer lock.Unlock()
	return l.check(ctx, superAdminID)
}

// check must be called with the per-admin lock held.
func (l *Limiter) check(ctx context.Context, superAdminID string) (Decision, error) {
	cfg, err := l.config.Get(ctx)
	if err != nil {
		return l.denyOnError(superAdminID, "read rate limit config", err)
	}
	now := l.now()
	started, err := l.sessions.CountStartedSince(ctx, superAdminID, now.Add(-time.Hour))
	if err != nil {
		return l.denyOnError(superAdminID, "count hourly impersonations", err)
	}
	open, err := l.sessions.ListOpen(ctx, superAdminID)
	if err != nil {
		return l.denyOnError(superAdminID, "list open sessions", err)
	}

	longest := 0
	for _, sess := range open {
		if minutes := int(now.Sub(sess.StartedAt).Minutes()); minutes > longest {
			longest = minutes
		}
	}
	usage := Usage{
		ImpersonationsThisHour: started,
		ConcurrentSessions:     len(open),
		LongestSessionMinutes:  longest,
	}
	decision := Decision{
		Allowed:      true,
		CurrentUsage: usage,
		Limits:       cfg,
		Remaining: Capacity{
			Hourly:          max(cfg.MaxPerHour-started, 0),
			Concurrent:      max(cfg.MaxConcurrent-len(open), 0),
			DurationMinutes: max(cfg.MaxDurationMinutes-longest, 0),
		},
	}

	// Priority order: the first saturated cap names the denial.
	switch {
	case started >= cfg.MaxPerHour:
		decision.Allowed = false
		decision.LimitType = LimitHourly
		decision.Reason = fmt.Sprintf("hourly impersonation limit reached (%d/%d)", started, cfg.MaxPerHour)
	case len(open) >= cfg.MaxConcurrent:
		decision.Allowed = false
		decision.LimitType = LimitConcurrent
		decision.Reason = fmt.Sprintf("concurrent session limit reached (%d/%d)", len(open), cfg.MaxConcurrent)
	case longest >= cfg.MaxDurationMinutes:
		decision.Allowed = false
		decision.LimitType = LimitDuration
		decision.Reason = fmt.Sprintf("active session exceeded maximum duration (%d/%d minutes)", longest, cfg.MaxDurationMinutes)
	}
	return decision, nil
}

func (l *Limiter) denyOnError(superAdminID, op string, err error) (Decision, error) {
	l.logger.Error("rate limit check failed closed",
		slog.String("super_admin_id", superAdminID),
		slog.String("op", op),
		slog.Any("error", err))
	return Decision{Allowed: false, Reason: "rate limit state unavailable"}, fmt.Errorf("%s: %w", op, err)
}

// StartSession checks the caps and opens a session as one atomic unit
// per super-admin. A denied check raises a LimitError; the check is a
// precondition, not advisory.
func (l *Limiter) StartSession(ctx context.Context, superAdminID, targetUserID, tenantID, reason string) (Session, error) {
	lock := l.lockFor(superAdminID)
	lock.Lock()
	defer lock.Unlock()

	decision, err := l.check(ctx, superAdminID)
	if err != nil {
		return Session{}, err
	}
	if !decision.Allowed {
		return Session{}, &LimitError{Decision: decision}
	}
	sess := Session{
		ID:                 uuid.NewString(),
		SuperAdminID:       superAdminID,
		ImpersonatedUserID: targetUserID,
		TenantID:           tenantID,
		StartedAt:          l.now(),
		Reason:             reason,
	}
	if err := l.sessions.Insert(ctx, sess); err != nil {
		return Session{}, fmt.Errorf("record impersonation session: %w", err)
	}
	l.logger.Info("impersonation session started",
		slog.String("session_id", sess.ID),
		slog.String("super_admin_id", superAdminID),
		slog.String("target_user_id", targetUserID))
	return sess, nil
}

// EndSession closes an open session.
func (l *Limiter) EndSession(ctx context.Context, sessionID string) (Session, error) {
	sess, err := l.sessions.End(ctx, sessionID, l.now())
	if err != nil {
		return Session{}, err
	}
	l.logger.Info("impersonation session ended",
		slog.String("session_id", sess.ID),
		slog.String("super_admin_id", sess.SuperAdminID))
	return sess, nil
}

// ValidateOperation translates a check into percentages and a message
// for the admin UI. It never re-decides policy.
func (l *Limiter) ValidateOperation(ctx context.Context, superAdminID string) (OperationStatus, error) {
	decision, err := l.Check(ctx, superAdminID)
	if err != nil {
		return OperationStatus{CanProceed: false, Message: "impersonation unavailable: rate limit state could not be read"}, err
	}
	status := OperationStatus{
		CanProceed:      decision.Allowed,
		LimitType:       decision.LimitType,
		UsagePercentage: usagePercentage(decision),
	}
	if decision.Allowed {
		status.Message = "impersonation available"
	} else {
		status.Message = decision.Reason
	}
	return status, nil
}

// usagePercentage reports the saturated cap's percentage when denied,
// otherwise the highest of the three.
func usagePercentage(d Decision) int {
	hourly := percent(d.CurrentUsage.ImpersonationsThisHour, d.Limits.MaxPerHour)
	concurrent := percent(d.CurrentUsage.ConcurrentSessions, d.Limits.MaxConcurrent)
	duration := percent(d.CurrentUsage.LongestSessionMinutes, d.Limits.MaxDurationMinutes)
	switch d.LimitType {
	case LimitHourly:
		return hourly
	case LimitConcurrent:
		return concurrent
	case LimitDuration:
		return duration
	}
	return max(hourly, concurrent, duration)
}

func percent(usage, limit int) int {
	if limit <= 0 {
		return 0
	}
	return usage * 100 / limit
}

// ResetQuota clears historical usage for one super-admin, or globally
// when superAdminID is empty. Only an already-verified platform
// principal may invoke it.
func (l *Limiter) ResetQuota(ctx context.Context, p *tenancy.Principal, superAdminID string) error {
	if p == nil || !p.SuperAdmin {
		return &shared.UnauthorizedError{Message: "quota reset requires platform administrator access"}
	}
	if err := l.sessions.Purge(ctx, superAdminID); err != nil {
		return fmt.Errorf("reset impersonation quota: %w", err)
	}
	l.logger.Warn("impersonation quota reset",
		slog.String("by", p.ID),
		slog.String("super_admin_id", superAdminID))
	return nil
}

// GetConfig returns the current caps.
func (l *Limiter) GetConfig(ctx context.Context) (Config, error) {
	return l.config.Get(ctx)
}

// UpdateConfig replaces the caps. Gated to platform principals.
func (l *Limiter) UpdateConfig(ctx context.Context, p *tenancy.Principal, cfg Config) error {
	if p == nil || !p.SuperAdmin {
		return &shared.UnauthorizedError{Message: "rate limit configuration requires platform administrator access"}
	}
	if cfg.MaxPerHour < 1 || cfg.MaxConcurrent < 1 || cfg.MaxDurationMinutes < 1 {
		verr := &shared.ValidationError{}
		if cfg.MaxPerHour < 1 {
			verr.AddField("maxPerHour", "must be at least 1")
		}
		if cfg.MaxConcurrent < 1 {
			verr.AddField("maxConcurrent", "must be at least 1")
		}
		if cfg.MaxDurationMinutes < 1 {
			verr.AddField("maxDurationMinutes", "must be at least 1")
		}
		return verr
	}
	return l.config.Update(ctx, cfg)
}
