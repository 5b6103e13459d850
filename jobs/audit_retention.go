package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-crm/meridian/internal/repo"
)

// DefaultAuditRetentionDays bounds the sweep when the payload carries no
// usable window.
const DefaultAuditRetentionDays = 90

// AuditRetentionJob prunes tenant_validation_audit rows older than the
// retention window. The scheduler fires it nightly; the sweep is
// idempotent, so a retried run deletes nothing extra.
type AuditRetentionJob struct {
	db     repo.Querier
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditRetentionJob initialises the retention handler.
func NewAuditRetentionJob(db repo.Querier, logger *slog.Logger) *AuditRetentionJob {
	return &AuditRetentionJob{db: db, logger: logger, now: time.Now}
}

// Handle executes one sweep.
func (j *AuditRetentionJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.db == nil {
		return errors.New("audit retention: handler not configured")
	}
	var payload AuditRetentionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	days := payload.Days
	if days <= 0 {
		days = DefaultAuditRetentionDays
	}
	cutoff := j.now().UTC().AddDate(0, 0, -days)

	tag, err := j.db.Exec(ctx, "DELETE FROM tenant_validation_audit WHERE occurred_at < $1", cutoff)
	if err != nil {
		j.logger.Error("prune audit rows", slog.Any("error", err))
		return err
	}
	j.logger.Info("pruned audit rows",
		slog.Int64("deleted", tag.RowsAffected()),
		slog.Time("cutoff", cutoff))
	return nil
}
