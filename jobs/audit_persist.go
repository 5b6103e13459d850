package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-crm/meridian/internal/repo"
	"github.com/meridian-crm/meridian/internal/tenancy"
)

// AuditPersistJob writes validation decisions into the
// tenant_validation_audit table. The HTTP surface reads the in-memory
// ring; this table is what survives restarts and ring eviction.
type AuditPersistJob struct {
	db     repo.Querier
	logger *slog.Logger
}

// NewAuditPersistJob initialises the audit persistence handler.
func NewAuditPersistJob(db repo.Querier, logger *slog.Logger) *AuditPersistJob {
	return &AuditPersistJob{db: db, logger: logger}
}

// Handle executes one audit insert.
func (j *AuditPersistJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.db == nil {
		return errors.New("audit persist: handler not configured")
	}
	var entry tenancy.AuditEntry
	if err := json.Unmarshal(t.Payload(), &entry); err != nil {
		return asynq.SkipRetry
	}

	const insert = `
		INSERT INTO tenant_validation_audit (
			occurred_at, operation, resource, resource_id,
			requested_tenant_id, acting_tenant_id, acting_user_id,
			acting_role, is_super_admin, result, reason
		) VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10, $11)`
	_, err := j.db.Exec(ctx, insert,
		entry.Timestamp, entry.Operation, entry.Resource, entry.ResourceID,
		entry.RequestedTenantID, entry.ActingTenantID, entry.ActingUserID,
		string(entry.ActingRole), entry.SuperAdmin, string(entry.Result), entry.Reason,
	)
	if err != nil {
		j.logger.Error("persist audit entry",
			slog.String("operation", entry.Operation),
			slog.String("resource", entry.Resource),
			slog.Any("error", err))
		return err
	}
	return nil
}

// AuditForwarder bridges the ring's append callback onto the queue. It
// is safe to register on a Gateway's audit log even before the worker is
// running; entries wait in Redis.
type AuditForwarder struct {
	client *Client
	logger *slog.Logger
}

// NewAuditForwarder constructs a forwarder enqueuing through client.
func NewAuditForwarder(client *Client, logger *slog.Logger) *AuditForwarder {
	return &AuditForwarder{client: client, logger: logger}
}

// Forward enqueues one entry. Enqueue failures are logged and dropped:
// the decision itself already happened, and the ring still retains the
// entry for the admin surface.
func (f *AuditForwarder) Forward(entry tenancy.AuditEntry) {
	if f == nil || f.client == nil {
		return
	}
	if _, err := f.client.EnqueueAuditEntry(context.Background(), entry); err != nil && f.logger != nil {
		f.logger.Warn("enqueue audit entry", slog.Any("error", err))
	}
}
