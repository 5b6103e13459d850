package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/meridian-crm/meridian/internal/tenancy"
)

type execRecorder struct {
	sql  string
	args []any
	err  error
}

func (r *execRecorder) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.sql = sql
	r.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), r.err
}

func (r *execRecorder) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not used")
}

func (r *execRecorder) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not used")
}

func testEntry() tenancy.AuditEntry {
	return tenancy.AuditEntry{
		Timestamp:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Operation:         "update",
		Resource:          "customers",
		ResourceID:        "c1",
		RequestedTenantID: "tenant-1",
		ActingTenantID:    "tenant-1",
		ActingUserID:      "u1",
		ActingRole:        tenancy.RoleAdmin,
		Result:            tenancy.AuditAllowed,
		Reason:            "tenant match",
	}
}

func TestAuditPersistInsertsEntry(t *testing.T) {
	db := &execRecorder{}
	job := NewAuditPersistJob(db, slog.New(slog.DiscardHandler))

	task, err := NewAuditPersistTask(testEntry())
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Contains(t, db.sql, "tenant_validation_audit")
	require.Len(t, db.args, 11)
	require.Equal(t, "customers", db.args[2])
	require.Equal(t, "ALLOWED", db.args[9])
}

func TestAuditPersistSkipsMalformedPayload(t *testing.T) {
	db := &execRecorder{}
	job := NewAuditPersistJob(db, slog.New(slog.DiscardHandler))

	err := job.Handle(context.Background(), asynq.NewTask(TaskAuditPersist, []byte("{broken")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Empty(t, db.sql)
}

func TestCustomerNotificationHandlesPayload(t *testing.T) {
	job := NewCustomerNotificationJob(slog.New(slog.DiscardHandler))

	data, err := json.Marshal(CustomerEventPayload{CustomerID: "c1", TenantID: "tenant-1", Name: "Acme", Email: "sales@acme.test"})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskCustomerCreated, data)))
	require.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(TaskCustomerCreated, []byte("nope"))), asynq.SkipRetry)
}
