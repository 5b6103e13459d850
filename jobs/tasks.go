package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/meridian-crm/meridian/internal/tenancy"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditPersist drains one validation audit entry to Postgres.
	TaskAuditPersist = "audit:persist"
	// TaskCustomerCreated notifies downstream consumers of a new customer.
	TaskCustomerCreated = "customers:created"
	// TaskCustomerDeleted notifies downstream consumers of a removal.
	TaskCustomerDeleted = "customers:deleted"
	// TaskAuditRetention prunes persisted audit rows past the retention
	// window. Scheduled, never enqueued by request handlers.
	TaskAuditRetention = "audit:retention"
)

// NewAuditPersistTask wraps one audit entry for queued persistence. The
// in-memory ring evicts under pressure; the queued copy is the durable
// record.
func NewAuditPersistTask(entry tenancy.AuditEntry) (*asynq.Task, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditPersist, data), nil
}

// AuditRetentionPayload carries the retention window in days.
type AuditRetentionPayload struct {
	Days int `json:"days"`
}

// NewAuditRetentionTask constructs the scheduled pruning task.
func NewAuditRetentionTask(days int) (*asynq.Task, error) {
	data, err := json.Marshal(AuditRetentionPayload{Days: days})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRetention, data), nil
}

// CustomerEventPayload identifies the customer a notification concerns.
// Only the fields needed to address the notification travel on the queue.
type CustomerEventPayload struct {
	CustomerID string `json:"customer_id"`
	TenantID   string `json:"tenant_id,omitempty"`
	Name       string `json:"name"`
	Email      string `json:"email"`
}

// NewCustomerEventTask constructs a customer notification task of the
// given type.
func NewCustomerEventTask(taskType string, payload CustomerEventPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}
