package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-crm/meridian/internal/customers"
)

// CustomerEvents implements customers.Events by enqueuing notification
// tasks. Enqueue errors propagate to the crud layer, which logs them
// without failing the mutation.
type CustomerEvents struct {
	client *Client
}

// NewCustomerEvents constructs the queue-backed event sink.
func NewCustomerEvents(client *Client) *CustomerEvents {
	return &CustomerEvents{client: client}
}

func (e *CustomerEvents) CustomerCreated(ctx context.Context, c customers.Customer) error {
	return e.enqueue(ctx, TaskCustomerCreated, c)
}

func (e *CustomerEvents) CustomerDeleted(ctx context.Context, c customers.Customer) error {
	return e.enqueue(ctx, TaskCustomerDeleted, c)
}

func (e *CustomerEvents) enqueue(ctx context.Context, taskType string, c customers.Customer) error {
	payload := CustomerEventPayload{
		CustomerID: c.ID,
		Name:       c.Name,
		Email:      c.Email,
	}
	if c.TenantID != nil {
		payload.TenantID = *c.TenantID
	}
	task, err := NewCustomerEventTask(taskType, payload)
	if err != nil {
		return err
	}
	_, err = e.client.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// CustomerNotificationJob consumes customer lifecycle tasks.
type CustomerNotificationJob struct {
	logger *slog.Logger
}

// NewCustomerNotificationJob initialises the notification handler.
func NewCustomerNotificationJob(logger *slog.Logger) *CustomerNotificationJob {
	return &CustomerNotificationJob{logger: logger}
}

// Handle processes one customer lifecycle task.
func (j *CustomerNotificationJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("customer notification: handler not configured")
	}
	var payload CustomerEventPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	// Delivery is the structured log record; downstream consumers tail it.
	j.logger.Info("customer notification",
		slog.String("task", t.Type()),
		slog.String("customer_id", payload.CustomerID),
		slog.String("tenant_id", payload.TenantID))
	return nil
}
