// Package impersonation bounds the super-admin impersonation capability
// with three independent caps: impersonations per hour, concurrent open
// sessions, and per-session duration. The limiter consults the session
// store at check time and fails closed when usage cannot be determined.
package impersonation

import (
	"context"
	"fmt"
	"time"
)

// Session records one impersonation, open until EndedAt is set.
type Session struct {
	ID                 string     `db:"id" json:"id"`
	SuperAdminID       string     `db:"super_admin_id" json:"superAdminId"`
	ImpersonatedUserID string     `db:"impersonated_user_id" json:"impersonatedUserId"`
	TenantID           string     `db:"tenant_id" json:"tenantId"`
	StartedAt          time.Time  `db:"started_at" json:"startedAt"`
	EndedAt            *time.Time `db:"ended_at" json:"endedAt,omitempty"`
	Reason             string     `db:"reason" json:"reason,omitempty"`
}

// Open reports whether the session is still active.
func (s Session) Open() bool { return s.EndedAt == nil }

// Config holds the three caps. Mutable only through UpdateConfig.
type Config struct {
	MaxPerHour         int `json:"maxPerHour" validate:"required,min=1"`
	MaxConcurrent      int `json:"maxConcurrent" validate:"required,min=1"`
	MaxDurationMinutes int `json:"maxDurationMinutes" validate:"required,min=1"`
}

// DefaultConfig is used until an admin updates the caps.
var DefaultConfig = Config{MaxPerHour: 10, MaxConcurrent: 3, MaxDurationMinutes: 60}

// LimitType identifies the cap that denied a check, in priority order
// hourly > concurrent > duration.
type LimitType string

const (
	LimitHourly     LimitType = "hourly"
	LimitConcurrent LimitType = "concurrent"
	LimitDuration   LimitType = "duration"
)

// Usage is the current consumption measured against the caps.
type Usage struct {
	ImpersonationsThisHour int `json:"impersonationsThisHour"`
	ConcurrentSessions     int `json:"concurrentSessions"`
	LongestSessionMinutes  int `json:"longestSessionMinutes"`
}

// Capacity is what remains before each cap saturates.
type Capacity struct {
	Hourly          int `json:"hourly"`
	Concurrent      int `json:"concurrent"`
	DurationMinutes int `json:"durationMinutes"`
}

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed      bool      `json:"allowed"`
	LimitType    LimitType `json:"limitType,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	CurrentUsage Usage     `json:"currentUsage"`
	Limits       Config    `json:"limits"`
	Remaining    Capacity  `json:"remainingCapacity"`
}

// OperationStatus is the presentation form of a Decision: percentages
// and a human message, no policy of its own.
type OperationStatus struct {
	CanProceed      bool      `json:"canProceed"`
	Message         string    `json:"message"`
	LimitType       LimitType `json:"limitType,omitempty"`
	UsagePercentage int       `json:"usagePercentage"`
}

// LimitError is returned by StartSession when the check denies.
type LimitError struct {
	Decision Decision
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("impersonation rate limit exceeded: %s", e.Decision.Reason)
}

// SessionStore is the authoritative session log. Usage counters are
// always derived from it at check time, never cached.
type SessionStore interface {
	Insert(ctx context.Context, sess Session) error
	End(ctx context.Context, id string, endedAt time.Time) (Session, error)
	CountStartedSince(ctx context.Context, superAdminID string, since time.Time) (int, error)
	ListOpen(ctx context.Context, superAdminID string) ([]Session, error)
	// Purge removes the usage history for one super-admin, or for all
	// of them when superAdminID is empty.
	Purge(ctx context.Context, superAdminID string) error
}

// ConfigStore holds the caps.
type ConfigStore interface {
	Get(ctx context.Context) (Config, error)
	Update(ctx context.Context, cfg Config) error
}
