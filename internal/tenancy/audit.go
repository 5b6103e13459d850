package tenancy

import (
	"sync"
	"time"
)

// AuditResult is the outcome of one access-control decision.
type AuditResult string

const (
	AuditAllowed AuditResult = "ALLOWED"
	AuditDenied  AuditResult = "DENIED"
)

// AuditEntry is one immutable record of a validation decision.
type AuditEntry struct {
	Timestamp         time.Time   `json:"timestamp"`
	Operation         string      `json:"operation"`
	Resource          string      `json:"resource"`
	ResourceID        string      `json:"resource_id,omitempty"`
	RequestedTenantID string      `json:"requested_tenant_id"`
	ActingTenantID    string      `json:"acting_tenant_id"`
	ActingUserID      string      `json:"acting_user_id"`
	ActingRole        Role        `json:"acting_role"`
	SuperAdmin        bool        `json:"is_super_admin"`
	Result            AuditResult `json:"result"`
	Reason            string      `json:"reason"`
}

// DefaultAuditCapacity bounds the in-memory audit ring.
const DefaultAuditCapacity = 1000

// AuditLog is a bounded ring of validation decisions. Appends are
// serialized under a mutex; once capacity is reached the oldest entry is
// evicted. Entries are never removed individually.
type AuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
	start   int
	count   int
	notify  func(AuditEntry)
}

// NewAuditLog constructs a ring with the given capacity, or
// DefaultAuditCapacity when capacity is not positive.
func NewAuditLog(capacity int) *AuditLog {
	if capacity <= 0 {
		capacity = DefaultAuditCapacity
	}
	return &AuditLog{entries: make([]AuditEntry, capacity)}
}

// OnAppend registers a callback invoked after each append, outside the
// ring's lock. Used to forward entries to an external sink.
func (l *AuditLog) OnAppend(fn func(AuditEntry)) {
	l.mu.Lock()
	l.notify = fn
	l.mu.Unlock()
}

// Append records an entry, evicting the oldest once full.
func (l *AuditLog) Append(e AuditEntry) {
	l.mu.Lock()
	capacity := len(l.entries)
	if l.count < capacity {
		l.entries[(l.start+l.count)%capacity] = e
		l.count++
	} else {
		l.entries[l.start] = e
		l.start = (l.start + 1) % capacity
	}
	notify := l.notify
	l.mu.Unlock()
	if notify != nil {
		notify(e)
	}
}

// Entries returns up to limit entries, newest first. A non-positive limit
// returns everything retained.
func (l *AuditLog) Entries(limit int) []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]AuditEntry, n)
	capacity := len(l.entries)
	for i := 0; i < n; i++ {
		out[i] = l.entries[(l.start+l.count-1-i)%capacity]
	}
	return out
}

// Len reports the number of retained entries.
func (l *AuditLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Reset clears the ring. Intended for tests and explicit administrative
// resets only.
func (l *AuditLog) Reset() {
	l.mu.Lock()
	l.start = 0
	l.count = 0
	l.mu.Unlock()
}
