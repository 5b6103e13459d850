package shared

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotAuthenticated occurs when no session principal exists.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// ValidationError carries per-field validation messages.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	return "validation failed"
}

// AddField appends a message for a field, allocating the map lazily.
func (e *ValidationError) AddField(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], message)
}

// NotFoundError indicates no row matches within the caller's tenant scope.
// A record that exists in another tenant produces the same error shape as
// one that does not exist at all.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// UnauthorizedError indicates the principal lacks a capability. Distinct
// from a tenant boundary violation.
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string {
	if e.Message == "" {
		return "access denied"
	}
	return e.Message
}

// ConflictError indicates a uniqueness violation detected before or during
// a write.
type ConflictError struct {
	Resource string
	Field    string
}

func (e *ConflictError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s already exists with this %s", e.Resource, e.Field)
	}
	return fmt.Sprintf("%s already exists", e.Resource)
}

// TenantIsolationError indicates a tenant boundary violation. The message
// is deliberately generic: it must never carry the other tenant's id, name
// or any distinguishing detail.
type TenantIsolationError struct {
	Reason string
}

func (e *TenantIsolationError) Error() string {
	if e.Reason == "" {
		return "access denied"
	}
	return "access denied: " + e.Reason
}

// RepositoryError wraps an unexpected storage failure. The original error
// stays reachable through Unwrap for diagnostics without surfacing its text
// to end users.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("%s: storage failure", e.Op)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

const pgUniqueViolation = "23505"

// NormalizeError maps an arbitrary error into the typed hierarchy. Already
// typed errors pass through unchanged so callers only ever observe the
// shapes above.
func NormalizeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		vErr  *ValidationError
		nfErr *NotFoundError
		uaErr *UnauthorizedError
		cErr  *ConflictError
		tiErr *TenantIsolationError
		rErr  *RepositoryError
	)
	switch {
	case errors.As(err, &vErr),
		errors.As(err, &nfErr),
		errors.As(err, &uaErr),
		errors.As(err, &cErr),
		errors.As(err, &tiErr),
		errors.As(err, &rErr):
		return err
	}
	if errors.Is(err, ErrNotAuthenticated) {
		return &UnauthorizedError{Message: "not authenticated"}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return &ConflictError{Resource: op}
	}
	// Timeouts and cancellations surface as repository failures, never as
	// silently empty results.
	return &RepositoryError{Op: op, Err: err}
}
