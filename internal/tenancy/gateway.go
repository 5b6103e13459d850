package tenancy

import (
	"log/slog"
	"time"

	"github.com/meridian-crm/meridian/internal/shared"
)

// Denial reasons recorded in the audit trail. Error messages across the
// tenant boundary stay generic; these reasons never name the other tenant.
const (
	reasonNotAuthenticated   = "not authenticated"
	reasonInvalidTenant      = "invalid tenant context"
	reasonTenantMismatch     = "tenant mismatch"
	reasonCrossTenantAssign  = "cannot assign to different tenant"
	reasonSuperAdminBypass   = "super admin access"
	reasonTenantMatch        = "tenant match"
	reasonOwnTenantAssign    = "assignment within own tenant"
)

// Gateway wraps every CRUD entry point: it validates a target record's
// tenant against the resolved principal and appends one audit entry per
// decision, on every branch, before the result propagates.
type Gateway struct {
	audit  *AuditLog
	logger *slog.Logger
	now    func() time.Time
}

// NewGateway constructs a Gateway writing decisions into audit.
func NewGateway(audit *AuditLog, logger *slog.Logger) *Gateway {
	return &Gateway{audit: audit, logger: logger, now: time.Now}
}

// ValidateTenantAccess checks whether p may perform operation on an
// existing record owned by recordTenantID. Every denial is raised, never
// silently downgraded to an empty result.
func (g *Gateway) ValidateTenantAccess(p *Principal, recordTenantID, operation, resource, resourceID string) error {
	entry := g.newEntry(p, operation, resource)
	entry.ResourceID = resourceID
	entry.RequestedTenantID = recordTenantID

	if p == nil {
		g.deny(entry, reasonNotAuthenticated)
		return &shared.UnauthorizedError{Message: reasonNotAuthenticated}
	}
	if p.SuperAdmin {
		g.allow(entry, reasonSuperAdminBypass)
		return nil
	}
	if p.TenantID == "" {
		// Fail closed: a misconfigured principal gets nothing.
		g.deny(entry, reasonInvalidTenant)
		return &shared.TenantIsolationError{Reason: reasonInvalidTenant}
	}
	if recordTenantID != p.TenantID {
		g.deny(entry, reasonTenantMismatch)
		return &shared.TenantIsolationError{Reason: reasonTenantMismatch}
	}
	g.allow(entry, reasonTenantMatch)
	return nil
}

// ValidateTenantForOperation checks a tenant assignment on a creation
// path, where no existing record exists to compare against. Non-super
// admins may only leave the assignment empty (meaning their own tenant)
// or name their own tenant explicitly.
func (g *Gateway) ValidateTenantForOperation(p *Principal, assignedTenantID, operation, resource string) error {
	entry := g.newEntry(p, operation, resource)
	entry.RequestedTenantID = assignedTenantID

	if p == nil {
		g.deny(entry, reasonNotAuthenticated)
		return &shared.UnauthorizedError{Message: reasonNotAuthenticated}
	}
	if p.SuperAdmin {
		g.allow(entry, reasonSuperAdminBypass)
		return nil
	}
	if p.TenantID == "" {
		g.deny(entry, reasonInvalidTenant)
		return &shared.TenantIsolationError{Reason: reasonInvalidTenant}
	}
	if assignedTenantID != "" && assignedTenantID != p.TenantID {
		g.deny(entry, reasonCrossTenantAssign)
		return &shared.TenantIsolationError{Reason: reasonCrossTenantAssign}
	}
	g.allow(entry, reasonOwnTenantAssign)
	return nil
}

// OperationTenantID resolves the tenant to stamp on a new record.
func (g *Gateway) OperationTenantID(p *Principal, provided string) string {
	return OperationTenantID(p, provided)
}

// ValidationAuditLog returns up to limit recorded decisions, newest first.
func (g *Gateway) ValidationAuditLog(limit int) []AuditEntry {
	return g.audit.Entries(limit)
}

func (g *Gateway) newEntry(p *Principal, operation, resource string) AuditEntry {
	entry := AuditEntry{
		Timestamp: g.now().UTC(),
		Operation: operation,
		Resource:  resource,
	}
	if p != nil {
		entry.ActingTenantID = p.TenantID
		entry.ActingUserID = p.ID
		entry.ActingRole = p.Role
		entry.SuperAdmin = p.SuperAdmin
	}
	return entry
}

func (g *Gateway) allow(entry AuditEntry, reason string) {
	entry.Result = AuditAllowed
	entry.Reason = reason
	g.audit.Append(entry)
}

func (g *Gateway) deny(entry AuditEntry, reason string) {
	entry.Result = AuditDenied
	entry.Reason = reason
	g.audit.Append(entry)
	if g.logger != nil {
		g.logger.Warn("tenant validation denied",
			slog.String("operation", entry.Operation),
			slog.String("resource", entry.Resource),
			slog.String("reason", reason),
			slog.String("acting_user_id", entry.ActingUserID))
	}
}
