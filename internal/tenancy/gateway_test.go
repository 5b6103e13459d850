package tenancy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-crm/meridian/internal/shared"
)

func newTestGateway() *Gateway {
	return NewGateway(NewAuditLog(16), nil)
}

func TestValidateTenantAccessMismatch(t *testing.T) {
	g := newTestGateway()
	p := tenantAdmin("tenant-1")

	err := g.ValidateTenantAccess(p, "tenant-2", "GET", "customers", "cust-99")
	var tiErr *shared.TenantIsolationError
	require.ErrorAs(t, err, &tiErr)
	require.Equal(t, "access denied: tenant mismatch", err.Error())

	entries := g.ValidationAuditLog(1)
	require.Len(t, entries, 1)
	last := entries[0]
	require.Equal(t, AuditDenied, last.Result)
	require.Equal(t, "tenant-2", last.RequestedTenantID)
	require.Equal(t, "tenant-1", last.ActingTenantID)
	require.Equal(t, "cust-99", last.ResourceID)
}

func TestValidateTenantAccessMatch(t *testing.T) {
	g := newTestGateway()
	p := tenantAdmin("tenant-1")

	require.NoError(t, g.ValidateTenantAccess(p, "tenant-1", "PUT", "customers", "cust-1"))
	last := g.ValidationAuditLog(1)[0]
	require.Equal(t, AuditAllowed, last.Result)
}

func TestValidateTenantAccessSuperAdminBypass(t *testing.T) {
	g := newTestGateway()
	for _, tenant := range []string{"tenant-1", "tenant-2", ""} {
		require.NoError(t, g.ValidateTenantAccess(superAdmin(), tenant, "GET", "customers", "c"))
		last := g.ValidationAuditLog(1)[0]
		require.Equal(t, AuditAllowed, last.Result)
		require.True(t, last.SuperAdmin)
	}
}

func TestValidateTenantAccessUnauthenticated(t *testing.T) {
	g := newTestGateway()
	err := g.ValidateTenantAccess(nil, "tenant-1", "GET", "customers", "")
	var uaErr *shared.UnauthorizedError
	require.ErrorAs(t, err, &uaErr)
	require.Equal(t, AuditDenied, g.ValidationAuditLog(1)[0].Result)
}

func TestValidateTenantAccessMissingTenantFailsClosed(t *testing.T) {
	g := newTestGateway()
	err := g.ValidateTenantAccess(tenantAdmin(""), "tenant-1", "GET", "customers", "")
	var tiErr *shared.TenantIsolationError
	require.ErrorAs(t, err, &tiErr)
	require.Equal(t, AuditDenied, g.ValidationAuditLog(1)[0].Result)
}

func TestValidateTenantForOperation(t *testing.T) {
	g := newTestGateway()
	p := tenantAdmin("tenant-1")

	require.NoError(t, g.ValidateTenantForOperation(p, "", "POST", "customers"))
	require.NoError(t, g.ValidateTenantForOperation(p, "tenant-1", "POST", "customers"))

	err := g.ValidateTenantForOperation(p, "tenant-2", "POST", "customers")
	var tiErr *shared.TenantIsolationError
	require.ErrorAs(t, err, &tiErr)

	require.NoError(t, g.ValidateTenantForOperation(superAdmin(), "tenant-2", "POST", "customers"))
}

func TestEveryDecisionIsAudited(t *testing.T) {
	g := newTestGateway()
	p := tenantAdmin("tenant-1")

	calls := []func() error{
		func() error { return g.ValidateTenantAccess(p, "tenant-1", "GET", "customers", "a") },
		func() error { return g.ValidateTenantAccess(p, "tenant-2", "GET", "customers", "b") },
		func() error { return g.ValidateTenantAccess(nil, "tenant-1", "GET", "customers", "") },
		func() error { return g.ValidateTenantForOperation(p, "", "POST", "customers") },
		func() error { return g.ValidateTenantForOperation(p, "tenant-2", "POST", "customers") },
	}
	for i, call := range calls {
		before := g.audit.Len()
		_ = call()
		require.Equal(t, before+1, g.audit.Len(), "call %d must append exactly one audit entry", i)
	}
}

func TestOperationTenantID(t *testing.T) {
	g := newTestGateway()

	p := tenantAdmin("tenant-1")
	require.Equal(t, "tenant-1", g.OperationTenantID(p, ""))
	// A bad client-supplied tenant is overridden, not rejected: this is the
	// defaulting helper, not the validator.
	require.Equal(t, "tenant-1", g.OperationTenantID(p, "tenant-2"))

	root := superAdmin()
	require.Equal(t, "tenant-2", g.OperationTenantID(root, "tenant-2"))
	require.Equal(t, "", g.OperationTenantID(root, ""))
	require.Equal(t, "", g.OperationTenantID(nil, "tenant-2"))
}
