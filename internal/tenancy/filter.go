package tenancy

import "github.com/meridian-crm/meridian/internal/query"

// SentinelTenantID is an impossible tenant value. Filtering on it
// guarantees an empty result set for a non-super-admin principal without
// a tenant, so a misconfigured principal can never see unfiltered data.
const SentinelTenantID = "00000000-0000-0000-0000-000000000000"

// OperationTenantID resolves the tenant to stamp on a new record. This is
// a defaulting helper, not a validator: a regular principal's own tenant
// wins unconditionally, silently overriding whatever the client supplied.
// Super-admins may assign any tenant, falling back to their own.
func OperationTenantID(p *Principal, provided string) string {
	if p == nil {
		return ""
	}
	if p.SuperAdmin {
		if provided != "" {
			return provided
		}
		return p.TenantID
	}
	return p.TenantID
}

// TenantFilter returns the filters a repository must append for p on the
// given tenant column: none for a super-admin, an equality on the
// principal's tenant otherwise, and the sentinel when no tenant exists.
func TenantFilter(p *Principal, column string) []query.Filter {
	if IsSuperAdmin(p) {
		return nil
	}
	if p == nil || p.TenantID == "" {
		return []query.Filter{query.Eq(column, SentinelTenantID)}
	}
	return []query.Filter{query.Eq(column, p.TenantID)}
}
