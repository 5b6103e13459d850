package customers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-crm/meridian/internal/repo"
	"github.com/meridian-crm/meridian/internal/shared"
	"github.com/meridian-crm/meridian/internal/tenancy"
)

// memStore is a tenant-aware in-memory stand-in for the generic
// repository, faithful to its email filter and restore semantics.
type memStore struct {
	customers map[string]Customer
	nextID    int
	created   []Customer
	deleted   []Customer
}

func newMemStore(existing ...Customer) *memStore {
	s := &memStore{customers: map[string]Customer{}}
	for _, c := range existing {
		s.customers[c.ID] = c
	}
	return s
}

func (s *memStore) visible(p *tenancy.Principal, c Customer) bool {
	if c.DeletedAt != nil {
		return false
	}
	if p.SuperAdmin {
		return true
	}
	return c.TenantID != nil && *c.TenantID == p.TenantID
}

func (s *memStore) FindMany(_ context.Context, p *tenancy.Principal, params repo.ListParams) (repo.Page[Customer], error) {
	var data []Customer
	for _, c := range s.customers {
		if !s.visible(p, c) {
			continue
		}
		if email, ok := params.Filters["email"]; ok && c.Email != email {
			continue
		}
		data = append(data, c)
	}
	return repo.Page[Customer]{Data: data, Total: len(data), Page: 1, PageSize: 20}, nil
}

func (s *memStore) FindByID(_ context.Context, p *tenancy.Principal, id string) (Customer, error) {
	c, ok := s.customers[id]
	if !ok || !s.visible(p, c) {
		return Customer{}, &shared.NotFoundError{Resource: "customers", ID: id}
	}
	return c, nil
}

func (s *memStore) Create(_ context.Context, p *tenancy.Principal, input CreateInput) (Customer, error) {
	s.nextID++
	tenantID := tenancy.OperationTenantID(p, input.TenantID)
	c := Customer{
		ID:       string(rune('a' + s.nextID)),
		TenantID: &tenantID,
		Name:     input.Name,
		Email:    input.Email,
		Status:   input.Status,
	}
	if c.Status == "" {
		c.Status = StatusLead
	}
	s.customers[c.ID] = c
	s.created = append(s.created, c)
	return c, nil
}

func (s *memStore) Update(_ context.Context, p *tenancy.Principal, id string, input UpdateInput) (Customer, error) {
	c, ok := s.customers[id]
	if !ok || !s.visible(p, c) {
		return Customer{}, &shared.NotFoundError{Resource: "customers", ID: id}
	}
	c.Name, c.Email, c.Status = input.Name, input.Email, input.Status
	s.customers[id] = c
	return c, nil
}

func (s *memStore) Delete(_ context.Context, p *tenancy.Principal, id string) error {
	c, ok := s.customers[id]
	if !ok || !s.visible(p, c) {
		return &shared.NotFoundError{Resource: "customers", ID: id}
	}
	now := c.CreatedAt
	c.DeletedAt = &now
	s.customers[id] = c
	s.deleted = append(s.deleted, c)
	return nil
}

func (s *memStore) Restore(_ context.Context, p *tenancy.Principal, id string) (Customer, error) {
	c, ok := s.customers[id]
	if !ok || c.DeletedAt == nil {
		return Customer{}, &shared.NotFoundError{Resource: "customers", ID: id}
	}
	if !p.SuperAdmin && (c.TenantID == nil || *c.TenantID != p.TenantID) {
		return Customer{}, &shared.NotFoundError{Resource: "customers", ID: id}
	}
	c.DeletedAt = nil
	s.customers[id] = c
	return c, nil
}

type recordingEvents struct {
	created []string
	deleted []string
	err     error
}

func (e *recordingEvents) CustomerCreated(_ context.Context, c Customer) error {
	e.created = append(e.created, c.ID)
	return e.err
}

func (e *recordingEvents) CustomerDeleted(_ context.Context, c Customer) error {
	e.deleted = append(e.deleted, c.ID)
	return e.err
}

func admin() *tenancy.Principal {
	return tenancy.NewPrincipal("u1", tenancy.RoleAdmin, "tenant-1", nil, false)
}

func newTestService(store *memStore, events Events) (*Service, *tenancy.AuditLog) {
	audit := tenancy.NewAuditLog(0)
	gateway := tenancy.NewGateway(audit, nil)
	return NewService(store, gateway, events, nil), audit
}

func TestCreateValidatesInput(t *testing.T) {
	svc, _ := newTestService(newMemStore(), nil)

	_, err := svc.Create(context.Background(), admin(), CreateInput{Name: "x", Email: "bad"})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "Name")
	require.Contains(t, verr.Fields, "Email")
}

func TestCreateRejectsDuplicateEmailInTenant(t *testing.T) {
	tenant := "tenant-1"
	existing := Customer{ID: "c1", TenantID: &tenant, Name: "Acme", Email: "sales@acme.test", Status: StatusActive}
	svc, _ := newTestService(newMemStore(existing), nil)

	_, err := svc.Create(context.Background(), admin(), CreateInput{Name: "Acme Two", Email: "sales@acme.test"})
	var conflict *shared.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, "email", conflict.Field)
}

func TestDuplicateCheckIsTenantScoped(t *testing.T) {
	otherTenant := "tenant-2"
	existing := Customer{ID: "c1", TenantID: &otherTenant, Name: "Acme", Email: "sales@acme.test", Status: StatusActive}
	svc, _ := newTestService(newMemStore(existing), nil)

	created, err := svc.Create(context.Background(), admin(), CreateInput{Name: "Acme", Email: "sales@acme.test"})
	require.NoError(t, err, "same email in another tenant is not a conflict")
	require.Equal(t, StatusLead, created.Status)
}

func TestUpdateAllowsOwnEmail(t *testing.T) {
	tenant := "tenant-1"
	existing := Customer{ID: "c1", TenantID: &tenant, Name: "Acme", Email: "sales@acme.test", Status: StatusActive}
	svc, _ := newTestService(newMemStore(existing), nil)

	updated, err := svc.Update(context.Background(), admin(), "c1", UpdateInput{Name: "Acme Renamed", Email: "sales@acme.test", Status: StatusActive})
	require.NoError(t, err)
	require.Equal(t, "Acme Renamed", updated.Name)
}

func TestEventsFireAfterMutations(t *testing.T) {
	events := &recordingEvents{}
	svc, _ := newTestService(newMemStore(), events)

	created, err := svc.Create(context.Background(), admin(), CreateInput{Name: "Acme", Email: "sales@acme.test"})
	require.NoError(t, err)
	require.Equal(t, []string{created.ID}, events.created)

	require.NoError(t, svc.Delete(context.Background(), admin(), created.ID))
	require.Equal(t, []string{created.ID}, events.deleted)
}

func TestEventFailureDoesNotFailMutation(t *testing.T) {
	events := &recordingEvents{err: context.DeadlineExceeded}
	svc, _ := newTestService(newMemStore(), events)

	_, err := svc.Create(context.Background(), admin(), CreateInput{Name: "Acme", Email: "sales@acme.test"})
	require.NoError(t, err)
}

func TestCreateRejectsForeignTenantAssignment(t *testing.T) {
	svc, audit := newTestService(newMemStore(), nil)

	_, err := svc.Create(context.Background(), admin(), CreateInput{Name: "Acme", Email: "sales@acme.test", TenantID: "tenant-2"})
	var isolation *shared.TenantIsolationError
	require.ErrorAs(t, err, &isolation)

	entries := audit.Entries(1)
	require.Len(t, entries, 1)
	require.Equal(t, tenancy.AuditDenied, entries[0].Result)
	require.Equal(t, "POST", entries[0].Operation)
}

func TestMutationsLeaveAuditTrail(t *testing.T) {
	tenant := "tenant-1"
	existing := Customer{ID: "c1", TenantID: &tenant, Name: "Acme", Email: "sales@acme.test", Status: StatusActive}
	svc, audit := newTestService(newMemStore(existing), nil)

	_, err := svc.Update(context.Background(), admin(), "c1", UpdateInput{Name: "Acme", Email: "sales@acme.test", Status: StatusActive})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), admin(), "c1"))

	entries := audit.Entries(0)
	require.Len(t, entries, 2)
	for _, e := range entries {
		require.Equal(t, tenancy.AuditAllowed, e.Result)
		require.Equal(t, "c1", e.ResourceID)
	}
	// Entries come back newest first; the delete follows the update.
	require.Equal(t, "DELETE", entries[0].Operation)
	require.Equal(t, "PUT", entries[1].Operation)
}

func TestRestore(t *testing.T) {
	tenant := "tenant-1"
	existing := Customer{ID: "c1", TenantID: &tenant, Name: "Acme", Email: "sales@acme.test", Status: StatusActive}
	store := newMemStore(existing)
	svc, _ := newTestService(store, nil)

	require.NoError(t, svc.Delete(context.Background(), admin(), "c1"))
	_, err := svc.GetByID(context.Background(), admin(), "c1")
	var nf *shared.NotFoundError
	require.ErrorAs(t, err, &nf)

	restored, err := svc.Restore(context.Background(), admin(), "c1")
	require.NoError(t, err)
	require.Nil(t, restored.DeletedAt)

	found, err := svc.GetByID(context.Background(), admin(), "c1")
	require.NoError(t, err)
	require.Equal(t, "c1", found.ID)
}
