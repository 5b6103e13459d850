package tenancy

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/meridian-crm/meridian/internal/shared"
)

type stubSource struct {
	principals map[string]*Principal
	err        error
}

func (s *stubSource) LoadPrincipal(_ context.Context, userID string) (*Principal, error) {
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.principals[userID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *p
	return &copied, nil
}

func sessionFor(userID string) *shared.Session {
	sess := &shared.Session{}
	sess.SetUser(userID)
	return sess
}

func TestResolveNoSession(t *testing.T) {
	r := NewResolver(&stubSource{}, nil)

	p, err := r.Resolve(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, p)

	p, err = r.Resolve(context.Background(), &shared.Session{})
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestResolveUnknownUserIsAnonymous(t *testing.T) {
	r := NewResolver(&stubSource{principals: map[string]*Principal{}}, nil)

	p, err := r.Resolve(context.Background(), sessionFor("gone"))
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestResolveReturnsActor(t *testing.T) {
	source := &stubSource{principals: map[string]*Principal{
		"u1": NewPrincipal("u1", RoleAdmin, "tenant-1", []string{"read_customers"}, false),
	}}
	r := NewResolver(source, nil)

	p, err := r.Resolve(context.Background(), sessionFor("u1"))
	require.NoError(t, err)
	require.Equal(t, "u1", p.ID)
	require.Equal(t, "tenant-1", p.TenantID)
	require.Empty(t, p.ImpersonatedBy)
}

func TestResolveImpersonationRequiresSuperAdmin(t *testing.T) {
	source := &stubSource{principals: map[string]*Principal{
		"admin":  NewPrincipal("admin", RoleAdmin, "tenant-1", nil, false),
		"target": NewPrincipal("target", RoleAgent, "tenant-2", nil, false),
	}}
	r := NewResolver(source, nil)

	sess := sessionFor("admin")
	sess.Set(SessionKeyImpersonatedUser, "target")

	p, err := r.Resolve(context.Background(), sess)
	require.NoError(t, err)
	require.Equal(t, "admin", p.ID, "tenant admin cannot impersonate")
}

func TestResolveImpersonatedPrincipal(t *testing.T) {
	source := &stubSource{principals: map[string]*Principal{
		"root":   NewPrincipal("root", RoleSuperAdmin, "", nil, true),
		"target": NewPrincipal("target", RoleAgent, "tenant-2", nil, false),
	}}
	r := NewResolver(source, nil)

	sess := sessionFor("root")
	sess.Set(SessionKeyImpersonatedUser, "target")

	p, err := r.Resolve(context.Background(), sess)
	require.NoError(t, err)
	require.Equal(t, "target", p.ID)
	require.Equal(t, "tenant-2", p.TenantID)
	require.False(t, p.SuperAdmin)
	require.Equal(t, "root", p.ImpersonatedBy)
}

func TestResolveStaleImpersonationFallsBack(t *testing.T) {
	source := &stubSource{principals: map[string]*Principal{
		"root": NewPrincipal("root", RoleSuperAdmin, "", nil, true),
	}}
	r := NewResolver(source, nil)

	sess := sessionFor("root")
	sess.Set(SessionKeyImpersonatedUser, "deleted-user")

	p, err := r.Resolve(context.Background(), sess)
	require.NoError(t, err)
	require.Equal(t, "root", p.ID)
}

func TestResolveSourceFailurePropagates(t *testing.T) {
	r := NewResolver(&stubSource{err: errors.New("connection refused")}, nil)

	_, err := r.Resolve(context.Background(), sessionFor("u1"))
	require.Error(t, err)
}
