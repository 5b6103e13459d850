package impersonation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-crm/meridian/internal/shared"
	"github.com/meridian-crm/meridian/internal/tenancy"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *MemorySessionStore) {
	t.Helper()
	store := NewMemorySessionStore()
	limiter := NewLimiter(store, NewMemoryConfigStore(cfg), nil)
	return limiter, store
}

func seedSessions(t *testing.T, store *MemorySessionStore, adminID string, n int, startedAt time.Time, open bool) {
	t.Helper()
	for i := 0; i < n; i++ {
		sess := Session{
			ID:           adminID + "-" + string(rune('a'+i)),
			SuperAdminID: adminID,
			StartedAt:    startedAt,
		}
		if !open {
			ended := startedAt.Add(time.Minute)
			sess.EndedAt = &ended
		}
		require.NoError(t, store.Insert(context.Background(), sess))
	}
}

func TestCheckAllowsUnderAllCaps(t *testing.T) {
	limiter, _ := newTestLimiter(t, Config{MaxPerHour: 10, MaxConcurrent: 3, MaxDurationMinutes: 60})

	decision, err := limiter.Check(context.Background(), "sa1")
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Empty(t, decision.LimitType)
	require.Equal(t, 10, decision.Remaining.Hourly)
	require.Equal(t, 3, decision.Remaining.Concurrent)
}

func TestHourlyCapDeniesUntilRolloverOrReset(t *testing.T) {
	limiter, store := newTestLimiter(t, Config{MaxPerHour: 10, MaxConcurrent: 50, MaxDurationMinutes: 600})
	now := time.Now()
	limiter.now = func() time.Time { return now }
	// 10 sessions started 59 minutes ago, all closed.
	seedSessions(t, store, "sa1", 10, now.Add(-59*time.Minute), false)

	decision, err := limiter.Check(context.Background(), "sa1")
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, LimitHourly, decision.LimitType)
	require.Equal(t, 10, decision.CurrentUsage.ImpersonationsThisHour)
	require.Zero(t, decision.Remaining.Hourly)

	// Denial is monotonic until the hour rolls over.
	decision, err = limiter.Check(context.Background(), "sa1")
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	limiter.now = func() time.Time { return now.Add(2 * time.Minute) }
	decision, err = limiter.Check(context.Background(), "sa1")
	require.NoError(t, err)
	require.True(t, decision.Allowed, "oldest starts aged out of the trailing hour")
}

func TestQuotaResetClearsDenial(t *testing.T) {
	limiter, store := newTestLimiter(t, Config{MaxPerHour: 2, MaxConcurrent: 50, MaxDurationMinutes: 600})
	seedSessions(t, store, "sa1", 2, time.Now(), false)

	decision, err := limiter.Check(context.Background(), "sa1")
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	platform := tenancy.NewPrincipal("root", tenancy.RoleSuperAdmin, "", nil, true)
	require.NoError(t, limiter.ResetQuota(context.Background(), platform, "sa1"))

	decision, err = limiter.Check(context.Background(), "sa1")
	require.NoError(t, err)
	require.True(t, decision.Allowed)
}

func TestQuotaResetRejectsTenantPrincipal(t *testing.T) {
	limiter, _ := newTestLimiter(t, DefaultConfig)
	tenantAdmin := tenancy.NewPrincipal("u1", tenancy.RoleAdmin, "tenant-1", nil, false)

	err := limiter.ResetQuota(context.Background(), tenantAdmin, "sa1")
	var unauth *shared.UnauthorizedError
	require.ErrorAs(t, err, &unauth)

	require.Error(t, limiter.ResetQuota(context.Background(), nil, "sa1"))
}

func TestConcurrentCapAndPriorityOrder(t *testing.T) {
	limiter, store := newTestLimiter(t, Config{MaxPerHour: 3, MaxConcurrent: 3, MaxDurationMinutes: 60})
	now := time.Now()
	limiter.now = func() time.Time { return now }
	// Three sessions open for over an hour: every cap is saturated at
	// once; hourly wins the report.
	seedSessions(t, store, "sa1", 3, now.Add(-30*time.Minute), true)

	decision, err := limiter.Check(context.Background(), "sa1")
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, LimitHourly, decision.LimitType)

	// Age the starts out of the trailing hour: concurrent reports next.
	limiter.now = func() time.Time { return now.Add(61 * time.Minute) }
	decision, err = limiter.Check(context.Background(), "sa1")
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, LimitConcurrent, decision.LimitType)
}

func TestDurationCap(t *testing.T) {
	limiter, store := newTestLimiter(t, Config{MaxPerHour: 100, MaxConcurrent: 5, MaxDurationMinutes: 60})
	now := time.Now()
	limiter.now = func() time.Time { return now }
	seedSessions(t, store, "sa1", 1, now.Add(-90*time.Minute), true)

	decision, err := limiter.Check(context.Background(), "sa1")
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, LimitDuration, decision.LimitType)
	require.Equal(t, 90, decision.CurrentUsage.LongestSessionMinutes)
}

func TestStartSessionIsAPrecondition(t *testing.T) {
	limiter, store := newTestLimiter(t, Config{MaxPerHour: 1, MaxConcurrent: 5, MaxDurationMinutes: 60})

	sess, err := limiter.StartSession(context.Background(), "sa1", "target-1", "tenant-1", "support ticket")
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	require.True(t, sess.Open())

	_, err = limiter.StartSession(context.Background(), "sa1", "target-2", "tenant-1", "")
	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	require.Equal(t, LimitHourly, limitErr.Decision.LimitType)

	open, err := store.ListOpen(context.Background(), "sa1")
	require.NoError(t, err)
	require.Len(t, open, 1, "denied start records nothing")
}

func TestEndSessionClosesAndFreesConcurrency(t *testing.T) {
	limiter, _ := newTestLimiter(t, Config{MaxPerHour: 100, MaxConcurrent: 1, MaxDurationMinutes: 600})

	first, err := limiter.StartSession(context.Background(), "sa1", "t1", "tenant-1", "")
	require.NoError(t, err)

	_, err = limiter.StartSession(context.Background(), "sa1", "t2", "tenant-1", "")
	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	require.Equal(t, LimitConcurrent, limitErr.Decision.LimitType)

	ended, err := limiter.EndSession(context.Background(), first.ID)
	require.NoError(t, err)
	require.NotNil(t, ended.EndedAt)

	_, err = limiter.StartSession(context.Background(), "sa1", "t2", "tenant-1", "")
	require.NoError(t, err)
}

func TestEndUnknownSession(t *testing.T) {
	limiter, _ := newTestLimiter(t, DefaultConfig)
	_, err := limiter.EndSession(context.Background(), "missing")
	var nf *shared.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestCapsAreIndependentPerAdmin(t *testing.T) {
	limiter, store := newTestLimiter(t, Config{MaxPerHour: 1, MaxConcurrent: 5, MaxDurationMinutes: 60})
	seedSessions(t, store, "sa1", 1, time.Now(), false)

	decision, err := limiter.Check(context.Background(), "sa2")
	require.NoError(t, err)
	require.True(t, decision.Allowed)
}

// failingStore errors on every read.
type failingStore struct {
	MemorySessionStore
}

func (*failingStore) CountStartedSince(context.Context, string, time.Time) (int, error) {
	return 0, errors.New("backend unavailable")
}

func TestChecksFailClosed(t *testing.T) {
	limiter := NewLimiter(&failingStore{}, NewMemoryConfigStore(DefaultConfig), nil)

	decision, err := limiter.Check(context.Background(), "sa1")
	require.Error(t, err)
	require.False(t, decision.Allowed, "unknown usage never defaults to permissive")

	_, err = limiter.StartSession(context.Background(), "sa1", "t1", "tenant-1", "")
	require.Error(t, err)

	status, err := limiter.ValidateOperation(context.Background(), "sa1")
	require.Error(t, err)
	require.False(t, status.CanProceed)
}

func TestValidateOperationPercentages(t *testing.T) {
	limiter, store := newTestLimiter(t, Config{MaxPerHour: 10, MaxConcurrent: 4, MaxDurationMinutes: 60})
	now := time.Now()
	limiter.now = func() time.Time { return now }
	seedSessions(t, store, "sa1", 5, now.Add(-10*time.Minute), false)

	status, err := limiter.ValidateOperation(context.Background(), "sa1")
	require.NoError(t, err)
	require.True(t, status.CanProceed)
	require.Equal(t, 50, status.UsagePercentage)
	require.Equal(t, "impersonation available", status.Message)

	seedSessions(t, store, "sa2", 10, now.Add(-10*time.Minute), false)
	status, err = limiter.ValidateOperation(context.Background(), "sa2")
	require.NoError(t, err)
	require.False(t, status.CanProceed)
	require.Equal(t, LimitHourly, status.LimitType)
	require.Equal(t, 100, status.UsagePercentage)
	require.NotEmpty(t, status.Message)
}

func TestConcurrentStartsNeverExceedCap(t *testing.T) {
	limiter, store := newTestLimiter(t, Config{MaxPerHour: 100, MaxConcurrent: 3, MaxDurationMinutes: 600})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = limiter.StartSession(context.Background(), "sa1", "target", "tenant-1", "")
		}()
	}
	wg.Wait()

	open, err := store.ListOpen(context.Background(), "sa1")
	require.NoError(t, err)
	require.Len(t, open, 3, "check and start are one atomic unit per admin")
}

func TestUpdateConfigGatingAndValidation(t *testing.T) {
	limiter, _ := newTestLimiter(t, DefaultConfig)
	platform := tenancy.NewPrincipal("root", tenancy.RoleSuperAdmin, "", nil, true)
	tenantAdmin := tenancy.NewPrincipal("u1", tenancy.RoleAdmin, "tenant-1", nil, false)

	err := limiter.UpdateConfig(context.Background(), tenantAdmin, Config{MaxPerHour: 5, MaxConcurrent: 2, MaxDurationMinutes: 30})
	var unauth *shared.UnauthorizedError
	require.ErrorAs(t, err, &unauth)

	err = limiter.UpdateConfig(context.Background(), platform, Config{MaxPerHour: 0, MaxConcurrent: 2, MaxDurationMinutes: 30})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "maxPerHour")

	require.NoError(t, limiter.UpdateConfig(context.Background(), platform, Config{MaxPerHour: 5, MaxConcurrent: 2, MaxDurationMinutes: 30}))
	cfg, err := limiter.GetConfig(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, cfg.MaxPerHour)
}
