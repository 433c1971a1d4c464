package compliance

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/compliance"
	"github.com/davidleathers/tcpa-compliance-engine/internal/infrastructure/memstore"
)

type stubLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	released []string
	err      error
}

func newStubLocker() *stubLocker {
	return &stubLocker{held: make(map[string]bool)}
}

func (l *stubLocker) TryAcquire(_ context.Context, key string, _ time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
		l.released = append(l.released, key)
		return nil
	}, true, nil
}

func seedTenant(t *testing.T, store *memstore.Store, expirationDays *int) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	tenantID := uuid.New()

	cfg := compliance.DefaultConfig(tenantID, fixedNow)
	cfg.ConsentExpirationDays = expirationDays
	cfg.ConsentRecordRetentionDays = 365
	require.NoError(t, store.Configs().Save(ctx, cfg))

	contactID := uuid.New()
	records := []compliance.ConsentRecord{
		{Scope: compliance.ScopeSMS, IsActive: true, CreatedAt: fixedNow.Add(-10 * 24 * time.Hour)},
		{Scope: compliance.ScopeSMS, IsActive: true, CreatedAt: fixedNow.Add(-100 * 24 * time.Hour)},
		{Scope: compliance.ScopeSMS, IsActive: false, CreatedAt: fixedNow.Add(-400 * 24 * time.Hour)},
	}
	for i := range records {
		records[i].TenantID = tenantID
		records[i].ContactID = contactID
		require.NoError(t, store.Consents().Save(ctx, &records[i]))
	}
	return tenantID
}

func newTestSweeper(t *testing.T, store *memstore.Store, locker LeaseLocker, cfg SweeperConfig) *Sweeper {
	sw := NewSweeper(zaptest.NewLogger(t), store.Configs(), store.Consents(), locker, nil, cfg)
	sw.now = func() time.Time { return fixedNow }
	return sw
}

func TestSweeper_Run(t *testing.T) {
	store := memstore.New()
	seedTenant(t, store, ptr(30))
	seedTenant(t, store, nil)

	locker := newStubLocker()
	report, err := newTestSweeper(t, store, locker, DefaultSweeperConfig()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.TenantsScanned)
	assert.Equal(t, 0, report.TenantsSkipped)
	// one 100-day-old record deactivated in the tenant with a 30-day expiry
	assert.Equal(t, int64(1), report.Deactivated)
	// the 400-day-old inactive record in each tenant
	assert.Equal(t, int64(2), report.Purged)
	assert.Len(t, locker.released, 2)
	assert.Empty(t, locker.held)
}

func TestSweeper_SkipsLeasedTenant(t *testing.T) {
	store := memstore.New()
	tenantID := seedTenant(t, store, ptr(30))

	locker := newStubLocker()
	locker.held[leaseKey(tenantID)] = true

	report, err := newTestSweeper(t, store, locker, DefaultSweeperConfig()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.TenantsSkipped)
	assert.Zero(t, report.Deactivated)
	assert.Zero(t, report.Purged)
}

func TestSweeper_DryRun(t *testing.T) {
	store := memstore.New()
	seedTenant(t, store, ptr(30))

	report, err := newTestSweeper(t, store, newStubLocker(), SweeperConfig{Concurrency: 1, DryRun: true}).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Deactivated)
	assert.Zero(t, report.Purged)

	report, err = newTestSweeper(t, store, newStubLocker(), SweeperConfig{Concurrency: 1}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Deactivated)
	assert.Equal(t, int64(1), report.Purged)
}

func TestSweeper_LockError(t *testing.T) {
	store := memstore.New()
	seedTenant(t, store, nil)

	locker := newStubLocker()
	locker.err = fmt.Errorf("redis unavailable")

	_, err := newTestSweeper(t, store, locker, DefaultSweeperConfig()).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acquiring lease")
}

func TestSweeper_KeepsConsentWithOwnExpiry(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	tenantID := uuid.New()

	cfg := compliance.DefaultConfig(tenantID, fixedNow)
	cfg.ConsentExpirationDays = ptr(30)
	require.NoError(t, store.Configs().Save(ctx, cfg))

	contact := &compliance.Contact{ID: uuid.New(), TenantID: tenantID, PhoneNumber: "+14155550123", LeadStatus: "New Lead"}
	store.PutContact(contact)

	expiresAt := fixedNow.Add(365 * 24 * time.Hour)
	record := &compliance.ConsentRecord{
		TenantID:    tenantID,
		ContactID:   contact.ID,
		ConsentType: compliance.ConsentExpressWritten,
		Scope:       compliance.ScopeSMS,
		IsActive:    true,
		ExpiresAt:   &expiresAt,
		CreatedAt:   fixedNow.Add(-100 * 24 * time.Hour),
	}
	require.NoError(t, store.Consents().Save(ctx, record))

	svc := NewService(zaptest.NewLogger(t), Dependencies{
		Configs:    store.Configs(),
		Contacts:   store.Contacts(),
		Consents:   store.Consents(),
		Violations: store.Violations(),
	}, ServiceConfig{}, WithClock(func() time.Time { return fixedNow }))

	req := ConsentRequirement{RequireExpress: true, Scope: compliance.ScopeSMS}
	assertValid := func() {
		t.Helper()
		valid, err := svc.HasValidConsent(ctx, tenantID, contact.ID, req)
		require.NoError(t, err)
		assert.True(t, valid)

		expired, err := svc.IsConsentExpired(ctx, tenantID, contact.ID, cfg.ConsentExpirationDays)
		require.NoError(t, err)
		assert.False(t, expired)
	}

	assertValid()

	report, err := newTestSweeper(t, store, newStubLocker(), DefaultSweeperConfig()).Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Deactivated)

	active, err := store.Consents().FindActive(ctx, tenantID, contact.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, record.ID, active[0].ID)

	assertValid()
}
