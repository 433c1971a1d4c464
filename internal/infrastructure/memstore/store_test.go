package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/compliance"
	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/errors"
)

func TestConfigRepo_CreateIfAbsentKeepsFirst(t *testing.T) {
	ctx := context.Background()
	store := New()
	tenantID := uuid.New()
	now := time.Now()

	first := compliance.DefaultConfig(tenantID, now)
	first.ComplianceMode = compliance.ModeModerate
	_, err := store.Configs().CreateIfAbsent(ctx, first)
	require.NoError(t, err)

	got, err := store.Configs().CreateIfAbsent(ctx, compliance.DefaultConfig(tenantID, now))
	require.NoError(t, err)
	assert.Equal(t, compliance.ModeModerate, got.ComplianceMode)
	assert.Equal(t, 1, store.ConfigCount())
}

func TestConfigRepo_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := New()
	tenantID := uuid.New()

	cfg := compliance.DefaultConfig(tenantID, time.Now())
	cfg.OverrideReasons = []string{"EXPRESS_CONSENT"}
	require.NoError(t, store.Configs().Save(ctx, cfg))

	got, err := store.Configs().Get(ctx, tenantID)
	require.NoError(t, err)
	got.OverrideReasons[0] = "MUTATED"

	again, err := store.Configs().Get(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, []string{"EXPRESS_CONSENT"}, again.OverrideReasons)
}

func TestContactRepo_TenantScoped(t *testing.T) {
	ctx := context.Background()
	store := New()
	contact := &compliance.Contact{ID: uuid.New(), TenantID: uuid.New()}
	store.PutContact(contact)

	_, err := store.Contacts().GetByID(ctx, uuid.New(), contact.ID)
	assert.True(t, errors.IsNotFound(err))

	got, err := store.Contacts().GetByID(ctx, contact.TenantID, contact.ID)
	require.NoError(t, err)
	assert.Equal(t, contact.ID, got.ID)
}

func TestConsentRepo_ActiveLatestAndMaintenance(t *testing.T) {
	ctx := context.Background()
	store := New()
	repo := store.Consents()
	tenantID, contactID := uuid.New(), uuid.New()
	now := time.Now()
	revoked := now.Add(-time.Hour)

	old := &compliance.ConsentRecord{TenantID: tenantID, ContactID: contactID, Scope: compliance.ScopeAll, IsActive: true, CreatedAt: now.Add(-400 * 24 * time.Hour)}
	recent := &compliance.ConsentRecord{TenantID: tenantID, ContactID: contactID, Scope: compliance.ScopeSMS, IsActive: true, CreatedAt: now.Add(-24 * time.Hour)}
	gone := &compliance.ConsentRecord{TenantID: tenantID, ContactID: contactID, Scope: compliance.ScopeSMS, IsActive: true, RevokedAt: &revoked, CreatedAt: now.Add(-48 * time.Hour)}
	for _, r := range []*compliance.ConsentRecord{old, recent, gone} {
		require.NoError(t, repo.Save(ctx, r))
	}

	active, err := repo.FindActive(ctx, tenantID, contactID)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	latest, err := repo.FindLatest(ctx, tenantID, contactID)
	require.NoError(t, err)
	assert.Equal(t, recent.ID, latest.ID)

	none, err := repo.FindLatest(ctx, tenantID, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, none)

	n, err := repo.DeactivateCreatedBefore(ctx, tenantID, now.Add(-365*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.PurgeInactiveBefore(ctx, tenantID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	active, err = repo.FindActive(ctx, tenantID, contactID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, recent.ID, active[0].ID)
}

func TestViolationRepo_NewestFirst(t *testing.T) {
	ctx := context.Background()
	store := New()
	repo := store.Violations()
	tenantID, contactID := uuid.New(), uuid.New()
	base := time.Now()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, &compliance.Violation{
			ID:        uuid.New(),
			TenantID:  tenantID,
			ContactID: contactID,
			JourneyID: "journey-1",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	byContact, err := repo.FindByContact(ctx, tenantID, contactID)
	require.NoError(t, err)
	require.Len(t, byContact, 3)
	assert.True(t, byContact[0].CreatedAt.After(byContact[1].CreatedAt))
	assert.True(t, byContact[1].CreatedAt.After(byContact[2].CreatedAt))

	byJourney, err := repo.FindByJourney(ctx, tenantID, "journey-1")
	require.NoError(t, err)
	assert.Len(t, byJourney, 3)

	other, err := repo.FindByJourney(ctx, uuid.New(), "journey-1")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestViolationRepo_UpdateRequiresTenant(t *testing.T) {
	ctx := context.Background()
	store := New()
	repo := store.Violations()
	v := &compliance.Violation{ID: uuid.New(), TenantID: uuid.New(), Status: compliance.StatusBlocked}
	require.NoError(t, repo.Create(ctx, v))

	foreign := *v
	foreign.TenantID = uuid.New()
	assert.True(t, errors.IsNotFound(repo.Update(ctx, &foreign)))

	v.Status = compliance.StatusResolved
	require.NoError(t, repo.Update(ctx, v))
	got, err := repo.GetByID(ctx, v.TenantID, v.ID)
	require.NoError(t, err)
	assert.Equal(t, compliance.StatusResolved, got.Status)
}

func TestConsentRepo_DeactivateSkipsExplicitExpiry(t *testing.T) {
	ctx := context.Background()
	repo := New().Consents()
	tenantID, contactID := uuid.New(), uuid.New()
	now := time.Now()
	expiresAt := now.Add(30 * 24 * time.Hour)

	rec := &compliance.ConsentRecord{TenantID: tenantID, ContactID: contactID, Scope: compliance.ScopeSMS, IsActive: true, ExpiresAt: &expiresAt, CreatedAt: now.Add(-100 * 24 * time.Hour)}
	require.NoError(t, repo.Save(ctx, rec))

	n, err := repo.DeactivateCreatedBefore(ctx, tenantID, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	active, err := repo.FindActive(ctx, tenantID, contactID)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestConsentRepo_LatestBreaksTiesByID(t *testing.T) {
	ctx := context.Background()
	repo := New().Consents()
	tenantID, contactID := uuid.New(), uuid.New()
	at := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("ffffffff-0000-0000-0000-000000000001")
	for _, id := range []uuid.UUID{low, high} {
		require.NoError(t, repo.Save(ctx, &compliance.ConsentRecord{ID: id, TenantID: tenantID, ContactID: contactID, Scope: compliance.ScopeSMS, IsActive: true, CreatedAt: at}))
	}

	for i := 0; i < 20; i++ {
		latest, err := repo.FindLatest(ctx, tenantID, contactID)
		require.NoError(t, err)
		assert.Equal(t, high, latest.ID)
	}

	active, err := repo.FindActive(ctx, tenantID, contactID)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, high, active[0].ID)
}
