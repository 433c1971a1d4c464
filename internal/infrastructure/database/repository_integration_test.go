package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/compliance"
	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/errors"
	"github.com/davidleathers/tcpa-compliance-engine/internal/infrastructure/config"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("tcpa_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(pgContainer)
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	require.NoError(t, Migrate(connStr, "", Up, logger))
	require.NoError(t, Migrate(connStr, "", Up, logger), "re-running is a no-op")

	version, dirty, err := Version(connStr, "")
	require.NoError(t, err)
	require.Equal(t, uint(1), version)
	require.False(t, dirty)

	pool, err := Connect(ctx, config.DatabaseConfig{URL: connStr, MaxOpenConns: 5}, logger)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

func TestPostgresRepositories(t *testing.T) {
	pool := setupPostgres(t)
	repos := NewRepositories(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("config defaults are created once", func(t *testing.T) {
		tenantID := uuid.New()

		_, err := repos.Configs.Get(ctx, tenantID)
		assert.True(t, errors.IsNotFound(err))

		first := compliance.DefaultConfig(tenantID, now)
		first.ComplianceMode = compliance.ModeModerate
		got, err := repos.Configs.CreateIfAbsent(ctx, first)
		require.NoError(t, err)
		assert.Equal(t, compliance.ModeModerate, got.ComplianceMode)

		got, err = repos.Configs.CreateIfAbsent(ctx, compliance.DefaultConfig(tenantID, now))
		require.NoError(t, err)
		assert.Equal(t, compliance.ModeModerate, got.ComplianceMode)

		ids, err := repos.Configs.ListTenantIDs(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, tenantID)
	})

	t.Run("config save round trips every field", func(t *testing.T) {
		tenantID := uuid.New()
		days := 90

		cfg := compliance.DefaultConfig(tenantID, now)
		cfg.AllowedDaysOfWeek = []string{"Monday", "Tuesday"}
		cfg.ConsentExpirationDays = &days
		cfg.OverrideReasons = []string{"EXPRESS_CONSENT"}
		cfg.ViolationNotificationEmails = []string{"ops@example.com"}
		cfg.RequiredSenderName = "Acme"
		cfg.CustomRules = compliance.CustomRules{
			ProhibitedKeywords: []string{"guaranteed"},
			MaxMessagesPerDay:  3,
			StateHours:         map[string]compliance.HourWindow{"FL": {StartHour: 8, EndHour: 20}},
		}
		require.NoError(t, repos.Configs.Save(ctx, cfg))

		got, err := repos.Configs.Get(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, cfg.AllowedDaysOfWeek, got.AllowedDaysOfWeek)
		require.NotNil(t, got.ConsentExpirationDays)
		assert.Equal(t, 90, *got.ConsentExpirationDays)
		assert.Equal(t, cfg.OverrideReasons, got.OverrideReasons)
		assert.Equal(t, cfg.ViolationNotificationEmails, got.ViolationNotificationEmails)
		assert.Equal(t, cfg.CustomRules, got.CustomRules)
		assert.Equal(t, "Acme", got.RequiredSenderName)

		cfg.ConsentExpirationDays = nil
		require.NoError(t, repos.Configs.Save(ctx, cfg))
		got, err = repos.Configs.Get(ctx, tenantID)
		require.NoError(t, err)
		assert.Nil(t, got.ConsentExpirationDays)
	})

	t.Run("contacts are tenant scoped", func(t *testing.T) {
		contact := &compliance.Contact{
			ID:          uuid.New(),
			TenantID:    uuid.New(),
			PhoneNumber: "+14155550123",
			LeadStatus:  compliance.LeadStatusDNC,
			State:       "FL",
		}
		require.NoError(t, repos.Contacts.Upsert(ctx, contact))

		got, err := repos.Contacts.GetByID(ctx, contact.TenantID, contact.ID)
		require.NoError(t, err)
		assert.Equal(t, contact, got)

		_, err = repos.Contacts.GetByID(ctx, uuid.New(), contact.ID)
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("consent ledger queries and maintenance", func(t *testing.T) {
		tenantID, contactID := uuid.New(), uuid.New()
		revoked := now.Add(-time.Hour)
		expires := now.Add(365 * 24 * time.Hour)

		old := &compliance.ConsentRecord{TenantID: tenantID, ContactID: contactID, ConsentType: compliance.ConsentExpressWritten, Scope: compliance.ScopeAll, IsActive: true, CreatedAt: now.Add(-400 * 24 * time.Hour)}
		recent := &compliance.ConsentRecord{TenantID: tenantID, ContactID: contactID, ConsentType: compliance.ConsentElectronic, Scope: compliance.ScopeSMS, Source: "web_form", IsActive: true, CreatedAt: now.Add(-time.Hour)}
		gone := &compliance.ConsentRecord{TenantID: tenantID, ContactID: contactID, ConsentType: compliance.ConsentVerbal, Scope: compliance.ScopeVoice, IsActive: true, RevokedAt: &revoked, CreatedAt: now.Add(-2 * time.Hour)}
		longLived := &compliance.ConsentRecord{TenantID: tenantID, ContactID: contactID, ConsentType: compliance.ConsentExpressWritten, Scope: compliance.ScopeSMS, IsActive: true, ExpiresAt: &expires, CreatedAt: now.Add(-400 * 24 * time.Hour)}
		for _, rec := range []*compliance.ConsentRecord{old, recent, gone, longLived} {
			require.NoError(t, repos.Consents.Save(ctx, rec))
		}

		active, err := repos.Consents.FindActive(ctx, tenantID, contactID)
		require.NoError(t, err)
		require.Len(t, active, 3)
		assert.Equal(t, recent.ID, active[0].ID)
		assert.Equal(t, "web_form", active[0].Source)

		latest, err := repos.Consents.FindLatest(ctx, tenantID, contactID)
		require.NoError(t, err)
		assert.Equal(t, recent.ID, latest.ID)

		none, err := repos.Consents.FindLatest(ctx, tenantID, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, none)

		n, err := repos.Consents.DeactivateCreatedBefore(ctx, tenantID, now.Add(-365*24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = repos.Consents.PurgeInactiveBefore(ctx, tenantID, now)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		active, err = repos.Consents.FindActive(ctx, tenantID, contactID)
		require.NoError(t, err)
		require.Len(t, active, 2)
		assert.Equal(t, longLived.ID, active[1].ID, "records with their own expiry are not deactivated")
	})

	t.Run("latest consent breaks created_at ties by id", func(t *testing.T) {
		tenantID, contactID := uuid.New(), uuid.New()
		low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
		high := uuid.MustParse("ffffffff-0000-0000-0000-000000000001")
		for _, id := range []uuid.UUID{low, high} {
			require.NoError(t, repos.Consents.Save(ctx, &compliance.ConsentRecord{
				ID: id, TenantID: tenantID, ContactID: contactID,
				ConsentType: compliance.ConsentElectronic, Scope: compliance.ScopeSMS,
				IsActive: true, CreatedAt: now,
			}))
		}

		latest, err := repos.Consents.FindLatest(ctx, tenantID, contactID)
		require.NoError(t, err)
		assert.Equal(t, high, latest.ID)
	})

	t.Run("violations log, override and list", func(t *testing.T) {
		tenantID, contactID := uuid.New(), uuid.New()
		scheduled := now.Add(time.Hour)

		var ids []uuid.UUID
		for i, vt := range []compliance.ViolationType{compliance.ViolationOptedOut, compliance.ViolationMissingSenderID} {
			v := &compliance.Violation{
				ID:              uuid.New(),
				TenantID:        tenantID,
				ContactID:       contactID,
				ViolationType:   vt,
				Severity:        compliance.SeverityCritical,
				Description:     "Contact has opted out of communications",
				Status:          compliance.StatusBlocked,
				JourneyID:       "journey-1",
				AttemptedAction: compliance.ActionSendSMS,
				Context: compliance.ViolationContext{
					MessageContent: "hello",
					PhoneNumber:    "+14155550123",
					AttemptedAt:    now,
					ScheduledTime:  &scheduled,
				},
				CreatedAt: now.Add(time.Duration(i) * time.Second),
			}
			require.NoError(t, repos.Violations.Create(ctx, v))
			ids = append(ids, v.ID)
		}

		byContact, err := repos.Violations.FindByContact(ctx, tenantID, contactID)
		require.NoError(t, err)
		require.Len(t, byContact, 2)
		assert.Equal(t, ids[1], byContact[0].ID)
		assert.Equal(t, "+14155550123", byContact[0].Context.PhoneNumber)
		assert.Empty(t, byContact[0].NodeID)

		byJourney, err := repos.Violations.FindByJourney(ctx, tenantID, "journey-1")
		require.NoError(t, err)
		assert.Len(t, byJourney, 2)

		v, err := repos.Violations.GetByID(ctx, tenantID, ids[0])
		require.NoError(t, err)
		require.NoError(t, v.Override("user-1", "EXPRESS_CONSENT", "form on file", now))
		require.NoError(t, repos.Violations.Update(ctx, v))

		got, err := repos.Violations.GetByID(ctx, tenantID, ids[0])
		require.NoError(t, err)
		assert.Equal(t, compliance.StatusOverridden, got.Status)
		assert.Equal(t, "user-1", got.OverriddenBy)
		require.NotNil(t, got.OverriddenAt)

		_, err = repos.Violations.GetByID(ctx, uuid.New(), ids[0])
		assert.True(t, errors.IsNotFound(err))

		foreign := *got
		foreign.TenantID = uuid.New()
		assert.True(t, errors.IsNotFound(repos.Violations.Update(ctx, &foreign)))
	})
}
