package compliance

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsentRecord_IsValidAt(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	later := now.Add(time.Hour)

	tests := []struct {
		name   string
		record ConsentRecord
		want   bool
	}{
		{
			name:   "active without expiry",
			record: ConsentRecord{IsActive: true},
			want:   true,
		},
		{
			name:   "expires exactly now",
			record: ConsentRecord{IsActive: true, ExpiresAt: &now},
			want:   false,
		},
		{
			name:   "expired an hour ago",
			record: ConsentRecord{IsActive: true, ExpiresAt: &past},
			want:   false,
		},
		{
			name:   "expires in an hour",
			record: ConsentRecord{IsActive: true, ExpiresAt: &later},
			want:   true,
		},
		{
			name:   "inactive",
			record: ConsentRecord{IsActive: false},
			want:   false,
		},
		{
			name:   "revoked",
			record: ConsentRecord{IsActive: true, RevokedAt: &past},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.record.IsValidAt(now))
		})
	}
}

func TestConsentScope_Covers(t *testing.T) {
	assert.True(t, ScopeAll.Covers(ScopeSMS))
	assert.True(t, ScopeAll.Covers(ScopeVoice))
	assert.True(t, ScopeSMS.Covers(ScopeSMS))
	assert.False(t, ScopeMarketing.Covers(ScopeSMS))
	assert.False(t, ScopeVoice.Covers(ScopeSMS))
}

func TestConsentType_IsExpress(t *testing.T) {
	assert.True(t, ConsentExpressWritten.IsExpress())
	assert.True(t, ConsentElectronic.IsExpress())
	assert.False(t, ConsentImplied.IsExpress())
	assert.False(t, ConsentVerbal.IsExpress())
}

func TestActionType_ConsentScope(t *testing.T) {
	scope, ok := ActionSendSMS.ConsentScope()
	assert.True(t, ok)
	assert.Equal(t, ScopeSMS, scope)

	scope, ok = ActionMakeCall.ConsentScope()
	assert.True(t, ok)
	assert.Equal(t, ScopeVoice, scope)

	_, ok = ActionDropVoicemail.ConsentScope()
	assert.False(t, ok)
}

func TestContact_Reachable(t *testing.T) {
	assert.True(t, (&Contact{LeadStatus: "New Lead"}).Reachable())
	assert.False(t, (&Contact{IsOptedOut: true}).Reachable())
	assert.False(t, (&Contact{LeadStatus: LeadStatusDNC}).Reachable())
}

func TestViolation_Override(t *testing.T) {
	at := time.Now()
	v := &Violation{ID: uuid.New(), Status: StatusBlocked}

	require.NoError(t, v.Override("user-1", "EXPRESS_CONSENT", "verified paper form", at))
	assert.Equal(t, StatusOverridden, v.Status)
	assert.Equal(t, "user-1", v.OverriddenBy)
	assert.Equal(t, "EXPRESS_CONSENT", v.OverrideReason)
	assert.Equal(t, "verified paper form", v.OverrideNotes)
	require.NotNil(t, v.OverriddenAt)
	assert.Equal(t, at, *v.OverriddenAt)

	assert.Error(t, v.Override("user-2", "OTHER", "", at))

	require.NoError(t, v.Resolve("closed out", at))
	assert.Equal(t, StatusResolved, v.Status)
	assert.Error(t, v.Resolve("again", at))
}

func TestDefaultConfig(t *testing.T) {
	tenantID := uuid.New()
	now := time.Now()
	cfg := DefaultConfig(tenantID, now)

	assert.Equal(t, tenantID, cfg.TenantID)
	assert.Equal(t, ModeStrict, cfg.ComplianceMode)
	assert.Equal(t, 8, cfg.AllowedStartHour)
	assert.Equal(t, 21, cfg.AllowedEndHour)
	assert.Empty(t, cfg.AllowedDaysOfWeek)
	assert.True(t, cfg.RequireExpressConsent)
	assert.True(t, cfg.RequireConsentForAutomated)
	assert.True(t, cfg.RequireConsentForMarketing)
	assert.Nil(t, cfg.ConsentExpirationDays)
	assert.True(t, cfg.HonorOptOuts)
	assert.True(t, cfg.HonorDNCList)
	assert.Equal(t, ActionBlock, cfg.ViolationAction)
	assert.True(t, cfg.LogViolations)
	assert.True(t, cfg.AllowManualOverride)
	assert.Equal(t, DefaultTimezone, cfg.Timezone)
}

func TestConfigUpdate_Apply(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	updated := created.Add(24 * time.Hour)
	cfg := DefaultConfig(uuid.New(), created)

	mode := ModePermissive
	start := 9
	days := 30
	reasons := []string{"EXPRESS_CONSENT"}
	ConfigUpdate{
		ComplianceMode:        &mode,
		AllowedStartHour:      &start,
		ConsentExpirationDays: &days,
		OverrideReasons:       &reasons,
	}.Apply(cfg, updated)

	assert.Equal(t, ModePermissive, cfg.ComplianceMode)
	assert.Equal(t, 9, cfg.AllowedStartHour)
	assert.Equal(t, 21, cfg.AllowedEndHour, "untouched fields keep their value")
	require.NotNil(t, cfg.ConsentExpirationDays)
	assert.Equal(t, 30, *cfg.ConsentExpirationDays)
	assert.Equal(t, []string{"EXPRESS_CONSENT"}, cfg.OverrideReasons)
	assert.Equal(t, created, cfg.CreatedAt)
	assert.Equal(t, updated, cfg.UpdatedAt)

	clear := -1
	ConfigUpdate{ConsentExpirationDays: &clear}.Apply(cfg, updated)
	assert.Nil(t, cfg.ConsentExpirationDays)
}

func TestConfig_IsOverrideReasonAllowed(t *testing.T) {
	cfg := DefaultConfig(uuid.New(), time.Now())
	assert.True(t, cfg.IsOverrideReasonAllowed("ANYTHING"))

	cfg.OverrideReasons = []string{"EXPRESS_CONSENT"}
	assert.True(t, cfg.IsOverrideReasonAllowed("EXPRESS_CONSENT"))
	assert.False(t, cfg.IsOverrideReasonAllowed("OTHER"))
}

func TestHasCritical(t *testing.T) {
	assert.False(t, HasCritical(nil))
	assert.False(t, HasCritical([]ViolationDetail{{Severity: SeverityWarning}, {Severity: SeverityInfo}}))
	assert.True(t, HasCritical([]ViolationDetail{{Severity: SeverityWarning}, {Severity: SeverityCritical}}))
}
