package compliance

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefaultTimezone                   = "America/New_York"
	DefaultAllowedStartHour           = 8
	DefaultAllowedEndHour             = 21
	DefaultConsentRecordRetentionDays = 1825
)

// HourWindow is a half-open [StartHour, EndHour) range of local hours.
type HourWindow struct {
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`
}

// Contains reports whether hour falls in the window.
func (w HourWindow) Contains(hour int) bool {
	return hour >= w.StartHour && hour < w.EndHour
}

// CustomRules holds tenant-specific rule parameters evaluated by pluggable
// rule evaluators. Zero values disable the corresponding rule.
type CustomRules struct {
	ProhibitedKeywords []string              `json:"prohibited_keywords,omitempty"`
	MaxMessagesPerDay  int                   `json:"max_messages_per_day,omitempty"`
	StateHours         map[string]HourWindow `json:"state_hours,omitempty"`
}

// Config is the per-tenant compliance policy.
type Config struct {
	TenantID       uuid.UUID      `json:"tenant_id"`
	ComplianceMode ComplianceMode `json:"compliance_mode"`
	Timezone       string         `json:"timezone"`

	AllowedStartHour  int      `json:"allowed_start_hour"`
	AllowedEndHour    int      `json:"allowed_end_hour"`
	AllowedDaysOfWeek []string `json:"allowed_days_of_week,omitempty"`

	RequireExpressConsent      bool `json:"require_express_consent"`
	RequireConsentForAutomated bool `json:"require_consent_for_automated"`
	RequireConsentForMarketing bool `json:"require_consent_for_marketing"`
	ConsentExpirationDays      *int `json:"consent_expiration_days,omitempty"`

	HonorOptOuts     bool `json:"honor_opt_outs"`
	HonorDNCList     bool `json:"honor_dnc_list"`
	AutoOptOutOnStop bool `json:"auto_opt_out_on_stop"`

	RequireSenderIdentification bool   `json:"require_sender_identification"`
	RequiredSenderName          string `json:"required_sender_name,omitempty"`

	ViolationAction             ViolationAction `json:"violation_action"`
	LogViolations               bool            `json:"log_violations"`
	NotifyOnViolation           bool            `json:"notify_on_violation"`
	ViolationNotificationEmails []string        `json:"violation_notification_emails,omitempty"`

	BlockNonCompliantJourneys bool     `json:"block_non_compliant_journeys"`
	AllowManualOverride       bool     `json:"allow_manual_override"`
	OverrideReasons           []string `json:"override_reasons,omitempty"`

	MaintainConsentRecords     bool `json:"maintain_consent_records"`
	ConsentRecordRetentionDays int  `json:"consent_record_retention_days"`

	CustomRules CustomRules `json:"custom_rules"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultConfig returns the safe-default policy created for a tenant on first read.
func DefaultConfig(tenantID uuid.UUID, now time.Time) *Config {
	return &Config{
		TenantID:                    tenantID,
		ComplianceMode:              ModeStrict,
		Timezone:                    DefaultTimezone,
		AllowedStartHour:            DefaultAllowedStartHour,
		AllowedEndHour:              DefaultAllowedEndHour,
		RequireExpressConsent:       true,
		RequireConsentForAutomated:  true,
		RequireConsentForMarketing:  true,
		HonorOptOuts:                true,
		HonorDNCList:                true,
		AutoOptOutOnStop:            true,
		RequireSenderIdentification: true,
		ViolationAction:             ActionBlock,
		LogViolations:               true,
		BlockNonCompliantJourneys:   true,
		AllowManualOverride:         true,
		MaintainConsentRecords:      true,
		ConsentRecordRetentionDays:  DefaultConsentRecordRetentionDays,
		CreatedAt:                   now,
		UpdatedAt:                   now,
	}
}

// IsOverrideReasonAllowed checks reason against the configured allow-list.
// An empty list allows any reason.
func (c *Config) IsOverrideReasonAllowed(reason string) bool {
	if len(c.OverrideReasons) == 0 {
		return true
	}
	for _, r := range c.OverrideReasons {
		if r == reason {
			return true
		}
	}
	return false
}

// Window returns the tenant's allowed sending hours.
func (c *Config) Window() HourWindow {
	return HourWindow{StartHour: c.AllowedStartHour, EndHour: c.AllowedEndHour}
}

// ConfigUpdate is a partial update; nil fields are left unchanged.
type ConfigUpdate struct {
	ComplianceMode *ComplianceMode `json:"compliance_mode,omitempty"`
	Timezone       *string         `json:"timezone,omitempty"`

	AllowedStartHour  *int      `json:"allowed_start_hour,omitempty"`
	AllowedEndHour    *int      `json:"allowed_end_hour,omitempty"`
	AllowedDaysOfWeek *[]string `json:"allowed_days_of_week,omitempty"`

	RequireExpressConsent      *bool `json:"require_express_consent,omitempty"`
	RequireConsentForAutomated *bool `json:"require_consent_for_automated,omitempty"`
	RequireConsentForMarketing *bool `json:"require_consent_for_marketing,omitempty"`
	// ConsentExpirationDays set to a negative value clears the expiration.
	ConsentExpirationDays *int `json:"consent_expiration_days,omitempty"`

	HonorOptOuts     *bool `json:"honor_opt_outs,omitempty"`
	HonorDNCList     *bool `json:"honor_dnc_list,omitempty"`
	AutoOptOutOnStop *bool `json:"auto_opt_out_on_stop,omitempty"`

	RequireSenderIdentification *bool   `json:"require_sender_identification,omitempty"`
	RequiredSenderName          *string `json:"required_sender_name,omitempty"`

	ViolationAction             *ViolationAction `json:"violation_action,omitempty"`
	LogViolations               *bool            `json:"log_violations,omitempty"`
	NotifyOnViolation           *bool            `json:"notify_on_violation,omitempty"`
	ViolationNotificationEmails *[]string        `json:"violation_notification_emails,omitempty"`

	BlockNonCompliantJourneys *bool     `json:"block_non_compliant_journeys,omitempty"`
	AllowManualOverride       *bool     `json:"allow_manual_override,omitempty"`
	OverrideReasons           *[]string `json:"override_reasons,omitempty"`

	MaintainConsentRecords     *bool `json:"maintain_consent_records,omitempty"`
	ConsentRecordRetentionDays *int  `json:"consent_record_retention_days,omitempty"`

	CustomRules *CustomRules `json:"custom_rules,omitempty"`
}

// Apply merges the non-nil fields of u onto c.
func (u ConfigUpdate) Apply(c *Config, now time.Time) {
	setIf(&c.ComplianceMode, u.ComplianceMode)
	setIf(&c.Timezone, u.Timezone)
	setIf(&c.AllowedStartHour, u.AllowedStartHour)
	setIf(&c.AllowedEndHour, u.AllowedEndHour)
	setIf(&c.AllowedDaysOfWeek, u.AllowedDaysOfWeek)
	setIf(&c.RequireExpressConsent, u.RequireExpressConsent)
	setIf(&c.RequireConsentForAutomated, u.RequireConsentForAutomated)
	setIf(&c.RequireConsentForMarketing, u.RequireConsentForMarketing)
	if u.ConsentExpirationDays != nil {
		if *u.ConsentExpirationDays < 0 {
			c.ConsentExpirationDays = nil
		} else {
			days := *u.ConsentExpirationDays
			c.ConsentExpirationDays = &days
		}
	}
	setIf(&c.HonorOptOuts, u.HonorOptOuts)
	setIf(&c.HonorDNCList, u.HonorDNCList)
	setIf(&c.AutoOptOutOnStop, u.AutoOptOutOnStop)
	setIf(&c.RequireSenderIdentification, u.RequireSenderIdentification)
	setIf(&c.RequiredSenderName, u.RequiredSenderName)
	setIf(&c.ViolationAction, u.ViolationAction)
	setIf(&c.LogViolations, u.LogViolations)
	setIf(&c.NotifyOnViolation, u.NotifyOnViolation)
	setIf(&c.ViolationNotificationEmails, u.ViolationNotificationEmails)
	setIf(&c.BlockNonCompliantJourneys, u.BlockNonCompliantJourneys)
	setIf(&c.AllowManualOverride, u.AllowManualOverride)
	setIf(&c.OverrideReasons, u.OverrideReasons)
	setIf(&c.MaintainConsentRecords, u.MaintainConsentRecords)
	setIf(&c.ConsentRecordRetentionDays, u.ConsentRecordRetentionDays)
	setIf(&c.CustomRules, u.CustomRules)
	c.UpdatedAt = now
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
