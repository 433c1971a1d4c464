package compliance

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ComplianceMode controls how detected violations translate into an outcome.
type ComplianceMode string

const (
	ModeStrict     ComplianceMode = "STRICT"
	ModeModerate   ComplianceMode = "MODERATE"
	ModePermissive ComplianceMode = "PERMISSIVE"
)

func (m ComplianceMode) IsValid() bool {
	switch m {
	case ModeStrict, ModeModerate, ModePermissive:
		return true
	}
	return false
}

// ViolationAction is the action a caller must take for an evaluated send.
type ViolationAction string

const (
	ActionBlock        ViolationAction = "BLOCK"
	ActionLogOnly      ViolationAction = "LOG_ONLY"
	ActionPauseJourney ViolationAction = "PAUSE_JOURNEY"
	ActionSkipNode     ViolationAction = "SKIP_NODE"
)

func (a ViolationAction) IsValid() bool {
	switch a {
	case ActionBlock, ActionLogOnly, ActionPauseJourney, ActionSkipNode:
		return true
	}
	return false
}

// IsJourneyAction reports whether the action only makes sense inside a journey.
func (a ViolationAction) IsJourneyAction() bool {
	return a == ActionPauseJourney || a == ActionSkipNode
}

type ViolationType string

const (
	ViolationOptedOut               ViolationType = "OPTED_OUT"
	ViolationDNCList                ViolationType = "DNC_LIST"
	ViolationNoConsent              ViolationType = "NO_CONSENT"
	ViolationExpressConsentRequired ViolationType = "EXPRESS_CONSENT_REQUIRED"
	ViolationConsentExpired         ViolationType = "CONSENT_EXPIRED"
	ViolationTimeRestriction        ViolationType = "TIME_RESTRICTION"
	ViolationMissingSenderID        ViolationType = "MISSING_SENDER_ID"
	ViolationFrequencyLimit         ViolationType = "FREQUENCY_LIMIT"
	ViolationProhibitedContent      ViolationType = "PROHIBITED_CONTENT"
	ViolationStateRestriction       ViolationType = "STATE_RESTRICTION"
)

type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
	SeverityInfo     Severity = "INFO"
)

type ViolationStatus string

const (
	StatusBlocked    ViolationStatus = "BLOCKED"
	StatusLogged     ViolationStatus = "LOGGED"
	StatusOverridden ViolationStatus = "OVERRIDDEN"
	StatusResolved   ViolationStatus = "RESOLVED"
)

// ActionType is the outbound action a caller proposes to take.
type ActionType string

const (
	ActionSendSMS       ActionType = "SEND_SMS"
	ActionMakeCall      ActionType = "MAKE_CALL"
	ActionSendIMessage  ActionType = "SEND_IMESSAGE"
	ActionDropVoicemail ActionType = "DROP_VOICEMAIL"
)

func (a ActionType) IsValid() bool {
	switch a {
	case ActionSendSMS, ActionMakeCall, ActionSendIMessage, ActionDropVoicemail:
		return true
	}
	return false
}

// ConsentScope returns the consent scope an action requires, and false for
// actions that are not consent-gated.
func (a ActionType) ConsentScope() (ConsentScope, bool) {
	switch a {
	case ActionSendSMS:
		return ScopeSMS, true
	case ActionMakeCall:
		return ScopeVoice, true
	}
	return "", false
}

type ConsentType string

const (
	ConsentExpressWritten ConsentType = "EXPRESS_WRITTEN"
	ConsentImplied        ConsentType = "IMPLIED"
	ConsentVerbal         ConsentType = "VERBAL"
	ConsentElectronic     ConsentType = "ELECTRONIC"
)

// IsExpress reports whether the consent type satisfies an express-consent requirement.
func (t ConsentType) IsExpress() bool {
	return t == ConsentExpressWritten || t == ConsentElectronic
}

type ConsentScope string

const (
	ScopeSMS       ConsentScope = "SMS"
	ScopeVoice     ConsentScope = "VOICE"
	ScopeMarketing ConsentScope = "MARKETING"
	ScopeAutomated ConsentScope = "AUTOMATED"
	ScopeAll       ConsentScope = "ALL"
)

// Covers reports whether consent granted for s satisfies a requirement for required.
func (s ConsentScope) Covers(required ConsentScope) bool {
	return s == ScopeAll || s == required
}

// LeadStatus is the CRM pipeline status of a contact.
type LeadStatus string

const LeadStatusDNC LeadStatus = "DNC"

func (s LeadStatus) IsDNC() bool {
	return s == LeadStatusDNC
}

// Contact is the read-only view of a CRM contact the engine evaluates.
type Contact struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    uuid.UUID  `json:"tenant_id"`
	PhoneNumber string     `json:"phone_number"`
	IsOptedOut  bool       `json:"is_opted_out"`
	LeadStatus  LeadStatus `json:"lead_status"`
	State       string     `json:"state,omitempty"`
}

// Reachable reports whether the contact is neither opted out nor on the DNC list.
func (c *Contact) Reachable() bool {
	return !c.IsOptedOut && !c.LeadStatus.IsDNC()
}

type ConsentRecord struct {
	ID          uuid.UUID    `json:"id"`
	TenantID    uuid.UUID    `json:"tenant_id"`
	ContactID   uuid.UUID    `json:"contact_id"`
	ConsentType ConsentType  `json:"consent_type"`
	Scope       ConsentScope `json:"scope"`
	Source      string       `json:"source,omitempty"`
	IsActive    bool         `json:"is_active"`
	RevokedAt   *time.Time   `json:"revoked_at,omitempty"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// IsExpiredAt reports whether the record has an explicit expiry at or before now.
func (c *ConsentRecord) IsExpiredAt(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// IsValidAt reports whether the consent is active, unrevoked and unexpired at now.
func (c *ConsentRecord) IsValidAt(now time.Time) bool {
	return c.IsActive && c.RevokedAt == nil && !c.IsExpiredAt(now)
}

// ViolationContext is the snapshot of the attempted action stored with each violation.
type ViolationContext struct {
	MessageContent string     `json:"message_content,omitempty"`
	PhoneNumber    string     `json:"phone_number,omitempty"`
	AttemptedAt    time.Time  `json:"attempted_at"`
	ScheduledTime  *time.Time `json:"scheduled_time,omitempty"`
}

type Violation struct {
	ID              uuid.UUID        `json:"id"`
	TenantID        uuid.UUID        `json:"tenant_id"`
	ContactID       uuid.UUID        `json:"contact_id"`
	ViolationType   ViolationType    `json:"violation_type"`
	Severity        Severity         `json:"severity"`
	Description     string           `json:"description"`
	Status          ViolationStatus  `json:"status"`
	JourneyID       string           `json:"journey_id,omitempty"`
	NodeID          string           `json:"node_id,omitempty"`
	CampaignID      string           `json:"campaign_id,omitempty"`
	AttemptedAction ActionType       `json:"attempted_action"`
	Context         ViolationContext `json:"context"`

	OverriddenBy   string     `json:"overridden_by,omitempty"`
	OverrideReason string     `json:"override_reason,omitempty"`
	OverrideNotes  string     `json:"override_notes,omitempty"`
	OverriddenAt   *time.Time `json:"overridden_at,omitempty"`

	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolutionNotes string     `json:"resolution_notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// IsClosed reports whether the violation was already overridden or resolved.
func (v *Violation) IsClosed() bool {
	return v.Status == StatusOverridden || v.Status == StatusResolved
}

// Override records a manual exception by an operator.
func (v *Violation) Override(userID, reason, notes string, at time.Time) error {
	if v.IsClosed() {
		return fmt.Errorf("violation %s is already %s", v.ID, v.Status)
	}
	v.Status = StatusOverridden
	v.OverriddenBy = userID
	v.OverrideReason = reason
	v.OverrideNotes = notes
	v.OverriddenAt = &at
	return nil
}

// Resolve marks the violation as handled by an external process.
func (v *Violation) Resolve(notes string, at time.Time) error {
	if v.Status == StatusResolved {
		return fmt.Errorf("violation %s is already resolved", v.ID)
	}
	v.Status = StatusResolved
	v.ResolutionNotes = notes
	v.ResolvedAt = &at
	return nil
}

// ActionContext carries the optional details of a proposed action.
type ActionContext struct {
	JourneyID      string     `json:"journey_id,omitempty"`
	NodeID         string     `json:"node_id,omitempty"`
	CampaignID     string     `json:"campaign_id,omitempty"`
	MessageContent string     `json:"message_content,omitempty"`
	IsAutomated    bool       `json:"is_automated"`
	IsMarketing    bool       `json:"is_marketing"`
	ScheduledTime  *time.Time `json:"scheduled_time,omitempty"`
}

type ViolationDetail struct {
	Type        ViolationType `json:"type"`
	Description string        `json:"description"`
	Severity    Severity      `json:"severity"`
}

// DecisionResult is the verdict returned for a proposed action.
type DecisionResult struct {
	Compliant        bool              `json:"compliant"`
	Violations       []ViolationType   `json:"violations"`
	ViolationDetails []ViolationDetail `json:"violation_details"`
	Action           ViolationAction   `json:"action"`
	CanProceed       bool              `json:"can_proceed"`
	Message          string            `json:"message"`
}

// HasCritical reports whether any detail carries CRITICAL severity.
func HasCritical(details []ViolationDetail) bool {
	for _, d := range details {
		if d.Severity == SeverityCritical {
			return true
		}
	}
	return false
}
