package compliance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/compliance"
	"github.com/davidleathers/tcpa-compliance-engine/internal/metrics"
)

// Notifier publishes violation notices to interested parties.
type Notifier interface {
	NotifyViolations(ctx context.Context, notice ViolationNotice) error
}

// SendCounter tracks how many messages a contact received per local day.
type SendCounter interface {
	Count(ctx context.Context, tenantID, contactID uuid.UUID, day string) (int64, error)
	Increment(ctx context.Context, tenantID, contactID uuid.UUID, day string) (int64, error)
}

// ViolationNotice is published when an evaluation produces violations and
// the tenant has notifications enabled.
type ViolationNotice struct {
	TenantID        uuid.UUID                    `json:"tenant_id"`
	ContactID       uuid.UUID                    `json:"contact_id"`
	AttemptedAction compliance.ActionType        `json:"attempted_action"`
	Outcome         compliance.ViolationAction   `json:"outcome"`
	CanProceed      bool                         `json:"can_proceed"`
	Details         []compliance.ViolationDetail `json:"details"`
	ViolationIDs    []uuid.UUID                  `json:"violation_ids,omitempty"`
	JourneyID       string                       `json:"journey_id,omitempty"`
	CampaignID      string                       `json:"campaign_id,omitempty"`
	Recipients      []string                     `json:"recipients,omitempty"`
	OccurredAt      time.Time                    `json:"occurred_at"`
}

// Dependencies are the stores and collaborators the service reads and writes.
type Dependencies struct {
	Configs    compliance.ConfigRepository
	Contacts   compliance.ContactRepository
	Consents   compliance.ConsentRepository
	Violations compliance.ViolationRepository

	// Optional collaborators.
	Notifier    Notifier
	SendCounter SendCounter
	Metrics     *metrics.Registry
}

// ServiceConfig holds engine-wide policy switches
type ServiceConfig struct {
	// ImplicitConsentForActiveContacts treats a contact that is neither opted
	// out nor DNC as consented without consulting the consent ledger.
	ImplicitConsentForActiveContacts bool `koanf:"implicit_consent_for_active_contacts"`
}

// DefaultServiceConfig returns the default engine policy
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ImplicitConsentForActiveContacts: true,
	}
}

// Option customises a Service
type Option func(*Service)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithRules replaces the default custom rule evaluators.
func WithRules(rules ...RuleEvaluator) Option {
	return func(s *Service) {
		s.rules = rules
	}
}

// Service evaluates proposed outbound actions against each tenant's TCPA
// compliance policy and manages the resulting violation log.
type Service struct {
	logger     *zap.Logger
	configs    compliance.ConfigRepository
	contacts   compliance.ContactRepository
	consents   compliance.ConsentRepository
	violations compliance.ViolationRepository
	notifier   Notifier
	counter    SendCounter
	metrics    *metrics.Registry
	rules      []RuleEvaluator
	tracer     trace.Tracer
	now        func() time.Time

	config ServiceConfig
}

// NewService creates a new compliance service
func NewService(logger *zap.Logger, deps Dependencies, config ServiceConfig, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		logger:     logger,
		configs:    deps.Configs,
		contacts:   deps.Contacts,
		consents:   deps.Consents,
		violations: deps.Violations,
		notifier:   deps.Notifier,
		counter:    deps.SendCounter,
		metrics:    deps.Metrics,
		tracer:     otel.Tracer("tcpa.compliance"),
		now:        time.Now,
		config:     config,
	}
	s.rules = DefaultRules(deps.SendCounter)

	for _, opt := range opts {
		opt(s)
	}

	return s
}
