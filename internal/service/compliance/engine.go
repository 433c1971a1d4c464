package compliance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/compliance"
	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/errors"
)

// PassedMessage is the result message when no violations are found.
const PassedMessage = "All compliance checks passed"

// CheckCompliance evaluates a proposed action for a contact. Every check
// runs and violations accumulate; the tenant's compliance mode then decides
// whether the caller may proceed. Non-compliance is returned as a result,
// not an error. The only precondition error is a contact that does not
// belong to the tenant.
func (s *Service) CheckCompliance(
	ctx context.Context,
	tenantID, contactID uuid.UUID,
	action compliance.ActionType,
	actx compliance.ActionContext,
) (*compliance.DecisionResult, error) {
	startTime := s.now()

	ctx, span := s.tracer.Start(ctx, "compliance.CheckCompliance", trace.WithAttributes(
		attribute.String("tenant.id", tenantID.String()),
		attribute.String("contact.id", contactID.String()),
		attribute.String("compliance.action", string(action)),
	))
	defer span.End()

	if !action.IsValid() {
		err := errors.NewValidationError("INVALID_ACTION_TYPE", "unknown action type: "+string(action))
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	contact, err := s.contacts.GetByID(ctx, tenantID, contactID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "contact lookup failed")
		if errors.IsNotFound(err) {
			return nil, errors.NewNotFoundError("contact")
		}
		return nil, errors.NewInternalError("failed to load contact").WithCause(err)
	}

	cfg, err := s.GetConfig(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "config lookup failed")
		return nil, err
	}

	details, err := s.evaluate(ctx, cfg, contact, action, actx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluation failed")
		return nil, err
	}

	result := decide(cfg, details, actx)

	if !result.Compliant {
		for _, d := range details {
			s.metrics.RecordViolation(ctx, string(d.Type), string(d.Severity))
		}

		var logged []*compliance.Violation
		if cfg.LogViolations {
			logged = s.logViolations(ctx, cfg, contact, action, actx, details, result, startTime)
		}
		if cfg.NotifyOnViolation {
			s.notify(ctx, cfg, contact, action, actx, result, logged)
		}
	}

	span.SetAttributes(
		attribute.Bool("compliance.compliant", result.Compliant),
		attribute.Bool("compliance.can_proceed", result.CanProceed),
		attribute.String("compliance.outcome", string(result.Action)),
		attribute.Int("compliance.violations", len(details)),
	)

	duration := s.now().Sub(startTime)
	s.metrics.RecordDecision(ctx, duration, string(cfg.ComplianceMode), string(result.Action), result.Compliant)

	s.logger.Info("Compliance check completed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("contact_id", contactID.String()),
		zap.String("action_type", string(action)),
		zap.String("mode", string(cfg.ComplianceMode)),
		zap.Bool("compliant", result.Compliant),
		zap.Bool("can_proceed", result.CanProceed),
		zap.String("outcome", string(result.Action)),
		zap.Int("violations", len(details)),
		zap.Duration("process_time", duration),
	)

	return result, nil
}

// evaluate runs every applicable check in order and collects violations.
func (s *Service) evaluate(
	ctx context.Context,
	cfg *compliance.Config,
	contact *compliance.Contact,
	action compliance.ActionType,
	actx compliance.ActionContext,
) ([]compliance.ViolationDetail, error) {
	var details []compliance.ViolationDetail

	// 1. Opt-out
	if cfg.HonorOptOuts && contact.IsOptedOut {
		details = append(details, compliance.ViolationDetail{
			Type:        compliance.ViolationOptedOut,
			Description: "Contact has opted out of communications",
			Severity:    compliance.SeverityCritical,
		})
	}

	// 2. Do Not Call
	if cfg.HonorDNCList && contact.LeadStatus.IsDNC() {
		details = append(details, compliance.ViolationDetail{
			Type:        compliance.ViolationDNCList,
			Description: "Contact is on the Do Not Call list",
			Severity:    compliance.SeverityCritical,
		})
	}

	// 3. Consent
	if scope, gated := action.ConsentScope(); gated {
		req := ConsentRequirement{
			RequireExpress:      cfg.RequireExpressConsent,
			RequireForAutomated: cfg.RequireConsentForAutomated && actx.IsAutomated,
			RequireForMarketing: cfg.RequireConsentForMarketing && actx.IsMarketing,
			Scope:               scope,
		}
		if req.Applies() {
			consentDetails, err := s.checkConsent(ctx, cfg, contact, req)
			if err != nil {
				return nil, err
			}
			details = append(details, consentDetails...)
		}
	}

	// 4. Time window
	if actx.ScheduledTime != nil {
		window := compliance.CheckTimeWindow(cfg, *actx.ScheduledTime, cfg.Timezone)
		if !window.Allowed {
			details = append(details, compliance.ViolationDetail{
				Type:        compliance.ViolationTimeRestriction,
				Description: window.Reason,
				Severity:    compliance.SeverityWarning,
			})
		}
	}

	// 5. Sender identification
	if action == compliance.ActionSendSMS && cfg.RequireSenderIdentification {
		if detail, missing := checkSenderID(cfg, actx.MessageContent); missing {
			details = append(details, detail)
		}
	}

	// 6. Custom rules
	details = append(details, s.evaluateRules(ctx, cfg, contact, action, actx)...)

	return details, nil
}

func (s *Service) checkConsent(
	ctx context.Context,
	cfg *compliance.Config,
	contact *compliance.Contact,
	req ConsentRequirement,
) ([]compliance.ViolationDetail, error) {
	var details []compliance.ViolationDetail

	valid, err := s.hasValidConsent(ctx, contact, cfg.TenantID, contact.ID, req)
	if err != nil {
		return nil, err
	}
	if !valid {
		if cfg.RequireExpressConsent {
			details = append(details, compliance.ViolationDetail{
				Type:        compliance.ViolationExpressConsentRequired,
				Description: fmt.Sprintf("Express written consent is required for %s communications", req.Scope),
				Severity:    compliance.SeverityCritical,
			})
		} else {
			details = append(details, compliance.ViolationDetail{
				Type:        compliance.ViolationNoConsent,
				Description: fmt.Sprintf("No valid consent on file for %s communications", req.Scope),
				Severity:    compliance.SeverityCritical,
			})
		}
	}

	expired, err := s.isConsentExpired(ctx, contact, cfg.TenantID, contact.ID, cfg.ConsentExpirationDays)
	if err != nil {
		return nil, err
	}
	if expired {
		details = append(details, compliance.ViolationDetail{
			Type:        compliance.ViolationConsentExpired,
			Description: "Contact consent has expired",
			Severity:    compliance.SeverityCritical,
		})
	}

	return details, nil
}

func checkSenderID(cfg *compliance.Config, message string) (compliance.ViolationDetail, bool) {
	if strings.TrimSpace(message) == "" {
		return compliance.ViolationDetail{
			Type:        compliance.ViolationMissingSenderID,
			Description: "Message content is required to identify the sender",
			Severity:    compliance.SeverityWarning,
		}, true
	}
	if cfg.RequiredSenderName != "" &&
		!strings.Contains(strings.ToLower(message), strings.ToLower(cfg.RequiredSenderName)) {
		return compliance.ViolationDetail{
			Type:        compliance.ViolationMissingSenderID,
			Description: fmt.Sprintf("Message must identify the sender as %q", cfg.RequiredSenderName),
			Severity:    compliance.SeverityWarning,
		}, true
	}
	return compliance.ViolationDetail{}, false
}

// evaluateRules runs the custom rule evaluators. A failing rule is logged
// and skipped so one broken extension cannot block every send.
func (s *Service) evaluateRules(
	ctx context.Context,
	cfg *compliance.Config,
	contact *compliance.Contact,
	action compliance.ActionType,
	actx compliance.ActionContext,
) []compliance.ViolationDetail {
	in := RuleInput{Config: cfg, Contact: contact, Action: action, Context: actx, Now: s.now()}

	var details []compliance.ViolationDetail
	for _, rule := range s.rules {
		found, err := rule.Evaluate(ctx, in)
		if err != nil {
			s.logger.Warn("Custom rule evaluation failed",
				zap.String("rule", rule.Name()),
				zap.String("tenant_id", cfg.TenantID.String()),
				zap.Error(err),
			)
			continue
		}
		details = append(details, found...)
	}
	return details
}

// decide derives the outcome from the tenant's compliance mode.
func decide(cfg *compliance.Config, details []compliance.ViolationDetail, actx compliance.ActionContext) *compliance.DecisionResult {
	if len(details) == 0 {
		return &compliance.DecisionResult{
			Compliant:        true,
			Violations:       []compliance.ViolationType{},
			ViolationDetails: []compliance.ViolationDetail{},
			Action:           compliance.ActionLogOnly,
			CanProceed:       true,
			Message:          PassedMessage,
		}
	}

	var block bool
	switch cfg.ComplianceMode {
	case compliance.ModePermissive:
		block = false
	case compliance.ModeModerate:
		block = compliance.HasCritical(details)
	default:
		block = true
	}

	result := &compliance.DecisionResult{
		Compliant:        false,
		Violations:       make([]compliance.ViolationType, 0, len(details)),
		ViolationDetails: details,
		Action:           compliance.ActionLogOnly,
		CanProceed:       !block,
	}

	descriptions := make([]string, 0, len(details))
	for _, d := range details {
		result.Violations = append(result.Violations, d.Type)
		descriptions = append(descriptions, d.Description)
	}
	result.Message = strings.Join(descriptions, "; ")

	if block {
		result.Action = blockingAction(cfg, actx)
	}

	return result
}

// blockingAction returns BLOCK unless the tenant opted in to a journey
// action (PAUSE_JOURNEY or SKIP_NODE with blockNonCompliantJourneys) and the
// call belongs to a journey; canProceed is false either way.
func blockingAction(cfg *compliance.Config, actx compliance.ActionContext) compliance.ViolationAction {
	if actx.JourneyID != "" && cfg.BlockNonCompliantJourneys && cfg.ViolationAction.IsJourneyAction() {
		return cfg.ViolationAction
	}
	return compliance.ActionBlock
}

// RecordSend increments the contact's daily send counter after the caller
// actually delivered a message. It is a no-op without a counter.
func (s *Service) RecordSend(ctx context.Context, tenantID, contactID uuid.UUID) error {
	if s.counter == nil {
		return nil
	}

	cfg, err := s.GetConfig(ctx, tenantID)
	if err != nil {
		return err
	}

	if _, err := s.counter.Increment(ctx, tenantID, contactID, LocalDay(cfg.Timezone, s.now())); err != nil {
		return errors.NewInternalError("failed to record send").WithCause(err)
	}
	return nil
}

func snapshot(contact *compliance.Contact, actx compliance.ActionContext, at time.Time) compliance.ViolationContext {
	return compliance.ViolationContext{
		MessageContent: actx.MessageContent,
		PhoneNumber:    contact.PhoneNumber,
		AttemptedAt:    at,
		ScheduledTime:  actx.ScheduledTime,
	}
}
