package compliance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/compliance"
	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/errors"
)

// logViolations writes one row per detected violation. Failures are logged
// and counted; they never change the verdict already computed.
func (s *Service) logViolations(
	ctx context.Context,
	cfg *compliance.Config,
	contact *compliance.Contact,
	action compliance.ActionType,
	actx compliance.ActionContext,
	details []compliance.ViolationDetail,
	result *compliance.DecisionResult,
	attemptedAt time.Time,
) []*compliance.Violation {
	status := compliance.StatusLogged
	if !result.CanProceed {
		status = compliance.StatusBlocked
	}

	shared := snapshot(contact, actx, attemptedAt)
	logged := make([]*compliance.Violation, 0, len(details))

	for _, d := range details {
		violation := &compliance.Violation{
			ID:              uuid.New(),
			TenantID:        cfg.TenantID,
			ContactID:       contact.ID,
			ViolationType:   d.Type,
			Severity:        d.Severity,
			Description:     d.Description,
			Status:          status,
			JourneyID:       actx.JourneyID,
			NodeID:          actx.NodeID,
			CampaignID:      actx.CampaignID,
			AttemptedAction: action,
			Context:         shared,
			CreatedAt:       s.now(),
		}

		if err := s.violations.Create(ctx, violation); err != nil {
			s.metrics.RecordViolationLogFailure(ctx, string(d.Type))
			s.logger.Error("Failed to save violation",
				zap.String("violation_id", violation.ID.String()),
				zap.String("tenant_id", cfg.TenantID.String()),
				zap.String("violation_type", string(d.Type)),
				zap.Error(err),
			)
			continue
		}
		logged = append(logged, violation)
	}

	return logged
}

// notify publishes a violation notice. Delivery is best effort.
func (s *Service) notify(
	ctx context.Context,
	cfg *compliance.Config,
	contact *compliance.Contact,
	action compliance.ActionType,
	actx compliance.ActionContext,
	result *compliance.DecisionResult,
	logged []*compliance.Violation,
) {
	if s.notifier == nil {
		return
	}

	notice := ViolationNotice{
		TenantID:        cfg.TenantID,
		ContactID:       contact.ID,
		AttemptedAction: action,
		Outcome:         result.Action,
		CanProceed:      result.CanProceed,
		Details:         result.ViolationDetails,
		JourneyID:       actx.JourneyID,
		CampaignID:      actx.CampaignID,
		Recipients:      cfg.ViolationNotificationEmails,
		OccurredAt:      s.now(),
	}
	for _, v := range logged {
		notice.ViolationIDs = append(notice.ViolationIDs, v.ID)
	}

	if err := s.notifier.NotifyViolations(ctx, notice); err != nil {
		s.metrics.RecordNotificationFailure(ctx)
		s.logger.Error("Failed to publish violation notice",
			zap.String("tenant_id", cfg.TenantID.String()),
			zap.String("contact_id", contact.ID.String()),
			zap.Error(err),
		)
	}
}

// OverrideViolation records an operator's manual exception for a violation.
func (s *Service) OverrideViolation(
	ctx context.Context,
	tenantID, violationID uuid.UUID,
	userID, reason, notes string,
) (*compliance.Violation, error) {
	violation, err := s.violations.GetByID(ctx, tenantID, violationID)
	if err != nil {
		if errors.IsNotFound(err) {
			s.metrics.RecordOverride(ctx, "not_found")
			return nil, errors.NewNotFoundError("violation")
		}
		return nil, errors.NewInternalError("failed to load violation").WithCause(err)
	}

	cfg, err := s.GetConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if !cfg.AllowManualOverride {
		s.metrics.RecordOverride(ctx, "disabled")
		return nil, errors.NewPolicyRejectedError("OVERRIDE_DISABLED", "manual override is disabled for this tenant")
	}

	if !cfg.IsOverrideReasonAllowed(reason) {
		s.metrics.RecordOverride(ctx, "reason_rejected")
		return nil, errors.NewPolicyRejectedError("OVERRIDE_REASON_NOT_ALLOWED", "override reason is not allowed: "+reason).
			WithDetails(map[string]interface{}{"allowed_reasons": cfg.OverrideReasons})
	}

	if err := violation.Override(userID, reason, notes, s.now()); err != nil {
		s.metrics.RecordOverride(ctx, "already_closed")
		return nil, errors.NewPolicyRejectedError("VIOLATION_ALREADY_CLOSED", err.Error())
	}

	if err := s.violations.Update(ctx, violation); err != nil {
		return nil, errors.NewInternalError("failed to save violation override").WithCause(err)
	}

	s.metrics.RecordOverride(ctx, "accepted")
	s.logger.Info("Violation overridden",
		zap.String("tenant_id", tenantID.String()),
		zap.String("violation_id", violationID.String()),
		zap.String("violation_type", string(violation.ViolationType)),
		zap.String("overridden_by", userID),
		zap.String("reason", reason),
	)

	return violation, nil
}

// ResolveViolation marks a violation resolved by an external process.
func (s *Service) ResolveViolation(ctx context.Context, tenantID, violationID uuid.UUID, notes string) (*compliance.Violation, error) {
	violation, err := s.violations.GetByID(ctx, tenantID, violationID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NewNotFoundError("violation")
		}
		return nil, errors.NewInternalError("failed to load violation").WithCause(err)
	}

	if err := violation.Resolve(notes, s.now()); err != nil {
		return nil, errors.NewConflictError(err.Error())
	}

	if err := s.violations.Update(ctx, violation); err != nil {
		return nil, errors.NewInternalError("failed to save violation resolution").WithCause(err)
	}

	return violation, nil
}

// GetContactViolations lists a contact's violations, newest first.
func (s *Service) GetContactViolations(ctx context.Context, tenantID, contactID uuid.UUID) ([]*compliance.Violation, error) {
	violations, err := s.violations.FindByContact(ctx, tenantID, contactID)
	if err != nil {
		return nil, errors.NewInternalError("failed to list contact violations").WithCause(err)
	}
	return violations, nil
}

// GetJourneyViolations lists a journey's violations, newest first.
func (s *Service) GetJourneyViolations(ctx context.Context, tenantID uuid.UUID, journeyID string) ([]*compliance.Violation, error) {
	violations, err := s.violations.FindByJourney(ctx, tenantID, journeyID)
	if err != nil {
		return nil, errors.NewInternalError("failed to list journey violations").WithCause(err)
	}
	return violations, nil
}
