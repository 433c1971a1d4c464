package compliance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/compliance"
	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/errors"
)

// ConsentRequirement describes the consent a proposed action needs.
type ConsentRequirement struct {
	RequireExpress      bool
	RequireForAutomated bool
	RequireForMarketing bool
	Scope               compliance.ConsentScope
}

// Applies reports whether any requirement flag demands a consent check.
func (r ConsentRequirement) Applies() bool {
	return r.RequireExpress || r.RequireForAutomated || r.RequireForMarketing
}

// HasValidConsent reports whether the contact holds consent that satisfies req.
func (s *Service) HasValidConsent(ctx context.Context, tenantID, contactID uuid.UUID, req ConsentRequirement) (bool, error) {
	contact, err := s.lookupContact(ctx, tenantID, contactID)
	if err != nil {
		return false, err
	}
	return s.hasValidConsent(ctx, contact, tenantID, contactID, req)
}

// IsConsentExpired reports whether the contact's latest consent has lapsed,
// either by its explicit expiry or by expirationDays after creation.
func (s *Service) IsConsentExpired(ctx context.Context, tenantID, contactID uuid.UUID, expirationDays *int) (bool, error) {
	contact, err := s.lookupContact(ctx, tenantID, contactID)
	if err != nil {
		return false, err
	}
	return s.isConsentExpired(ctx, contact, tenantID, contactID, expirationDays)
}

// lookupContact returns nil without error when the contact does not exist;
// consent evaluation then relies on the ledger alone.
func (s *Service) lookupContact(ctx context.Context, tenantID, contactID uuid.UUID) (*compliance.Contact, error) {
	contact, err := s.contacts.GetByID(ctx, tenantID, contactID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.NewInternalError("failed to load contact").WithCause(err)
	}
	return contact, nil
}

// implicitlyConsented is the business rule that an active, reachable
// contact carries express consent. It is switched by
// ServiceConfig.ImplicitConsentForActiveContacts.
func (s *Service) implicitlyConsented(contact *compliance.Contact) bool {
	return s.config.ImplicitConsentForActiveContacts && contact != nil && contact.Reachable()
}

func (s *Service) hasValidConsent(ctx context.Context, contact *compliance.Contact, tenantID, contactID uuid.UUID, req ConsentRequirement) (bool, error) {
	if s.implicitlyConsented(contact) {
		s.metrics.RecordConsentCheck(ctx, string(req.Scope), true, true)
		return true, nil
	}

	records, err := s.consents.FindActive(ctx, tenantID, contactID)
	if err != nil {
		return false, errors.NewInternalError("failed to load consent records").WithCause(err)
	}

	now := s.now()
	valid := filterConsents(records, func(r *compliance.ConsentRecord) bool {
		return r.IsValidAt(now) && r.Scope.Covers(req.Scope)
	})
	if req.RequireExpress {
		valid = filterConsents(valid, func(r *compliance.ConsentRecord) bool {
			return r.ConsentType.IsExpress()
		})
	}

	ok := len(valid) > 0
	s.metrics.RecordConsentCheck(ctx, string(req.Scope), ok, false)

	s.logger.Debug("Evaluated consent ledger",
		zap.String("tenant_id", tenantID.String()),
		zap.String("contact_id", contactID.String()),
		zap.String("scope", string(req.Scope)),
		zap.Bool("require_express", req.RequireExpress),
		zap.Int("active_records", len(records)),
		zap.Int("matching_records", len(valid)),
	)

	return ok, nil
}

func (s *Service) isConsentExpired(ctx context.Context, contact *compliance.Contact, tenantID, contactID uuid.UUID, expirationDays *int) (bool, error) {
	if s.implicitlyConsented(contact) {
		return false, nil
	}

	latest, err := s.consents.FindLatest(ctx, tenantID, contactID)
	if err != nil {
		return false, errors.NewInternalError("failed to load latest consent record").WithCause(err)
	}
	if latest == nil {
		return true, nil
	}

	now := s.now()
	if latest.ExpiresAt != nil {
		return latest.IsExpiredAt(now), nil
	}
	if expirationDays != nil {
		deadline := latest.CreatedAt.Add(time.Duration(*expirationDays) * 24 * time.Hour)
		return !now.Before(deadline), nil
	}

	return false, nil
}

func filterConsents(records []*compliance.ConsentRecord, keep func(*compliance.ConsentRecord) bool) []*compliance.ConsentRecord {
	var out []*compliance.ConsentRecord
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
