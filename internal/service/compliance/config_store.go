package compliance

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/compliance"
	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/errors"
)

// GetConfig returns the tenant's compliance config, creating and persisting
// the safe defaults on first read.
func (s *Service) GetConfig(ctx context.Context, tenantID uuid.UUID) (*compliance.Config, error) {
	cfg, err := s.configs.Get(ctx, tenantID)
	if err == nil {
		return cfg, nil
	}
	if !errors.IsNotFound(err) {
		return nil, errors.NewInternalError("failed to load compliance config").WithCause(err)
	}

	cfg, err = s.configs.CreateIfAbsent(ctx, compliance.DefaultConfig(tenantID, s.now()))
	if err != nil {
		return nil, errors.NewInternalError("failed to create default compliance config").WithCause(err)
	}

	s.logger.Info("Created default compliance config",
		zap.String("tenant_id", tenantID.String()),
		zap.String("mode", string(cfg.ComplianceMode)),
	)

	return cfg, nil
}

// UpdateConfig merges update onto the tenant's config and persists it.
// Hours are stored as given; only enum fields are checked.
func (s *Service) UpdateConfig(ctx context.Context, tenantID uuid.UUID, update compliance.ConfigUpdate) (*compliance.Config, error) {
	if update.ComplianceMode != nil && !update.ComplianceMode.IsValid() {
		return nil, errors.NewValidationError("INVALID_COMPLIANCE_MODE", "unknown compliance mode: "+string(*update.ComplianceMode))
	}
	if update.ViolationAction != nil && !update.ViolationAction.IsValid() {
		return nil, errors.NewValidationError("INVALID_VIOLATION_ACTION", "unknown violation action: "+string(*update.ViolationAction))
	}

	cfg, err := s.GetConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	update.Apply(cfg, s.now())

	if err := s.configs.Save(ctx, cfg); err != nil {
		return nil, errors.NewInternalError("failed to save compliance config").WithCause(err)
	}

	s.logger.Info("Updated compliance config",
		zap.String("tenant_id", tenantID.String()),
		zap.String("mode", string(cfg.ComplianceMode)),
		zap.Int("allowed_start_hour", cfg.AllowedStartHour),
		zap.Int("allowed_end_hour", cfg.AllowedEndHour),
	)

	return cfg, nil
}
