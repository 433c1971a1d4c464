package database

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/compliance"
	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/errors"
)

const violationColumns = `
	id, tenant_id, contact_id, violation_type, severity, description, status,
	COALESCE(journey_id, ''), COALESCE(node_id, ''), COALESCE(campaign_id, ''),
	attempted_action, context,
	COALESCE(overridden_by, ''), COALESCE(override_reason, ''), COALESCE(override_notes, ''), overridden_at,
	resolved_at, COALESCE(resolution_notes, ''), created_at`

// ViolationRepository implements compliance.ViolationRepository on PostgreSQL
type ViolationRepository struct {
	db *pgxpool.Pool
}

// NewViolationRepository creates a new PostgreSQL violation repository
func NewViolationRepository(db *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{db: db}
}

func (r *ViolationRepository) Create(ctx context.Context, v *compliance.Violation) error {
	contextJSON, err := json.Marshal(v.Context)
	if err != nil {
		return errors.NewInternalError("failed to marshal violation context").WithCause(err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO compliance_violations (
			id, tenant_id, contact_id, violation_type, severity, description, status,
			journey_id, node_id, campaign_id, attempted_action, context, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), $11, $12, $13)
	`, v.ID, v.TenantID, v.ContactID, string(v.ViolationType), string(v.Severity), v.Description, string(v.Status),
		v.JourneyID, v.NodeID, v.CampaignID, string(v.AttemptedAction), contextJSON, v.CreatedAt)
	if err != nil {
		return errors.NewInternalError("failed to insert violation").WithCause(err)
	}
	return nil
}

func (r *ViolationRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*compliance.Violation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+violationColumns+`
		FROM compliance_violations
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	if err != nil {
		return nil, errors.NewInternalError("failed to query violation").WithCause(err)
	}

	v, err := pgx.CollectOneRow(rows, scanViolation)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NewNotFoundError("violation")
		}
		return nil, errors.NewInternalError("failed to scan violation").WithCause(err)
	}
	return v, nil
}

func (r *ViolationRepository) Update(ctx context.Context, v *compliance.Violation) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE compliance_violations SET
			status = $3,
			overridden_by = NULLIF($4, ''),
			override_reason = NULLIF($5, ''),
			override_notes = NULLIF($6, ''),
			overridden_at = $7,
			resolved_at = $8,
			resolution_notes = NULLIF($9, '')
		WHERE id = $1 AND tenant_id = $2
	`, v.ID, v.TenantID, string(v.Status), v.OverriddenBy, v.OverrideReason, v.OverrideNotes,
		v.OverriddenAt, v.ResolvedAt, v.ResolutionNotes)
	if err != nil {
		return errors.NewInternalError("failed to update violation").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError("violation")
	}
	return nil
}

func (r *ViolationRepository) FindByContact(ctx context.Context, tenantID, contactID uuid.UUID) ([]*compliance.Violation, error) {
	return r.list(ctx, `WHERE tenant_id = $1 AND contact_id = $2`, tenantID, contactID)
}

func (r *ViolationRepository) FindByJourney(ctx context.Context, tenantID uuid.UUID, journeyID string) ([]*compliance.Violation, error) {
	return r.list(ctx, `WHERE tenant_id = $1 AND journey_id = $2`, tenantID, journeyID)
}

func (r *ViolationRepository) list(ctx context.Context, where string, args ...any) ([]*compliance.Violation, error) {
	rows, err := r.db.Query(ctx, `SELECT `+violationColumns+` FROM compliance_violations `+where+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, errors.NewInternalError("failed to query violations").WithCause(err)
	}

	violations, err := pgx.CollectRows(rows, scanViolation)
	if err != nil {
		return nil, errors.NewInternalError("failed to scan violations").WithCause(err)
	}
	if violations == nil {
		violations = []*compliance.Violation{}
	}
	return violations, nil
}

func scanViolation(row pgx.CollectableRow) (*compliance.Violation, error) {
	var (
		v                                  compliance.Violation
		vType, severity, status, attempted string
		contextJSON                        []byte
	)

	err := row.Scan(
		&v.ID, &v.TenantID, &v.ContactID, &vType, &severity, &v.Description, &status,
		&v.JourneyID, &v.NodeID, &v.CampaignID,
		&attempted, &contextJSON,
		&v.OverriddenBy, &v.OverrideReason, &v.OverrideNotes, &v.OverriddenAt,
		&v.ResolvedAt, &v.ResolutionNotes, &v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	v.ViolationType = compliance.ViolationType(vType)
	v.Severity = compliance.Severity(severity)
	v.Status = compliance.ViolationStatus(status)
	v.AttemptedAction = compliance.ActionType(attempted)

	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &v.Context); err != nil {
			return nil, err
		}
	}

	return &v, nil
}
