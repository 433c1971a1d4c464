package database

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/compliance"
	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/errors"
)

const consentColumns = `id, tenant_id, contact_id, consent_type, scope, COALESCE(source, ''),
	is_active, revoked_at, expires_at, created_at`

// ConsentRepository implements compliance.ConsentRepository on PostgreSQL
type ConsentRepository struct {
	db *pgxpool.Pool
}

// NewConsentRepository creates a new PostgreSQL consent repository
func NewConsentRepository(db *pgxpool.Pool) *ConsentRepository {
	return &ConsentRepository{db: db}
}

func (r *ConsentRepository) FindActive(ctx context.Context, tenantID, contactID uuid.UUID) ([]*compliance.ConsentRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+consentColumns+`
		FROM consent_records
		WHERE tenant_id = $1 AND contact_id = $2 AND is_active AND revoked_at IS NULL
		ORDER BY created_at DESC, id DESC
	`, tenantID, contactID)
	if err != nil {
		return nil, errors.NewInternalError("failed to query consent records").WithCause(err)
	}

	records, err := pgx.CollectRows(rows, scanConsent)
	if err != nil {
		return nil, errors.NewInternalError("failed to scan consent records").WithCause(err)
	}
	return records, nil
}

func (r *ConsentRepository) FindLatest(ctx context.Context, tenantID, contactID uuid.UUID) (*compliance.ConsentRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+consentColumns+`
		FROM consent_records
		WHERE tenant_id = $1 AND contact_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, tenantID, contactID)
	if err != nil {
		return nil, errors.NewInternalError("failed to query latest consent record").WithCause(err)
	}

	record, err := pgx.CollectOneRow(rows, scanConsent)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.NewInternalError("failed to scan latest consent record").WithCause(err)
	}
	return record, nil
}

func (r *ConsentRepository) Save(ctx context.Context, record *compliance.ConsentRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO consent_records (
			id, tenant_id, contact_id, consent_type, scope, source,
			is_active, revoked_at, expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			consent_type = EXCLUDED.consent_type,
			scope = EXCLUDED.scope,
			source = EXCLUDED.source,
			is_active = EXCLUDED.is_active,
			revoked_at = EXCLUDED.revoked_at,
			expires_at = EXCLUDED.expires_at
	`, record.ID, record.TenantID, record.ContactID, string(record.ConsentType), string(record.Scope),
		record.Source, record.IsActive, record.RevokedAt, record.ExpiresAt, record.CreatedAt)
	if err != nil {
		return errors.NewInternalError("failed to save consent record").WithCause(err)
	}
	return nil
}

func (r *ConsentRepository) DeactivateCreatedBefore(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE consent_records
		SET is_active = FALSE
		WHERE tenant_id = $1 AND is_active AND expires_at IS NULL AND created_at < $2
	`, tenantID, cutoff)
	if err != nil {
		return 0, errors.NewInternalError("failed to deactivate consent records").WithCause(err)
	}
	return tag.RowsAffected(), nil
}

func (r *ConsentRepository) PurgeInactiveBefore(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM consent_records
		WHERE tenant_id = $1 AND (NOT is_active OR revoked_at IS NOT NULL) AND created_at < $2
	`, tenantID, cutoff)
	if err != nil {
		return 0, errors.NewInternalError("failed to purge consent records").WithCause(err)
	}
	return tag.RowsAffected(), nil
}

func scanConsent(row pgx.CollectableRow) (*compliance.ConsentRecord, error) {
	var (
		rec                compliance.ConsentRecord
		consentType, scope string
	)
	err := row.Scan(
		&rec.ID, &rec.TenantID, &rec.ContactID, &consentType, &scope, &rec.Source,
		&rec.IsActive, &rec.RevokedAt, &rec.ExpiresAt, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.ConsentType = compliance.ConsentType(consentType)
	rec.Scope = compliance.ConsentScope(scope)
	return &rec, nil
}
