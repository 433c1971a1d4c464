package database

import (
	"context"
	stderrors "errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/compliance"
	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/errors"
)

// ContactRepository reads CRM contacts from PostgreSQL
type ContactRepository struct {
	db *pgxpool.Pool
}

// NewContactRepository creates a new PostgreSQL contact repository
func NewContactRepository(db *pgxpool.Pool) *ContactRepository {
	return &ContactRepository{db: db}
}

func (r *ContactRepository) GetByID(ctx context.Context, tenantID, contactID uuid.UUID) (*compliance.Contact, error) {
	var (
		c      compliance.Contact
		status string
	)

	err := r.db.QueryRow(ctx, `
		SELECT id, tenant_id, phone_number, is_opted_out, lead_status, COALESCE(state, '')
		FROM contacts
		WHERE id = $1 AND tenant_id = $2
	`, contactID, tenantID).Scan(&c.ID, &c.TenantID, &c.PhoneNumber, &c.IsOptedOut, &status, &c.State)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NewNotFoundError("contact")
		}
		return nil, errors.NewInternalError("failed to get contact").WithCause(err)
	}

	c.LeadStatus = compliance.LeadStatus(status)
	return &c, nil
}

// Upsert writes a contact. The engine itself never mutates contacts; this
// exists for seeding and CRM sync jobs.
func (r *ContactRepository) Upsert(ctx context.Context, c *compliance.Contact) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO contacts (id, tenant_id, phone_number, is_opted_out, lead_status, state)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		ON CONFLICT (id) DO UPDATE SET
			phone_number = EXCLUDED.phone_number,
			is_opted_out = EXCLUDED.is_opted_out,
			lead_status = EXCLUDED.lead_status,
			state = EXCLUDED.state
	`, c.ID, c.TenantID, c.PhoneNumber, c.IsOptedOut, string(c.LeadStatus), c.State)
	if err != nil {
		return errors.NewInternalError("failed to upsert contact").WithCause(err)
	}
	return nil
}
