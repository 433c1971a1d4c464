package compliance

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ConfigRepository defines persistence for per-tenant compliance configs
type ConfigRepository interface {
	// Get returns the tenant's config or a not-found error
	Get(ctx context.Context, tenantID uuid.UUID) (*Config, error)

	// CreateIfAbsent inserts cfg unless one already exists for the tenant and
	// returns the stored config either way
	CreateIfAbsent(ctx context.Context, cfg *Config) (*Config, error)

	// Save replaces the tenant's config
	Save(ctx context.Context, cfg *Config) error

	// ListTenantIDs returns every tenant that has a config
	ListTenantIDs(ctx context.Context) ([]uuid.UUID, error)
}

// ContactRepository is the read-only view of the CRM contact store
type ContactRepository interface {
	// GetByID returns the contact if it belongs to the tenant, else not-found
	GetByID(ctx context.Context, tenantID, contactID uuid.UUID) (*Contact, error)
}

// ConsentRepository defines lookups and maintenance on the consent ledger
type ConsentRepository interface {
	// FindActive returns records with is_active = true and revoked_at IS NULL
	FindActive(ctx context.Context, tenantID, contactID uuid.UUID) ([]*ConsentRecord, error)

	// FindLatest returns the most recently created record, or nil if none exist
	FindLatest(ctx context.Context, tenantID, contactID uuid.UUID) (*ConsentRecord, error)

	// Save creates or updates a consent record
	Save(ctx context.Context, record *ConsentRecord) error

	// DeactivateCreatedBefore marks active records created before cutoff
	// inactive. Records with their own expiresAt are left alone.
	DeactivateCreatedBefore(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) (int64, error)

	// PurgeInactiveBefore deletes inactive or revoked records created before cutoff
	PurgeInactiveBefore(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) (int64, error)
}

// ViolationRepository defines the append-mostly violation log
type ViolationRepository interface {
	// Create inserts a new violation
	Create(ctx context.Context, violation *Violation) error

	// GetByID returns the violation if it belongs to the tenant, else not-found
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Violation, error)

	// Update persists status, override and resolution fields
	Update(ctx context.Context, violation *Violation) error

	// FindByContact lists a contact's violations, newest first
	FindByContact(ctx context.Context, tenantID, contactID uuid.UUID) ([]*Violation, error)

	// FindByJourney lists a journey's violations, newest first
	FindByJourney(ctx context.Context, tenantID uuid.UUID, journeyID string) ([]*Violation, error)
}
