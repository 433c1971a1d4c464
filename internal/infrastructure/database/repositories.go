package database

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/compliance"
)

var (
	_ compliance.ConfigRepository    = (*ConfigRepository)(nil)
	_ compliance.ContactRepository   = (*ContactRepository)(nil)
	_ compliance.ConsentRepository   = (*ConsentRepository)(nil)
	_ compliance.ViolationRepository = (*ViolationRepository)(nil)
)

// Repositories holds all repository instances
type Repositories struct {
	Configs    *ConfigRepository
	Contacts   *ContactRepository
	Consents   *ConsentRepository
	Violations *ViolationRepository
}

// NewRepositories creates a new repository collection
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Configs:    NewConfigRepository(pool),
		Contacts:   NewContactRepository(pool),
		Consents:   NewConsentRepository(pool),
		Violations: NewViolationRepository(pool),
	}
}
