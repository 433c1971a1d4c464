// Package memstore provides in-memory implementations of the compliance
// repositories for local development and tests.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/compliance"
	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/errors"
)

// Store holds every record kind behind a single lock.
type Store struct {
	mu         sync.RWMutex
	configs    map[uuid.UUID]*compliance.Config
	contacts   map[uuid.UUID]*compliance.Contact
	consents   map[uuid.UUID]*compliance.ConsentRecord
	violations map[uuid.UUID]*compliance.Violation
}

// New creates an empty store
func New() *Store {
	return &Store{
		configs:    make(map[uuid.UUID]*compliance.Config),
		contacts:   make(map[uuid.UUID]*compliance.Contact),
		consents:   make(map[uuid.UUID]*compliance.ConsentRecord),
		violations: make(map[uuid.UUID]*compliance.Violation),
	}
}

// Configs returns the store as a ConfigRepository
func (s *Store) Configs() compliance.ConfigRepository { return (*configRepo)(s) }

// Contacts returns the store as a ContactRepository
func (s *Store) Contacts() compliance.ContactRepository { return (*contactRepo)(s) }

// Consents returns the store as a ConsentRepository
func (s *Store) Consents() compliance.ConsentRepository { return (*consentRepo)(s) }

// Violations returns the store as a ViolationRepository
func (s *Store) Violations() compliance.ViolationRepository { return (*violationRepo)(s) }

// PutContact seeds a contact.
func (s *Store) PutContact(c *compliance.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.contacts[c.ID] = &cp
}

// ConfigCount returns the number of stored configs.
func (s *Store) ConfigCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.configs)
}

// ViolationCount returns the number of stored violations.
func (s *Store) ViolationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.violations)
}

func cloneConfig(c *compliance.Config) *compliance.Config {
	cp := *c
	cp.AllowedDaysOfWeek = slices.Clone(c.AllowedDaysOfWeek)
	cp.ViolationNotificationEmails = slices.Clone(c.ViolationNotificationEmails)
	cp.OverrideReasons = slices.Clone(c.OverrideReasons)
	cp.CustomRules.ProhibitedKeywords = slices.Clone(c.CustomRules.ProhibitedKeywords)
	cp.CustomRules.StateHours = maps.Clone(c.CustomRules.StateHours)
	if c.ConsentExpirationDays != nil {
		days := *c.ConsentExpirationDays
		cp.ConsentExpirationDays = &days
	}
	return &cp
}

type configRepo Store

func (r *configRepo) Get(_ context.Context, tenantID uuid.UUID) (*compliance.Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[tenantID]
	if !ok {
		return nil, errors.NewNotFoundError("compliance config")
	}
	return cloneConfig(cfg), nil
}

func (r *configRepo) CreateIfAbsent(_ context.Context, cfg *compliance.Config) (*compliance.Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.configs[cfg.TenantID]; ok {
		return cloneConfig(existing), nil
	}
	r.configs[cfg.TenantID] = cloneConfig(cfg)
	return cloneConfig(cfg), nil
}

func (r *configRepo) Save(_ context.Context, cfg *compliance.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[cfg.TenantID] = cloneConfig(cfg)
	return nil
}

func (r *configRepo) ListTenantIDs(_ context.Context) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(r.configs))
	for id := range r.configs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

type contactRepo Store

func (r *contactRepo) GetByID(_ context.Context, tenantID, contactID uuid.UUID) (*compliance.Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contacts[contactID]
	if !ok || c.TenantID != tenantID {
		return nil, errors.NewNotFoundError("contact")
	}
	cp := *c
	return &cp, nil
}

type consentRepo Store

func (r *consentRepo) FindActive(_ context.Context, tenantID, contactID uuid.UUID) ([]*compliance.ConsentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*compliance.ConsentRecord
	for _, rec := range r.consents {
		if rec.TenantID == tenantID && rec.ContactID == contactID && rec.IsActive && rec.RevokedAt == nil {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return newerConsent(out[i], out[j]) })
	return out, nil
}

func (r *consentRepo) FindLatest(_ context.Context, tenantID, contactID uuid.UUID) (*compliance.ConsentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *compliance.ConsentRecord
	for _, rec := range r.consents {
		if rec.TenantID != tenantID || rec.ContactID != contactID {
			continue
		}
		if latest == nil || newerConsent(rec, latest) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

// newerConsent orders by createdAt, then id, both descending
func newerConsent(a, b *compliance.ConsentRecord) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.String() > b.ID.String()
}

func (r *consentRepo) Save(_ context.Context, record *compliance.ConsentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	cp := *record
	r.consents[record.ID] = &cp
	return nil
}

func (r *consentRepo) DeactivateCreatedBefore(_ context.Context, tenantID uuid.UUID, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, rec := range r.consents {
		if rec.TenantID == tenantID && rec.IsActive && rec.ExpiresAt == nil && rec.CreatedAt.Before(cutoff) {
			rec.IsActive = false
			n++
		}
	}
	return n, nil
}

func (r *consentRepo) PurgeInactiveBefore(_ context.Context, tenantID uuid.UUID, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, rec := range r.consents {
		if rec.TenantID == tenantID && (!rec.IsActive || rec.RevokedAt != nil) && rec.CreatedAt.Before(cutoff) {
			delete(r.consents, id)
			n++
		}
	}
	return n, nil
}

type violationRepo Store

func (r *violationRepo) Create(_ context.Context, v *compliance.Violation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.violations[v.ID]; exists {
		return errors.NewConflictError("violation already exists")
	}
	cp := *v
	r.violations[v.ID] = &cp
	return nil
}

func (r *violationRepo) GetByID(_ context.Context, tenantID, id uuid.UUID) (*compliance.Violation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.violations[id]
	if !ok || v.TenantID != tenantID {
		return nil, errors.NewNotFoundError("violation")
	}
	cp := *v
	return &cp, nil
}

func (r *violationRepo) Update(_ context.Context, v *compliance.Violation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.violations[v.ID]
	if !ok || existing.TenantID != v.TenantID {
		return errors.NewNotFoundError("violation")
	}
	cp := *v
	r.violations[v.ID] = &cp
	return nil
}

func (r *violationRepo) FindByContact(_ context.Context, tenantID, contactID uuid.UUID) ([]*compliance.Violation, error) {
	return r.find(func(v *compliance.Violation) bool {
		return v.TenantID == tenantID && v.ContactID == contactID
	}), nil
}

func (r *violationRepo) FindByJourney(_ context.Context, tenantID uuid.UUID, journeyID string) ([]*compliance.Violation, error) {
	return r.find(func(v *compliance.Violation) bool {
		return v.TenantID == tenantID && v.JourneyID == journeyID
	}), nil
}

func (r *violationRepo) find(match func(*compliance.Violation) bool) []*compliance.Violation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*compliance.Violation{}
	for _, v := range r.violations {
		if match(v) {
			cp := *v
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
