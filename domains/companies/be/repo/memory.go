package repo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-payroll/domains/companies/be/service"
)

// MemoryRepository keeps companies in process memory. Useful for tests and local runs.
type MemoryRepository struct {
	mu            sync.RWMutex
	companies     map[uuid.UUID]service.Company
	members       map[uuid.UUID]map[string]service.Member
	subscriptions map[uuid.UUID]service.SubscriptionState
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		companies:     make(map[uuid.UUID]service.Company),
		members:       make(map[uuid.UUID]map[string]service.Member),
		subscriptions: make(map[uuid.UUID]service.SubscriptionState),
	}
}

// PutSubscriptionState stores the subscription status of a company.
func (r *MemoryRepository) PutSubscriptionState(companyID uuid.UUID, state service.SubscriptionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscriptions[companyID] = state
}

// SetActive flips the freeze flag of a stored company.
func (r *MemoryRepository) SetActive(companyID uuid.UUID, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.companies[companyID]; ok {
		c.IsActive = active
		r.companies[companyID] = c
	}
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (service.Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.companies[id]
	if !ok {
		return service.Company{}, fmt.Errorf("%w: company %s", service.ErrNotFound, id)
	}
	return c, nil
}

func (r *MemoryRepository) Create(_ context.Context, c service.Company) (service.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.companies {
		if existing.Slug == c.Slug {
			return service.Company{}, fmt.Errorf("%w: %s", service.ErrConflictSlug, c.Slug)
		}
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	r.companies[c.ID] = c
	return c, nil
}

func (r *MemoryRepository) UpdateName(_ context.Context, id uuid.UUID, name string) (service.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.companies[id]
	if !ok {
		return service.Company{}, fmt.Errorf("%w: company %s", service.ErrNotFound, id)
	}
	if !c.IsActive {
		return service.Company{}, fmt.Errorf("%w: company %s", service.ErrFrozen, id)
	}
	c.Name = name
	c.UpdatedAt = time.Now().UTC()
	r.companies[id] = c
	return c, nil
}

func (r *MemoryRepository) GetMember(_ context.Context, companyID uuid.UUID, userID string) (service.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[companyID][userID]
	if !ok {
		return service.Member{}, service.ErrNotFound
	}
	return m, nil
}

func (r *MemoryRepository) UpsertMember(_ context.Context, m service.Member) (service.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.companies[m.CompanyID]; ok && !c.IsActive {
		return service.Member{}, fmt.Errorf("%w: company %s", service.ErrFrozen, m.CompanyID)
	}
	if r.members[m.CompanyID] == nil {
		r.members[m.CompanyID] = make(map[string]service.Member)
	}
	r.members[m.CompanyID][m.UserID] = m
	return m, nil
}

func (r *MemoryRepository) GetSubscriptionState(_ context.Context, companyID uuid.UUID) (service.SubscriptionState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subscriptions[companyID]
	if !ok {
		return service.SubscriptionState{}, service.ErrNotFound
	}
	return s, nil
}
