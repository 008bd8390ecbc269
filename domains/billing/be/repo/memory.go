package repo

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/zenGate-Global/palmyra-payroll/domains/billing/be/lifecycle"
	"github.com/zenGate-Global/palmyra-payroll/domains/billing/be/service"
)

// MemoryRepository is an in-memory implementation suitable for tests and local development.
type MemoryRepository struct {
	mu            sync.RWMutex
	companies     map[uuid.UUID]service.Company
	members       map[uuid.UUID]map[string]service.Member
	plans         map[uuid.UUID]lifecycle.Plan
	subscriptions map[uuid.UUID]service.Subscription
	claims        map[string]struct{}
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		companies:     make(map[uuid.UUID]service.Company),
		members:       make(map[uuid.UUID]map[string]service.Member),
		plans:         make(map[uuid.UUID]lifecycle.Plan),
		subscriptions: make(map[uuid.UUID]service.Subscription),
		claims:        make(map[string]struct{}),
	}
}

// PutCompany stores or replaces a company.
func (r *MemoryRepository) PutCompany(c service.Company) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.companies[c.ID] = c
}

// PutMember stores or replaces a membership.
func (r *MemoryRepository) PutMember(m service.Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members[m.CompanyID] == nil {
		r.members[m.CompanyID] = make(map[string]service.Member)
	}
	r.members[m.CompanyID][m.UserID] = m
}

// PutPlan stores or replaces a plan.
func (r *MemoryRepository) PutPlan(p lifecycle.Plan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans[p.ID] = p
}

func (r *MemoryRepository) GetCompany(_ context.Context, id uuid.UUID) (service.Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.companies[id]
	if !ok {
		return service.Company{}, fmt.Errorf("%w: company %s", service.ErrNotFound, id)
	}
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

func (r *MemoryRepository) MemberEmails(_ context.Context, companyID uuid.UUID, roles []service.Role) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, m := range r.members[companyID] {
		if m.IsActive && slices.Contains(roles, m.Role) {
			out = append(out, m.Email)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *MemoryRepository) GetPlan(_ context.Context, id uuid.UUID) (lifecycle.Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plans[id]
	if !ok {
		return lifecycle.Plan{}, fmt.Errorf("%w: plan %s", service.ErrNotFound, id)
	}
	return p, nil
}

func (r *MemoryRepository) GetSubscription(_ context.Context, companyID uuid.UUID) (service.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subscriptions[companyID]
	if !ok {
		return service.Subscription{}, service.ErrNotFound
	}
	return s, nil
}

func (r *MemoryRepository) SaveSubscription(_ context.Context, sub service.Subscription) (service.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.subscriptions[sub.CompanyID]; ok {
		sub.ID = existing.ID
		if sub.StripeCustomerID == nil {
			sub.StripeCustomerID = existing.StripeCustomerID
		}
		if sub.StripeSubscriptionID == nil {
			sub.StripeSubscriptionID = existing.StripeSubscriptionID
		}
	}
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	sub.UpdatedAt = time.Now().UTC()
	r.subscriptions[sub.CompanyID] = sub
	return sub, nil
}

func (r *MemoryRepository) SetCompaniesActive(_ context.Context, ids []uuid.UUID, active, pauseSubscriptions bool) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var changed []uuid.UUID
	for _, id := range ids {
		c, ok := r.companies[id]
		if !ok || c.IsActive == active {
			continue
		}
		c.IsActive = active
		c.UpdatedAt = time.Now().UTC()
		r.companies[id] = c
		changed = append(changed, id)

		if sub, ok := r.subscriptions[id]; ok && pauseSubscriptions {
			sub.Status = lifecycle.StatusPaused
			sub.TrialEndsAt = nil
			r.subscriptions[id] = sub
		}
	}
	return changed, nil
}

func (r *MemoryRepository) ListSnapshots(_ context.Context) ([]service.CompanySnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]service.CompanySnapshot, 0, len(r.subscriptions))
	for companyID, sub := range r.subscriptions {
		c, ok := r.companies[companyID]
		if !ok {
			continue
		}
		out = append(out, snapshotOf(c, sub))
	}
	sortSnapshots(out)
	return out, nil
}

func (r *MemoryRepository) ExpireTrials(_ context.Context, now time.Time) ([]service.ExpiredTrial, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []service.ExpiredTrial
	for companyID, sub := range r.subscriptions {
		if sub.Status != lifecycle.StatusTrialing || sub.TrialEndsAt == nil || !sub.TrialEndsAt.Before(now) {
			continue
		}
		ended := *sub.TrialEndsAt
		sub.Status = lifecycle.StatusTrialExpired
		sub.CurrentPeriodEnd = &ended
		sub.TrialEndsAt = nil
		r.subscriptions[companyID] = sub
		out = append(out, service.ExpiredTrial{CompanyID: companyID, CompanyName: r.companies[companyID].Name, TrialEnded: ended})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompanyID.String() < out[j].CompanyID.String() })
	return out, nil
}

func (r *MemoryRepository) ListUnnotifiedExpiredTrials(_ context.Context, kind string) ([]service.ExpiredTrial, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []service.ExpiredTrial
	for companyID, sub := range r.subscriptions {
		if sub.Status != lifecycle.StatusTrialExpired || r.claimedEver(companyID, kind) {
			continue
		}
		out = append(out, service.ExpiredTrial{CompanyID: companyID, CompanyName: r.companies[companyID].Name, TrialEnded: lo.FromPtr(sub.CurrentPeriodEnd)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompanyID.String() < out[j].CompanyID.String() })
	return out, nil
}

func (r *MemoryRepository) claimedEver(companyID uuid.UUID, kind string) bool {
	prefix := companyID.String() + "|" + kind + "|"
	for key := range r.claims {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) ListTrialing(_ context.Context) ([]service.CompanySnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []service.CompanySnapshot
	for companyID, sub := range r.subscriptions {
		c, ok := r.companies[companyID]
		if !ok || !c.IsActive || sub.Status != lifecycle.StatusTrialing || sub.TrialEndsAt == nil {
			continue
		}
		out = append(out, snapshotOf(c, sub))
	}
	sortSnapshots(out)
	return out, nil
}

func (r *MemoryRepository) ClaimNotification(_ context.Context, companyID uuid.UUID, kind string, day time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := claimKey(companyID, kind, day)
	if _, ok := r.claims[key]; ok {
		return false, nil
	}
	r.claims[key] = struct{}{}
	return true, nil
}

func (r *MemoryRepository) ReleaseNotification(_ context.Context, companyID uuid.UUID, kind string, day time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.claims, claimKey(companyID, kind, day))
	return nil
}

func claimKey(companyID uuid.UUID, kind string, day time.Time) string {
	return companyID.String() + "|" + kind + "|" + day.UTC().Format(time.DateOnly)
}

func snapshotOf(c service.Company, sub service.Subscription) service.CompanySnapshot {
	return service.CompanySnapshot{
		Snapshot: lifecycle.Snapshot{
			CompanyID:        c.ID,
			CompanyActive:    c.IsActive,
			Status:           sub.Status,
			CurrentPeriodEnd: sub.CurrentPeriodEnd,
			TrialEndsAt:      sub.TrialEndsAt,
		},
		CompanyName: c.Name,
	}
}

func sortSnapshots(s []service.CompanySnapshot) {
	sort.Slice(s, func(i, j int) bool { return s[i].CompanyID.String() < s[j].CompanyID.String() })
}

// MemoryLocker is a process-local Locker.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]bool)}
}

func (l *MemoryLocker) TryLock(_ context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.held, key)
		})
	}, true, nil
}
