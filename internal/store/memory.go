package store

import (
	"context"
	"sync"
	"time"

	"github.com/dukerupert/prospector/internal/model"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps everything in process memory. It is meant for local
// development and tests; all state is lost on restart.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]model.Account
	subs     map[string]model.Subscription
	usage    map[string]model.UsageCounter
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]model.Account),
		subs:     make(map[string]model.Subscription),
		usage:    make(map[string]model.UsageCounter),
	}
}

func (m *MemoryStore) UpsertAccount(_ context.Context, userID, email string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[userID]
	if !ok {
		a = model.Account{UserID: userID, CreatedAt: time.Now().UTC()}
	}
	if email != "" {
		a.Email = email
	}
	m.accounts[userID] = a
	return &a, nil
}

func (m *MemoryStore) GetAccount(_ context.Context, userID string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *MemoryStore) GetSubscription(_ context.Context, userID string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return copySubscription(sub), nil
}

func (m *MemoryStore) GetSubscriptionByStripeID(_ context.Context, stripeSubscriptionID string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sub := range m.subs {
		if model.Ref(sub.StripeSubscriptionID) == stripeSubscriptionID {
			return copySubscription(sub), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) SaveSubscription(_ context.Context, sub *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.saveLocked(*copySubscription(*sub))
	return nil
}

func (m *MemoryStore) saveLocked(sub model.Subscription) {
	now := time.Now().UTC()
	if existing, ok := m.subs[sub.UserID]; ok {
		sub.CreatedAt = existing.CreatedAt
	} else {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	m.subs[sub.UserID] = sub
}

func (m *MemoryStore) SetStripeCustomerID(_ context.Context, userID, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[userID]
	if !ok {
		return ErrNotFound
	}
	sub.StripeCustomerID = &customerID
	sub.UpdatedAt = time.Now().UTC()
	m.subs[userID] = sub
	return nil
}

func (m *MemoryStore) GetUsage(_ context.Context, userID string) (*model.UsageCounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.usage[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *MemoryStore) IncrementUsage(_ context.Context, userID string, amount, limit int) (int, error) {
	if amount < 1 {
		return 0, ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.usage[userID]
	if !ok {
		return 0, ErrNotFound
	}
	if u.Used+amount > limit {
		return 0, ErrQuotaExceeded
	}
	u.Used += amount
	u.UpdatedAt = time.Now().UTC()
	m.usage[userID] = u
	return u.Used, nil
}

func (m *MemoryStore) ResetUsage(_ context.Context, userID string, cycleExpiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resetLocked(userID, cycleExpiresAt)
	return nil
}

func (m *MemoryStore) resetLocked(userID string, cycleExpiresAt time.Time) {
	now := time.Now().UTC()
	m.usage[userID] = model.UsageCounter{
		UserID:         userID,
		CycleStartedAt: now,
		CycleExpiresAt: cycleExpiresAt.UTC(),
		UpdatedAt:      now,
	}
}

func (m *MemoryStore) ProvisionTrial(_ context.Context, sub *model.Subscription, cycleExpiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.subs[sub.UserID]; ok {
		return ErrAlreadyExists
	}
	m.saveLocked(*copySubscription(*sub))
	m.resetLocked(sub.UserID, cycleExpiresAt)
	return nil
}

func (m *MemoryStore) RestoreTrial(_ context.Context, userID, plan string, trialEndsAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[userID]
	if !ok {
		sub = model.Subscription{UserID: userID}
	}
	ends := trialEndsAt.UTC()
	sub.Plan = plan
	sub.Status = model.StatusTrialing
	sub.TrialEndsAt = &ends
	m.saveLocked(sub)
	m.resetLocked(userID, ends)
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func copySubscription(sub model.Subscription) *model.Subscription {
	out := sub
	if sub.StripeCustomerID != nil {
		v := *sub.StripeCustomerID
		out.StripeCustomerID = &v
	}
	if sub.StripeSubscriptionID != nil {
		v := *sub.StripeSubscriptionID
		out.StripeSubscriptionID = &v
	}
	if sub.TrialEndsAt != nil {
		v := *sub.TrialEndsAt
		out.TrialEndsAt = &v
	}
	return &out
}
