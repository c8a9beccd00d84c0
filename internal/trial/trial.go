// Package trial manages the 14-day trial lifecycle:
//
//	no_trial -> trialing -> expired | converted
//
// expired is terminal unless a support operator restores the trial. converted
// is entered only when a paid subscription is activated by the billing
// synchronizer.
package trial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/prospector/internal/entitlement"
	"github.com/dukerupert/prospector/internal/metrics"
	"github.com/dukerupert/prospector/internal/model"
	"github.com/dukerupert/prospector/internal/plan"
	"github.com/dukerupert/prospector/internal/store"
)

// Length is the duration of every trial, including restored ones.
const Length = 14 * 24 * time.Hour

var (
	ErrTrialActive = errors.New("trial has not expired")
	ErrNotTrialing = errors.New("subscription is not trialing")
)

type State string

const (
	StateNoTrial   State = "no_trial"
	StateTrialing  State = "trialing"
	StateExpired   State = "expired"
	StateConverted State = "converted"
)

type Manager struct {
	store   store.Store
	catalog *plan.Catalog
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func NewManager(s store.Store, catalog *plan.Catalog, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:   s,
		catalog: catalog,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start creates the user's trial subscription and usage counter. A user gets
// one trial; a second call fails with store.ErrAlreadyExists.
func (m *Manager) Start(ctx context.Context, userID, email string) (*model.Subscription, error) {
	if _, err := m.catalog.Get(model.PlanTrial); err != nil {
		return nil, err
	}
	if _, err := m.store.UpsertAccount(ctx, userID, email); err != nil {
		return nil, fmt.Errorf("record account: %w", err)
	}

	ends := m.now().UTC().Add(Length)
	sub := &model.Subscription{
		UserID:      userID,
		Plan:        model.PlanTrial,
		Status:      model.StatusTrialing,
		TrialEndsAt: &ends,
	}
	if err := m.store.ProvisionTrial(ctx, sub, ends); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("provision trial: %w", err)
	}
	metrics.TrialTransitions.WithLabelValues("start").Inc()
	m.logger.Info("trial started", "user_id", userID, "trial_ends_at", ends)
	return m.store.GetSubscription(ctx, userID)
}

// Restore puts the user back on a fresh trial with zero usage, whatever the
// prior status. It is a support operation, not user self-service.
func (m *Manager) Restore(ctx context.Context, userID string) (*model.Subscription, error) {
	if _, err := m.catalog.Get(model.PlanTrial); err != nil {
		return nil, err
	}
	var prior model.Status
	if sub, err := m.store.GetSubscription(ctx, userID); err == nil {
		prior = sub.Status
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load subscription: %w", err)
	}

	ends := m.now().UTC().Add(Length)
	if err := m.store.RestoreTrial(ctx, userID, model.PlanTrial, ends); err != nil {
		return nil, fmt.Errorf("restore trial: %w", err)
	}
	metrics.TrialTransitions.WithLabelValues("restore").Inc()
	m.logger.Info("trial restored", "user_id", userID, "prior_status", prior, "trial_ends_at", ends)
	return m.store.GetSubscription(ctx, userID)
}

// Lapse moves an expired trial onto the free plan.
func (m *Manager) Lapse(ctx context.Context, userID string) (*model.Subscription, error) {
	sub, err := m.store.GetSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.Status != model.StatusTrialing {
		return nil, ErrNotTrialing
	}
	if !m.IsExpired(sub) {
		return nil, ErrTrialActive
	}
	if _, err := m.catalog.Get(model.PlanFree); err != nil {
		return nil, err
	}

	sub.Status = model.StatusFree
	sub.Plan = model.PlanFree
	if err := m.store.SaveSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("save subscription: %w", err)
	}
	metrics.TrialTransitions.WithLabelValues("lapse").Inc()
	m.logger.Info("trial lapsed to free plan", "user_id", userID)
	return sub, nil
}

// IsExpired reports whether sub is a trial whose end has been reached.
func (m *Manager) IsExpired(sub *model.Subscription) bool {
	return IsExpired(sub, m.now())
}

// State reports the lifecycle state for the user.
func (m *Manager) State(ctx context.Context, userID string) (State, error) {
	sub, err := m.store.GetSubscription(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return StateNoTrial, nil
	}
	if err != nil {
		return "", err
	}
	return StateOf(sub, m.now()), nil
}

func IsExpired(sub *model.Subscription, now time.Time) bool {
	return entitlement.TrialExpired(sub, now)
}

// StateOf maps a subscription onto the trial state machine.
func StateOf(sub *model.Subscription, now time.Time) State {
	switch {
	case sub == nil:
		return StateNoTrial
	case sub.Status == model.StatusTrialing && IsExpired(sub, now):
		return StateExpired
	case sub.Status == model.StatusTrialing:
		return StateTrialing
	case sub.StripeSubscriptionID != nil:
		return StateConverted
	default:
		return StateExpired
	}
}
