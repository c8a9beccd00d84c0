// Package billing translates payment-provider events into subscription state
// and usage counter changes.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/prospector/internal/model"
	"github.com/dukerupert/prospector/internal/plan"
	"github.com/dukerupert/prospector/internal/store"
)

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

var ErrMissingPeriodEnd = errors.New("event has no period end")

// CheckoutCompleted is emitted once the provider confirms a paid checkout.
type CheckoutCompleted struct {
	UserID          string
	Plan            string
	CustomerRef     string
	SubscriptionRef string
	PeriodEnd       time.Time
}

// SubscriptionRenewed marks the start of a new paid cycle.
type SubscriptionRenewed struct {
	SubscriptionRef string
	PeriodEnd       time.Time
}

type SubscriptionCanceled struct {
	SubscriptionRef string
}

type PaymentFailed struct {
	SubscriptionRef string
}

type Synchronizer struct {
	store   store.Store
	catalog *plan.Catalog
	logger  *slog.Logger
	locks   *userLocks
}

func NewSynchronizer(s store.Store, catalog *plan.Catalog, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		store:   s,
		catalog: catalog,
		logger:  logger,
		locks:   newUserLocks(),
	}
}

// CheckoutCompleted activates the purchased plan and starts a fresh cycle.
// A checkout for the subscription already on file is a redelivery and a no-op
// whatever the current status; reactivation needs a new subscription.
func (s *Synchronizer) CheckoutCompleted(ctx context.Context, ev CheckoutCompleted) (Outcome, error) {
	if ev.UserID == "" || ev.SubscriptionRef == "" {
		return OutcomeIgnored, fmt.Errorf("checkout completed: missing user or subscription reference")
	}
	if ev.PeriodEnd.IsZero() {
		return OutcomeIgnored, fmt.Errorf("checkout completed: %w", ErrMissingPeriodEnd)
	}
	p, err := s.catalog.Get(ev.Plan)
	if err != nil {
		return OutcomeIgnored, fmt.Errorf("checkout completed: %w", err)
	}

	unlock := s.locks.lock(ev.UserID)
	defer unlock()

	sub, err := s.store.GetSubscription(ctx, ev.UserID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		sub = &model.Subscription{UserID: ev.UserID}
	case err != nil:
		return OutcomeIgnored, fmt.Errorf("load subscription: %w", err)
	default:
		if model.Ref(sub.StripeSubscriptionID) == ev.SubscriptionRef {
			s.logger.Debug("duplicate checkout", "user_id", ev.UserID, "subscription", ev.SubscriptionRef, "status", sub.Status)
			return OutcomeDuplicate, nil
		}
	}

	subRef := ev.SubscriptionRef
	sub.Plan = p.ID
	sub.Status = model.StatusActive
	sub.StripeSubscriptionID = &subRef
	if ev.CustomerRef != "" {
		custRef := ev.CustomerRef
		sub.StripeCustomerID = &custRef
	}
	if err := s.store.SaveSubscription(ctx, sub); err != nil {
		return OutcomeIgnored, fmt.Errorf("save subscription: %w", err)
	}
	if err := s.store.ResetUsage(ctx, ev.UserID, ev.PeriodEnd.UTC()); err != nil {
		return OutcomeIgnored, fmt.Errorf("reset usage: %w", err)
	}

	s.logger.Info("subscription activated",
		"user_id", ev.UserID,
		"plan", p.ID,
		"subscription", ev.SubscriptionRef,
		"cycle_expires_at", ev.PeriodEnd.UTC(),
	)
	return OutcomeApplied, nil
}

// SubscriptionRenewed zeroes the counter for the new cycle. A past_due
// subscription that renews is active again.
func (s *Synchronizer) SubscriptionRenewed(ctx context.Context, ev SubscriptionRenewed) (Outcome, error) {
	if ev.PeriodEnd.IsZero() {
		return OutcomeIgnored, fmt.Errorf("subscription renewed: %w", ErrMissingPeriodEnd)
	}
	return s.withSubscription(ctx, "renewed", ev.SubscriptionRef, func(sub *model.Subscription) (Outcome, error) {
		if sub.Status != model.StatusActive && sub.Status != model.StatusPastDue {
			s.logger.Info("renewal for inactive subscription ignored", "user_id", sub.UserID, "status", sub.Status)
			return OutcomeIgnored, nil
		}

		periodEnd := ev.PeriodEnd.UTC()
		usage, err := s.store.GetUsage(ctx, sub.UserID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return OutcomeIgnored, fmt.Errorf("load usage: %w", err)
		}
		sameCycle := usage != nil && usage.CycleExpiresAt.Equal(periodEnd)
		if sameCycle && sub.Status == model.StatusActive {
			return OutcomeDuplicate, nil
		}

		if sub.Status == model.StatusPastDue {
			sub.Status = model.StatusActive
			if err := s.store.SaveSubscription(ctx, sub); err != nil {
				return OutcomeIgnored, fmt.Errorf("save subscription: %w", err)
			}
		}
		if !sameCycle {
			if err := s.store.ResetUsage(ctx, sub.UserID, periodEnd); err != nil {
				return OutcomeIgnored, fmt.Errorf("reset usage: %w", err)
			}
		}
		s.logger.Info("subscription renewed", "user_id", sub.UserID, "cycle_expires_at", periodEnd)
		return OutcomeApplied, nil
	})
}

// SubscriptionCanceled leaves the counter alone so remaining generations can
// be used until the paid cycle ends.
func (s *Synchronizer) SubscriptionCanceled(ctx context.Context, ev SubscriptionCanceled) (Outcome, error) {
	return s.withSubscription(ctx, "canceled", ev.SubscriptionRef, func(sub *model.Subscription) (Outcome, error) {
		if sub.Status == model.StatusCanceled {
			return OutcomeDuplicate, nil
		}
		sub.Status = model.StatusCanceled
		if err := s.store.SaveSubscription(ctx, sub); err != nil {
			return OutcomeIgnored, fmt.Errorf("save subscription: %w", err)
		}
		s.logger.Info("subscription canceled", "user_id", sub.UserID)
		return OutcomeApplied, nil
	})
}

func (s *Synchronizer) PaymentFailed(ctx context.Context, ev PaymentFailed) (Outcome, error) {
	return s.withSubscription(ctx, "payment failed", ev.SubscriptionRef, func(sub *model.Subscription) (Outcome, error) {
		switch sub.Status {
		case model.StatusPastDue:
			return OutcomeDuplicate, nil
		case model.StatusActive:
		default:
			s.logger.Info("payment failure ignored", "user_id", sub.UserID, "status", sub.Status)
			return OutcomeIgnored, nil
		}
		sub.Status = model.StatusPastDue
		if err := s.store.SaveSubscription(ctx, sub); err != nil {
			return OutcomeIgnored, fmt.Errorf("save subscription: %w", err)
		}
		s.logger.Warn("subscription past due", "user_id", sub.UserID)
		return OutcomeApplied, nil
	})
}

// withSubscription resolves the provider reference to a user, takes that
// user's lock and re-reads the row before calling fn. Unknown references are
// acknowledged and ignored.
func (s *Synchronizer) withSubscription(ctx context.Context, event, ref string, fn func(*model.Subscription) (Outcome, error)) (Outcome, error) {
	if ref == "" {
		return OutcomeIgnored, nil
	}
	sub, err := s.store.GetSubscriptionByStripeID(ctx, ref)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("event for unknown subscription", "event", event, "subscription", ref)
		return OutcomeIgnored, nil
	}
	if err != nil {
		return OutcomeIgnored, fmt.Errorf("lookup subscription %s: %w", ref, err)
	}

	unlock := s.locks.lock(sub.UserID)
	defer unlock()

	sub, err = s.store.GetSubscription(ctx, sub.UserID)
	if err != nil {
		return OutcomeIgnored, fmt.Errorf("reload subscription: %w", err)
	}
	if model.Ref(sub.StripeSubscriptionID) != ref {
		s.logger.Warn("subscription reference changed", "event", event, "user_id", sub.UserID, "subscription", ref)
		return OutcomeIgnored, nil
	}
	return fn(sub)
}
