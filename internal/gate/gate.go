// Package gate enforces generation entitlements at request time. An allowed
// call charges exactly one generation to the usage ledger before the metered
// action runs; a blocked call leaves the ledger untouched.
package gate

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

// BlockedError is returned when the entitlement check refuses a generation.
type BlockedError struct {
	Reason entitlement.Reason `json:"reason"`
	Used   int                `json:"used"`
	Quota  int                `json:"quota"`
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("generation blocked: %s (%d/%d)", e.Reason, e.Used, e.Quota)
}

// Outcome is the entitlement snapshot after a gated call.
type Outcome struct {
	Plan     string               `json:"plan"`
	Status   model.Status         `json:"status"`
	Decision entitlement.Decision `json:"usage"`
}

type Gate struct {
	store   store.Store
	catalog *plan.Catalog
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Gate)

func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

func New(s store.Store, catalog *plan.Catalog, logger *slog.Logger, opts ...Option) *Gate {
	g := &Gate{
		store:   s,
		catalog: catalog,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check evaluates the user's entitlement without charging anything.
func (g *Gate) Check(ctx context.Context, userID string) (Outcome, error) {
	sub, usage, p, err := g.load(ctx, userID)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Plan:     p.ID,
		Status:   sub.Status,
		Decision: entitlement.Evaluate(sub, usage, p, g.now()),
	}, nil
}

// Run charges one generation and then calls fn with a context carrying the
// post-charge Outcome (see OutcomeFromContext). When the user is not
// entitled, Run returns a *BlockedError and fn is not called. An error from
// fn is returned as is; the generation stays charged.
func (g *Gate) Run(ctx context.Context, userID, action string, fn func(context.Context) error) (Outcome, error) {
	out, err := g.charge(ctx, userID, action)
	if err != nil {
		return out, err
	}
	if err := fn(context.WithValue(ctx, outcomeKey, out)); err != nil {
		metrics.ActionFailures.WithLabelValues(action).Inc()
		g.logger.Warn("gated action failed", "user_id", userID, "action", action, "error", err)
		return out, err
	}
	return out, nil
}

func (g *Gate) charge(ctx context.Context, userID, action string) (Outcome, error) {
	sub, usage, p, err := g.load(ctx, userID)
	if err != nil {
		metrics.GateDecisions.WithLabelValues(action, "error").Inc()
		if errors.Is(err, store.ErrNotFound) {
			g.logger.Error("account setup incomplete", "user_id", userID, "action", action)
		}
		return Outcome{}, err
	}

	now := g.now()
	d := entitlement.Evaluate(sub, usage, p, now)
	if !d.Allowed {
		return Outcome{Plan: p.ID, Status: sub.Status, Decision: d}, g.block(userID, action, d.Reason, d.Used, d.Quota)
	}

	used, err := g.store.IncrementUsage(ctx, userID, 1, p.Quota)
	if errors.Is(err, store.ErrQuotaExceeded) {
		// Another request took the last generation between evaluate and increment.
		current := p.Quota
		if u, err := g.store.GetUsage(ctx, userID); err == nil {
			current = u.Used
		}
		d = entitlement.Evaluate(sub, &model.UsageCounter{Used: current, CycleExpiresAt: usage.CycleExpiresAt}, p, now)
		return Outcome{Plan: p.ID, Status: sub.Status, Decision: d}, g.block(userID, action, entitlement.ReasonQuotaExhausted, current, p.Quota)
	}
	if err != nil {
		metrics.GateDecisions.WithLabelValues(action, "error").Inc()
		if errors.Is(err, store.ErrNotFound) {
			g.logger.Error("account setup incomplete", "user_id", userID, "action", action)
		}
		return Outcome{}, fmt.Errorf("increment usage: %w", err)
	}

	metrics.GateDecisions.WithLabelValues(action, "allowed").Inc()
	metrics.UsageIncrements.WithLabelValues(p.ID).Inc()

	after := *usage
	after.Used = used
	return Outcome{
		Plan:     p.ID,
		Status:   sub.Status,
		Decision: entitlement.Evaluate(sub, &after, p, now),
	}, nil
}

func (g *Gate) block(userID, action string, reason entitlement.Reason, used, quota int) error {
	metrics.GateDecisions.WithLabelValues(action, string(reason)).Inc()
	g.logger.Info("generation blocked",
		"user_id", userID,
		"action", action,
		"reason", reason,
		"used", used,
		"quota", quota,
	)
	return &BlockedError{Reason: reason, Used: used, Quota: quota}
}

func (g *Gate) load(ctx context.Context, userID string) (*model.Subscription, *model.UsageCounter, model.Plan, error) {
	sub, err := g.store.GetSubscription(ctx, userID)
	if err != nil {
		return nil, nil, model.Plan{}, fmt.Errorf("load subscription: %w", err)
	}
	usage, err := g.store.GetUsage(ctx, userID)
	if err != nil {
		return nil, nil, model.Plan{}, fmt.Errorf("load usage: %w", err)
	}
	p, err := g.catalog.Get(sub.Plan)
	if err != nil {
		g.logger.Error("subscription references unknown plan", "user_id", userID, "plan", sub.Plan)
		return nil, nil, model.Plan{}, err
	}
	return sub, usage, p, nil
}
