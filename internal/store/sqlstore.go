package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/prospector/internal/model"
)

var _ Store = (*SQLStore)(nil)

// SQLStore is the SQLite-backed Store.
type SQLStore struct {
	*AccountStore
	*SubscriptionStore
	*UsageStore
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{
		AccountStore:      NewAccountStore(db),
		SubscriptionStore: NewSubscriptionStore(db),
		UsageStore:        NewUsageStore(db),
		db:                db,
	}
}

func (s *SQLStore) ProvisionTrial(ctx context.Context, sub *model.Subscription, cycleExpiresAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO subscriptions (user_id, plan, status, stripe_customer_id, stripe_subscription_id, trial_ends_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO NOTHING`,
		sub.UserID, sub.Plan, string(sub.Status), sub.StripeCustomerID, sub.StripeSubscriptionID,
		utcPtr(sub.TrialEndsAt), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrAlreadyExists
	}

	if err := resetUsage(ctx, tx, sub.UserID, cycleExpiresAt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLStore) RestoreTrial(ctx context.Context, userID, plan string, trialEndsAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ends := trialEndsAt.UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO subscriptions (user_id, plan, status, trial_ends_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		   plan = excluded.plan,
		   status = excluded.status,
		   trial_ends_at = excluded.trial_ends_at,
		   updated_at = excluded.updated_at`,
		userID, plan, string(model.StatusTrialing), ends, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("restore subscription: %w", err)
	}
	if err := resetUsage(ctx, tx, userID, ends); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
