package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/prospector/internal/model"
)

type SubscriptionStore struct {
	db *sql.DB
}

func NewSubscriptionStore(db *sql.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func scanSubscription(scanner interface{ Scan(...any) error }) (*model.Subscription, error) {
	var sub model.Subscription
	var customerID, stripeSubID sql.NullString
	var trialEndsAt sql.NullTime
	var status string
	err := scanner.Scan(
		&sub.UserID, &sub.Plan, &status, &customerID, &stripeSubID,
		&trialEndsAt, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.Status = model.Status(status)
	if customerID.Valid {
		sub.StripeCustomerID = &customerID.String
	}
	if stripeSubID.Valid {
		sub.StripeSubscriptionID = &stripeSubID.String
	}
	if trialEndsAt.Valid {
		t := trialEndsAt.Time.UTC()
		sub.TrialEndsAt = &t
	}
	return &sub, nil
}

const subscriptionCols = `user_id, plan, status, stripe_customer_id, stripe_subscription_id, trial_ends_at, created_at, updated_at`

func (s *SubscriptionStore) GetSubscription(ctx context.Context, userID string) (*model.Subscription, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+subscriptionCols+` FROM subscriptions WHERE user_id = ?`, userID)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*model.Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+subscriptionCols+` FROM subscriptions WHERE stripe_subscription_id = ?`,
		stripeSubscriptionID,
	)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription by stripe id: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) SaveSubscription(ctx context.Context, sub *model.Subscription) error {
	return saveSubscription(ctx, s.db, sub)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveSubscription(ctx context.Context, db execer, sub *model.Subscription) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO subscriptions (user_id, plan, status, stripe_customer_id, stripe_subscription_id, trial_ends_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		   plan = excluded.plan,
		   status = excluded.status,
		   stripe_customer_id = excluded.stripe_customer_id,
		   stripe_subscription_id = excluded.stripe_subscription_id,
		   trial_ends_at = excluded.trial_ends_at,
		   updated_at = excluded.updated_at`,
		sub.UserID, sub.Plan, string(sub.Status), sub.StripeCustomerID, sub.StripeSubscriptionID,
		utcPtr(sub.TrialEndsAt), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) SetStripeCustomerID(ctx context.Context, userID, customerID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET stripe_customer_id = ?, updated_at = ? WHERE user_id = ?`,
		customerID, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("set stripe customer id: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
