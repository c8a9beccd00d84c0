// Package store persists accounts, subscription state and usage counters.
//
// Two implementations exist: SQLStore (SQLite via database/sql) and
// MemoryStore. The application picks one at startup; nothing downstream
// inspects which one it got.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/dukerupert/prospector/internal/model"
)

var (
	// ErrNotFound means the row for a user does not exist. For an
	// authenticated user this is a provisioning gap.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when provisioning a user that already has
	// a subscription.
	ErrAlreadyExists = errors.New("already exists")
	// ErrQuotaExceeded means a conditional increment was refused because it
	// would take the counter past its limit.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrInvalidAmount is returned for increments below one.
	ErrInvalidAmount = errors.New("increment amount must be positive")
)

type Accounts interface {
	UpsertAccount(ctx context.Context, userID, email string) (*model.Account, error)
	GetAccount(ctx context.Context, userID string) (*model.Account, error)
}

type Subscriptions interface {
	GetSubscription(ctx context.Context, userID string) (*model.Subscription, error)
	GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*model.Subscription, error)
	// SaveSubscription inserts or fully replaces the user's subscription row.
	SaveSubscription(ctx context.Context, sub *model.Subscription) error
	SetStripeCustomerID(ctx context.Context, userID, customerID string) error
}

// Ledger is the usage ledger. The counter only moves forward through
// IncrementUsage and back to zero through ResetUsage.
type Ledger interface {
	GetUsage(ctx context.Context, userID string) (*model.UsageCounter, error)
	// IncrementUsage adds amount to the counter only while the result stays
	// at or below limit, as one atomic operation. It returns the new count.
	IncrementUsage(ctx context.Context, userID string, amount, limit int) (int, error)
	ResetUsage(ctx context.Context, userID string, cycleExpiresAt time.Time) error
}

type Store interface {
	Accounts
	Subscriptions
	Ledger

	// ProvisionTrial creates the subscription and its usage counter together.
	// It fails with ErrAlreadyExists when the user already has a subscription.
	ProvisionTrial(ctx context.Context, sub *model.Subscription, cycleExpiresAt time.Time) error
	// RestoreTrial puts the user back on a trial with a zeroed counter,
	// creating rows as needed. Provider references are preserved.
	RestoreTrial(ctx context.Context, userID, plan string, trialEndsAt time.Time) error

	Ping(ctx context.Context) error
}
