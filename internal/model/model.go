package model

import "time"

// Status is the lifecycle status of a user's subscription.
type Status string

const (
	StatusTrialing Status = "trialing"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
	StatusFree     Status = "free"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusTrialing, StatusActive, StatusPastDue, StatusCanceled, StatusFree:
		return true
	}
	return false
}

type Cadence string

const (
	CadenceTrial   Cadence = "trial"
	CadenceMonthly Cadence = "monthly"
	CadenceAnnual  Cadence = "annual"
)

// Plan IDs that the service itself refers to. Paid plans come from the catalog.
const (
	PlanTrial = "trial"
	PlanFree  = "free"
)

type Account struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type Plan struct {
	ID            string  `json:"id" yaml:"id"`
	Name          string  `json:"name" yaml:"name"`
	Quota         int     `json:"quota" yaml:"quota"`
	PriceCents    int64   `json:"price_cents" yaml:"price_cents"`
	Currency      string  `json:"currency" yaml:"currency"`
	Cadence       Cadence `json:"cadence" yaml:"cadence"`
	StripePriceID string  `json:"-" yaml:"stripe_price_id"`
}

type Subscription struct {
	UserID               string     `json:"user_id"`
	Plan                 string     `json:"plan"`
	Status               Status     `json:"status"`
	StripeCustomerID     *string    `json:"stripe_customer_id"`
	StripeSubscriptionID *string    `json:"stripe_subscription_id"`
	TrialEndsAt          *time.Time `json:"trial_ends_at"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

type UsageCounter struct {
	UserID         string    `json:"user_id"`
	Used           int       `json:"used"`
	CycleStartedAt time.Time `json:"cycle_started_at"`
	CycleExpiresAt time.Time `json:"cycle_expires_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Ref dereferences an optional provider reference, returning "" for nil.
func Ref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
