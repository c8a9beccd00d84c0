// Package entitlement decides whether a user may consume another generation.
// Evaluate is a pure function of the subscription, the usage counter, the
// plan and the current time.
package entitlement

import (
	"time"

	"github.com/dukerupert/prospector/internal/model"
)

type State string

const (
	StateOK      State = "ok"
	StateWarning State = "warning"
	StateBlocked State = "blocked"
)

// Reason explains a blocked decision so callers can show the right upgrade
// message. It is empty unless State is StateBlocked.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonTrialExpired      Reason = "trial_expired"
	ReasonQuotaExhausted    Reason = "quota_exhausted"
	ReasonSubscriptionEnded Reason = "subscription_ended"
)

// Warning threshold as a fraction: used/quota >= 4/5.
const (
	warnNum = 4
	warnDen = 5
)

type Decision struct {
	Allowed   bool   `json:"allowed"`
	Used      int    `json:"used"`
	Quota     int    `json:"quota"`
	Remaining int    `json:"remaining"`
	State     State  `json:"state"`
	Reason    Reason `json:"reason,omitempty"`
}

// TrialExpired reports whether a trialing subscription has reached its end.
func TrialExpired(sub *model.Subscription, now time.Time) bool {
	if sub == nil || sub.Status != model.StatusTrialing {
		return false
	}
	return sub.TrialEndsAt != nil && !now.Before(*sub.TrialEndsAt)
}

// Evaluate computes the entitlement decision. Trial expiry takes precedence
// over the generation count. past_due subscriptions are evaluated like
// active ones. A canceled subscription keeps its remaining generations until
// the paid cycle ends.
func Evaluate(sub *model.Subscription, usage *model.UsageCounter, plan model.Plan, now time.Time) Decision {
	used := 0
	if usage != nil {
		used = usage.Used
	}
	quota := plan.Quota
	d := Decision{
		Used:      used,
		Quota:     quota,
		Remaining: max(quota-used, 0),
	}

	switch {
	case TrialExpired(sub, now):
		return blocked(d, ReasonTrialExpired)
	case sub != nil && sub.Status == model.StatusCanceled && usage != nil && !now.Before(usage.CycleExpiresAt):
		return blocked(d, ReasonSubscriptionEnded)
	case quota <= 0 || used >= quota:
		return blocked(d, ReasonQuotaExhausted)
	case used*warnDen >= quota*warnNum:
		d.Allowed = true
		d.State = StateWarning
		return d
	default:
		d.Allowed = true
		d.State = StateOK
		return d
	}
}

func blocked(d Decision, reason Reason) Decision {
	d.Allowed = false
	d.State = StateBlocked
	d.Reason = reason
	return d
}
