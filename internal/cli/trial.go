package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/prospector/internal/model"
	"github.com/dukerupert/prospector/internal/trial"
)

type subscriptionView struct {
	UserID         string     `json:"user_id" yaml:"user_id"`
	Plan           string     `json:"plan" yaml:"plan"`
	Status         string     `json:"status" yaml:"status"`
	TrialState     string     `json:"trial_state" yaml:"trial_state"`
	TrialEndsAt    *time.Time `json:"trial_ends_at,omitempty" yaml:"trial_ends_at,omitempty"`
	StripeCustomer string     `json:"stripe_customer_id,omitempty" yaml:"stripe_customer_id,omitempty"`
}

func newSubscriptionView(sub *model.Subscription, now time.Time) subscriptionView {
	return subscriptionView{
		UserID:         sub.UserID,
		Plan:           sub.Plan,
		Status:         string(sub.Status),
		TrialState:     string(trial.StateOf(sub, now)),
		TrialEndsAt:    sub.TrialEndsAt,
		StripeCustomer: model.Ref(sub.StripeCustomerID),
	}
}

func (a *app) printSubscription(cmd *cobra.Command, sub *model.Subscription) error {
	v := newSubscriptionView(sub, time.Now())
	return a.print(cmd.OutOrStdout(), v, func(t *Table) {
		t.Header("USER", "PLAN", "STATUS", "TRIAL", "TRIAL ENDS")
		t.AddRow(v.UserID, v.Plan, v.Status, v.TrialState, formatTime(v.TrialEndsAt))
	})
}

func (a *app) trials() (*trial.Manager, error) {
	s, err := a.storeFor()
	if err != nil {
		return nil, err
	}
	catalog, err := a.catalog()
	if err != nil {
		return nil, err
	}
	return trial.NewManager(s, catalog, a.logger.With("component", "trial")), nil
}

func newTrialCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trial",
		Short: "Manage user trials",
	}

	var email string
	start := &cobra.Command{
		Use:   "start <user-id>",
		Short: "Provision a new trial",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tm, err := a.trials()
			if err != nil {
				return err
			}
			sub, err := tm.Start(cmd.Context(), args[0], email)
			if err != nil {
				return err
			}
			return a.printSubscription(cmd, sub)
		},
	}
	start.Flags().StringVar(&email, "email", "", "account email")

	restore := &cobra.Command{
		Use:   "restore <user-id>",
		Short: "Put a user back on a fresh 14-day trial with zero usage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tm, err := a.trials()
			if err != nil {
				return err
			}
			sub, err := tm.Restore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printSubscription(cmd, sub)
		},
	}

	lapse := &cobra.Command{
		Use:   "lapse <user-id>",
		Short: "Move an expired trial to the free plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tm, err := a.trials()
			if err != nil {
				return err
			}
			sub, err := tm.Lapse(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printSubscription(cmd, sub)
		},
	}

	cmd.AddCommand(start, restore, lapse)
	return cmd
}
