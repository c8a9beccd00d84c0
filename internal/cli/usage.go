package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dukerupert/prospector/internal/gate"
	"github.com/dukerupert/prospector/internal/model"
)

type usageView struct {
	UserID    string `json:"user_id" yaml:"user_id"`
	Plan      string `json:"plan" yaml:"plan"`
	Status    string `json:"status" yaml:"status"`
	Used      int    `json:"used" yaml:"used"`
	Quota     int    `json:"quota" yaml:"quota"`
	Remaining int    `json:"remaining" yaml:"remaining"`
	State     string `json:"state" yaml:"state"`
	Reason    string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

func newUsageCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Inspect usage counters",
	}

	show := &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show the current entitlement decision for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.storeFor()
			if err != nil {
				return err
			}
			catalog, err := a.catalog()
			if err != nil {
				return err
			}
			g := gate.New(s, catalog, a.logger.With("component", "gate"))
			out, err := g.Check(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("check %s: %w", args[0], err)
			}

			d := out.Decision
			v := usageView{
				UserID:    args[0],
				Plan:      out.Plan,
				Status:    string(out.Status),
				Used:      d.Used,
				Quota:     d.Quota,
				Remaining: d.Remaining,
				State:     string(d.State),
				Reason:    string(d.Reason),
			}
			return a.print(cmd.OutOrStdout(), v, func(t *Table) {
				t.Header("USER", "PLAN", "STATUS", "USED", "QUOTA", "STATE", "REASON")
				t.AddRow(v.UserID, v.Plan, v.Status, strconv.Itoa(v.Used), strconv.Itoa(v.Quota), v.State, orDash(v.Reason))
			})
		},
	}

	cmd.AddCommand(show)
	return cmd
}

type planView struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Quota       int    `json:"quota" yaml:"quota"`
	PriceCents  int64  `json:"price_cents" yaml:"price_cents"`
	Cadence     string `json:"cadence" yaml:"cadence"`
	StripePrice string `json:"stripe_price_id,omitempty" yaml:"stripe_price_id,omitempty"`
}

func newPlansCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Inspect the plan catalog",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List plans and their Stripe prices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := a.catalog()
			if err != nil {
				return err
			}
			var views []planView
			for _, p := range catalog.All() {
				views = append(views, newPlanView(p))
			}
			return a.print(cmd.OutOrStdout(), views, func(t *Table) {
				t.Header("ID", "NAME", "QUOTA", "PRICE", "CADENCE", "STRIPE PRICE")
				for _, v := range views {
					t.AddRow(v.ID, v.Name, strconv.Itoa(v.Quota), formatCents(v.PriceCents), v.Cadence, orDash(v.StripePrice))
				}
			})
		},
	}

	cmd.AddCommand(list)
	return cmd
}

func newPlanView(p model.Plan) planView {
	return planView{
		ID:          p.ID,
		Name:        p.Name,
		Quota:       p.Quota,
		PriceCents:  p.PriceCents,
		Cadence:     string(p.Cadence),
		StripePrice: p.StripePriceID,
	}
}

func formatCents(c int64) string {
	return fmt.Sprintf("%d.%02d", c/100, c%100)
}
