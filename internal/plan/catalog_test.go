package plan

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dukerupert/prospector/internal/model"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	p, err := c.Get(model.PlanTrial)
	if err != nil {
		t.Fatalf("get trial: %v", err)
	}
	if p.Quota != 10 {
		t.Errorf("trial quota = %d, want 10", p.Quota)
	}
}

func TestGetUnknownPlan(t *testing.T) {
	c, _ := Load("")
	_, err := c.Get("enterprise")
	if !errors.Is(err, ErrUnknownPlan) {
		t.Fatalf("err = %v, want ErrUnknownPlan", err)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	data := `plans:
  - id: trial
    quota: 5
    cadence: trial
  - id: free
    quota: 0
  - id: team
    name: Team
    quota: 500
    price_cents: 29900
    currency: usd
    cadence: annual
    stripe_price_id: price_team
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write plans: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	team, err := c.ByStripePrice("price_team")
	if err != nil {
		t.Fatalf("by price: %v", err)
	}
	if team.ID != "team" || team.Quota != 500 || team.Cadence != model.CadenceAnnual {
		t.Errorf("team = %+v", team)
	}
	if !c.Purchasable("team") {
		t.Error("team should be purchasable")
	}
	if c.Purchasable("trial") {
		t.Error("trial should not be purchasable")
	}
	free, _ := c.Get("free")
	if free.Cadence != model.CadenceMonthly {
		t.Errorf("free cadence = %q, want default monthly", free.Cadence)
	}
}

func TestNewRejectsBadCatalogs(t *testing.T) {
	base := []model.Plan{{ID: "trial", Quota: 1}, {ID: "free"}}
	tests := []struct {
		name  string
		plans []model.Plan
	}{
		{"negative quota", append(base, model.Plan{ID: "x", Quota: -1})},
		{"duplicate id", append(base, model.Plan{ID: "free"})},
		{"empty id", append(base, model.Plan{ID: " "})},
		{"missing trial", []model.Plan{{ID: "free"}}},
		{"shared price", append(base,
			model.Plan{ID: "a", StripePriceID: "price_1"},
			model.Plan{ID: "b", StripePriceID: "price_1"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.plans); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestWithPrices(t *testing.T) {
	c, _ := Load("")
	priced, err := c.WithPrices(map[string]string{"starter": "price_s", "pro": "price_p"})
	if err != nil {
		t.Fatalf("with prices: %v", err)
	}
	if !priced.Purchasable("starter") || !priced.Purchasable("pro") {
		t.Error("expected starter and pro to be purchasable")
	}
	if priced.Purchasable("pro_annual") {
		t.Error("pro_annual has no price and should not be purchasable")
	}
	if c.Purchasable("starter") {
		t.Error("original catalog must not be modified")
	}

	if _, err := c.WithPrices(map[string]string{"gold": "price_g"}); !errors.Is(err, ErrUnknownPlan) {
		t.Errorf("err = %v, want ErrUnknownPlan", err)
	}
}

func TestAllOrdered(t *testing.T) {
	c, _ := Load("")
	all := c.All()
	if len(all) != len(DefaultPlans) {
		t.Fatalf("len = %d, want %d", len(all), len(DefaultPlans))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].PriceCents > all[i].PriceCents {
			t.Errorf("plans not ordered by price: %q before %q", all[i-1].ID, all[i].ID)
		}
	}
}
