// Package plan holds the deployment-time plan catalog. Plans are reference
// data: they are loaded once at startup and never mutated.
package plan

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dukerupert/prospector/internal/model"
)

// ErrUnknownPlan means a plan id has no catalog entry. It is a configuration
// error and must never be shown to end users verbatim.
var ErrUnknownPlan = errors.New("unknown plan")

// DefaultPlans is the catalog used when no plans file is configured.
var DefaultPlans = []model.Plan{
	{ID: model.PlanTrial, Name: "Trial", Quota: 10, Currency: "usd", Cadence: model.CadenceTrial},
	{ID: model.PlanFree, Name: "Free", Quota: 0, Currency: "usd", Cadence: model.CadenceMonthly},
	{ID: "starter", Name: "Starter", Quota: 50, PriceCents: 4900, Currency: "usd", Cadence: model.CadenceMonthly},
	{ID: "pro", Name: "Pro", Quota: 200, PriceCents: 14900, Currency: "usd", Cadence: model.CadenceMonthly},
	{ID: "pro_annual", Name: "Pro (annual)", Quota: 200, PriceCents: 149000, Currency: "usd", Cadence: model.CadenceAnnual},
}

type Catalog struct {
	plans   map[string]model.Plan
	byPrice map[string]string
}

type catalogFile struct {
	Plans []model.Plan `yaml:"plans"`
}

// Load reads the catalog from a YAML file. An empty path yields DefaultPlans.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return New(DefaultPlans)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plans file: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse plans file: %w", err)
	}
	return New(f.Plans)
}

// New validates plans and builds a catalog. The trial and free plans must be
// present since the trial manager and synchronizer refer to them by id.
func New(plans []model.Plan) (*Catalog, error) {
	c := &Catalog{
		plans:   make(map[string]model.Plan, len(plans)),
		byPrice: make(map[string]string),
	}
	for _, p := range plans {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return nil, errors.New("plan with empty id")
		}
		if _, dup := c.plans[p.ID]; dup {
			return nil, fmt.Errorf("duplicate plan %q", p.ID)
		}
		if p.Quota < 0 {
			return nil, fmt.Errorf("plan %q: negative quota %d", p.ID, p.Quota)
		}
		if p.Cadence == "" {
			p.Cadence = model.CadenceMonthly
		}
		if p.Name == "" {
			p.Name = p.ID
		}
		if p.StripePriceID != "" {
			if other, dup := c.byPrice[p.StripePriceID]; dup {
				return nil, fmt.Errorf("plans %q and %q share stripe price %q", other, p.ID, p.StripePriceID)
			}
			c.byPrice[p.StripePriceID] = p.ID
		}
		c.plans[p.ID] = p
	}
	for _, required := range []string{model.PlanTrial, model.PlanFree} {
		if _, ok := c.plans[required]; !ok {
			return nil, fmt.Errorf("catalog is missing the %q plan", required)
		}
	}
	return c, nil
}

// Get returns the plan with the given id or ErrUnknownPlan.
func (c *Catalog) Get(id string) (model.Plan, error) {
	p, ok := c.plans[id]
	if !ok {
		return model.Plan{}, fmt.Errorf("%w: %q", ErrUnknownPlan, id)
	}
	return p, nil
}

// ByStripePrice maps a Stripe price id back to a plan.
func (c *Catalog) ByStripePrice(priceID string) (model.Plan, error) {
	id, ok := c.byPrice[priceID]
	if !ok {
		return model.Plan{}, fmt.Errorf("%w: no plan for price %q", ErrUnknownPlan, priceID)
	}
	return c.plans[id], nil
}

// Purchasable reports whether the plan exists and can be bought through checkout.
func (c *Catalog) Purchasable(id string) bool {
	p, ok := c.plans[id]
	return ok && p.StripePriceID != ""
}

// All returns every plan ordered by price, then id.
func (c *Catalog) All() []model.Plan {
	out := make([]model.Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PriceCents != out[j].PriceCents {
			return out[i].PriceCents < out[j].PriceCents
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// WithPrices returns a copy of the catalog with Stripe price ids assigned from
// the given map (plan id -> price id). Used to inject price ids from the
// environment when the catalog comes from defaults.
func (c *Catalog) WithPrices(prices map[string]string) (*Catalog, error) {
	plans := make([]model.Plan, 0, len(c.plans))
	for _, p := range c.All() {
		if price, ok := prices[p.ID]; ok && price != "" {
			p.StripePriceID = price
		}
		plans = append(plans, p)
	}
	for id := range prices {
		if _, ok := c.plans[id]; !ok {
			return nil, fmt.Errorf("%w: price configured for %q", ErrUnknownPlan, id)
		}
	}
	return New(plans)
}
