package config

import (
	"fmt"
	"strings"
)

// Plan is a purchasable subscription tier, identified by its Stripe price.
type Plan struct {
	PriceID string `json:"price_id"`
	Name    string `json:"name"`
}

// PlanCatalog is the closed set of prices the checkout endpoint accepts.
type PlanCatalog struct {
	plans   []Plan
	byPrice map[string]Plan
}

// ParsePlans reads "price_id=Name" pairs separated by commas. Order is kept.
func ParsePlans(raw string) (PlanCatalog, error) {
	catalog := PlanCatalog{byPrice: map[string]Plan{}}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		priceID, name, ok := strings.Cut(entry, "=")
		priceID = strings.TrimSpace(priceID)
		name = strings.TrimSpace(name)
		if !ok || priceID == "" || name == "" {
			return PlanCatalog{}, fmt.Errorf("invalid plan entry %q: expected price_id=Name", entry)
		}
		if _, dup := catalog.byPrice[priceID]; dup {
			return PlanCatalog{}, fmt.Errorf("duplicate plan price id %q", priceID)
		}
		p := Plan{PriceID: priceID, Name: name}
		catalog.plans = append(catalog.plans, p)
		catalog.byPrice[priceID] = p
	}
	if len(catalog.plans) == 0 {
		return PlanCatalog{}, fmt.Errorf("no plans configured")
	}
	return catalog, nil
}

// NewPlanCatalog builds a catalog from already-validated plans.
func NewPlanCatalog(plans ...Plan) PlanCatalog {
	catalog := PlanCatalog{byPrice: make(map[string]Plan, len(plans))}
	for _, p := range plans {
		catalog.plans = append(catalog.plans, p)
		catalog.byPrice[p.PriceID] = p
	}
	return catalog
}

// Lookup resolves a price id to its plan.
func (c PlanCatalog) Lookup(priceID string) (Plan, bool) {
	p, ok := c.byPrice[strings.TrimSpace(priceID)]
	return p, ok
}

// Plans returns the configured plans in declaration order.
func (c PlanCatalog) Plans() []Plan {
	out := make([]Plan, len(c.plans))
	copy(out, c.plans)
	return out
}
