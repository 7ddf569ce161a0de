package client

import "github.com/tbeaudouin05/stripe-entitlements/api/config"

// PlanName resolves the entitlement's price to its display name.
func PlanName(catalog config.PlanCatalog, e Entitlement) (string, bool) {
	if e.PriceID == nil {
		return "", false
	}
	p, ok := catalog.Lookup(*e.PriceID)
	return p.Name, ok
}

// Subscribed reports whether e is an active subscription to priceID.
func Subscribed(e Entitlement, priceID string) bool {
	return e.IsActive() && e.PriceID != nil && *e.PriceID == priceID
}
