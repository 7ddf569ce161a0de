package app

import (
	"time"

	stripedb "github.com/tbeaudouin05/stripe-entitlements/api/services/stripe/db"
)

// ProjectSubscription maps a subscription onto the entitlement fields using
// its first item. customerID wins over the subscription's own customer when
// set. ok is false, with a reason, for payloads too partial to project.
func ProjectSubscription(sub Subscription, customerID string) (p stripedb.Projection, ok bool, reason string) {
	if sub.ID == "" {
		return stripedb.Projection{}, false, "subscription has no id"
	}
	if len(sub.Items.Data) == 0 {
		return stripedb.Projection{}, false, "subscription has no items"
	}
	item := sub.Items.Data[0]
	if item.Plan == nil || item.Plan.ID == "" {
		return stripedb.Projection{}, false, "subscription item has no plan"
	}
	if item.CurrentPeriodStart == nil || item.CurrentPeriodEnd == nil {
		return stripedb.Projection{}, false, "subscription item has no billing period"
	}
	if customerID == "" {
		customerID = sub.Customer.ID
	}
	return stripedb.Projection{
		SubscriptionID: sub.ID,
		CustomerID:     customerID,
		PriceID:        item.Plan.ID,
		ProductID:      item.Plan.Product.ID,
		Status:         sub.Status,
		PeriodStart:    time.Unix(*item.CurrentPeriodStart, 0).UTC(),
		PeriodEnd:      time.Unix(*item.CurrentPeriodEnd, 0).UTC(),
	}, true, ""
}
