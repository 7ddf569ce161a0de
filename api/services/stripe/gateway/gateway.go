package gateway

//go:generate mockgen -destination=mock/mock_gateway.go -package=mock_gateway . StripeGateway

import (
	"context"

	stripe "github.com/stripe/stripe-go/v82"
)

// StripeGateway abstracts the Stripe API calls the app layer makes.
// Methods return values (not pointers) to keep SDK pointers out of the domain.
type StripeGateway interface {
	// CreateCheckoutSession opens a hosted subscription checkout.
	CreateCheckoutSession(ctx context.Context, params stripe.CheckoutSessionParams) (stripe.CheckoutSession, error)
	// GetSubscription fetches the full subscription, items and plans included.
	GetSubscription(ctx context.Context, id string) (stripe.Subscription, error)
}
