package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	stripe "github.com/stripe/stripe-go/v82"

	"github.com/tbeaudouin05/stripe-entitlements/api/auth"
	config "github.com/tbeaudouin05/stripe-entitlements/api/config"
	"github.com/tbeaudouin05/stripe-entitlements/api/metrics"
	stripedb "github.com/tbeaudouin05/stripe-entitlements/api/services/stripe/db"
	gw "github.com/tbeaudouin05/stripe-entitlements/api/services/stripe/gateway"
)

// Service defines the business operations for the Stripe domain.
type Service interface {
	// CreateCheckoutSession opens a hosted checkout tied to the caller. It never writes the store.
	CreateCheckoutSession(ctx context.Context, id auth.Identity, req CheckoutRequest) (CheckoutResponse, error)
	// HandleEvent reconciles one verified webhook event into the store.
	HandleEvent(ctx context.Context, event stripe.Event) error
	// GetEntitlement is the authoritative point read of the caller's row.
	GetEntitlement(ctx context.Context, id auth.Identity) (stripedb.Entitlement, error)
}

type serviceImpl struct {
	gw    gw.StripeGateway
	store stripedb.Store
	plans config.PlanCatalog
}

func NewService(g gw.StripeGateway, store stripedb.Store, plans config.PlanCatalog) Service {
	return serviceImpl{gw: g, store: store, plans: plans}
}

func (s serviceImpl) CreateCheckoutSession(ctx context.Context, id auth.Identity, req CheckoutRequest) (resp CheckoutResponse, err error) {
	defer func() { metrics.CheckoutSessions.WithLabelValues(checkoutResult(err)).Inc() }()

	if !id.Valid() {
		return CheckoutResponse{}, ErrUnauthenticated
	}
	if err := req.Validate(); err != nil {
		return CheckoutResponse{}, err
	}
	priceID := strings.TrimSpace(req.PriceID)
	if priceID == "" {
		return CheckoutResponse{}, fmt.Errorf("%w: price_id is required", ErrBadRequest)
	}
	if _, ok := s.plans.Lookup(priceID); !ok {
		return CheckoutResponse{}, fmt.Errorf("%w: %s", ErrUnknownPlan, priceID)
	}

	ent, err := s.store.GetEntitlement(ctx, id.UserID)
	if errors.Is(err, stripedb.ErrNotFound) {
		return CheckoutResponse{}, ErrUnknownUser
	}
	if err != nil {
		return CheckoutResponse{}, fmt.Errorf("%w: error reading entitlement: %v", ErrDatabase, err)
	}

	params := stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		ClientReferenceID: stripe.String(id.UserID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
	}
	// Stripe accepts either the customer or an email, never both.
	if ent.StripeCustomerID != nil && *ent.StripeCustomerID != "" {
		params.Customer = stripe.String(*ent.StripeCustomerID)
	} else {
		if id.Email == "" {
			return CheckoutResponse{}, fmt.Errorf("%w: email required", ErrBadRequest)
		}
		params.CustomerEmail = stripe.String(id.Email)
	}
	if u := strings.TrimSpace(req.SuccessURL); u != "" {
		params.SuccessURL = stripe.String(u)
	}
	if u := strings.TrimSpace(req.CancelURL); u != "" {
		params.CancelURL = stripe.String(u)
	}
	params.AddExpand("subscription")

	session, err := s.gw.CreateCheckoutSession(ctx, params)
	if err != nil {
		return CheckoutResponse{}, fmt.Errorf("%w: error creating checkout session: %v", ErrGateway, err)
	}
	if session.URL == "" {
		return CheckoutResponse{}, fmt.Errorf("%w: checkout session %s has no url", ErrGateway, session.ID)
	}
	log.Info().Str("user_id", id.UserID).Str("price_id", priceID).Str("session_id", session.ID).Msg("checkout session created")
	return CheckoutResponse{ID: session.ID, URL: session.URL}, nil
}

func checkoutResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrGateway), errors.Is(err, ErrDatabase):
		return "error"
	}
	return "rejected"
}

func (s serviceImpl) GetEntitlement(ctx context.Context, id auth.Identity) (stripedb.Entitlement, error) {
	if !id.Valid() {
		return stripedb.Entitlement{}, ErrUnauthenticated
	}
	ent, err := s.store.GetEntitlement(ctx, id.UserID)
	if errors.Is(err, stripedb.ErrNotFound) {
		return stripedb.Entitlement{}, ErrUnknownUser
	}
	if err != nil {
		return stripedb.Entitlement{}, fmt.Errorf("%w: error reading entitlement: %v", ErrDatabase, err)
	}
	return ent, nil
}

func (s serviceImpl) HandleEvent(ctx context.Context, event stripe.Event) error {
	logger := log.With().Str("event_id", event.ID).Str("event_type", string(event.Type)).Logger()
	switch string(event.Type) {
	case EventCheckoutSessionCompleted, EventCustomerSubscriptionUpdated, EventCustomerSubscriptionDeleted:
	default:
		logger.Info().Msg("unhandled event type acknowledged")
		return nil
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return fmt.Errorf("%w: event has no data object", ErrBadEvent)
	}

	switch string(event.Type) {
	case EventCheckoutSessionCompleted:
		var session CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return fmt.Errorf("%w: error unmarshaling into CheckoutSession: %v", ErrBadEvent, err)
		}
		return s.handleCheckoutSessionCompleted(ctx, session)
	case EventCustomerSubscriptionUpdated:
		var sub Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("%w: error unmarshaling into Subscription: %v", ErrBadEvent, err)
		}
		return s.handleSubscriptionUpdated(ctx, sub)
	default:
		var sub Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("%w: error unmarshaling into Subscription: %v", ErrBadEvent, err)
		}
		return s.handleSubscriptionDeleted(ctx, sub)
	}
}

// handleCheckoutSessionCompleted binds the purchased subscription to the user
// named by the session's client reference.
func (s serviceImpl) handleCheckoutSessionCompleted(ctx context.Context, session CheckoutSession) error {
	logger := log.With().Str("session_id", session.ID).Logger()
	userID := strings.TrimSpace(session.ClientReferenceID)
	if userID == "" {
		logger.Info().Msg("checkout session has no client reference, skipping")
		return nil
	}

	var sub Subscription
	switch session.Subscription.Kind {
	case RefNone:
		// One-time payments and subscription changes carry no subscription here;
		// customer.subscription.updated covers the latter.
		logger.Info().Str("user_id", userID).Msg("checkout session has no subscription, skipping")
		return nil
	case RefID:
		fetched, err := s.gw.GetSubscription(ctx, session.Subscription.ID)
		if err != nil {
			return fmt.Errorf("%w: error fetching subscription %s: %v", ErrGateway, session.Subscription.ID, err)
		}
		sub = subscriptionFromStripe(fetched)
	case RefInline:
		if err := json.Unmarshal(session.Subscription.Inline, &sub); err != nil {
			return fmt.Errorf("%w: error unmarshaling expanded subscription: %v", ErrBadEvent, err)
		}
	}
	return s.applySubscription(ctx, userID, sub, session.Customer.ID)
}

// handleSubscriptionUpdated refreshes the row already holding the subscription.
func (s serviceImpl) handleSubscriptionUpdated(ctx context.Context, sub Subscription) error {
	if sub.ID == "" {
		return fmt.Errorf("%w: subscription id not found", ErrBadEvent)
	}
	ent, err := s.store.FindBySubscriptionID(ctx, sub.ID)
	if errors.Is(err, stripedb.ErrNotFound) {
		// Updates that race ahead of checkout completion are dropped here; the
		// checkout event carries the full state.
		log.Warn().Str("subscription_id", sub.ID).Msg("no entitlement holds subscription, update dropped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: error finding subscription %s: %v", ErrDatabase, sub.ID, err)
	}
	return s.applySubscription(ctx, ent.ID, sub, "")
}

// handleSubscriptionDeleted clears plan fields but keeps the customer so a
// later checkout reuses it.
func (s serviceImpl) handleSubscriptionDeleted(ctx context.Context, sub Subscription) error {
	if sub.ID == "" {
		return fmt.Errorf("%w: subscription id not found", ErrBadEvent)
	}
	ids, err := s.store.ClearSubscription(ctx, sub.ID)
	if err != nil {
		return fmt.Errorf("%w: error clearing subscription %s: %v", ErrDatabase, sub.ID, err)
	}
	if len(ids) == 0 {
		log.Info().Str("subscription_id", sub.ID).Msg("no entitlement holds deleted subscription")
		return nil
	}
	log.Info().Str("subscription_id", sub.ID).Strs("user_ids", ids).Msg("subscription cleared")
	return nil
}

func (s serviceImpl) applySubscription(ctx context.Context, userID string, sub Subscription, customerID string) error {
	logger := log.With().Str("user_id", userID).Str("subscription_id", sub.ID).Logger()
	p, ok, reason := ProjectSubscription(sub, customerID)
	if !ok {
		logger.Warn().Str("reason", reason).Msg("subscription not projected")
		return nil
	}
	matched, err := s.store.ApplyProjection(ctx, userID, p)
	if err != nil {
		return fmt.Errorf("%w: error applying subscription: %v", ErrDatabase, err)
	}
	if !matched {
		logger.Warn().Msg("no entitlement row for user, subscription not applied")
		return nil
	}
	logger.Info().Str("status", p.Status).Str("price_id", p.PriceID).Msg("entitlement updated")
	return nil
}
