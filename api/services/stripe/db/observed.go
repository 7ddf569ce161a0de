package db

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/tbeaudouin05/stripe-entitlements/api/metrics"
)

// Publisher announces that a user's entitlement row changed.
type Publisher interface {
	Publish(ctx context.Context, userID string) error
}

// ObservedStore wraps a Store that has no native change feed. Every write is
// counted, and a successful write that touched a row is published. Publish
// failures are logged; the write already happened.
type ObservedStore struct {
	Store
	pub Publisher
}

// NewObservedStore decorates s. A nil pub only records metrics.
func NewObservedStore(s Store, pub Publisher) *ObservedStore {
	return &ObservedStore{Store: s, pub: pub}
}

func (o *ObservedStore) EnsureEntitlement(ctx context.Context, userID string) error {
	err := o.Store.EnsureEntitlement(ctx, userID)
	metrics.StoreWrites.WithLabelValues("ensure", metrics.Result(err)).Inc()
	if err == nil {
		o.publish(ctx, userID)
	}
	return err
}

func (o *ObservedStore) ApplyProjection(ctx context.Context, userID string, p Projection) (bool, error) {
	matched, err := o.Store.ApplyProjection(ctx, userID, p)
	metrics.StoreWrites.WithLabelValues("apply_projection", metrics.Result(err)).Inc()
	if err == nil && matched {
		o.publish(ctx, userID)
	}
	return matched, err
}

func (o *ObservedStore) ClearSubscription(ctx context.Context, subscriptionID string) ([]string, error) {
	ids, err := o.Store.ClearSubscription(ctx, subscriptionID)
	metrics.StoreWrites.WithLabelValues("clear_subscription", metrics.Result(err)).Inc()
	if err == nil {
		for _, id := range ids {
			o.publish(ctx, id)
		}
	}
	return ids, err
}

func (o *ObservedStore) publish(ctx context.Context, userID string) {
	if o.pub == nil {
		return
	}
	if err := o.pub.Publish(ctx, userID); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("failed to publish entitlement change")
	}
}
