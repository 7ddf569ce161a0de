package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	database "github.com/tbeaudouin05/stripe-entitlements/api/database"
)

// NewRedisClient connects to url (redis://...) and checks the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisPublisher announces changed user ids on the shared change channel so
// every instance's RedisSource sees them.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client, channel: database.ChangeChannel}
}

func (p *RedisPublisher) Publish(ctx context.Context, userID string) error {
	return p.client.Publish(ctx, p.channel, userID).Err()
}

// RedisSource feeds the change channel into a Hub.
type RedisSource struct {
	client  *redis.Client
	channel string
	hub     *Hub
}

func NewRedisSource(client *redis.Client, hub *Hub) *RedisSource {
	return &RedisSource{client: client, channel: database.ChangeChannel, hub: hub}
}

func (s *RedisSource) Run(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	subscribed := false
	ch := pubsub.ChannelWithSubscriptions()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis subscription %s closed", s.channel)
			}
			subscribed = s.dispatch(ctx, msg, subscribed)
		}
	}
}

// dispatch handles one pubsub item and reports whether the channel has been
// subscribed before. go-redis re-subscribes on its own after a connection
// loss, so every confirmation after the first marks a gap whose changes are
// gone.
func (s *RedisSource) dispatch(ctx context.Context, msg any, subscribed bool) bool {
	switch m := msg.(type) {
	case *redis.Subscription:
		if m.Kind != "subscribe" {
			return subscribed
		}
		if subscribed {
			log.Info().Str("channel", s.channel).Msg("redis resubscribed, resyncing watched entitlements")
			s.hub.Resync(ctx)
		} else {
			log.Info().Str("channel", s.channel).Msg("listening for entitlement changes on redis")
		}
		return true
	case *redis.Message:
		if err := s.hub.Notify(ctx, m.Payload); err != nil {
			log.Warn().Err(err).Str("user_id", m.Payload).Msg("failed to deliver entitlement change")
		}
	}
	return subscribed
}
