package notify

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	database "github.com/tbeaudouin05/stripe-entitlements/api/database"
)

func TestRedisSource_Dispatch(t *testing.T) {
	hub, loader := newTestHub()
	loader.set("u1", "active")
	loader.set("u2", "trialing")
	a := hub.Subscribe("u1")
	b := hub.Subscribe("u2")
	defer a.Close()
	defer b.Close()

	src := NewRedisSource(nil, hub)
	ctx := context.Background()
	confirm := &redis.Subscription{Kind: "subscribe", Channel: database.ChangeChannel, Count: 1}

	// First confirmation only marks the source ready.
	subscribed := src.dispatch(ctx, confirm, false)
	require.True(t, subscribed)
	assertNothing(t, a)
	assertNothing(t, b)

	subscribed = src.dispatch(ctx, &redis.Message{Channel: database.ChangeChannel, Payload: "u1"}, subscribed)
	assert.True(t, subscribed)
	assert.Equal(t, "active", receive(t, a).Status())
	assertNothing(t, b)

	// A later confirmation follows a reconnect: every watched row is re-read.
	loader.set("u1", "past_due")
	subscribed = src.dispatch(ctx, confirm, subscribed)
	assert.True(t, subscribed)
	assert.Equal(t, "past_due", receive(t, a).Status())
	assert.Equal(t, "trialing", receive(t, b).Status())

	src.dispatch(ctx, &redis.Subscription{Kind: "unsubscribe", Channel: database.ChangeChannel}, subscribed)
	assertNothing(t, a)
	assertNothing(t, b)
}
