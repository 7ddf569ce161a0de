package db_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	database "github.com/tbeaudouin05/stripe-entitlements/api/database"
	stripedb "github.com/tbeaudouin05/stripe-entitlements/api/services/stripe/db"
)

func newSQLiteStore(t *testing.T) stripedb.Store {
	t.Helper()
	conn, drv, err := database.Open("sqlite://" + filepath.Join(t.TempDir(), "entitlements.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, database.Migrate(context.Background(), conn, drv))
	return stripedb.NewStore(conn, drv)
}

func projection(sub, status string) stripedb.Projection {
	return stripedb.Projection{
		SubscriptionID: sub,
		CustomerID:     "cus_1",
		PriceID:        "price_premium",
		ProductID:      "prod_premium",
		Status:         status,
		PeriodStart:    time.Unix(1700000000, 0),
		PeriodEnd:      time.Unix(1702592000, 0),
	}
}

func TestEnsureAndGetEntitlement(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	_, err := store.GetEntitlement(ctx, "u1")
	assert.ErrorIs(t, err, stripedb.ErrNotFound)

	require.NoError(t, store.EnsureEntitlement(ctx, "u1"))
	ent, err := store.GetEntitlement(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", ent.ID)
	assert.Nil(t, ent.SubscriptionID)
	assert.Nil(t, ent.StripeCustomerID)
	assert.Nil(t, ent.CurrentPeriodStart)
	assert.Equal(t, stripedb.StatusNone, ent.Status())
	assert.False(t, ent.IsActive())
}

func TestEnsureEntitlement_KeepsExistingRow(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	require.NoError(t, store.EnsureEntitlement(ctx, "u1"))
	_, err := store.ApplyProjection(ctx, "u1", projection("sub_1", "active"))
	require.NoError(t, err)
	require.NoError(t, store.EnsureEntitlement(ctx, "u1"))

	ent, err := store.GetEntitlement(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, ent.SubscriptionID)
	assert.Equal(t, "sub_1", *ent.SubscriptionID)
}

func TestApplyProjection(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	require.NoError(t, store.EnsureEntitlement(ctx, "u1"))

	matched, err := store.ApplyProjection(ctx, "u1", projection("sub_1", "active"))
	require.NoError(t, err)
	assert.True(t, matched)

	ent, err := store.GetEntitlement(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, ent.SubscriptionID)
	assert.Equal(t, "sub_1", *ent.SubscriptionID)
	assert.Equal(t, "cus_1", *ent.StripeCustomerID)
	assert.Equal(t, "price_premium", *ent.PriceID)
	assert.Equal(t, "prod_premium", *ent.ProductID)
	assert.Equal(t, "active", ent.Status())
	assert.True(t, ent.IsActive())
	require.NotNil(t, ent.CurrentPeriodStart)
	assert.Equal(t, "2023-11-14T22:13:20.000Z", stripedb.FormatTimestamp(*ent.CurrentPeriodStart))
	assert.Equal(t, "2023-12-14T22:13:20.000Z", stripedb.FormatTimestamp(*ent.CurrentPeriodEnd))

	// Unknown user matches nothing.
	matched, err = store.ApplyProjection(ctx, "nobody", projection("sub_2", "active"))
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestApplyProjection_EmptyCustomerKeepsStored(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	require.NoError(t, store.EnsureEntitlement(ctx, "u1"))
	_, err := store.ApplyProjection(ctx, "u1", projection("sub_1", "active"))
	require.NoError(t, err)

	p := projection("sub_1", "past_due")
	p.CustomerID = ""
	_, err = store.ApplyProjection(ctx, "u1", p)
	require.NoError(t, err)

	ent, err := store.GetEntitlement(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "cus_1", *ent.StripeCustomerID)
	assert.Equal(t, "past_due", ent.Status())
	assert.False(t, ent.IsActive())
}

func TestApplyProjection_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	require.NoError(t, store.EnsureEntitlement(ctx, "u1"))

	_, err := store.ApplyProjection(ctx, "u1", projection("sub_1", "active"))
	require.NoError(t, err)
	first, err := store.GetEntitlement(ctx, "u1")
	require.NoError(t, err)

	_, err = store.ApplyProjection(ctx, "u1", projection("sub_1", "active"))
	require.NoError(t, err)
	second, err := store.GetEntitlement(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFindBySubscriptionID(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	require.NoError(t, store.EnsureEntitlement(ctx, "u1"))
	require.NoError(t, store.EnsureEntitlement(ctx, "u2"))
	_, err := store.ApplyProjection(ctx, "u2", projection("sub_2", "active"))
	require.NoError(t, err)

	ent, err := store.FindBySubscriptionID(ctx, "sub_2")
	require.NoError(t, err)
	assert.Equal(t, "u2", ent.ID)

	_, err = store.FindBySubscriptionID(ctx, "sub_999")
	assert.ErrorIs(t, err, stripedb.ErrNotFound)
}

func TestClearSubscription(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	require.NoError(t, store.EnsureEntitlement(ctx, "u1"))
	require.NoError(t, store.EnsureEntitlement(ctx, "u2"))
	_, err := store.ApplyProjection(ctx, "u1", projection("sub_1", "active"))
	require.NoError(t, err)
	_, err = store.ApplyProjection(ctx, "u2", projection("sub_2", "active"))
	require.NoError(t, err)

	ids, err := store.ClearSubscription(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, ids)

	ent, err := store.GetEntitlement(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, ent.SubscriptionID)
	assert.Nil(t, ent.PriceID)
	assert.Nil(t, ent.ProductID)
	assert.Nil(t, ent.SubscriptionStatus)
	assert.Nil(t, ent.CurrentPeriodStart)
	assert.Nil(t, ent.CurrentPeriodEnd)
	require.NotNil(t, ent.StripeCustomerID)
	assert.Equal(t, "cus_1", *ent.StripeCustomerID)

	other, err := store.GetEntitlement(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, "sub_2", *other.SubscriptionID)

	ids, err = store.ClearSubscription(ctx, "sub_999")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestEntitlementJSON(t *testing.T) {
	start := time.Unix(1700000000, 0).UTC()
	sub, status := "sub_1", "active"
	ent := stripedb.Entitlement{ID: "u1", SubscriptionID: &sub, SubscriptionStatus: &status, CurrentPeriodStart: &start}

	b, err := json.Marshal(ent)
	require.NoError(t, err)
	var wire map[string]any
	require.NoError(t, json.Unmarshal(b, &wire))
	assert.Equal(t, "2023-11-14T22:13:20.000Z", wire["current_period_start"])
	assert.Nil(t, wire["current_period_end"])
	assert.Nil(t, wire["price_id"])
	assert.Equal(t, "sub_1", wire["subscription_id"])

	var back stripedb.Entitlement
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, ent, back)
}

func TestPing(t *testing.T) {
	assert.NoError(t, newSQLiteStore(t).Ping(context.Background()))
}
