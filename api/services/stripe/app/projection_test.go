package app

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeSubscription(t *testing.T, raw string) Subscription {
	t.Helper()
	var sub Subscription
	require.NoError(t, json.Unmarshal([]byte(raw), &sub))
	return sub
}

func TestRef_Unmarshal(t *testing.T) {
	var session CheckoutSession
	require.NoError(t, json.Unmarshal([]byte(`{"customer":"cus_1","subscription":{"id":"sub_1","status":"active"}}`), &session))
	assert.Equal(t, RefID, session.Customer.Kind)
	assert.Equal(t, "cus_1", session.Customer.ID)
	assert.Equal(t, RefInline, session.Subscription.Kind)
	assert.Equal(t, "sub_1", session.Subscription.ID)
	assert.JSONEq(t, `{"id":"sub_1","status":"active"}`, string(session.Subscription.Inline))

	session = CheckoutSession{}
	require.NoError(t, json.Unmarshal([]byte(`{"customer":null}`), &session))
	assert.Equal(t, RefNone, session.Customer.Kind)
	assert.Equal(t, RefNone, session.Subscription.Kind)

	assert.Error(t, json.Unmarshal([]byte(`{"customer":42}`), &session))
}

func TestProjectSubscription(t *testing.T) {
	sub := decodeSubscription(t, `{
		"id": "sub_1", "customer": {"id": "cus_inline"}, "status": "trialing",
		"items": {"data": [
			{"plan": {"id": "price_premium", "product": {"id": "prod_premium"}}, "current_period_start": 1700000000, "current_period_end": 1702592000},
			{"plan": {"id": "price_other", "product": "prod_other"}, "current_period_start": 1, "current_period_end": 2}
		]}
	}`)

	p, ok, _ := ProjectSubscription(sub, "")
	require.True(t, ok)
	assert.Equal(t, "sub_1", p.SubscriptionID)
	assert.Equal(t, "cus_inline", p.CustomerID)
	assert.Equal(t, "price_premium", p.PriceID)
	assert.Equal(t, "prod_premium", p.ProductID)
	assert.Equal(t, "trialing", p.Status)
	assert.Equal(t, int64(1700000000), p.PeriodStart.Unix())
	assert.Equal(t, int64(1702592000), p.PeriodEnd.Unix())

	p, ok, _ = ProjectSubscription(sub, "cus_session")
	require.True(t, ok)
	assert.Equal(t, "cus_session", p.CustomerID)
}

func TestProjectSubscription_Partial(t *testing.T) {
	cases := map[string]string{
		"no items":     `{"id":"sub_1","status":"active","items":{"data":[]}}`,
		"items absent": `{"id":"sub_1","status":"active"}`,
		"no plan":      `{"id":"sub_1","items":{"data":[{"current_period_start":1,"current_period_end":2}]}}`,
		"no start":     `{"id":"sub_1","items":{"data":[{"plan":{"id":"p"},"current_period_end":2}]}}`,
		"no end":       `{"id":"sub_1","items":{"data":[{"plan":{"id":"p"},"current_period_start":1}]}}`,
		"no id":        `{"items":{"data":[{"plan":{"id":"p"},"current_period_start":1,"current_period_end":2}]}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, ok, reason := ProjectSubscription(decodeSubscription(t, raw), "")
			assert.False(t, ok)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestSubscriptionFromStripe(t *testing.T) {
	sub := subscriptionFromStripe(stripeSubscription("sub_1", "active"))
	assert.Equal(t, "cus_1", sub.Customer.ID)
	require.Len(t, sub.Items.Data, 1)
	assert.Equal(t, "prod_premium", sub.Items.Data[0].Plan.Product.ID)

	p, ok, _ := ProjectSubscription(sub, "")
	require.True(t, ok)
	assert.Equal(t, "active", p.Status)
	assert.Equal(t, periodEnd, p.PeriodEnd.Unix())
}
