package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbeaudouin05/stripe-entitlements/api/config"
	"github.com/tbeaudouin05/stripe-entitlements/api/database"
	stripedb "github.com/tbeaudouin05/stripe-entitlements/api/services/stripe/db"
	mock_gateway "github.com/tbeaudouin05/stripe-entitlements/api/services/stripe/gateway/mock"
)

func openSQLite(t *testing.T) database.Conn {
	t.Helper()
	db, drv, err := database.Open("sqlite://" + filepath.Join(t.TempDir(), "bootstrap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return database.Conn{DB: db, Driver: drv}
}

func TestBuild_LocalBackend(t *testing.T) {
	cfg := &config.Config{
		AuthJWTSecret: "secret",
		Plans:         "price_premium=Premium",
		NotifyBackend: config.NotifyBackendLocal,
	}
	d, err := Build(context.Background(), cfg, openSQLite(t), mock_gateway.NewMockStripeGateway(gomock.NewController(t)))
	require.NoError(t, err)
	defer d.Close()

	assert.NotNil(t, d.Service)
	assert.NotNil(t, d.Hub)
	assert.NotNil(t, d.Verifier)
	assert.Nil(t, d.Source)
	assert.IsType(t, &stripedb.ObservedStore{}, d.Store)

	// Local writes reach hub subscribers directly.
	sub := d.Hub.Subscribe("u1")
	defer sub.Close()
	require.NoError(t, d.Store.EnsureEntitlement(context.Background(), "u1"))
	select {
	case ent := <-sub.Updates():
		assert.Equal(t, "u1", ent.ID)
	default:
		t.Fatal("expected an update from the local publisher")
	}
}

func TestBuild_InvalidPlans(t *testing.T) {
	cfg := &config.Config{AuthJWTSecret: "secret", Plans: "broken", NotifyBackend: config.NotifyBackendLocal}
	_, err := Build(context.Background(), cfg, openSQLite(t), mock_gateway.NewMockStripeGateway(gomock.NewController(t)))
	assert.Error(t, err)
}

func TestSetAndGet(t *testing.T) {
	prev := Get()
	defer Set(prev)

	d := &Deps{}
	Set(d)
	assert.Same(t, d, Get())
	assert.NoError(t, Init())
}
