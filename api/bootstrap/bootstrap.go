package bootstrap

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/tbeaudouin05/stripe-entitlements/api/auth"
	"github.com/tbeaudouin05/stripe-entitlements/api/config"
	"github.com/tbeaudouin05/stripe-entitlements/api/database"
	"github.com/tbeaudouin05/stripe-entitlements/api/notify"
	stripeapp "github.com/tbeaudouin05/stripe-entitlements/api/services/stripe/app"
	stripedb "github.com/tbeaudouin05/stripe-entitlements/api/services/stripe/db"
	gw "github.com/tbeaudouin05/stripe-entitlements/api/services/stripe/gateway"
	stripegw "github.com/tbeaudouin05/stripe-entitlements/api/services/stripe/gateway/stripe"
)

// Deps is the wired application graph.
type Deps struct {
	Config   *config.Config
	Store    stripedb.Store
	Service  stripeapp.Service
	Verifier *auth.Verifier
	Hub      *notify.Hub
	// Source feeds external change notifications into Hub; nil for the local backend.
	Source notify.Source
	// closers run in reverse order on Close.
	closers []func() error
}

// Close releases connections opened by Build.
func (d *Deps) Close() error {
	var first error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	d.closers = nil
	return first
}

var deps *Deps
var initOnce sync.Once
var initErr error

// Build wires the graph for cfg over an open connection. g is the Stripe
// gateway; callers pass stripegw.New() outside tests.
func Build(ctx context.Context, cfg *config.Config, conn database.Conn, g gw.StripeGateway) (*Deps, error) {
	plans, err := cfg.PlanCatalog()
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, conn.DB, conn.Driver); err != nil {
		return nil, err
	}

	base := stripedb.NewStore(conn.DB, conn.Driver)
	hub := notify.NewHub(base)
	d := &Deps{Config: cfg, Hub: hub, Verifier: auth.NewVerifier(cfg.AuthJWTSecret)}

	switch cfg.NotifyBackend {
	case config.NotifyBackendPostgres:
		// The table trigger feeds LISTEN; writes need no decoration.
		d.Store = stripedb.NewObservedStore(base, nil)
		d.Source = notify.NewPGSource(cfg.DatabaseURL, hub)
	case config.NotifyBackendRedis:
		client, err := notify.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, client.Close)
		d.Store = stripedb.NewObservedStore(base, notify.NewRedisPublisher(client))
		d.Source = notify.NewRedisSource(client, hub)
	default:
		d.Store = stripedb.NewObservedStore(base, hub)
	}
	log.Info().Str("driver", string(conn.Driver)).Str("notify_backend", cfg.NotifyBackend).Int("plans", len(plans.Plans())).Msg("entitlement service wired")

	d.Service = stripeapp.NewService(g, d.Store, plans)
	return d, nil
}

// Init initializes config, database, and third-party clients, and wires services.
func Init() error {
	// If dependencies have already been injected (e.g., tests), do not override or init heavy deps.
	if deps != nil {
		return nil
	}
	var err error
	if config.AppConfig == nil {
		config.AppConfig, err = config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}

	if err := database.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	stripegw.SetKey(config.AppConfig.StripeSecretKey)

	d, err := Build(context.Background(), config.AppConfig, database.Conn{DB: database.GetDB(), Driver: database.GetDriver()}, stripegw.New())
	if err != nil {
		return fmt.Errorf("failed to wire services: %w", err)
	}
	d.closers = append([]func() error{database.Close}, d.closers...)
	deps = d
	return nil
}

// Get returns the wired dependencies, or nil before Init.
func Get() *Deps { return deps }

// Set allows tests to inject dependencies.
func Set(d *Deps) { deps = d }

// Ensure runs Init() once per process and returns any initialization error.
func Ensure() error {
	initOnce.Do(func() {
		initErr = Init()
	})
	return initErr
}
