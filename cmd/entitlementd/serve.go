package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tbeaudouin05/stripe-entitlements/api/bootstrap"
	"github.com/tbeaudouin05/stripe-entitlements/api/config"
	"github.com/tbeaudouin05/stripe-entitlements/api/logging"
	"github.com/tbeaudouin05/stripe-entitlements/api/router"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and change notifier",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func runServe(ctx context.Context) error {
	logging.Init(logging.Config{Format: "console", Level: "info", Component: "entitlementd"})

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	config.AppConfig = cfg
	logging.Init(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Component: "entitlementd"})

	if err := bootstrap.Ensure(); err != nil {
		return err
	}
	deps := bootstrap.Get()
	defer func() {
		if err := deps.Close(); err != nil {
			log.Warn().Err(err).Msg("close dependencies")
		}
	}()

	// WriteTimeout stays unset: the entitlement stream is long-lived.
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router.New(deps),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if deps.Source != nil {
		g.Go(func() error { return deps.Source.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
