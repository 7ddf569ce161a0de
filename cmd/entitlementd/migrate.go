package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbeaudouin05/stripe-entitlements/api/database"
)

var migrateDatabaseURL string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the entitlement schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, drv, err := database.Open(migrateDatabaseURL)
		if err != nil {
			return err
		}
		defer conn.Close()
		if err := database.Migrate(cmd.Context(), conn, drv); err != nil {
			return err
		}
		log.Info().Str("driver", string(drv)).Msg("schema up to date")
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateDatabaseURL, "database-url", os.Getenv("DATABASE_URL"), "postgres:// or sqlite:// URL")
}
