package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbeaudouin05/stripe-entitlements/api/database"
	stripedb "github.com/tbeaudouin05/stripe-entitlements/api/services/stripe/db"
)

var (
	usersDatabaseURL string
	usersID          string
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage entitlement rows",
}

// usersEnsureCmd is the account-creation hook: the auth provider (or an
// operator) runs it once per new user so checkout and webhooks have a row
// to bind to.
var usersEnsureCmd = &cobra.Command{
	Use:   "ensure [--user-id <uuid>] [user-id...]",
	Short: "Create empty entitlement rows for users that have none",
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := args
		if usersID != "" {
			ids = append([]string{usersID}, args...)
		}
		if len(ids) == 0 {
			return fmt.Errorf("--user-id is required")
		}
		for _, id := range ids {
			if _, err := uuid.Parse(id); err != nil {
				return fmt.Errorf("user id %q is not a uuid", id)
			}
		}

		conn, drv, err := database.Open(usersDatabaseURL)
		if err != nil {
			return err
		}
		defer conn.Close()

		store := stripedb.NewObservedStore(stripedb.NewStore(conn, drv), nil)
		for _, id := range ids {
			if err := store.EnsureEntitlement(cmd.Context(), id); err != nil {
				return fmt.Errorf("ensure entitlement for %s: %w", id, err)
			}
			log.Info().Str("user_id", id).Msg("entitlement row ensured")
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

func init() {
	usersEnsureCmd.Flags().StringVar(&usersDatabaseURL, "database-url", os.Getenv("DATABASE_URL"), "postgres:// or sqlite:// URL")
	usersEnsureCmd.Flags().StringVar(&usersID, "user-id", "", "user id (uuid); more may follow as arguments")
	usersCmd.AddCommand(usersEnsureCmd)
}
