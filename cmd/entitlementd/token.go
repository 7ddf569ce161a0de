package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tbeaudouin05/stripe-entitlements/api/auth"
)

var (
	tokenSecret string
	tokenUserID string
	tokenEmail  string
	tokenTTL    time.Duration
)

// tokenCmd mints a session token for local testing against a dev secret.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Sign a development session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenSecret == "" {
			return fmt.Errorf("--secret or AUTH_JWT_SECRET is required")
		}
		userID := tokenUserID
		if userID == "" {
			userID = uuid.NewString()
		}
		tok, err := auth.Sign(tokenSecret, auth.Identity{UserID: userID, Email: tokenEmail}, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSecret, "secret", os.Getenv("AUTH_JWT_SECRET"), "HS256 signing secret")
	tokenCmd.Flags().StringVar(&tokenUserID, "user-id", "", "subject; random uuid when empty")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
}
