package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tbeaudouin05/stripe-entitlements/pkg/client"
)

var (
	clientBaseURL string
	clientToken   string
)

func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&clientBaseURL, "base-url", "http://localhost:8080", "API base URL")
	cmd.Flags().StringVar(&clientToken, "token", os.Getenv("ENTITLEMENTS_TOKEN"), "session token")
}

func newClient() (*client.Client, error) {
	s, err := client.NewSession(clientBaseURL, clientToken)
	if err != nil {
		return nil, err
	}
	return client.New(s), nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the caller's entitlement",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		me, err := c.Me(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), me)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the caller's entitlement each time it changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		c, err := newClient()
		if err != nil {
			return err
		}
		return runWatch(ctx, c, cmd.OutOrStdout())
	},
}

func runWatch(ctx context.Context, c *client.Client, out io.Writer) error {
	w := c.NewWatcher()
	w.OnChange(func(e client.Entitlement) {
		if err := printJSON(out, e); err != nil {
			fmt.Fprintf(os.Stderr, "write: %v\n", err)
		}
	})
	if err := w.Start(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-w.Done():
	}
	w.Close()
	return w.Err()
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	addClientFlags(statusCmd)
	addClientFlags(watchCmd)
}
