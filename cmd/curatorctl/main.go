// Package main is curatorctl, a command-line client for the curator API.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/curator/internal/client"
)

var (
	addr    string
	timeout time.Duration
	api     *client.Client
)

var rootCmd = &cobra.Command{
	Use:   "curatorctl",
	Short: "Drive catalog sync and indexing jobs on a curator service",
	Long: `curatorctl talks to the curator HTTP API.

Example usage:
  curatorctl sync acme --wait          # Sync and index a tenant, showing progress
  curatorctl reindex acme 101 102      # Re-embed two items
  curatorctl retry acme --phase index  # Reset failed index records
  curatorctl items acme --index-status failed`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if addr == "" {
			return fmt.Errorf("no API address: set --addr or CURATOR_ADDR")
		}
		api = client.New(addr, client.WithTimeout(timeout))
		return nil
	},
}

func init() {
	def := os.Getenv("CURATOR_ADDR")
	if def == "" {
		def = "http://localhost:8600"
	}
	rootCmd.PersistentFlags().StringVar(&addr, "addr", def, "curator API base URL (env CURATOR_ADDR)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "per-request timeout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
