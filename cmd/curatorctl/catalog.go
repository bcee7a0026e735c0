package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/curator/internal/catalog"
	"github.com/MikeSquared-Agency/curator/internal/client"
)

var (
	itemQuery client.ItemQuery
	runLimit  int

	cfgDomain      string
	cfgToken       string
	cfgVectorKey   string
	cfgVectorEnv   string
	cfgVectorNS    string
	cfgVectorIndex string
	cfgAutoSync    bool
)

var itemsCmd = &cobra.Command{
	Use:   "items <tenant>",
	Short: "List catalog items",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := api.Items(cmd.Context(), args[0], itemQuery)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-16s %-10s %-14s %s\n", "EXTERNAL ID", "IMPORT", "INDEX", "TITLE")
		for _, it := range items {
			fmt.Fprintf(out, "%-16s %-10s %-14s %s\n", it.ExternalItemID, it.ImportStatus, it.IndexStatus, it.Title)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats <tenant>",
	Short: "Show item counts by import and index status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		counts, err := api.Stats(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, counts)
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs <tenant>",
	Short: "Show recent sync runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runs, err := api.Runs(cmd.Context(), args[0], runLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-36s %-8s %-9s %8s %8s %8s\n", "JOB", "KIND", "STATUS", "IMPORTED", "INDEXED", "FAILED")
		for _, r := range runs {
			fmt.Fprintf(out, "%-36s %-8s %-9s %8d %8d %8d\n", r.ID, r.Kind, r.Status, r.Imported, r.Indexed, r.ImportFailed+r.IndexFailed)
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read or write tenant configuration",
}

var configGetCmd = &cobra.Command{
	Use:   "get <tenant>",
	Short: "Show tenant configuration with secrets redacted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := api.GetConfig(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, cfg)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <tenant>",
	Short: "Create or replace tenant configuration; omitted secrets are kept",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := api.PutConfig(cmd.Context(), &catalog.TenantConfig{
			TenantID:          args[0],
			CommerceDomain:    cfgDomain,
			CommerceToken:     cfgToken,
			VectorAPIKey:      cfgVectorKey,
			VectorEnvironment: cfgVectorEnv,
			VectorNamespace:   cfgVectorNS,
			VectorIndexName:   cfgVectorIndex,
			AutoSync:          cfgAutoSync,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, cfg)
	},
}

func init() {
	itemsCmd.Flags().StringVar(&itemQuery.ImportStatus, "import-status", "", "filter by import status")
	itemsCmd.Flags().StringVar(&itemQuery.IndexStatus, "index-status", "", "filter by index status")
	itemsCmd.Flags().IntVar(&itemQuery.Limit, "limit", 50, "maximum items")
	itemsCmd.Flags().IntVar(&itemQuery.Offset, "offset", 0, "items to skip")

	runsCmd.Flags().IntVar(&runLimit, "limit", 20, "maximum runs")

	f := configSetCmd.Flags()
	f.StringVar(&cfgDomain, "domain", "", "commerce store domain")
	f.StringVar(&cfgToken, "token", "", "commerce access token")
	f.StringVar(&cfgVectorKey, "vector-key", "", "vector index API key")
	f.StringVar(&cfgVectorEnv, "vector-env", "", "vector index environment")
	f.StringVar(&cfgVectorNS, "namespace", "", "vector namespace (defaults to the tenant id)")
	f.StringVar(&cfgVectorIndex, "index", "", "vector index name")
	f.BoolVar(&cfgAutoSync, "auto-sync", false, "include the tenant in scheduled syncs")
	configCmd.AddCommand(configGetCmd, configSetCmd)

	rootCmd.AddCommand(itemsCmd, statsCmd, runsCmd, configCmd)
}
