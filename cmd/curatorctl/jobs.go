package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/curator/internal/catalog"
	"github.com/MikeSquared-Agency/curator/internal/client"
)

var (
	noIndex      bool
	batchSize    int
	wait         bool
	pollInterval time.Duration
	retryPhase   string
	statusKind   string
)

var syncCmd = &cobra.Command{
	Use:   "sync <tenant>",
	Short: "Import a tenant catalog and index it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		autoIndex := !noIndex
		st, err := api.StartSync(cmd.Context(), args[0], client.SyncRequest{AutoIndex: &autoIndex, BatchSize: batchSize})
		if err != nil {
			return err
		}
		return follow(cmd, st, api.SyncStatus)
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex <tenant> [item-id...]",
	Short: "Re-embed and upsert items, or every eligible item when none are given",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := api.StartReindex(cmd.Context(), args[0], client.ReindexRequest{ItemIDs: args[1:], BatchSize: batchSize})
		if err != nil {
			return err
		}
		return follow(cmd, st, api.ReindexStatus)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <tenant>",
	Short: "Show the tenant's current job state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		poll := api.SyncStatus
		if statusKind == string(catalog.JobReindex) {
			poll = api.ReindexStatus
		}
		st, err := poll(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, st)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <tenant>",
	Short: "Cancel the tenant's running sync",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := api.StopSync(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sync for %s stopped\n", args[0])
		return nil
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry <tenant>",
	Short: "Reset failed items so the next sync retries them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		phase := catalog.Phase(retryPhase)
		if !phase.Valid() {
			return fmt.Errorf("invalid --phase %q: use import, index or all", retryPhase)
		}
		res, err := api.Retry(cmd.Context(), args[0], phase)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

func init() {
	for _, c := range []*cobra.Command{syncCmd, reindexCmd} {
		c.Flags().IntVar(&batchSize, "batch-size", 0, "items per indexing batch (server default when 0)")
		c.Flags().BoolVar(&wait, "wait", false, "follow the job until it finishes")
		c.Flags().DurationVar(&pollInterval, "poll", time.Second, "status poll interval with --wait")
	}
	syncCmd.Flags().BoolVar(&noIndex, "no-index", false, "import only, skip vector indexing")
	statusCmd.Flags().StringVar(&statusKind, "kind", string(catalog.JobSync), "job kind: sync or reindex")
	retryCmd.Flags().StringVar(&retryPhase, "phase", string(catalog.PhaseAll), "phase to retry: import, index or all")

	rootCmd.AddCommand(syncCmd, reindexCmd, statusCmd, stopCmd, retryCmd)
}

type statusFunc func(ctx context.Context, tenantID string) (*catalog.JobState, error)

// follow prints the accepted job, or with --wait renders its progress until
// the job leaves the registry and reports the recorded outcome.
func follow(cmd *cobra.Command, st *catalog.JobState, poll statusFunc) error {
	if !wait {
		return printJSON(cmd, st)
	}
	out := cmd.OutOrStdout()
	bar := newBar(out, st.Kind)
	run, err := waitJob(cmd.Context(), st, poll, api.Runs, pollInterval, func(s *catalog.JobState) {
		bar.Describe(fmt.Sprintf("[cyan]%-11s[reset]", s.Status))
		bar.Set(s.Progress)
	})
	if err != nil {
		return err
	}
	bar.Finish()
	if run == nil {
		fmt.Fprintln(out, "job finished")
		return nil
	}
	if err := printJSON(cmd, run); err != nil {
		return err
	}
	if run.Status == catalog.JobError {
		return fmt.Errorf("job %s failed: %s", run.ID, run.Message)
	}
	return nil
}

func newBar(w io.Writer, kind catalog.JobKind) *progressbar.ProgressBar {
	return progressbar.NewOptions(100,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription(fmt.Sprintf("[cyan]%s[reset]", kind)),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(w)
		}),
	)
}
