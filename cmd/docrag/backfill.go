package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/docrag/internal/config"
	"github.com/fyrsmithlabs/docrag/internal/workflows"
)

var backfillBatch int

func init() {
	backfillCmd.Flags().IntVar(&backfillBatch, "batch", 0, "documents per run (default: workflows.batch_size)")
	rootCmd.AddCommand(backfillCmd)
}

// backfillCmd starts one summary back-fill workflow run
var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Regenerate missing document summaries",
	Long: `Start a summary back-fill run on the Temporal cluster named in the
configuration and wait for it to finish. A docragd with workflows.enabled
must be polling the task queue.

Examples:
  docrag backfill
  docrag backfill --batch 100`,
	Args: cobra.NoArgs,
	RunE: runBackfill,
}

func runBackfill(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	input := workflows.BackfillInput{BatchSize: cfg.Workflows.BatchSize}
	if backfillBatch > 0 {
		input.BatchSize = backfillBatch
	}
	if err := input.Validate(); err != nil {
		return err
	}

	c, err := workflows.Dial(cfg.Workflows)
	if err != nil {
		return err
	}
	defer c.Close()

	res, runID, err := workflows.StartBackfill(cmd.Context(), c, cfg.Workflows.TaskQueue, input)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Back-fill %s complete\n", runID)
	fmt.Fprintf(out, "  Scanned: %d\n", res.Scanned)
	fmt.Fprintf(out, "  Updated: %d\n", res.Updated)
	fmt.Fprintf(out, "  Failed:  %d\n", res.Failed)
	for _, e := range res.Errors {
		fmt.Fprintf(out, "  - %s\n", e)
	}
	return nil
}
