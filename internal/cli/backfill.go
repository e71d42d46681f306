package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"quote-oracle/internal/app"
)

var (
	backfillFrom     uint64
	backfillTo       uint64
	backfillStep     uint64
	backfillDryRun   bool
	backfillFeedFile string
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Recompute reports for a historical block range",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("from-block") || !cmd.Flags().Changed("to-block") {
			return fmt.Errorf("--from-block and --to-block must be provided")
		}
		if backfillFrom >= backfillTo {
			return fmt.Errorf("--from-block must be below --to-block")
		}

		opts := app.BackfillOptions{
			FromBlock: backfillFrom,
			ToBlock:   backfillTo,
			Step:      backfillStep,
			DryRun:    backfillDryRun,
			FeedFile:  backfillFeedFile,
		}

		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().Uint64Var(&backfillFrom, "from-block", 0, "First block height (inclusive)")
	backfillCmd.Flags().Uint64Var(&backfillTo, "to-block", 0, "Last block height (exclusive)")
	backfillCmd.Flags().Uint64Var(&backfillStep, "step", 0, "Blocks between reports (defaults to scheduler.every_blocks)")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Run without writing to storage")
	backfillCmd.Flags().StringVar(&backfillFeedFile, "file", "", "Replay quotes from a JSON or YAML file")
}
