package cli

import (
	"github.com/spf13/cobra"

	"quote-oracle/internal/app"
)

var (
	exportFromBlock uint64
	exportToBlock   uint64
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored reports as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		}

		if cmd.Flags().Changed("from-block") {
			opts.FromBlock = &exportFromBlock
		}
		if cmd.Flags().Changed("to-block") {
			opts.ToBlock = &exportToBlock
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().Uint64Var(&exportFromBlock, "from-block", 0, "First block height (inclusive)")
	exportCmd.Flags().Uint64Var(&exportToBlock, "to-block", 0, "Last block height (exclusive, defaults to the newest report)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
}
