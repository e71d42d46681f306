package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"quote-oracle/internal/app"
)

var (
	showLimit  int
	showFormat string
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent price reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		return getApp().Show(cmd.Context(), app.ShowOptions{
			Limit:  showLimit,
			Format: showFormat,
		})
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of reports to display")
	showCmd.Flags().StringVar(&showFormat, "format", "table", "Output format: table or yaml")
}
