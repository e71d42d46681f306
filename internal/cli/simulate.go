package cli

import (
	"github.com/spf13/cobra"

	"quote-oracle/internal/app"
)

var simulateFeedFile string

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Evaluate a sample feed once and deliver any spread alert",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{FeedFile: simulateFeedFile})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateFeedFile, "file", "", "Quote file to evaluate (defaults to a built-in sample)")
}
