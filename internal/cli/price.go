package cli

import (
	"github.com/spf13/cobra"

	"quote-oracle/internal/app"
)

var (
	priceMode          string
	pricePercentile    int
	priceMaxBlocksBack uint64
	priceMaxQuotes     uint64
	priceDivisor       string
	priceBlock         uint64
	priceFeedFile      string
)

var priceCmd = &cobra.Command{
	Use:   "price",
	Short: "Compute an average or percentile price from the feed",
	Example: `  quoteoracle price --mode percentile --percentile 90
  quoteoracle price --max-blocks-back 4 --max-quotes 3 --file quotes.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.PriceOptions{
			Mode:     priceMode,
			Divisor:  priceDivisor,
			Block:    priceBlock,
			FeedFile: priceFeedFile,
		}

		flags := cmd.Flags()
		if flags.Changed("percentile") {
			opts.Percentile = &pricePercentile
		}
		if flags.Changed("max-blocks-back") {
			opts.MaxBlocksBack = &priceMaxBlocksBack
		}
		if flags.Changed("max-quotes") {
			opts.MaxQuotes = &priceMaxQuotes
		}

		return getApp().Price(cmd.Context(), opts)
	},
}

func init() {
	priceCmd.Flags().StringVar(&priceMode, "mode", "average", "Statistic to compute: average or percentile")
	priceCmd.Flags().IntVar(&pricePercentile, "percentile", 0, "Percentile in [0,100] (defaults to config)")
	priceCmd.Flags().Uint64Var(&priceMaxBlocksBack, "max-blocks-back", 0, "Block-age cap (defaults to config)")
	priceCmd.Flags().Uint64Var(&priceMaxQuotes, "max-quotes", 0, "Quote-count cap (defaults to config)")
	priceCmd.Flags().StringVar(&priceDivisor, "divisor", "", "Average divisor policy: window, budget or selected (defaults to config)")
	priceCmd.Flags().Uint64Var(&priceBlock, "block", 0, "Evaluate at this block height (defaults to the current head)")
	priceCmd.Flags().StringVar(&priceFeedFile, "file", "", "Read quotes from a JSON or YAML file instead of the configured feed")
}
