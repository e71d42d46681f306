package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"quote-oracle/internal/oracle"
	"quote-oracle/internal/service"
)

// Price runs one aggregation against the feed and prints the result.
func (a *App) Price(ctx context.Context, opts PriceOptions) error {
	return a.price(ctx, opts, os.Stdout)
}

func (a *App) price(ctx context.Context, opts PriceOptions, out io.Writer) error {
	mode := oracle.ModeAverage
	if opts.Mode != "" {
		parsed, err := oracle.ParseMode(opts.Mode)
		if err != nil {
			return err
		}
		mode = parsed
	}

	source, closeSource, err := a.newSource(opts.FeedFile)
	if err != nil {
		return err
	}
	defer closeSource()

	svc := service.New(a.Config, nil, source, nil, nil, nil, a.Logger)

	q := svc.DefaultQuery(mode)
	q.Block = opts.Block
	if opts.Percentile != nil {
		q.Percentile = *opts.Percentile
	}
	if opts.MaxBlocksBack != nil {
		q.MaxBlocksBack = *opts.MaxBlocksBack
	}
	if opts.MaxQuotes != nil {
		q.MaxQuotes = *opts.MaxQuotes
	}
	if opts.Divisor != "" {
		if q.Divisor, err = oracle.ParseDivisorPolicy(opts.Divisor); err != nil {
			return err
		}
	}

	res, err := svc.Query(ctx, q)
	if err != nil {
		return err
	}

	label := string(res.Mode)
	if res.Mode == oracle.ModePercentile {
		label = fmt.Sprintf("p%d", q.Percentile)
	}
	fmt.Fprintf(out, "block:     %d\n", res.Block)
	fmt.Fprintf(out, "statistic: %s\n", label)
	fmt.Fprintf(out, "selected:  %d (heights > %d, at most %d)\n", res.Selected, res.Threshold, q.MaxQuotes)
	fmt.Fprintf(out, "price:     %s\n", res.Price.Dec())
	fmt.Fprintf(out, "scaled:    %s\n", res.Scaled.String())
	return nil
}
