package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"quote-oracle/internal/service"
	"quote-oracle/internal/storage"
)

// Show prints the most recent reports.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show reports")
	}
	if closeStore != nil {
		defer closeStore()
	}

	reports, err := store.ListRecentReports(ctx, opts.Limit)
	if err != nil {
		return err
	}
	total, err := store.CountReports(ctx)
	if err != nil {
		return err
	}

	switch opts.Format {
	case "", "table":
		return a.printReports(os.Stdout, reports, total)
	case "yaml":
		return a.encodeReportsYAML(os.Stdout, reports)
	default:
		return fmt.Errorf("unknown format %q (supported: table, yaml)", opts.Format)
	}
}

func (a *App) printReports(out io.Writer, reports []storage.PriceReport, total int64) error {
	if len(reports) == 0 {
		fmt.Fprintln(out, "no reports found")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Block\tAverage\tPercentile\tSpread%\tSelected\tDivisor\tStatus\tError")

	for _, report := range reports {
		errMsg := ""
		if report.Error != nil {
			errMsg = sanitizeInline(*report.Error)
		}
		spread := "-"
		if report.SpreadPct != nil {
			spread = report.SpreadPct.StringFixed(3)
		}
		fmt.Fprintf(
			writer,
			"%d\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			report.Block,
			a.formatPrice(report.AveragePrice),
			fmt.Sprintf("p%d %s", report.Percentile, a.formatPrice(report.PercentilePrice)),
			spread,
			report.Selected,
			report.DivisorPolicy,
			report.Status,
			errMsg,
		)
	}

	if err := writer.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "showing %d of %d reports\n", len(reports), total)
	return nil
}

type reportView struct {
	Block           uint64 `yaml:"block"`
	AveragePrice    string `yaml:"average_price,omitempty"`
	PercentilePrice string `yaml:"percentile_price,omitempty"`
	Percentile      int    `yaml:"percentile"`
	SpreadPct       string `yaml:"spread_pct,omitempty"`
	Selected        int    `yaml:"selected"`
	DivisorPolicy   string `yaml:"divisor_policy"`
	Status          string `yaml:"status"`
	Error           string `yaml:"error,omitempty"`
}

func (a *App) encodeReportsYAML(out io.Writer, reports []storage.PriceReport) error {
	views := make([]reportView, 0, len(reports))
	for _, report := range reports {
		view := reportView{
			Block:           report.Block,
			AveragePrice:    rawPrice(report.AveragePrice),
			PercentilePrice: rawPrice(report.PercentilePrice),
			Percentile:      report.Percentile,
			Selected:        report.Selected,
			DivisorPolicy:   report.DivisorPolicy,
			Status:          report.Status,
		}
		if report.SpreadPct != nil {
			view.SpreadPct = report.SpreadPct.String()
		}
		if report.Error != nil {
			view.Error = *report.Error
		}
		views = append(views, view)
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(views); err != nil {
		return err
	}
	return enc.Close()
}

func (a *App) formatPrice(v *uint256.Int) string {
	if v == nil {
		return "-"
	}
	return service.Scale(v, a.Config.Oracle.Decimals).String()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
