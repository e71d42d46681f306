package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/holiman/uint256"
	chart "github.com/wcharczuk/go-chart/v2"

	"quote-oracle/internal/service"
	"quote-oracle/internal/storage"
)

// Export renders historical reports as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	var to uint64
	if opts.ToBlock != nil {
		to = *opts.ToBlock
	} else {
		latest, err := store.ListRecentReports(ctx, 1)
		if err != nil {
			return err
		}
		if len(latest) == 0 {
			a.Logger.Info().Msg("no reports stored yet")
			return nil
		}
		to = latest[0].Block + 1
	}

	span := uint64(opts.MaxPoints) * a.Config.Scheduler.EveryBlocks
	from := uint64(0)
	if to > span {
		from = to - span
	}
	if opts.FromBlock != nil {
		from = *opts.FromBlock
	}

	if from >= to {
		return errors.New("from-block must be below to-block")
	}

	reports, err := store.ListReportsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		a.Logger.Info().Uint64("from_block", from).Uint64("to_block", to).Msg("no reports found for export window")
		return nil
	}

	downsampled := downsampleReports(reports, opts.MaxPoints)
	a.Logger.Info().Int("total", len(reports)).Int("exported", len(downsampled)).Msg("exporting reports")

	if opts.CSVPath != "" {
		if err := a.writeReportsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := a.writeReportsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleReports(reports []storage.PriceReport, limit int) []storage.PriceReport {
	if limit <= 0 || len(reports) <= limit {
		return reports
	}
	if limit == 1 {
		return reports[len(reports)-1:]
	}

	result := make([]storage.PriceReport, 0, limit)
	step := float64(len(reports)-1) / float64(limit-1)
	for i := 0; i < limit; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(reports) {
			idx = len(reports) - 1
		}
		result = append(result, reports[idx])
	}
	return result
}

func (a *App) writeReportsCSV(path string, reports []storage.PriceReport) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"block", "average_price", "percentile", "percentile_price", "average_scaled", "percentile_scaled", "spread_pct", "selected", "divisor_policy", "status", "error", "created_at"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, report := range reports {
		errMsg := ""
		if report.Error != nil {
			errMsg = *report.Error
		}
		spread := ""
		if report.SpreadPct != nil {
			spread = report.SpreadPct.String()
		}
		record := []string{
			strconv.FormatUint(report.Block, 10),
			rawPrice(report.AveragePrice),
			strconv.Itoa(report.Percentile),
			rawPrice(report.PercentilePrice),
			a.formatPrice(report.AveragePrice),
			a.formatPrice(report.PercentilePrice),
			spread,
			strconv.Itoa(report.Selected),
			report.DivisorPolicy,
			report.Status,
			errMsg,
			report.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func (a *App) writeReportsPNG(path string, reports []storage.PriceReport) error {
	var x, average, percentile, spread []float64
	label := "Percentile"
	for _, report := range reports {
		if report.AveragePrice == nil || report.PercentilePrice == nil || report.SpreadPct == nil {
			continue
		}
		x = append(x, float64(report.Block))
		average = append(average, a.scaledFloat(report.AveragePrice))
		percentile = append(percentile, a.scaledFloat(report.PercentilePrice))
		spread = append(spread, report.SpreadPct.InexactFloat64())
		label = fmt.Sprintf("P%d", report.Percentile)
	}
	if len(x) < 2 {
		return fmt.Errorf("png export needs at least two complete reports, found %d", len(x))
	}

	if err := ensureDir(path); err != nil {
		return err
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.4f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			Name:           "Block",
			ValueFormatter: chart.IntValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price",
			ValueFormatter: priceFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name: "Spread (%)",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.3f")
			},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Average",
				XValues: x,
				YValues: average,
			},
			chart.ContinuousSeries{
				Name:    label,
				XValues: x,
				YValues: percentile,
			},
			chart.ContinuousSeries{
				Name:    "Spread %",
				XValues: x,
				YValues: spread,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func (a *App) scaledFloat(v *uint256.Int) float64 {
	return service.Scale(v, a.Config.Oracle.Decimals).InexactFloat64()
}

func rawPrice(v *uint256.Int) string {
	if v == nil {
		return ""
	}
	return v.Dec()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
