package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quote-oracle/internal/config"
	"quote-oracle/internal/feed"
	"quote-oracle/internal/storage"
)

const feedYAML = `current_block: 22114894
quotes:
  - {price: "109039634506", block: 22114890}
  - {price: "108039634506", block: 22114891}
  - {price: "108029634506", block: 22114892}
  - {price: "112029634506", block: 22114893}
  - {price: "113029634506", block: 22114894}
`

func testApp(t *testing.T) (*App, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(feedYAML), 0o600))

	cfg := &config.Config{
		Feed:      config.FeedConfig{Source: config.FeedSourceFile, File: path},
		Oracle:    config.OracleConfig{MaxBlocksBack: 5, MaxQuotes: 5, Percentile: 50, Decimals: 8},
		Scheduler: config.SchedulerConfig{EveryBlocks: 1},
	}
	return NewApp(cfg, zerolog.Nop()), path
}

func ptr[T any](v T) *T { return &v }

func TestPrice(t *testing.T) {
	a, _ := testApp(t)

	var out bytes.Buffer
	require.NoError(t, a.price(context.Background(), PriceOptions{}, &out))
	assert.Contains(t, out.String(), "price:     110033634506")
	assert.Contains(t, out.String(), "scaled:    1100.33634506")

	out.Reset()
	opts := PriceOptions{Mode: "percentile", Percentile: ptr(10), MaxQuotes: ptr(uint64(2))}
	require.NoError(t, a.price(context.Background(), opts, &out))
	assert.Contains(t, out.String(), "statistic: p10")
	assert.Contains(t, out.String(), "price:     112029634506")

	out.Reset()
	opts = PriceOptions{Mode: "average", MaxBlocksBack: ptr(uint64(4)), MaxQuotes: ptr(uint64(3)), Block: 22114894}
	require.NoError(t, a.price(context.Background(), opts, &out))
	assert.Contains(t, out.String(), "price:     111029634506")
}

func TestPriceErrors(t *testing.T) {
	a, _ := testApp(t)

	var out bytes.Buffer
	assert.Error(t, a.price(context.Background(), PriceOptions{Mode: "median"}, &out))
	assert.Error(t, a.price(context.Background(), PriceOptions{Divisor: "half"}, &out))
	assert.Error(t, a.price(context.Background(), PriceOptions{MaxQuotes: ptr(uint64(0))}, &out))
	assert.Error(t, a.price(context.Background(), PriceOptions{FeedFile: "missing.json"}, &out))
}

func TestNewSource(t *testing.T) {
	a, path := testApp(t)

	src, closeSource, err := a.newSource("")
	require.NoError(t, err)
	defer closeSource()
	assert.IsType(t, &feed.File{}, src)

	a.Config.Feed.Source = config.FeedSourceChain
	src, closeChain, err := a.newSource("")
	require.NoError(t, err)
	defer closeChain()
	assert.IsType(t, &feed.Chain{}, src)

	src, _, err = a.newSource(path)
	require.NoError(t, err)
	assert.IsType(t, &feed.File{}, src)

	a.Config.Feed.Source = "carrier-pigeon"
	_, _, err = a.newSource("")
	assert.Error(t, err)
}

func TestBackfillDryRun(t *testing.T) {
	a, path := testApp(t)
	err := a.Backfill(context.Background(), BackfillOptions{FromBlock: 22114890, ToBlock: 22114895, Step: 2, DryRun: true, FeedFile: path})
	require.NoError(t, err)

	err = a.Backfill(context.Background(), BackfillOptions{FromBlock: 22114895, ToBlock: 22114895, DryRun: true})
	assert.Error(t, err)
}

func TestBackfillRequiresDatabase(t *testing.T) {
	a, _ := testApp(t)
	err := a.Backfill(context.Background(), BackfillOptions{FromBlock: 1, ToBlock: 10})
	assert.ErrorContains(t, err, "database.dsn")
}

func TestAlignForward(t *testing.T) {
	assert.Equal(t, uint64(20), alignForward(20, 10))
	assert.Equal(t, uint64(30), alignForward(21, 10))
	assert.Equal(t, uint64(7), alignForward(7, 1))
}

func sampleReports(n int) []storage.PriceReport {
	reports := make([]storage.PriceReport, 0, n)
	for i := 0; i < n; i++ {
		spread := decimal.NewFromFloat(0.5 + float64(i)/10)
		reports = append(reports, storage.PriceReport{
			ID:              uuid.New(),
			Block:           uint64(22114890 + i),
			AveragePrice:    uint256.NewInt(uint64(110000000000 + i)),
			PercentilePrice: uint256.NewInt(109000000000),
			Percentile:      50,
			SpreadPct:       &spread,
			Selected:        5,
			DivisorPolicy:   "window",
			Status:          storage.StatusComplete,
			CreatedAt:       time.Date(2025, 1, 1, 0, 0, i, 0, time.UTC),
		})
	}
	return reports
}

func TestDownsampleReports(t *testing.T) {
	reports := sampleReports(10)
	assert.Len(t, downsampleReports(reports, 0), 10)
	assert.Len(t, downsampleReports(reports, 20), 10)

	got := downsampleReports(reports, 4)
	require.Len(t, got, 4)
	assert.Equal(t, reports[0].Block, got[0].Block)
	assert.Equal(t, reports[9].Block, got[3].Block)

	assert.Equal(t, reports[9].Block, downsampleReports(reports, 1)[0].Block)
}

func TestWriteReportsCSVAndPNG(t *testing.T) {
	a, _ := testApp(t)
	dir := t.TempDir()
	reports := sampleReports(3)
	msg := "oracle: no admissible quotes"
	reports = append(reports, storage.PriceReport{Block: 22114899, Status: storage.StatusErrored, Error: &msg})

	csvPath := filepath.Join(dir, "out", "reports.csv")
	require.NoError(t, a.writeReportsCSV(csvPath, reports))

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "block", rows[0][0])
	assert.Equal(t, "110000000000", rows[1][1])
	assert.Equal(t, "1100", rows[1][4])
	assert.Equal(t, "", rows[4][1])
	assert.Equal(t, msg, rows[4][10])

	pngPath := filepath.Join(dir, "chart.png")
	require.NoError(t, a.writeReportsPNG(pngPath, reports))
	info, err := os.Stat(pngPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	assert.Error(t, a.writeReportsPNG(pngPath, reports[3:]))
}

func TestPrintReports(t *testing.T) {
	a, _ := testApp(t)

	var out bytes.Buffer
	require.NoError(t, a.printReports(&out, nil, 0))
	assert.Contains(t, out.String(), "no reports found")

	out.Reset()
	require.NoError(t, a.printReports(&out, sampleReports(2), 7))
	assert.Contains(t, out.String(), "22114891")
	assert.Contains(t, out.String(), "p50 1090")
	assert.Contains(t, out.String(), "showing 2 of 7 reports")
}

func TestSimulateAlertRequiresAlerting(t *testing.T) {
	a, _ := testApp(t)
	assert.ErrorContains(t, a.SimulateAlert(context.Background(), SimulateOptions{}), "not enabled")

	a.Config.Alerting.Enabled = true
	assert.ErrorContains(t, a.SimulateAlert(context.Background(), SimulateOptions{}), "no alert channel")
}

func TestMigrateRequiresDatabase(t *testing.T) {
	a, _ := testApp(t)
	assert.Error(t, a.Migrate(context.Background()))
}

func TestEncodeReportsYAML(t *testing.T) {
	a, _ := testApp(t)

	var out bytes.Buffer
	require.NoError(t, a.encodeReportsYAML(&out, sampleReports(1)))
	assert.Contains(t, out.String(), "block: 22114890")
	assert.Contains(t, out.String(), "average_price: \"110000000000\"")
	assert.Contains(t, out.String(), "status: complete")
	assert.NotContains(t, out.String(), "error:")
}
