package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
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
	"quote-oracle/internal/oracle"
	"quote-oracle/internal/service"
	"quote-oracle/internal/storage"
)

type fakeReports struct {
	reports []storage.PriceReport
}

func (f *fakeReports) UpsertReport(ctx context.Context, report storage.PriceReport) error {
	f.reports = append(f.reports, report)
	return nil
}

func (f *fakeReports) ListReportsBetween(ctx context.Context, fromBlock, toBlock uint64) ([]storage.PriceReport, error) {
	var out []storage.PriceReport
	for _, r := range f.reports {
		if r.Block >= fromBlock && r.Block < toBlock {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeReports) ListRecentReports(ctx context.Context, limit int) ([]storage.PriceReport, error) {
	if len(f.reports) > limit {
		return f.reports[:limit], nil
	}
	return f.reports, nil
}

func (f *fakeReports) CountReports(ctx context.Context) (int64, error) {
	return int64(len(f.reports)), nil
}

func newTestServer(reports storage.ReportStore) *Server {
	cfg := &config.Config{Oracle: config.OracleConfig{MaxBlocksBack: 5, MaxQuotes: 5, Percentile: 50, Decimals: 8}}
	source := feed.NewStatic(22114894, []oracle.Quote{
		oracle.NewQuote(109039634506, 22114890),
		oracle.NewQuote(108039634506, 22114891),
		oracle.NewQuote(108029634506, 22114892),
		oracle.NewQuote(112029634506, 22114893),
		oracle.NewQuote(113029634506, 22114894),
	})
	svc := service.New(cfg, nil, source, nil, nil, nil, zerolog.Nop())
	return NewServer(Options{Listen: "127.0.0.1:0", ReadTimeout: time.Second}, svc, reports, zerolog.Nop())
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestServer(nil), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestMetricsRoute(t *testing.T) {
	rec := get(t, newTestServer(nil), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPrice(t *testing.T) {
	srv := newTestServer(nil)

	cases := []struct {
		target string
		price  string
	}{
		{"/v1/price", "110033634506"},
		{"/v1/price?mode=average&max_blocks_back=4", "110282134506"},
		{"/v1/price?mode=average&max_blocks_back=4&max_quotes=3", "111029634506"},
		{"/v1/price?mode=percentile&percentile=90", "113029634506"},
		{"/v1/price?mode=percentile&percentile=10", "108029634506"},
		{"/v1/price?mode=percentile&percentile=10&max_blocks_back=3", "108029634506"},
		{"/v1/price?mode=percentile&percentile=10&max_quotes=2", "112029634506"},
	}
	for _, tc := range cases {
		rec := get(t, srv, tc.target)
		require.Equal(t, http.StatusOK, rec.Code, tc.target)

		var body priceResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tc.price, body.Price, tc.target)
		assert.Equal(t, uint64(22114894), body.Block)
	}
}

func TestPriceAtBlock(t *testing.T) {
	rec := get(t, newTestServer(nil), "/v1/price?mode=percentile&percentile=100&block=22114892")
	require.Equal(t, http.StatusOK, rec.Code)

	var body priceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "109039634506", body.Price)
	assert.Equal(t, "1090.39634506", body.Scaled)
	assert.Equal(t, 3, body.Selected)
}

func TestPriceErrors(t *testing.T) {
	srv := newTestServer(nil)

	cases := []struct {
		target string
		status int
	}{
		{"/v1/price?mode=median", http.StatusBadRequest},
		{"/v1/price?max_quotes=-1", http.StatusBadRequest},
		{"/v1/price?divisor=half", http.StatusBadRequest},
		{"/v1/price?mode=percentile&percentile=101", http.StatusUnprocessableEntity},
		{"/v1/price?max_quotes=0", http.StatusUnprocessableEntity},
		{"/v1/price?mode=percentile&max_quotes=0", http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		rec := get(t, srv, tc.target)
		assert.Equal(t, tc.status, rec.Code, tc.target)
		assert.True(t, strings.Contains(rec.Body.String(), `"error"`), tc.target)
	}
}

func TestReports(t *testing.T) {
	spread := decimal.RequireFromString("0.911596")
	reports := &fakeReports{reports: []storage.PriceReport{{
		ID:              uuid.New(),
		Block:           22114894,
		AveragePrice:    uint256.NewInt(110033634506),
		PercentilePrice: uint256.NewInt(109039634506),
		Percentile:      50,
		SpreadPct:       &spread,
		Selected:        5,
		Status:          storage.StatusComplete,
		CreatedAt:       time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}}}
	srv := newTestServer(reports)

	rec := get(t, srv, "/v1/reports?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []reportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "110033634506", *list[0].AveragePrice)
	assert.Equal(t, "0.911596", *list[0].SpreadPct)
	assert.Equal(t, "2025-01-02T03:04:05Z", list[0].CreatedAt)

	assert.Equal(t, http.StatusOK, get(t, srv, "/v1/reports/22114894").Code)
	assert.Equal(t, http.StatusNotFound, get(t, srv, "/v1/reports/1").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/v1/reports?limit=0").Code)
}

func TestReportsWithoutStore(t *testing.T) {
	rec := get(t, newTestServer(nil), "/v1/reports")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRunStopsOnCancel(t *testing.T) {
	srv := newTestServer(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
