package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/holiman/uint256"

	"quote-oracle/internal/oracle"
	"quote-oracle/internal/service"
	"quote-oracle/internal/storage"
	"quote-oracle/internal/version"
)

const (
	defaultReportLimit = 20
	maxReportLimit     = 500
)

type priceResponse struct {
	Block     uint64 `json:"block"`
	Mode      string `json:"mode"`
	Price     string `json:"price"`
	Scaled    string `json:"scaled"`
	Selected  int    `json:"selected"`
	Threshold uint64 `json:"threshold"`
}

type reportResponse struct {
	ID              string  `json:"id"`
	Block           uint64  `json:"block"`
	AveragePrice    *string `json:"average_price"`
	PercentilePrice *string `json:"percentile_price"`
	Percentile      int     `json:"percentile"`
	SpreadPct       *string `json:"spread_pct"`
	Selected        int     `json:"selected"`
	MaxBlocksBack   uint64  `json:"max_blocks_back"`
	MaxQuotes       uint64  `json:"max_quotes"`
	DivisorPolicy   string  `json:"divisor_policy"`
	Status          string  `json:"status"`
	Error           *string `json:"error,omitempty"`
	CreatedAt       string  `json:"created_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Version})
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	mode := oracle.ModeAverage
	if raw := params.Get("mode"); raw != "" {
		parsed, err := oracle.ParseMode(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		mode = parsed
	}

	q := s.querier.DefaultQuery(mode)
	var err error
	if q.Percentile, err = intParam(params.Get("percentile"), q.Percentile); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if q.MaxBlocksBack, err = uintParam(params.Get("max_blocks_back"), q.MaxBlocksBack); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if q.MaxQuotes, err = uintParam(params.Get("max_quotes"), q.MaxQuotes); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if q.Block, err = uintParam(params.Get("block"), 0); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if raw := params.Get("divisor"); raw != "" {
		if q.Divisor, err = oracle.ParseDivisorPolicy(raw); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	res, err := s.querier.Query(r.Context(), q)
	if err != nil {
		status := http.StatusBadGateway
		if isAggregationError(err) {
			status = http.StatusUnprocessableEntity
		}
		s.logger.Debug().Err(err).Str("mode", string(mode)).Int("status", status).Msg("price query failed")
		writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusOK, priceResponse{
		Block:     res.Block,
		Mode:      string(res.Mode),
		Price:     res.Price.Dec(),
		Scaled:    res.Scaled.String(),
		Selected:  res.Selected,
		Threshold: res.Threshold,
	})
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		writeError(w, http.StatusServiceUnavailable, storage.ErrNotConfigured)
		return
	}

	limit, err := intParam(r.URL.Query().Get("limit"), defaultReportLimit)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
		return
	}
	limit = min(limit, maxReportLimit)

	reports, err := s.reports.ListRecentReports(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list reports failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	out := make([]reportResponse, 0, len(reports))
	for _, report := range reports {
		out = append(out, toReportResponse(report))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		writeError(w, http.StatusServiceUnavailable, storage.ErrNotConfigured)
		return
	}

	block, err := strconv.ParseUint(mux.Vars(r)["block"], 10, 64)
	if err != nil || block == ^uint64(0) {
		writeError(w, http.StatusBadRequest, errors.New("invalid block"))
		return
	}

	reports, err := s.reports.ListReportsBetween(r.Context(), block, block+1)
	if err != nil {
		s.logger.Error().Err(err).Uint64("block", block).Msg("get report failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if len(reports) == 0 {
		writeError(w, http.StatusNotFound, errors.New("report not found"))
		return
	}
	writeJSON(w, http.StatusOK, toReportResponse(reports[0]))
}

func toReportResponse(report storage.PriceReport) reportResponse {
	out := reportResponse{
		ID:              report.ID.String(),
		Block:           report.Block,
		AveragePrice:    decString(report.AveragePrice),
		PercentilePrice: decString(report.PercentilePrice),
		Percentile:      report.Percentile,
		Selected:        report.Selected,
		MaxBlocksBack:   report.MaxBlocksBack,
		MaxQuotes:       report.MaxQuotes,
		DivisorPolicy:   report.DivisorPolicy,
		Status:          report.Status,
		Error:           report.Error,
		CreatedAt:       report.CreatedAt.UTC().Format(time.RFC3339),
	}
	if report.SpreadPct != nil {
		spread := report.SpreadPct.String()
		out.SpreadPct = &spread
	}
	return out
}

func isAggregationError(err error) bool {
	for _, target := range []error{
		oracle.ErrEmptySelection,
		oracle.ErrDivisionByZero,
		oracle.ErrInvalidPercentile,
		oracle.ErrOverflow,
		oracle.ErrUnknownMode,
		oracle.ErrUnknownDivisorPolicy,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func decString(v *uint256.Int) *string {
	if v == nil {
		return nil
	}
	s := v.Dec()
	return &s
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("invalid integer parameter " + strconv.Quote(raw))
	}
	return v, nil
}

func uintParam(raw string, fallback uint64) (uint64, error) {
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.New("invalid unsigned parameter " + strconv.Quote(raw))
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

var _ Querier = (*service.Service)(nil)
