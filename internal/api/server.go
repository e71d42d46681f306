package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"quote-oracle/internal/metrics"
	"quote-oracle/internal/oracle"
	"quote-oracle/internal/service"
	"quote-oracle/internal/storage"
)

const shutdownTimeout = 5 * time.Second

// Querier answers ad-hoc price queries.
type Querier interface {
	DefaultQuery(mode oracle.Mode) service.Query
	Query(ctx context.Context, q service.Query) (service.QueryResult, error)
	Decimals() int32
}

// Options configure the HTTP server.
type Options struct {
	Listen      string
	ReadTimeout time.Duration
}

// Server exposes read-only price endpoints over HTTP.
type Server struct {
	opts    Options
	querier Querier
	reports storage.ReportStore
	logger  zerolog.Logger
	router  *mux.Router
}

// NewServer wires routes. reports may be nil, in which case report endpoints answer 503.
func NewServer(opts Options, querier Querier, reports storage.ReportStore, logger zerolog.Logger) *Server {
	s := &Server{
		opts:    opts,
		querier: querier,
		reports: reports,
		logger:  logger.With().Str("component", "api").Logger(),
		router:  mux.NewRouter(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/price", s.handlePrice).Methods(http.MethodGet)
	v1.HandleFunc("/reports", s.handleListReports).Methods(http.MethodGet)
	v1.HandleFunc("/reports/{block:[0-9]+}", s.handleGetReport).Methods(http.MethodGet)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Listen,
		Handler:           s,
		ReadTimeout:       s.opts.ReadTimeout,
		ReadHeaderTimeout: s.opts.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("listen", s.opts.Listen).Msg("api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info().Msg("api stopped")
	return nil
}

var _ http.Handler = (*Server)(nil)
