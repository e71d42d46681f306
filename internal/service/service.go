package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"quote-oracle/internal/alerting"
	"quote-oracle/internal/config"
	"quote-oracle/internal/feed"
	"quote-oracle/internal/metrics"
	"quote-oracle/internal/oracle"
	"quote-oracle/internal/scheduler"
	"quote-oracle/internal/storage"
)

var hundred = decimal.NewFromInt(100)

// Service orchestrates quote retrieval, aggregation, persistence, and alerting.
type Service struct {
	scheduler  *scheduler.Scheduler
	source     feed.Source
	store      storage.ReportStore
	alertStore storage.AlertStore
	notifier   alerting.Notifier
	logger     zerolog.Logger

	window     oracle.Window
	percentile int
	divisor    oracle.DivisorPolicy
	decimals   int32

	threshold decimal.Decimal
	cooldown  time.Duration
	channels  []string
	alertsOn  bool
	locker    storage.AdvisoryLocker
	lockKey   int64

	now       func() time.Time
	mu        sync.Mutex
	lastAlert time.Time
}

// New constructs the oracle service. sched, store, alertStore and notifier may be nil.
func New(cfg *config.Config, sched *scheduler.Scheduler, source feed.Source, store storage.ReportStore, alertStore storage.AlertStore, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	threshold := decimal.Zero
	if cfg.Alerting.Enabled && cfg.Alerting.ThresholdPct > 0 {
		threshold = decimal.NewFromFloat(cfg.Alerting.ThresholdPct)
	}

	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler:  sched,
		source:     source,
		store:      store,
		alertStore: alertStore,
		notifier:   notifier,
		logger:     logger.With().Str("component", "service").Logger(),
		window: oracle.Window{
			MaxBlocksBack: cfg.Oracle.MaxBlocksBack,
			MaxQuotes:     cfg.Oracle.MaxQuotes,
		},
		percentile: cfg.Oracle.Percentile,
		divisor:    cfg.DivisorPolicy(),
		decimals:   cfg.Oracle.Decimals,
		threshold:  threshold,
		cooldown:   cfg.Alerting.Cooldown,
		channels:   cfg.Alerting.Channels,
		alertsOn:   cfg.Alerting.Enabled,
		locker:     locker,
		lockKey:    cfg.Scheduler.AdvisoryLockKey,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run starts the block-driven reporting loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.source.CurrentBlock, s.ProcessBlock)
}

// ProcessBlock evaluates the feed at block, persists the report, and raises an alert when
// the spread between average and percentile exceeds the configured threshold.
func (s *Service) ProcessBlock(ctx context.Context, block uint64) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Uint64("block", block).Msg("skip block because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeBlock(ctx, block)
}

func (s *Service) executeBlock(ctx context.Context, block uint64) error {
	report, err := s.Report(ctx, block)
	if err != nil {
		return err
	}

	if s.store != nil {
		if err := s.store.UpsertReport(ctx, report); err != nil {
			s.logger.Error().Err(err).Uint64("block", block).Msg("failed to upsert report")
		}
	}
	metrics.RecordReport(report.Status, block, report.Selected)

	event := s.logger.Info()
	if report.Status != storage.StatusComplete {
		event = s.logger.Warn().Str("error", *report.Error)
	}
	if report.SpreadPct != nil {
		event = event.Str("spread_pct", report.SpreadPct.String())
	}
	event.Uint64("block", block).Int("selected", report.Selected).Str("status", report.Status).Msg("report recorded")

	if report.SpreadPct == nil || !s.alertsOn || s.notifier == nil || s.threshold.IsZero() {
		return nil
	}
	if !report.SpreadPct.Abs().GreaterThan(s.threshold) {
		return nil
	}
	if s.inCooldown(ctx) {
		s.logger.Debug().Uint64("block", block).Dur("cooldown", s.cooldown).Msg("alert suppressed by cooldown")
		return nil
	}

	s.dispatchAlert(ctx, report)
	return nil
}

// Report evaluates both statistics at block without persisting anything. Aggregation
// failures are captured on the report; only feed errors are returned.
func (s *Service) Report(ctx context.Context, block uint64) (storage.PriceReport, error) {
	quotes, err := s.source.Quotes(ctx, block)
	if err != nil {
		return storage.PriceReport{}, fmt.Errorf("fetch quotes at block %d: %w", block, err)
	}

	window := s.window
	window.CurrentBlock = block

	report := storage.PriceReport{
		ID:            uuid.New(),
		Block:         block,
		Percentile:    s.percentile,
		Selected:      len(oracle.Select(quotes, window)),
		MaxBlocksBack: window.MaxBlocksBack,
		MaxQuotes:     window.MaxQuotes,
		DivisorPolicy: string(s.divisor),
		Status:        storage.StatusComplete,
		CreatedAt:     s.now(),
	}

	avg, avgErr := s.evaluate(quotes, oracle.Request{Mode: oracle.ModeAverage, Window: window, Divisor: s.divisor})
	pct, pctErr := s.evaluate(quotes, oracle.Request{Mode: oracle.ModePercentile, Percentile: s.percentile, Window: window})
	report.AveragePrice = avg
	report.PercentilePrice = pct

	if err := firstErr(avgErr, pctErr); err != nil {
		msg := err.Error()
		report.Status = storage.StatusErrored
		report.Error = &msg
		return report, nil
	}

	report.SpreadPct = spreadPct(avg, pct)
	return report, nil
}

func (s *Service) evaluate(quotes []oracle.Quote, req oracle.Request) (*uint256.Int, error) {
	start := time.Now()
	res, err := oracle.Evaluate(quotes, req)
	metrics.RecordEvaluation(string(req.Mode), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return res.Price, nil
}

func (s *Service) dispatchAlert(ctx context.Context, report storage.PriceReport) {
	direction := classifySpread(*report.SpreadPct)
	note := alerting.Notification{
		Block:           report.Block,
		AveragePrice:    Scale(report.AveragePrice, s.decimals),
		PercentilePrice: Scale(report.PercentilePrice, s.decimals),
		Percentile:      report.Percentile,
		SpreadPct:       *report.SpreadPct,
		ThresholdPct:    s.threshold,
		Direction:       direction,
		Selected:        report.Selected,
		Channels:        s.channels,
	}

	if s.alertStore != nil {
		record := storage.AlertRecord{
			ReportBlock:  report.Block,
			SpreadPct:    *report.SpreadPct,
			ThresholdPct: s.threshold,
			Direction:    direction,
			Channels:     s.channels,
		}
		if _, err := s.alertStore.InsertAlert(ctx, record); err != nil {
			s.logger.Error().Err(err).Uint64("block", report.Block).Msg("failed to persist alert record")
		}
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Uint64("block", report.Block).Msg("failed to dispatch alert")
		return
	}

	s.mu.Lock()
	s.lastAlert = s.now()
	s.mu.Unlock()
	metrics.RecordAlert(direction)
}

func (s *Service) inCooldown(ctx context.Context) bool {
	if s.cooldown <= 0 {
		return false
	}

	s.mu.Lock()
	last := s.lastAlert
	s.mu.Unlock()

	if last.IsZero() && s.alertStore != nil {
		recent, err := s.alertStore.ListRecentAlerts(ctx, 1)
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to load last alert; ignoring cooldown")
			return false
		}
		if len(recent) > 0 {
			last = recent[0].CreatedAt
		}
	}
	if last.IsZero() {
		return false
	}
	return s.now().Sub(last) < s.cooldown
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

// spreadPct is (average - percentile) / percentile * 100, or nil for a zero percentile.
func spreadPct(avg, pct *uint256.Int) *decimal.Decimal {
	if avg == nil || pct == nil || pct.IsZero() {
		return nil
	}
	a := decimal.NewFromBigInt(avg.ToBig(), 0)
	p := decimal.NewFromBigInt(pct.ToBig(), 0)
	spread := a.Sub(p).Div(p).Mul(hundred).Round(6)
	return &spread
}

func classifySpread(d decimal.Decimal) string {
	switch d.Sign() {
	case 1:
		return "up"
	case -1:
		return "down"
	default:
		return "flat"
	}
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Scale renders a raw fixed-point price with the given number of decimals.
func Scale(price *uint256.Int, decimals int32) decimal.Decimal {
	if price == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(price.ToBig(), -decimals)
}
