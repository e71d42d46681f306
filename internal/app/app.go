package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"quote-oracle/internal/alerting"
	"quote-oracle/internal/api"
	"quote-oracle/internal/config"
	"quote-oracle/internal/feed"
	"quote-oracle/internal/scheduler"
	"quote-oracle/internal/service"
	"quote-oracle/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// newSource picks the quote feed. A non-empty path forces the file feed.
func (a *App) newSource(path string) (feed.Source, func(), error) {
	if path != "" {
		return feed.NewFile(path, a.Logger), func() {}, nil
	}

	switch a.Config.Feed.Source {
	case config.FeedSourceFile:
		return feed.NewFile(a.Config.Feed.File, a.Logger), func() {}, nil
	case config.FeedSourceChain, "":
		chain := feed.NewChain(feed.ChainOptions{
			RPCURL:      a.Config.Ethereum.RPCURL,
			FeedAddress: a.Config.Ethereum.FeedAddress,
			Timeout:     a.Config.Ethereum.RequestTimeout,
		}, a.Logger)
		return chain, chain.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown feed source %q", a.Config.Feed.Source)
	}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// Run executes the long-running reporting service and, when enabled, the HTTP API.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	source, closeSource, err := a.newSource("")
	if err != nil {
		return err
	}
	defer closeSource()

	sched := scheduler.New(scheduler.Options{
		EveryBlocks:  a.Config.Scheduler.EveryBlocks,
		Align:        a.Config.Scheduler.AlignToBlocks,
		PollInterval: a.Config.Scheduler.PollInterval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	var reportStore storage.ReportStore
	var alertStore storage.AlertStore
	if store != nil {
		reportStore = store
		alertStore = store
	}

	svc := service.New(a.Config, sched, source, reportStore, alertStore, a.newNotifier(), a.Logger)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		a.Logger.Info().Uint64("every_blocks", a.Config.Scheduler.EveryBlocks).Msg("starting oracle service")
		return svc.Run(ctx)
	})
	if a.Config.API.Enabled {
		server := api.NewServer(api.Options{
			Listen:      a.Config.API.Listen,
			ReadTimeout: a.Config.API.ReadTimeout,
		}, svc, reportStore, a.Logger)
		group.Go(func() error {
			return server.Run(ctx)
		})
	}

	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("oracle service stopped")
	return nil
}

// PriceOptions configure a one-shot price query. Nil pointers fall back to configuration.
type PriceOptions struct {
	Mode          string
	Percentile    *int
	MaxBlocksBack *uint64
	MaxQuotes     *uint64
	Divisor       string
	Block         uint64
	FeedFile      string
}

// ExportOptions hold parameters for exporting historical reports.
type ExportOptions struct {
	FromBlock *uint64
	ToBlock   *uint64
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Format string
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	FromBlock uint64
	ToBlock   uint64
	Step      uint64
	DryRun    bool
	FeedFile  string
}

// SimulateOptions configure an alert rehearsal over a synthetic feed.
type SimulateOptions struct {
	FeedFile string
}
