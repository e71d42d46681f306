package app

import (
	"context"
	"errors"

	"quote-oracle/internal/feed"
	"quote-oracle/internal/oracle"
	"quote-oracle/internal/service"
)

// demoFeed is a short quote history whose default average and median disagree by about 0.9%.
func demoFeed() *feed.Static {
	return feed.NewStatic(22114894, []oracle.Quote{
		oracle.NewQuote(109039634506, 22114890),
		oracle.NewQuote(108039634506, 22114891),
		oracle.NewQuote(108029634506, 22114892),
		oracle.NewQuote(112029634506, 22114893),
		oracle.NewQuote(113029634506, 22114894),
	})
}

// SimulateAlert runs the reporting flow once against a file or built-in feed and
// delivers any resulting alert through the configured channels.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	var source feed.Source = demoFeed()
	if opts.FeedFile != "" {
		source = feed.NewFile(opts.FeedFile, a.Logger)
	}

	block, err := source.CurrentBlock(ctx)
	if err != nil {
		return err
	}

	svc := service.New(a.Config, nil, source, nil, nil, notifier, a.Logger)
	return svc.ProcessBlock(ctx, block)
}
