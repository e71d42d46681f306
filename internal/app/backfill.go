package app

import (
	"context"
	"errors"
	"fmt"

	"quote-oracle/internal/service"
	"quote-oracle/internal/storage"
)

// Backfill recomputes reports for a historical block range.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	step := opts.Step
	if step == 0 {
		step = a.Config.Scheduler.EveryBlocks
	}
	if step == 0 {
		return errors.New("backfill step must be positive")
	}

	start := alignForward(opts.FromBlock, step)
	end := opts.ToBlock
	if start >= end {
		return errors.New("backfill range is empty; check --from-block/--to-block")
	}

	var reportStore storage.ReportStore
	if opts.DryRun {
		a.Logger.Warn().Msg("backfill dry-run: nothing will be written to the database")
	} else {
		store, closeStore, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("database.dsn not configured; cannot backfill")
		}
		defer closeStore()
		reportStore = store
	}

	source, closeSource, err := a.newSource(opts.FeedFile)
	if err != nil {
		return err
	}
	defer closeSource()

	svc := service.New(a.Config, nil, source, reportStore, nil, nil, a.Logger)

	processed := 0
	failed := 0
	for block := start; block < end; block += step {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := svc.ProcessBlock(ctx, block); err != nil {
			failed++
			a.Logger.Error().Err(err).Uint64("block", block).Msg("backfill failed")
		} else {
			processed++
		}

		if end-block <= step {
			break
		}
	}

	a.Logger.Info().Int("processed", processed).Int("failed", failed).Msg("backfill complete")
	if failed > 0 {
		return fmt.Errorf("%d blocks failed to backfill; check logs", failed)
	}
	return nil
}

// alignForward rounds block up to the next multiple of step.
func alignForward(block, step uint64) uint64 {
	rem := block % step
	if rem == 0 {
		return block
	}
	return block + step - rem
}
