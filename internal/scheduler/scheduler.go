package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// HeightFunc reports the current chain height.
type HeightFunc func(ctx context.Context) (uint64, error)

// TickFunc is invoked once per block boundary with the boundary height.
type TickFunc func(ctx context.Context, block uint64) error

// Options tune scheduler behaviour.
type Options struct {
	EveryBlocks  uint64
	Align        bool
	PollInterval time.Duration
	StartupDelay time.Duration
}

// Scheduler polls the chain height and drives one tick every EveryBlocks blocks.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.EveryBlocks == 0 {
		panic("scheduler every_blocks must be positive")
	}
	if opts.PollInterval <= 0 {
		panic("scheduler poll interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking tick whenever the height reaches the next boundary, until ctx is cancelled.
// Boundaries missed between two polls are collapsed into a single tick at the latest one.
func (s *Scheduler) Run(ctx context.Context, height HeightFunc, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := s.sleep(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	var next uint64
	armed := false
	for {
		current, err := height(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn().Err(err).Msg("height poll failed")
		case !armed:
			next = s.nextTarget(current)
			armed = true
			s.logger.Debug().Uint64("height", current).Uint64("next_block", next).Msg("waiting for next boundary")
		case current >= next:
			block := s.boundary(current)
			if skipped := (block - next) / s.opts.EveryBlocks; skipped > 0 {
				s.logger.Warn().Uint64("skipped", skipped).Uint64("block", block).Msg("boundaries missed between polls")
			}

			s.logger.Info().Uint64("block", block).Msg("executing scheduled tick")
			if err := tick(ctx, block); err != nil {
				s.logger.Error().Err(err).Uint64("block", block).Msg("tick execution failed")
			}
			next = block + s.opts.EveryBlocks
		}

		if err := s.sleep(ctx, s.opts.PollInterval); err != nil {
			return err
		}
	}
}

func (s *Scheduler) nextTarget(height uint64) uint64 {
	if !s.opts.Align {
		return height + s.opts.EveryBlocks
	}
	return height - height%s.opts.EveryBlocks + s.opts.EveryBlocks
}

func (s *Scheduler) boundary(height uint64) uint64 {
	if !s.opts.Align {
		return height
	}
	return height - height%s.opts.EveryBlocks
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
