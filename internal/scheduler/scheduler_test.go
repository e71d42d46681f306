package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type heightSeq struct {
	mu      sync.Mutex
	heights []uint64
	pos     int
}

func (h *heightSeq) next(ctx context.Context) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pos >= len(h.heights) {
		return h.heights[len(h.heights)-1], nil
	}
	v := h.heights[h.pos]
	h.pos++
	if v == 0 {
		return 0, errors.New("rpc unavailable")
	}
	return v, nil
}

func runUntil(t *testing.T, opts Options, heights []uint64, want int) []uint64 {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seq := &heightSeq{heights: heights}
	var ticks []uint64
	s := New(opts, zerolog.Nop())
	err := s.Run(ctx, seq.next, func(ctx context.Context, block uint64) error {
		ticks = append(ticks, block)
		if len(ticks) == want {
			cancel()
		}
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	return ticks
}

func TestRunAligned(t *testing.T) {
	opts := Options{EveryBlocks: 3, Align: true, PollInterval: time.Millisecond}
	ticks := runUntil(t, opts, []uint64{1, 2, 3, 4, 5, 6, 7}, 2)
	assert.Equal(t, []uint64{3, 6}, ticks)
}

func TestRunCollapsesMissedBoundaries(t *testing.T) {
	opts := Options{EveryBlocks: 3, Align: true, PollInterval: time.Millisecond}
	ticks := runUntil(t, opts, []uint64{1, 20, 21}, 2)
	assert.Equal(t, []uint64{18, 21}, ticks)
}

func TestRunUnaligned(t *testing.T) {
	opts := Options{EveryBlocks: 5, PollInterval: time.Millisecond}
	ticks := runUntil(t, opts, []uint64{2, 6, 7, 9, 13, 14}, 2)
	assert.Equal(t, []uint64{7, 13}, ticks)
}

func TestRunSurvivesPollErrors(t *testing.T) {
	opts := Options{EveryBlocks: 2, Align: true, PollInterval: time.Millisecond}
	ticks := runUntil(t, opts, []uint64{1, 0, 0, 2}, 1)
	assert.Equal(t, []uint64{2}, ticks)
}

func TestRunStartupDelayHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(Options{EveryBlocks: 1, PollInterval: time.Millisecond, StartupDelay: time.Hour}, zerolog.Nop())
	err := s.Run(ctx, func(context.Context) (uint64, error) { return 1, nil }, func(context.Context, uint64) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewPanicsOnZeroEvery(t *testing.T) {
	assert.Panics(t, func() { New(Options{PollInterval: time.Second}, zerolog.Nop()) })
}
