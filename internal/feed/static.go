package feed

import (
	"context"
	"sort"

	"quote-oracle/internal/oracle"
)

// Static serves a fixed in-memory quote sequence.
type Static struct {
	Block uint64
	Feed  []oracle.Quote
}

// NewStatic builds a static source at the given height.
func NewStatic(block uint64, quotes []oracle.Quote) *Static {
	return &Static{Block: block, Feed: quotes}
}

// CurrentBlock returns the configured height.
func (s *Static) CurrentBlock(ctx context.Context) (uint64, error) {
	return s.Block, nil
}

// Quotes returns the quotes at or before atBlock.
func (s *Static) Quotes(ctx context.Context, atBlock uint64) ([]oracle.Quote, error) {
	end := sort.Search(len(s.Feed), func(i int) bool {
		return s.Feed[i].BlockHeight > atBlock
	})
	return s.Feed[:end], nil
}

var _ Source = (*Static)(nil)
