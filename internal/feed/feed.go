// Package feed supplies height-ordered quote sequences to the oracle.
package feed

import (
	"context"
	"errors"

	"quote-oracle/internal/oracle"
)

// ErrNotConfigured indicates a feed source is missing required settings.
var ErrNotConfigured = errors.New("feed: source not configured")

// Source exposes the current chain height and the quote feed as of a height.
type Source interface {
	CurrentBlock(ctx context.Context) (uint64, error)
	Quotes(ctx context.Context, atBlock uint64) ([]oracle.Quote, error)
}
