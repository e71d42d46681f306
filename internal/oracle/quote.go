// Package oracle selects admissible quotes from a height-ordered feed and reduces them
// to a single integer price.
//
// Everything here is pure: no I/O, no shared state, no floating point.
package oracle

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Quote is one observed price at one block height.
type Quote struct {
	Price       uint256.Int
	BlockHeight uint64
}

// NewQuote builds a quote from a 64-bit price.
func NewQuote(price, height uint64) Quote {
	return Quote{Price: *uint256.NewInt(price), BlockHeight: height}
}

// Window bounds a selection by block age and by count.
type Window struct {
	MaxBlocksBack uint64
	CurrentBlock  uint64
	MaxQuotes     uint64
}

// Threshold is the height a quote must exceed to be admissible. It saturates at zero.
func (w Window) Threshold() uint64 {
	if w.MaxBlocksBack >= w.CurrentBlock {
		return 0
	}
	return w.CurrentBlock - w.MaxBlocksBack
}

// CheckOrdered reports the first position where block heights decrease.
func CheckOrdered(quotes []Quote) error {
	for i := 1; i < len(quotes); i++ {
		if quotes[i].BlockHeight < quotes[i-1].BlockHeight {
			return fmt.Errorf("%w: index %d height %d after %d", ErrUnorderedFeed, i, quotes[i].BlockHeight, quotes[i-1].BlockHeight)
		}
	}
	return nil
}
