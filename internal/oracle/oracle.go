package oracle

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Mode selects the statistic computed over a selection.
type Mode string

const (
	// ModeAverage divides the summed prices by the policy's divisor.
	ModeAverage Mode = "average"
	// ModePercentile picks the nearest-rank percentile.
	ModePercentile Mode = "percentile"
)

// ParseMode maps a mode name onto a Mode.
func ParseMode(name string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(name))) {
	case ModeAverage:
		return ModeAverage, nil
	case ModePercentile:
		return ModePercentile, nil
	default:
		return "", fmt.Errorf("%w: %q (supported: average, percentile)", ErrUnknownMode, name)
	}
}

// DivisorPolicy decides what an average divides by.
type DivisorPolicy string

const (
	// DivisorWindow divides by the window capacity, min(MaxQuotes, MaxBlocksBack), but
	// never by less than the number of selected quotes: several quotes at one height can
	// overfill the block range. An under-filled window still pulls the average down.
	DivisorWindow DivisorPolicy = "window"
	// DivisorBudget always divides by MaxQuotes.
	DivisorBudget DivisorPolicy = "budget"
	// DivisorSelected divides by the number of quotes actually selected.
	DivisorSelected DivisorPolicy = "selected"
)

// DefaultDivisorPolicy is used when no policy is configured.
const DefaultDivisorPolicy = DivisorWindow

// ParseDivisorPolicy maps a policy name onto a DivisorPolicy. Empty means the default.
func ParseDivisorPolicy(name string) (DivisorPolicy, error) {
	switch DivisorPolicy(strings.ToLower(strings.TrimSpace(name))) {
	case "":
		return DefaultDivisorPolicy, nil
	case DivisorWindow:
		return DivisorWindow, nil
	case DivisorBudget:
		return DivisorBudget, nil
	case DivisorSelected:
		return DivisorSelected, nil
	default:
		return "", fmt.Errorf("%w: %q (supported: window, budget, selected)", ErrUnknownDivisorPolicy, name)
	}
}

// Divisor returns the divisor for an average over a selection of the given size.
func (p DivisorPolicy) Divisor(w Window, selected int) (uint64, error) {
	switch p {
	case DivisorWindow, "":
		return max(min(w.MaxQuotes, w.MaxBlocksBack), uint64(selected)), nil
	case DivisorBudget:
		return w.MaxQuotes, nil
	case DivisorSelected:
		return uint64(selected), nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownDivisorPolicy, string(p))
	}
}

// Request describes one aggregation.
type Request struct {
	Mode       Mode
	Percentile int
	Window     Window
	Divisor    DivisorPolicy
}

// Result is the outcome of a successful aggregation.
type Result struct {
	Price     *uint256.Int
	Selected  int
	Threshold uint64
}

// Evaluate selects from quotes and applies the requested statistic.
func Evaluate(quotes []Quote, req Request) (Result, error) {
	selection := Select(quotes, req.Window)
	res := Result{Selected: len(selection), Threshold: req.Window.Threshold()}

	var (
		price *uint256.Int
		err   error
	)
	switch req.Mode {
	case ModeAverage:
		var divisor uint64
		divisor, err = req.Divisor.Divisor(req.Window, len(selection))
		if err != nil {
			return res, err
		}
		price, err = Average(selection, divisor)
	case ModePercentile:
		price, err = Percentile(selection, req.Percentile)
	default:
		return res, fmt.Errorf("%w: %q", ErrUnknownMode, string(req.Mode))
	}
	if err != nil {
		return res, fmt.Errorf("%s over %d quotes: %w", req.Mode, len(selection), err)
	}

	res.Price = price
	return res, nil
}

// PriceByAverage averages the admissible quotes using the default divisor policy.
func PriceByAverage(quotes []Quote, maxBlocksBack, currentBlock, maxQuotes uint64) (*uint256.Int, error) {
	res, err := Evaluate(quotes, Request{
		Mode:    ModeAverage,
		Window:  Window{MaxBlocksBack: maxBlocksBack, CurrentBlock: currentBlock, MaxQuotes: maxQuotes},
		Divisor: DefaultDivisorPolicy,
	})
	if err != nil {
		return nil, err
	}
	return res.Price, nil
}

// PriceByPercentile returns the nearest-rank p-th percentile of the admissible quotes.
func PriceByPercentile(quotes []Quote, p int, maxBlocksBack, currentBlock, maxQuotes uint64) (*uint256.Int, error) {
	res, err := Evaluate(quotes, Request{
		Mode:       ModePercentile,
		Percentile: p,
		Window:     Window{MaxBlocksBack: maxBlocksBack, CurrentBlock: currentBlock, MaxQuotes: maxQuotes},
	})
	if err != nil {
		return nil, err
	}
	return res.Price, nil
}
