package oracle

import "errors"

var (
	// ErrEmptySelection indicates no quote survived the window caps.
	ErrEmptySelection = errors.New("oracle: no admissible quotes")
	// ErrDivisionByZero indicates an average was requested with a zero divisor.
	ErrDivisionByZero = errors.New("oracle: division by zero")
	// ErrInvalidPercentile indicates a percentile outside [0,100].
	ErrInvalidPercentile = errors.New("oracle: percentile must be within [0,100]")
	// ErrOverflow indicates summation or rank arithmetic left the representable range.
	ErrOverflow = errors.New("oracle: arithmetic overflow")
	// ErrUnorderedFeed indicates quote heights decrease somewhere in the feed.
	ErrUnorderedFeed = errors.New("oracle: quotes not ordered by block height")
	// ErrUnknownMode indicates an unsupported aggregation mode.
	ErrUnknownMode = errors.New("oracle: unknown aggregation mode")
	// ErrUnknownDivisorPolicy indicates an unsupported divisor policy name.
	ErrUnknownDivisorPolicy = errors.New("oracle: unknown divisor policy")
)
