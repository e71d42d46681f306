package oracle

import (
	"math/bits"
	"slices"

	"github.com/holiman/uint256"
)

// Average returns floor(sum(prices) / divisor). The divisor is the caller's and need not
// equal len(selection).
func Average(selection []Quote, divisor uint64) (*uint256.Int, error) {
	if divisor == 0 {
		return nil, ErrDivisionByZero
	}
	if len(selection) == 0 {
		return nil, ErrEmptySelection
	}

	sum := new(uint256.Int)
	for i := range selection {
		if _, overflow := sum.AddOverflow(sum, &selection[i].Price); overflow {
			return nil, ErrOverflow
		}
	}

	return sum.Div(sum, uint256.NewInt(divisor)), nil
}

// Percentile returns the nearest-rank p-th percentile of the selection's prices.
// The result is always one of the observed prices.
func Percentile(selection []Quote, p int) (*uint256.Int, error) {
	if p < 0 || p > 100 {
		return nil, ErrInvalidPercentile
	}
	if len(selection) == 0 {
		return nil, ErrEmptySelection
	}

	prices := make([]uint256.Int, len(selection))
	for i := range selection {
		prices[i] = selection[i].Price
	}
	// Stable so equal prices keep feed order; they are interchangeable anyway.
	slices.SortStableFunc(prices, func(a, b uint256.Int) int {
		return a.Cmp(&b)
	})

	rank, err := nearestRank(uint64(p), uint64(len(prices)))
	if err != nil {
		return nil, err
	}

	return new(uint256.Int).Set(&prices[rank-1]), nil
}

// nearestRank computes ceil(p*n/100) clamped to [1, n].
func nearestRank(p, n uint64) (uint64, error) {
	hi, product := bits.Mul64(p, n)
	if hi != 0 {
		return 0, ErrOverflow
	}
	product, carry := bits.Add64(product, 99, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}

	rank := product / 100
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return rank, nil
}
