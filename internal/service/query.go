package service

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"quote-oracle/internal/oracle"
)

// Query is an ad-hoc aggregation request. Block zero means the current chain height.
type Query struct {
	Mode          oracle.Mode
	Percentile    int
	MaxBlocksBack uint64
	MaxQuotes     uint64
	Divisor       oracle.DivisorPolicy
	Block         uint64
}

// QueryResult is the answer to a Query.
type QueryResult struct {
	Block     uint64
	Mode      oracle.Mode
	Price     *uint256.Int
	Scaled    decimal.Decimal
	Selected  int
	Threshold uint64
}

// DefaultQuery returns a query for mode populated from configuration.
func (s *Service) DefaultQuery(mode oracle.Mode) Query {
	return Query{
		Mode:          mode,
		Percentile:    s.percentile,
		MaxBlocksBack: s.window.MaxBlocksBack,
		MaxQuotes:     s.window.MaxQuotes,
		Divisor:       s.divisor,
	}
}

// Query runs a single aggregation against the feed without persisting it.
func (s *Service) Query(ctx context.Context, q Query) (QueryResult, error) {
	block := q.Block
	if block == 0 {
		current, err := s.source.CurrentBlock(ctx)
		if err != nil {
			return QueryResult{}, fmt.Errorf("fetch current block: %w", err)
		}
		block = current
	}

	quotes, err := s.source.Quotes(ctx, block)
	if err != nil {
		return QueryResult{}, fmt.Errorf("fetch quotes at block %d: %w", block, err)
	}

	req := oracle.Request{
		Mode:       q.Mode,
		Percentile: q.Percentile,
		Window: oracle.Window{
			MaxBlocksBack: q.MaxBlocksBack,
			CurrentBlock:  block,
			MaxQuotes:     q.MaxQuotes,
		},
		Divisor: q.Divisor,
	}
	price, err := s.evaluate(quotes, req)
	if err != nil {
		return QueryResult{Block: block, Mode: q.Mode}, err
	}

	return QueryResult{
		Block:     block,
		Mode:      q.Mode,
		Price:     price,
		Scaled:    Scale(price, s.decimals),
		Selected:  len(oracle.Select(quotes, req.Window)),
		Threshold: req.Window.Threshold(),
	}, nil
}

// Decimals reports the configured fixed-point scale of feed prices.
func (s *Service) Decimals() int32 {
	return s.decimals
}
