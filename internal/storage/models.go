package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Report statuses.
const (
	StatusComplete = "complete"
	StatusErrored  = "errored"
)

// PriceReport is one evaluation of the feed at a block height. Prices are nil when the
// corresponding statistic could not be computed.
type PriceReport struct {
	ID              uuid.UUID
	Block           uint64
	AveragePrice    *uint256.Int
	PercentilePrice *uint256.Int
	Percentile      int
	SpreadPct       *decimal.Decimal
	Selected        int
	MaxBlocksBack   uint64
	MaxQuotes       uint64
	DivisorPolicy   string
	Status          string
	Error           *string
	CreatedAt       time.Time
}

// AlertRecord captures an emitted alert for de-duplication/auditing.
type AlertRecord struct {
	ID           int64
	ReportBlock  uint64
	SpreadPct    decimal.Decimal
	ThresholdPct decimal.Decimal
	Direction    string
	Channels     []string
	CreatedAt    time.Time
}
