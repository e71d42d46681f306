package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	reportColumns = `block_height,
        id,
        average_price::text,
        percentile_price::text,
        percentile,
        spread_pct::text,
        selected,
        max_blocks_back,
        max_quotes,
        divisor_policy,
        status,
        error,
        created_at`

	upsertReportSQL = `INSERT INTO price_reports (
        block_height,
        id,
        average_price,
        percentile_price,
        percentile,
        spread_pct,
        selected,
        max_blocks_back,
        max_quotes,
        divisor_policy,
        status,
        error,
        created_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
    )
    ON CONFLICT (block_height) DO UPDATE
    SET
        id               = EXCLUDED.id,
        average_price    = EXCLUDED.average_price,
        percentile_price = EXCLUDED.percentile_price,
        percentile       = EXCLUDED.percentile,
        spread_pct       = EXCLUDED.spread_pct,
        selected         = EXCLUDED.selected,
        max_blocks_back  = EXCLUDED.max_blocks_back,
        max_quotes       = EXCLUDED.max_quotes,
        divisor_policy   = EXCLUDED.divisor_policy,
        status           = EXCLUDED.status,
        error            = EXCLUDED.error,
        created_at       = EXCLUDED.created_at;`

	listReportsBetweenSQL = `SELECT ` + reportColumns + `
    FROM price_reports
    WHERE block_height >= $1
      AND block_height < $2
    ORDER BY block_height;`

	listRecentReportsSQL = `SELECT ` + reportColumns + `
    FROM price_reports
    ORDER BY block_height DESC
    LIMIT $1;`

	countReportsSQL = `SELECT COUNT(*) FROM price_reports;`

	insertAlertSQL = `INSERT INTO alerts (
        report_block,
        spread_pct,
        threshold_pct,
        direction,
        channels
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (report_block) DO UPDATE
    SET spread_pct    = EXCLUDED.spread_pct,
        threshold_pct = EXCLUDED.threshold_pct,
        direction     = EXCLUDED.direction,
        channels      = EXCLUDED.channels
    RETURNING id, report_block, spread_pct::text, threshold_pct::text, direction, channels, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        report_block,
        spread_pct::text,
        threshold_pct::text,
        direction,
        channels,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// ReportStore defines operations for price report persistence.
type ReportStore interface {
	UpsertReport(ctx context.Context, report PriceReport) error
	ListReportsBetween(ctx context.Context, fromBlock, toBlock uint64) ([]PriceReport, error)
	ListRecentReports(ctx context.Context, limit int) ([]PriceReport, error)
	CountReports(ctx context.Context) (int64, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to price reports and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// the session lock also goes away with the connection if this fails
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertReport persists or replaces the report for its block.
func (s *Store) UpsertReport(ctx context.Context, report PriceReport) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var errMsg interface{}
	if report.Error != nil {
		errMsg = *report.Error
	}

	var spread interface{}
	if report.SpreadPct != nil {
		spread = report.SpreadPct.String()
	}

	_, execErr := pool.Exec(ctx, upsertReportSQL,
		int64(report.Block),
		report.ID.String(),
		numericArg(report.AveragePrice),
		numericArg(report.PercentilePrice),
		report.Percentile,
		spread,
		report.Selected,
		int64(report.MaxBlocksBack),
		int64(report.MaxQuotes),
		report.DivisorPolicy,
		report.Status,
		errMsg,
		report.CreatedAt,
	)
	if execErr != nil {
		return fmt.Errorf("upsert price report: %w", execErr)
	}
	return nil
}

// ListReportsBetween lists reports with fromBlock <= block < toBlock.
func (s *Store) ListReportsBetween(ctx context.Context, fromBlock, toBlock uint64) ([]PriceReport, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listReportsBetweenSQL, int64(fromBlock), int64(toBlock))
	if queryErr != nil {
		return nil, fmt.Errorf("list reports between: %w", queryErr)
	}
	defer rows.Close()

	return collectReports(rows, 0)
}

// ListRecentReports lists the most recent reports ordered by descending block.
func (s *Store) ListRecentReports(ctx context.Context, limit int) ([]PriceReport, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentReportsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent reports: %w", queryErr)
	}
	defer rows.Close()

	return collectReports(rows, limit)
}

// CountReports counts stored reports.
func (s *Store) CountReports(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countReportsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count reports: %w", scanErr)
	}
	return count, nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		int64(alert.ReportBlock),
		alert.SpreadPct.String(),
		alert.ThresholdPct.String(),
		alert.Direction,
		alert.Channels,
	)

	rec, scanErr := scanAlert(row)
	if scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		rec, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func numericArg(v *uint256.Int) interface{} {
	if v == nil {
		return nil
	}
	return v.Dec()
}

func collectReports(rows pgx.Rows, capacity int) ([]PriceReport, error) {
	reports := make([]PriceReport, 0, capacity)
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return reports, nil
}

func scanReport(row pgx.Row) (PriceReport, error) {
	var (
		block         int64
		id            string
		average       sql.NullString
		percentile    sql.NullString
		rank          int
		spread        sql.NullString
		selected      int
		maxBlocksBack int64
		maxQuotes     int64
		policy        string
		status        string
		errMsg        sql.NullString
		createdAt     time.Time
	)

	if err := row.Scan(
		&block,
		&id,
		&average,
		&percentile,
		&rank,
		&spread,
		&selected,
		&maxBlocksBack,
		&maxQuotes,
		&policy,
		&status,
		&errMsg,
		&createdAt,
	); err != nil {
		return PriceReport{}, err
	}

	reportID, err := uuid.Parse(id)
	if err != nil {
		return PriceReport{}, fmt.Errorf("parse report id: %w", err)
	}

	report := PriceReport{
		ID:            reportID,
		Block:         uint64(block),
		Percentile:    rank,
		Selected:      selected,
		MaxBlocksBack: uint64(maxBlocksBack),
		MaxQuotes:     uint64(maxQuotes),
		DivisorPolicy: policy,
		Status:        status,
		CreatedAt:     createdAt,
	}

	if report.AveragePrice, err = parseNumeric(average); err != nil {
		return PriceReport{}, fmt.Errorf("parse average price: %w", err)
	}
	if report.PercentilePrice, err = parseNumeric(percentile); err != nil {
		return PriceReport{}, fmt.Errorf("parse percentile price: %w", err)
	}
	if spread.Valid {
		value, err := decimal.NewFromString(spread.String)
		if err != nil {
			return PriceReport{}, fmt.Errorf("parse spread pct: %w", err)
		}
		report.SpreadPct = &value
	}
	if errMsg.Valid {
		msg := errMsg.String
		report.Error = &msg
	}

	return report, nil
}

func scanAlert(row pgx.Row) (AlertRecord, error) {
	var (
		rec          AlertRecord
		block        int64
		spreadStr    string
		thresholdStr string
	)
	if err := row.Scan(
		&rec.ID,
		&block,
		&spreadStr,
		&thresholdStr,
		&rec.Direction,
		&rec.Channels,
		&rec.CreatedAt,
	); err != nil {
		return AlertRecord{}, err
	}
	rec.ReportBlock = uint64(block)

	var convErr error
	rec.SpreadPct, convErr = decimal.NewFromString(spreadStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse spread pct: %w", convErr)
	}
	rec.ThresholdPct, convErr = decimal.NewFromString(thresholdStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse threshold pct: %w", convErr)
	}
	return rec, nil
}

func parseNumeric(v sql.NullString) (*uint256.Int, error) {
	if !v.Valid {
		return nil, nil
	}
	return uint256.FromDecimal(v.String)
}
