package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreNotConfigured(t *testing.T) {
	var s *Store
	ctx := context.Background()

	assert.ErrorIs(t, s.UpsertReport(ctx, PriceReport{}), ErrNotConfigured)
	_, err := s.ListRecentReports(ctx, 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = s.CountReports(ctx)
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, _, err = NewStore(nil).TryAdvisoryLock(ctx, 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, NewStore(nil).EnsureSchema(ctx), ErrNotConfigured)

	s.Close()
}

func TestNumericRoundTrip(t *testing.T) {
	assert.Nil(t, numericArg(nil))

	top := new(uint256.Int).SetAllOne()
	arg := numericArg(top)
	require.IsType(t, "", arg)

	parsed, err := parseNumeric(sql.NullString{String: arg.(string), Valid: true})
	require.NoError(t, err)
	assert.True(t, parsed.Eq(top))

	parsed, err = parseNumeric(sql.NullString{})
	require.NoError(t, err)
	assert.Nil(t, parsed)
}

func TestSchemaEmbedded(t *testing.T) {
	assert.Contains(t, schemaSQL, "CREATE TABLE IF NOT EXISTS price_reports")
	assert.Contains(t, schemaSQL, "CREATE TABLE IF NOT EXISTS alerts")
}
