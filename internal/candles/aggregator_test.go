package candles

import (
	"testing"
	"time"

	"github.com/ksred/market-sim/internal/database"
	"github.com/ksred/market-sim/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestAggregator(t *testing.T, now time.Time) (*Aggregator, *gorm.DB) {
	t.Helper()

	gormDB, err := database.NewTestDatabase()
	require.NoError(t, err)

	agg := &Aggregator{
		db:           NewDatabase(gormDB),
		frequency:    time.Minute,
		backfillDays: 1,
		now:          func() time.Time { return now },
	}
	return agg, gormDB
}

func createStock(t *testing.T, db *gorm.DB, ticker string) *types.Stock {
	t.Helper()

	stock := &types.Stock{
		Ticker:       ticker,
		Company:      ticker + " Corp.",
		InitialPrice: decimal.RequireFromString("100"),
		IsActive:     true,
	}
	require.NoError(t, db.Create(stock).Error)
	return stock
}

func recordTick(t *testing.T, db *gorm.DB, stockID uint, price string, at time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&types.PriceTick{
		StockID:   stockID,
		Price:     decimal.RequireFromString(price),
		Timestamp: at,
	}).Error)
}

func countCandles(t *testing.T, db *gorm.DB, stockID uint, interval string) int64 {
	t.Helper()

	var count int64
	require.NoError(t, db.Model(&types.Candle{}).
		Where("stock_id = ? AND interval = ?", stockID, interval).
		Count(&count).Error)
	return count
}

func TestFloorToInterval(t *testing.T) {
	at := time.Date(2024, 3, 15, 13, 47, 21, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 3, 15, 13, 0, 0, 0, time.UTC), FloorToInterval(at, 3600))
	assert.Equal(t, time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC), FloorToInterval(at, 14400))
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), FloorToInterval(at, 86400))

	// A window start floors to itself.
	start := time.Date(2024, 3, 15, 13, 0, 0, 0, time.UTC)
	assert.Equal(t, start, FloorToInterval(start, 3600))
}

func TestAggregationBuildsOHLCVFromTicks(t *testing.T) {
	now := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)
	agg, db := newTestAggregator(t, now)
	stock := createStock(t, db, "ACME")

	window := time.Date(2024, 3, 15, 13, 0, 0, 0, time.UTC)
	recordTick(t, db, stock.ID, "50.00", window.Add(5*time.Minute))
	recordTick(t, db, stock.ID, "55.00", window.Add(15*time.Minute))
	recordTick(t, db, stock.ID, "45.00", window.Add(25*time.Minute))
	recordTick(t, db, stock.ID, "52.00", window.Add(50*time.Minute))

	require.NoError(t, agg.ProcessStock(stock.ID))

	var candle types.Candle
	require.NoError(t, db.Where("stock_id = ? AND interval = ? AND timestamp_start = ?",
		stock.ID, types.Interval1h, window).First(&candle).Error)

	assert.True(t, candle.OpenPrice.Equal(decimal.RequireFromString("50")), "open %s", candle.OpenPrice)
	assert.True(t, candle.HighPrice.Equal(decimal.RequireFromString("55")), "high %s", candle.HighPrice)
	assert.True(t, candle.LowPrice.Equal(decimal.RequireFromString("45")), "low %s", candle.LowPrice)
	assert.True(t, candle.ClosePrice.Equal(decimal.RequireFromString("52")), "close %s", candle.ClosePrice)
	assert.EqualValues(t, 4, candle.Volume)
	assert.Equal(t, window.Add(time.Hour), candle.TimestampEnd.UTC())
}

func TestAggregationIsIdempotent(t *testing.T) {
	now := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)
	agg, db := newTestAggregator(t, now)
	stock := createStock(t, db, "ACME")

	window := time.Date(2024, 3, 15, 13, 0, 0, 0, time.UTC)
	recordTick(t, db, stock.ID, "50.00", window.Add(5*time.Minute))

	require.NoError(t, agg.ProcessStock(stock.ID))
	first := countCandles(t, db, stock.ID, types.Interval1h)

	require.NoError(t, agg.ProcessStock(stock.ID))
	assert.Equal(t, first, countCandles(t, db, stock.ID, types.Interval1h), "rerun must not duplicate candles")
}

func TestEmptyWindowsAreNotMaterialized(t *testing.T) {
	now := time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC)
	agg, db := newTestAggregator(t, now)
	stock := createStock(t, db, "ACME")

	// One tick in a 24-hour lookback: exactly one 1h candle.
	recordTick(t, db, stock.ID, "50.00", time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC))

	require.NoError(t, agg.ProcessStock(stock.ID))
	assert.EqualValues(t, 1, countCandles(t, db, stock.ID, types.Interval1h))
}

func TestAggregationResumesFromLatestCandle(t *testing.T) {
	now := time.Date(2024, 3, 15, 18, 30, 0, 0, time.UTC)
	agg, db := newTestAggregator(t, now)
	stock := createStock(t, db, "ACME")

	// An already-closed window; ticks before its end must stay untouched.
	closedStart := time.Date(2024, 3, 15, 15, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&types.Candle{
		StockID:        stock.ID,
		Interval:       types.Interval1h,
		TimestampStart: closedStart,
		TimestampEnd:   closedStart.Add(time.Hour),
		OpenPrice:      decimal.RequireFromString("48"),
		HighPrice:      decimal.RequireFromString("48"),
		LowPrice:       decimal.RequireFromString("48"),
		ClosePrice:     decimal.RequireFromString("48"),
		Volume:         9,
	}).Error)

	recordTick(t, db, stock.ID, "47.00", closedStart.Add(-30*time.Minute))
	recordTick(t, db, stock.ID, "51.00", closedStart.Add(90*time.Minute))

	require.NoError(t, agg.aggregateLatest(stock.ID, types.Interval1h, 3600))

	assert.EqualValues(t, 2, countCandles(t, db, stock.ID, types.Interval1h))

	// The frozen window keeps its original values.
	var frozen types.Candle
	require.NoError(t, db.Where("stock_id = ? AND interval = ? AND timestamp_start = ?",
		stock.ID, types.Interval1h, closedStart).First(&frozen).Error)
	assert.EqualValues(t, 9, frozen.Volume)
}

func TestAllIntervalsAggregateIndependently(t *testing.T) {
	now := time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC)
	agg, db := newTestAggregator(t, now)
	stock := createStock(t, db, "ACME")

	recordTick(t, db, stock.ID, "50.00", time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC))

	require.NoError(t, agg.ProcessStock(stock.ID))

	assert.EqualValues(t, 1, countCandles(t, db, stock.ID, types.Interval1h))
	assert.EqualValues(t, 1, countCandles(t, db, stock.ID, types.Interval4h))
	assert.EqualValues(t, 1, countCandles(t, db, stock.ID, types.Interval1d))
}

func TestCandlesQueryValidatesIntervalAndOrders(t *testing.T) {
	now := time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC)
	agg, db := newTestAggregator(t, now)
	stock := createStock(t, db, "ACME")

	recordTick(t, db, stock.ID, "50.00", time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC))
	recordTick(t, db, stock.ID, "51.00", time.Date(2024, 3, 15, 11, 30, 0, 0, time.UTC))
	require.NoError(t, agg.ProcessStock(stock.ID))

	_, err := agg.Candles(stock.ID, "15m", 10)
	assert.Error(t, err, "unsupported interval must be refused")

	candles, err := agg.Candles(stock.ID, types.Interval1h, 10)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.True(t, candles[0].TimestampStart.Before(candles[1].TimestampStart), "candles must be chronological")
}

func TestBackfillCoversTheHorizon(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	agg, db := newTestAggregator(t, now)
	stock := createStock(t, db, "ACME")

	// A tick from yesterday, outside aggregateLatest's default lookback once a
	// candle exists, but inside the backfill horizon.
	recordTick(t, db, stock.ID, "42.00", now.Add(-20*time.Hour))

	require.NoError(t, agg.Backfill())
	assert.EqualValues(t, 1, countCandles(t, db, stock.ID, types.Interval1h))
}
