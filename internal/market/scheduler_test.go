package market

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

func newTestScheduler(t *testing.T) (*Scheduler, *gorm.DB) {
	t.Helper()

	gormDB, err := database.NewTestDatabase()
	require.NoError(t, err)
	return NewScheduler(NewService(gormDB), time.UTC), gormDB
}

// 2024-01-08 is a Monday with no holiday entry.
func tradingMonday(hour, minute, second int) time.Time {
	return time.Date(2024, 1, 8, hour, minute, second, 0, time.UTC)
}

func TestShouldBeOpenDuringWeekdayHours(t *testing.T) {
	scheduler, _ := newTestScheduler(t)

	open, err := scheduler.ShouldBeOpen(tradingMonday(12, 0, 0))
	require.NoError(t, err)
	assert.True(t, open)
}

func TestShouldBeOpenBoundsAreInclusive(t *testing.T) {
	scheduler, _ := newTestScheduler(t)

	cases := []struct {
		name string
		at   time.Time
		open bool
	}{
		{"one second before open", tradingMonday(9, 29, 59), false},
		{"exactly at open", tradingMonday(9, 30, 0), true},
		{"exactly at close", tradingMonday(16, 0, 0), true},
		{"one second after close", tradingMonday(16, 0, 1), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			open, err := scheduler.ShouldBeOpen(tc.at)
			require.NoError(t, err)
			assert.Equal(t, tc.open, open)
		})
	}
}

func TestShouldBeOpenClosedOnWeekends(t *testing.T) {
	scheduler, _ := newTestScheduler(t)

	// 2024-01-06 is a Saturday, 2024-01-07 a Sunday.
	for day := 6; day <= 7; day++ {
		open, err := scheduler.ShouldBeOpen(time.Date(2024, 1, day, 12, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.False(t, open, "weekend day %d must be closed", day)
	}
}

func TestShouldBeOpenClosedOnHolidays(t *testing.T) {
	scheduler, db := newTestScheduler(t)

	// 2024-07-04 falls on a Thursday.
	require.NoError(t, db.Create(&types.MarketCalendar{
		Date:      time.Date(2024, 7, 4, 0, 0, 0, 0, time.UTC),
		Name:      "Independence Day",
		IsHoliday: true,
	}).Error)

	open, err := scheduler.ShouldBeOpen(time.Date(2024, 7, 4, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, open)

	// The next trading day is unaffected.
	open, err = scheduler.ShouldBeOpen(time.Date(2024, 7, 5, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, open)
}

func TestShouldBeOpenWithoutConfiguredHours(t *testing.T) {
	scheduler, db := newTestScheduler(t)

	require.NoError(t, db.Where("1 = 1").Delete(&types.MarketHours{}).Error)

	open, err := scheduler.ShouldBeOpen(tradingMonday(12, 0, 0))
	require.NoError(t, err)
	assert.False(t, open, "a weekday with no hours row must stay closed")
}

func TestScheduledDecisionFlipsTheFlag(t *testing.T) {
	scheduler, _ := newTestScheduler(t)

	changed, err := scheduler.service.applyScheduledState(true, "test open")
	require.NoError(t, err)
	assert.True(t, changed)

	open, err := scheduler.service.IsOpen()
	require.NoError(t, err)
	assert.True(t, open)

	// Matching decision is a no-op.
	changed, err = scheduler.service.applyScheduledState(true, "test open again")
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestEmergencyOverrideSuppressesSchedule(t *testing.T) {
	scheduler, _ := newTestScheduler(t)
	svc := scheduler.service

	require.NoError(t, svc.SetOpen(false, true, "halt for incident", nil))

	changed, err := svc.applyScheduledState(true, "scheduled open")
	require.NoError(t, err)
	assert.False(t, changed, "schedule must not flip an overridden market")

	open, err := svc.IsOpen()
	require.NoError(t, err)
	assert.False(t, open)

	// Clearing the override re-arms the schedule without flipping the flag.
	require.NoError(t, svc.ClearOverride("incident resolved", nil))
	open, err = svc.IsOpen()
	require.NoError(t, err)
	assert.False(t, open, "clearing the override must not itself open the market")

	changed, err = svc.applyScheduledState(true, "scheduled open")
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestCurrentCreatesDefaultClosedState(t *testing.T) {
	scheduler, _ := newTestScheduler(t)

	state, err := scheduler.service.Current()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.False(t, state.IsOpen)
	assert.False(t, state.EmergencyOverride)
}

func TestManualToggleIsAudited(t *testing.T) {
	scheduler, db := newTestScheduler(t)

	userID := uint(7)
	require.NoError(t, scheduler.service.SetOpen(true, false, "test open", &userID))

	var entry types.AuditLog
	require.NoError(t, db.Where("action = ?", "manual_market_open").First(&entry).Error)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, userID, *entry.UserID)
	assert.Equal(t, "market_state", entry.ResourceType)
}

func TestDailyResetRestartsSession(t *testing.T) {
	scheduler, db := newTestScheduler(t)

	require.NoError(t, db.Create(&types.PriceLive{
		StockID:   1,
		LastPrice: decimal.RequireFromString("102.50"),
		OpenPrice: decimal.RequireFromString("98.00"),
		HighPrice: decimal.RequireFromString("110.00"),
		LowPrice:  decimal.RequireFromString("95.00"),
		UpdatedAt: time.Now().UTC(),
	}).Error)

	require.NoError(t, scheduler.dailyReset())

	var price types.PriceLive
	require.NoError(t, db.Where("stock_id = ?", 1).First(&price).Error)
	assert.True(t, price.OpenPrice.Equal(price.LastPrice))
	assert.True(t, price.HighPrice.Equal(price.LastPrice))
	assert.True(t, price.LowPrice.Equal(price.LastPrice))
	assert.True(t, price.LastPrice.Equal(decimal.RequireFromString("102.50")))
}

func TestMondayIndexedWeekdays(t *testing.T) {
	assert.Equal(t, 0, mondayIndexed(time.Monday))
	assert.Equal(t, 4, mondayIndexed(time.Friday))
	assert.Equal(t, 5, mondayIndexed(time.Saturday))
	assert.Equal(t, 6, mondayIndexed(time.Sunday))
}

func TestHolidayLookupNormalizesTime(t *testing.T) {
	scheduler, db := newTestScheduler(t)

	require.NoError(t, db.Create(&types.MarketCalendar{
		Date:      time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC),
		Name:      "Christmas Day",
		IsHoliday: true,
	}).Error)

	// Any time of day on the holiday matches the midnight-normalized entry.
	holiday, err := scheduler.service.db.GetHoliday(time.Date(2024, 12, 25, 15, 42, 7, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, holiday)
	assert.Equal(t, "Christmas Day", holiday.Name)
}
