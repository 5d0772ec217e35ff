package portfolio

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

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	gormDB, err := database.NewTestDatabase()
	require.NoError(t, err)
	return NewService(gormDB), gormDB
}

func TestDepositAndWithdraw(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Deposit(1, decimal.RequireFromString("1000.00"), "opening balance")
	require.NoError(t, err)

	_, err = svc.Withdraw(1, decimal.RequireFromString("250.50"), "rent")
	require.NoError(t, err)

	balance, err := svc.Balance(1)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("749.50")), "balance %s", balance)
}

func TestWithdrawRefusesOverdraft(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Deposit(1, decimal.RequireFromString("100.00"), "opening balance")
	require.NoError(t, err)

	_, err = svc.Withdraw(1, decimal.RequireFromString("100.01"), "too much")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// An exact-balance withdrawal is allowed.
	_, err = svc.Withdraw(1, decimal.RequireFromString("100.00"), "everything")
	require.NoError(t, err)

	balance, err := svc.Balance(1)
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), "balance %s", balance)
}

func TestCashMovementsRejectNonPositiveAmounts(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Deposit(1, decimal.Zero, "nothing")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Deposit(1, decimal.RequireFromString("-5"), "negative")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Withdraw(1, decimal.Zero, "nothing")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestAmountsRoundToCents(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Deposit(1, decimal.RequireFromString("10.555"), "odd amount")
	require.NoError(t, err)

	balance, err := svc.Balance(1)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("10.56")), "balance %s", balance)
}

func TestLedgerIsIndependentPerUser(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Deposit(1, decimal.RequireFromString("500.00"), "user one")
	require.NoError(t, err)
	_, err = svc.Deposit(2, decimal.RequireFromString("75.00"), "user two")
	require.NoError(t, err)

	balance, err := svc.Balance(2)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("75")), "balance %s", balance)
}

func TestGetSummaryValuesPositionsAtLivePrice(t *testing.T) {
	svc, db := newTestService(t)

	stock := &types.Stock{
		Ticker:       "ACME",
		Company:      "Acme Corp.",
		InitialPrice: decimal.RequireFromString("50"),
		IsActive:     true,
	}
	require.NoError(t, db.Create(stock).Error)
	require.NoError(t, db.Create(&types.PriceLive{
		StockID:   stock.ID,
		LastPrice: decimal.RequireFromString("60.0000"),
		OpenPrice: decimal.RequireFromString("50.0000"),
		HighPrice: decimal.RequireFromString("61.0000"),
		LowPrice:  decimal.RequireFromString("49.0000"),
		UpdatedAt: time.Now().UTC(),
	}).Error)
	require.NoError(t, db.Create(&types.Position{
		UserID:   1,
		StockID:  stock.ID,
		Quantity: 10,
		AvgCost:  decimal.RequireFromString("50"),
	}).Error)

	_, err := svc.Deposit(1, decimal.RequireFromString("1000.00"), "opening balance")
	require.NoError(t, err)

	summary, err := svc.GetSummary(1)
	require.NoError(t, err)
	require.Len(t, summary.Positions, 1)

	view := summary.Positions[0]
	assert.Equal(t, "ACME", view.Ticker)
	assert.EqualValues(t, 10, view.Quantity)
	assert.True(t, view.MarketValue.Equal(decimal.RequireFromString("600")), "market value %s", view.MarketValue)
	assert.True(t, view.UnrealizedPnL.Equal(decimal.RequireFromString("100")), "pnl %s", view.UnrealizedPnL)
	assert.True(t, summary.CashBalance.Equal(decimal.RequireFromString("1000")), "cash %s", summary.CashBalance)
}

func TestGetSummaryOmitsFlatPositions(t *testing.T) {
	svc, db := newTestService(t)

	require.NoError(t, db.Create(&types.Position{
		UserID:   1,
		StockID:  42,
		Quantity: 0,
		AvgCost:  decimal.Zero,
	}).Error)

	summary, err := svc.GetSummary(1)
	require.NoError(t, err)
	assert.Empty(t, summary.Positions)
}

func TestLedgerListsNewestFirst(t *testing.T) {
	svc, db := newTestService(t)

	first, err := svc.Deposit(1, decimal.RequireFromString("100.00"), "first")
	require.NoError(t, err)
	require.NoError(t, db.Model(&types.CashLedgerEntry{}).
		Where("id = ?", first.ID).
		Update("created_at", first.CreatedAt.Add(-time.Minute)).Error)

	_, err = svc.Deposit(1, decimal.RequireFromString("200.00"), "second")
	require.NoError(t, err)

	entries, err := svc.Ledger(1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0].Description)
	assert.Equal(t, "first", entries[1].Description)
}
