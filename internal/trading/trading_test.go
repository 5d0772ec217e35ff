package trading

import (
	"testing"
	"time"

	"github.com/google/uuid"
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

func createStock(t *testing.T, db *gorm.DB, ticker string, active bool) *types.Stock {
	t.Helper()

	stock := &types.Stock{
		Ticker:       ticker,
		Company:      ticker + " Corp.",
		InitialPrice: decimal.RequireFromString("100"),
		IsActive:     true,
	}
	require.NoError(t, db.Create(stock).Error)
	if !active {
		// The column defaults to true, so a zero-valued bool is dropped on
		// insert; delisting has to be an explicit update.
		require.NoError(t, db.Model(stock).Update("is_active", false).Error)
		stock.IsActive = false
	}
	return stock
}

func TestCreateOrderQueuesMarketOrder(t *testing.T) {
	svc, db := newTestService(t)
	stock := createStock(t, db, "ACME", true)

	order, err := svc.CreateOrder(1, CreateOrderRequest{Ticker: "ACME", Side: types.OrderSideBuy, Quantity: 10}, uuid.New().String())
	require.NoError(t, err)

	assert.Equal(t, types.OrderStatusQueued, order.Status)
	assert.Equal(t, types.OrderTypeMarket, order.OrderType)
	assert.Equal(t, stock.ID, order.StockID)
	assert.Contains(t, order.OrderID, "ORD_")
}

func TestCreateOrderIdempotentReplay(t *testing.T) {
	svc, db := newTestService(t)
	createStock(t, db, "ACME", true)
	key := uuid.New().String()

	first, err := svc.CreateOrder(1, CreateOrderRequest{Ticker: "ACME", Side: types.OrderSideBuy, Quantity: 10}, key)
	require.NoError(t, err)

	second, err := svc.CreateOrder(1, CreateOrderRequest{Ticker: "ACME", Side: types.OrderSideBuy, Quantity: 10}, key)
	require.NoError(t, err)
	assert.Equal(t, first.OrderID, second.OrderID)

	var count int64
	require.NoError(t, db.Model(&types.Order{}).Count(&count).Error)
	assert.EqualValues(t, 1, count, "a replayed key must not queue a second order")
}

func TestCreateOrderValidation(t *testing.T) {
	svc, db := newTestService(t)
	createStock(t, db, "ACME", true)
	createStock(t, db, "GONE", false)

	cases := []struct {
		name string
		req  CreateOrderRequest
		want error
	}{
		{"bad side", CreateOrderRequest{Ticker: "ACME", Side: "HOLD", Quantity: 1}, ErrInvalidSide},
		{"zero quantity", CreateOrderRequest{Ticker: "ACME", Side: types.OrderSideBuy, Quantity: 0}, ErrInvalidQty},
		{"quantity over cap", CreateOrderRequest{Ticker: "ACME", Side: types.OrderSideBuy, Quantity: maxOrderQuantity + 1}, ErrInvalidQty},
		{"unknown ticker", CreateOrderRequest{Ticker: "NOPE", Side: types.OrderSideBuy, Quantity: 1}, ErrUnknownTicker},
		{"inactive ticker", CreateOrderRequest{Ticker: "GONE", Side: types.OrderSideBuy, Quantity: 1}, ErrUnknownTicker},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateOrder(1, tc.req, uuid.New().String())
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestOrderQuantityBoundsAreInclusive(t *testing.T) {
	svc, db := newTestService(t)
	createStock(t, db, "ACME", true)

	_, err := svc.CreateOrder(1, CreateOrderRequest{Ticker: "ACME", Side: types.OrderSideBuy, Quantity: 1}, uuid.New().String())
	assert.NoError(t, err)

	_, err = svc.CreateOrder(1, CreateOrderRequest{Ticker: "ACME", Side: types.OrderSideSell, Quantity: maxOrderQuantity}, uuid.New().String())
	assert.NoError(t, err)
}

func TestCancelOrderOnlyWhileQueued(t *testing.T) {
	svc, db := newTestService(t)
	createStock(t, db, "ACME", true)

	order, err := svc.CreateOrder(1, CreateOrderRequest{Ticker: "ACME", Side: types.OrderSideBuy, Quantity: 5}, uuid.New().String())
	require.NoError(t, err)

	canceled, err := svc.CancelOrder(1, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusCanceled, canceled.Status)

	// Terminal now: a second cancel is refused.
	_, err = svc.CancelOrder(1, order.OrderID)
	assert.ErrorIs(t, err, ErrNotCancelable)
}

func TestCancelExecutedOrderIsRefused(t *testing.T) {
	svc, db := newTestService(t)
	createStock(t, db, "ACME", true)

	order, err := svc.CreateOrder(1, CreateOrderRequest{Ticker: "ACME", Side: types.OrderSideBuy, Quantity: 5}, uuid.New().String())
	require.NoError(t, err)
	require.NoError(t, db.Model(&types.Order{}).
		Where("order_id = ?", order.OrderID).
		Update("status", types.OrderStatusExecuted).Error)

	_, err = svc.CancelOrder(1, order.OrderID)
	assert.ErrorIs(t, err, ErrNotCancelable)
}

func TestOrdersAreScopedToTheirOwner(t *testing.T) {
	svc, db := newTestService(t)
	createStock(t, db, "ACME", true)

	order, err := svc.CreateOrder(1, CreateOrderRequest{Ticker: "ACME", Side: types.OrderSideBuy, Quantity: 5}, uuid.New().String())
	require.NoError(t, err)

	_, err = svc.CancelOrder(2, order.OrderID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	got, err := svc.GetOrder(2, order.OrderID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListOrdersNewestFirst(t *testing.T) {
	svc, db := newTestService(t)
	createStock(t, db, "ACME", true)

	first, err := svc.CreateOrder(1, CreateOrderRequest{Ticker: "ACME", Side: types.OrderSideBuy, Quantity: 1}, uuid.New().String())
	require.NoError(t, err)

	// Push the second order measurably later.
	require.NoError(t, db.Model(&types.Order{}).
		Where("order_id = ?", first.OrderID).
		Update("created_at", first.CreatedAt.Add(-time.Minute)).Error)

	second, err := svc.CreateOrder(1, CreateOrderRequest{Ticker: "ACME", Side: types.OrderSideSell, Quantity: 2}, uuid.New().String())
	require.NoError(t, err)

	orders, err := svc.ListOrders(1)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.OrderID, orders[0].OrderID)
	assert.Equal(t, first.OrderID, orders[1].OrderID)
}
