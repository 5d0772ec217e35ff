package execution

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/market-sim/internal/types"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Validation rejections. All of them are terminal: the order goes to REJECTED
// and is never retried.
var (
	ErrNoPriceData        = errors.New("no price data for instrument")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
)

// Engine drains the QUEUED order set and settles each order exactly once
// against the live price. It assumes it is the sole writer advancing QUEUED
// orders; the status-guarded claim makes a second instance skip instead of
// double-settling.
type Engine struct {
	db *Database
}

func NewEngine(gormDB *gorm.DB) *Engine {
	return &Engine{
		db: NewDatabase(gormDB),
	}
}

// ProcessQueuedOrders settles the QUEUED set as one batch, strictly in FIFO
// creation order. A failure on one order marks it REJECTED and never blocks
// the rest of the batch.
func (e *Engine) ProcessQueuedOrders() error {
	logger := log.With().Str("component", "execution_engine").Logger()

	orders, err := e.db.ListQueuedOrders()
	if err != nil {
		return fmt.Errorf("failed to list queued orders: %w", err)
	}
	if len(orders) == 0 {
		return nil
	}

	logger.Info().Int("queued", len(orders)).Msg("processing queued orders")

	for i := range orders {
		order := &orders[i]
		if err := e.settleOrder(order); err != nil {
			logger.Warn().
				Err(err).
				Str("order_id", order.OrderID).
				Str("side", order.Side).
				Int64("quantity", order.Quantity).
				Msg("order rejected")

			if err := e.db.SetOrderStatus(order, types.OrderStatusRejected); err != nil {
				logger.Error().Err(err).Str("order_id", order.OrderID).Msg("failed to mark order rejected")
			}
		}
	}

	return nil
}

// settleOrder validates and settles a single order. Any returned error means
// the order must be rejected.
func (e *Engine) settleOrder(order *types.Order) error {
	logger := log.With().
		Str("component", "execution_engine").
		Str("order_id", order.OrderID).
		Logger()

	stock, err := e.db.GetStock(order.StockID)
	if err != nil {
		return fmt.Errorf("failed to fetch instrument: %w", err)
	}
	if stock == nil {
		return fmt.Errorf("instrument %d not found", order.StockID)
	}

	price, err := e.db.GetLivePrice(order.StockID)
	if err != nil {
		return fmt.Errorf("failed to fetch live price: %w", err)
	}
	if price == nil {
		return ErrNoPriceData
	}

	executionPrice := price.LastPrice
	quantity := decimal.NewFromInt(order.Quantity)
	notional := executionPrice.Mul(quantity)

	// Both sides fold the fill into the existing position row; a buy on a
	// held instrument must update it, not insert a duplicate.
	position, err := e.db.GetPosition(order.UserID, order.StockID)
	if err != nil {
		return fmt.Errorf("failed to fetch position: %w", err)
	}

	switch order.Side {
	case types.OrderSideBuy:
		balance, err := e.db.GetUserBalance(order.UserID)
		if err != nil {
			return fmt.Errorf("failed to compute balance: %w", err)
		}
		if balance.LessThan(notional) {
			return fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, notional, balance)
		}

	case types.OrderSideSell:
		if position == nil || position.Quantity < order.Quantity {
			return ErrInsufficientShares
		}

	default:
		return fmt.Errorf("unknown order side %q", order.Side)
	}

	claimed, err := e.db.ClaimQueuedOrder(order)
	if err != nil {
		return fmt.Errorf("failed to claim order: %w", err)
	}
	if !claimed {
		// Another writer advanced this order between the batch read and now.
		logger.Debug().Msg("order no longer queued, skipping")
		return nil
	}

	now := time.Now().UTC()
	trade := &types.Trade{
		TradeID:    "TRD_" + uuid.New().String(),
		OrderID:    order.OrderID,
		UserID:     order.UserID,
		StockID:    order.StockID,
		Side:       order.Side,
		Quantity:   order.Quantity,
		Price:      executionPrice,
		ExecutedAt: now,
	}

	entry := buildLedgerEntry(order, stock, trade, notional)
	position = applyFill(position, order, executionPrice)

	if err := e.db.Settle(order, trade, entry, position); err != nil {
		return fmt.Errorf("settlement commit failed: %w", err)
	}

	logger.Info().
		Str("trade_id", trade.TradeID).
		Str("ticker", stock.Ticker).
		Str("side", order.Side).
		Int64("quantity", order.Quantity).
		Str("price", executionPrice.String()).
		Msg("order executed")

	return nil
}

// buildLedgerEntry produces the signed cash movement for a fill: negative for
// a buy, positive for a sell, referencing the trade.
func buildLedgerEntry(order *types.Order, stock *types.Stock, trade *types.Trade, notional decimal.Decimal) *types.CashLedgerEntry {
	amount := notional
	txType := types.CashTypeTradeSell
	if order.Side == types.OrderSideBuy {
		amount = notional.Neg()
		txType = types.CashTypeTradeBuy
	}

	side := "Sell"
	if order.Side == types.OrderSideBuy {
		side = "Buy"
	}
	return &types.CashLedgerEntry{
		UserID:          order.UserID,
		TransactionType: txType,
		Amount:          amount,
		Description:     fmt.Sprintf("%s %d %s @ $%s", side, order.Quantity, stock.Ticker, trade.Price),
		ReferenceID:     "trade_" + trade.TradeID,
		CreatedAt:       trade.ExecutedAt,
	}
}

// applyFill folds a fill into the position. Buys recompute the weighted
// average cost; a sell that empties the position resets the average to zero.
func applyFill(position *types.Position, order *types.Order, price decimal.Decimal) *types.Position {
	if position == nil {
		position = &types.Position{
			UserID:  order.UserID,
			StockID: order.StockID,
			AvgCost: decimal.Zero,
		}
	}

	quantity := decimal.NewFromInt(order.Quantity)

	if order.Side == types.OrderSideBuy {
		oldQty := decimal.NewFromInt(position.Quantity)
		totalCost := oldQty.Mul(position.AvgCost).Add(quantity.Mul(price))
		totalQty := position.Quantity + order.Quantity
		position.AvgCost = totalCost.Div(decimal.NewFromInt(totalQty)).Round(4)
		position.Quantity = totalQty
	} else {
		position.Quantity -= order.Quantity
		if position.Quantity == 0 {
			position.AvgCost = decimal.Zero
		}
	}

	return position
}
