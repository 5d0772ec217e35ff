package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order statuses. QUEUED orders are the execution engine's input; every order
// ends in exactly one of the terminal states or stays QUEUED.
const (
	OrderStatusQueued    = "QUEUED"
	OrderStatusExecuting = "EXECUTING"
	OrderStatusExecuted  = "EXECUTED"
	OrderStatusRejected  = "REJECTED"
	OrderStatusCanceled  = "CANCELED"
)

// Order sides.
const (
	OrderSideBuy  = "BUY"
	OrderSideSell = "SELL"
)

// Only market orders exist: every fill settles at the current live price.
const OrderTypeMarket = "MARKET"

// Cash ledger entry types.
const (
	CashTypeDeposit    = "DEPOSIT"
	CashTypeWithdrawal = "WITHDRAWAL"
	CashTypeTradeBuy   = "TRADE_BUY"
	CashTypeTradeSell  = "TRADE_SELL"
)

// User is a trading account holder. Authentication details live here only so
// the auth collaborator can resolve API credentials to a user.
type User struct {
	gorm.Model `json:"-"`
	Email      string `gorm:"uniqueIndex" json:"email"`
	APIKey     string `gorm:"uniqueIndex" json:"api_key"`
	APISecret  string `json:"-"`
	IsActive   bool   `gorm:"default:true" json:"is_active"`
}

// Order is a user's request to trade at the live price.
type Order struct {
	gorm.Model     `json:"-"`
	OrderID        string    `gorm:"uniqueIndex" json:"order_id"`
	UserID         uint      `json:"user_id"`
	StockID        uint      `json:"stock_id"`
	OrderType      string    `json:"order_type"` // MARKET
	Side           string    `json:"side"`       // BUY or SELL
	Quantity       int64     `json:"quantity"`
	Status         string    `gorm:"index:ix_orders_status_created" json:"status"`
	IdempotencyKey string    `gorm:"uniqueIndex" json:"idempotency_key"`
	CreatedAt      time.Time `gorm:"index:ix_orders_status_created" json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Trade is an immutable fill record, created exactly once per executed order.
type Trade struct {
	gorm.Model `json:"-"`
	TradeID    string          `gorm:"uniqueIndex" json:"trade_id"`
	OrderID    string          `gorm:"index" json:"order_id"`
	UserID     uint            `gorm:"index" json:"user_id"`
	StockID    uint            `json:"stock_id"`
	Side       string          `json:"side"`
	Quantity   int64           `json:"quantity"`
	Price      decimal.Decimal `gorm:"type:decimal(10,4)" json:"price"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// TotalValue is quantity times execution price.
func (t *Trade) TotalValue() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}

// Position is a per (user, stock) holding. Quantity never goes negative.
type Position struct {
	gorm.Model `json:"-"`
	UserID     uint            `gorm:"uniqueIndex:ux_positions_user_stock" json:"user_id"`
	StockID    uint            `gorm:"uniqueIndex:ux_positions_user_stock" json:"stock_id"`
	Quantity   int64           `json:"quantity"`
	AvgCost    decimal.Decimal `gorm:"type:decimal(10,4)" json:"avg_cost"`
}

// UnrealizedPnL is quantity times (current price minus average cost).
func (p *Position) UnrealizedPnL(lastPrice decimal.Decimal) decimal.Decimal {
	return lastPrice.Sub(p.AvgCost).Mul(decimal.NewFromInt(p.Quantity))
}

// CashLedgerEntry is one signed monetary movement. A user's balance is always
// the sum of their entries, never stored denormalized.
type CashLedgerEntry struct {
	gorm.Model      `json:"-"`
	UserID          uint            `gorm:"index:ix_cash_ledger_user_created" json:"user_id"`
	TransactionType string          `json:"transaction_type"`
	Amount          decimal.Decimal `gorm:"type:decimal(12,2)" json:"amount"`
	Description     string          `json:"description"`
	ReferenceID     string          `json:"reference_id"`
	CreatedAt       time.Time       `gorm:"index:ix_cash_ledger_user_created" json:"created_at"`
}

// IdempotencyRecord maps a caller-supplied key to the resource it created,
// preventing duplicate order submission.
type IdempotencyRecord struct {
	gorm.Model
	IdempotencyKey string    `gorm:"uniqueIndex" json:"idempotency_key"`
	ResourceID     string    `json:"resource_id"`
	ResourceType   string    `json:"resource_type"`
	ExpiresAt      time.Time `json:"expires_at"`
}
