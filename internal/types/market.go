package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Candle intervals supported by the aggregator.
const (
	Interval1h = "1h"
	Interval4h = "4h"
	Interval1d = "1d"
)

// IntervalSeconds maps each supported candle interval to its width.
var IntervalSeconds = map[string]int64{
	Interval1h: 3600,
	Interval4h: 14400,
	Interval1d: 86400,
}

// Stock is a tradable synthetic instrument. Provisioned by the admin
// collaborator; immutable once trading has started except for IsActive.
type Stock struct {
	gorm.Model   `json:"-"`
	Ticker       string          `gorm:"uniqueIndex" json:"ticker"`
	Company      string          `json:"company"`
	FloatShares  int64           `json:"float_shares"`
	InitialPrice decimal.Decimal `gorm:"type:decimal(10,4)" json:"initial_price"`
	IsActive     bool            `gorm:"default:true" json:"is_active"`
}

// PriceLive is the current quote snapshot, one row per stock. The price
// engine is its only writer.
type PriceLive struct {
	StockID   uint            `gorm:"primaryKey" json:"stock_id"`
	LastPrice decimal.Decimal `gorm:"type:decimal(10,4)" json:"last_price"`
	OpenPrice decimal.Decimal `gorm:"type:decimal(10,4)" json:"open_price"`
	HighPrice decimal.Decimal `gorm:"type:decimal(10,4)" json:"high_price"`
	LowPrice  decimal.Decimal `gorm:"type:decimal(10,4)" json:"low_price"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Change is the intraday move relative to the session open.
func (p *PriceLive) Change() decimal.Decimal {
	return p.LastPrice.Sub(p.OpenPrice)
}

// PriceTick is one observation of the price process. Append-only, pruned to a
// bounded recent window per stock.
type PriceTick struct {
	ID        uint            `gorm:"primaryKey" json:"-"`
	StockID   uint            `gorm:"index:ix_price_ticks_stock_timestamp" json:"stock_id"`
	Price     decimal.Decimal `gorm:"type:decimal(10,4)" json:"price"`
	Timestamp time.Time       `gorm:"index:ix_price_ticks_stock_timestamp" json:"timestamp"`
}

// Candle is a write-once OHLCV bar for one (stock, interval, window start).
// Volume counts price ticks: no trade-size datum feeds the aggregator.
type Candle struct {
	gorm.Model     `json:"-"`
	StockID        uint            `gorm:"uniqueIndex:ux_candles_stock_interval_start" json:"stock_id"`
	Interval       string          `gorm:"uniqueIndex:ux_candles_stock_interval_start" json:"interval"`
	TimestampStart time.Time       `gorm:"uniqueIndex:ux_candles_stock_interval_start" json:"timestamp_start"`
	TimestampEnd   time.Time       `json:"timestamp_end"`
	OpenPrice      decimal.Decimal `gorm:"type:decimal(10,4)" json:"open"`
	HighPrice      decimal.Decimal `gorm:"type:decimal(10,4)" json:"high"`
	LowPrice       decimal.Decimal `gorm:"type:decimal(10,4)" json:"low"`
	ClosePrice     decimal.Decimal `gorm:"type:decimal(10,4)" json:"close"`
	Volume         int64           `json:"volume"`
}

// MarketState is the singleton trading-permitted flag. Read by the price and
// execution engines, written by the schedule controller or a manual override.
type MarketState struct {
	gorm.Model        `json:"-"`
	IsOpen            bool      `json:"is_open"`
	EmergencyOverride bool      `json:"emergency_override"`
	LastUpdated       time.Time `json:"last_updated"`
}

// MarketHours holds the configured open/close times for one weekday.
// DayOfWeek follows the original schedule data: 0=Monday .. 6=Sunday.
type MarketHours struct {
	gorm.Model `json:"-"`
	DayOfWeek  int    `gorm:"uniqueIndex" json:"day_of_week"`
	OpenTime   string `json:"open_time"`  // "HH:MM" in the market timezone
	CloseTime  string `json:"close_time"` // "HH:MM" in the market timezone
	IsActive   bool   `gorm:"default:true" json:"is_active"`
}

// MarketCalendar marks holiday dates on which the market stays closed.
type MarketCalendar struct {
	gorm.Model `json:"-"`
	Date       time.Time `gorm:"uniqueIndex" json:"date"`
	Name       string    `json:"name"`
	IsHoliday  bool      `gorm:"default:true" json:"is_holiday"`
}

// AuditLog records market state transitions and other collaborator actions.
type AuditLog struct {
	gorm.Model   `json:"-"`
	UserID       *uint     `json:"user_id,omitempty"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	Details      string    `json:"details"`
	CreatedAt    time.Time `gorm:"index:ix_audit_log_created" json:"created_at"`
}
