package candles

import (
	"errors"
	"time"

	"github.com/ksred/market-sim/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) ListActiveStocks() ([]types.Stock, error) {
	var stocks []types.Stock
	if err := d.db.Where("is_active = ?", true).Find(&stocks).Error; err != nil {
		return nil, err
	}
	return stocks, nil
}

func (d *Database) GetStockByTicker(ticker string) (*types.Stock, error) {
	var stock types.Stock
	if err := d.db.Where("ticker = ?", ticker).First(&stock).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &stock, nil
}

// GetLatestCandle returns the most recent candle for a (stock, interval)
// pair, or nil when none has been aggregated yet.
func (d *Database) GetLatestCandle(stockID uint, interval string) (*types.Candle, error) {
	var candle types.Candle
	err := d.db.
		Where("stock_id = ? AND interval = ?", stockID, interval).
		Order("timestamp_start DESC").
		First(&candle).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &candle, nil
}

// CandleExists reports whether a candle is already persisted for the exact
// window start.
func (d *Database) CandleExists(stockID uint, interval string, start time.Time) (bool, error) {
	var count int64
	err := d.db.Model(&types.Candle{}).
		Where("stock_id = ? AND interval = ? AND timestamp_start = ?", stockID, interval, start).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetTicksInWindow returns the ticks with timestamp in [start, end), oldest
// first.
func (d *Database) GetTicksInWindow(stockID uint, start, end time.Time) ([]types.PriceTick, error) {
	var ticks []types.PriceTick
	err := d.db.
		Where("stock_id = ? AND timestamp >= ? AND timestamp < ?", stockID, start, end).
		Order("timestamp ASC").
		Find(&ticks).Error
	if err != nil {
		return nil, err
	}
	return ticks, nil
}

// CreateCandles persists one aggregation pass atomically. A failed commit
// rolls back the whole batch for this (stock, interval) pair only.
func (d *Database) CreateCandles(batch []types.Candle) error {
	if len(batch) == 0 {
		return nil
	}
	return d.db.Transaction(func(tx *gorm.DB) error {
		for i := range batch {
			if err := tx.Create(&batch[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ListCandles returns up to limit candles in ascending chronological order.
func (d *Database) ListCandles(stockID uint, interval string, limit int) ([]types.Candle, error) {
	var candles []types.Candle
	err := d.db.
		Where("stock_id = ? AND interval = ?", stockID, interval).
		Order("timestamp_start DESC").
		Limit(limit).
		Find(&candles).Error
	if err != nil {
		return nil, err
	}

	// Newest-first query to honor the cap, reversed to chronological order.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}
