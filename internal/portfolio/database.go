package portfolio

import (
	"errors"

	"github.com/ksred/market-sim/internal/types"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// GetUserBalance sums the user's cash ledger entries.
func (d *Database) GetUserBalance(userID uint) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := d.db.Model(&types.CashLedgerEntry{}).
		Where("user_id = ?", userID).
		Pluck("amount", &amounts).Error
	if err != nil {
		return decimal.Zero, err
	}

	balance := decimal.Zero
	for _, amount := range amounts {
		balance = balance.Add(amount)
	}
	return balance, nil
}

func (d *Database) CreateLedgerEntry(entry *types.CashLedgerEntry) error {
	return d.db.Create(entry).Error
}

func (d *Database) ListLedgerEntries(userID uint) ([]types.CashLedgerEntry, error) {
	var entries []types.CashLedgerEntry
	err := d.db.
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ListPositions returns the user's open positions.
func (d *Database) ListPositions(userID uint) ([]types.Position, error) {
	var positions []types.Position
	err := d.db.
		Where("user_id = ? AND quantity > 0", userID).
		Find(&positions).Error
	if err != nil {
		return nil, err
	}
	return positions, nil
}

func (d *Database) ListTrades(userID uint) ([]types.Trade, error) {
	var trades []types.Trade
	err := d.db.
		Where("user_id = ?", userID).
		Order("executed_at DESC").
		Find(&trades).Error
	if err != nil {
		return nil, err
	}
	return trades, nil
}

func (d *Database) GetStock(stockID uint) (*types.Stock, error) {
	var stock types.Stock
	if err := d.db.First(&stock, stockID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &stock, nil
}

func (d *Database) GetLivePrice(stockID uint) (*types.PriceLive, error) {
	var price types.PriceLive
	if err := d.db.Where("stock_id = ?", stockID).First(&price).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &price, nil
}
