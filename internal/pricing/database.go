package pricing

import (
	"errors"

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

func (d *Database) CreateLivePrice(price *types.PriceLive) error {
	return d.db.Create(price).Error
}

func (d *Database) SaveLivePrice(price *types.PriceLive) error {
	return d.db.Save(price).Error
}

func (d *Database) CreateTick(tick *types.PriceTick) error {
	return d.db.Create(tick).Error
}

func (d *Database) CountTicks(stockID uint) (int64, error) {
	var count int64
	err := d.db.Model(&types.PriceTick{}).Where("stock_id = ?", stockID).Count(&count).Error
	return count, err
}

// PruneTicks deletes everything but the newest keep ticks for a stock.
func (d *Database) PruneTicks(stockID uint, keep int) error {
	recent := d.db.Model(&types.PriceTick{}).
		Select("id").
		Where("stock_id = ?", stockID).
		Order("timestamp DESC").
		Limit(keep)

	return d.db.
		Where("stock_id = ? AND id NOT IN (?)", stockID, recent).
		Delete(&types.PriceTick{}).Error
}
