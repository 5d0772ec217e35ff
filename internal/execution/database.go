package execution

import (
	"errors"
	"time"

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

// ListQueuedOrders returns every QUEUED order in FIFO creation order.
func (d *Database) ListQueuedOrders() ([]types.Order, error) {
	var orders []types.Order
	err := d.db.
		Where("status = ?", types.OrderStatusQueued).
		Order("created_at ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
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

// GetUserBalance sums the user's cash ledger. The balance is never stored
// denormalized; decimal summation keeps it exact.
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

func (d *Database) GetPosition(userID, stockID uint) (*types.Position, error) {
	var position types.Position
	err := d.db.Where("user_id = ? AND stock_id = ?", userID, stockID).First(&position).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &position, nil
}

// ClaimQueuedOrder flips an order from QUEUED to EXECUTING with a
// status-guarded update. A false return means another writer already advanced
// the order; settling it again would double-execute.
func (d *Database) ClaimQueuedOrder(order *types.Order) (bool, error) {
	result := d.db.Model(&types.Order{}).
		Where("id = ? AND status = ?", order.ID, types.OrderStatusQueued).
		Updates(map[string]interface{}{
			"status":     types.OrderStatusExecuting,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	order.Status = types.OrderStatusExecuting
	return true, nil
}

// SetOrderStatus moves an order into the given status.
func (d *Database) SetOrderStatus(order *types.Order, status string) error {
	order.Status = status
	order.UpdatedAt = time.Now().UTC()
	return d.db.Model(order).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": order.UpdatedAt,
		}).Error
}

// Settle commits one fill atomically: the trade record, the signed ledger
// entry, the position upsert, and the EXECUTED transition, or none of them.
func (d *Database) Settle(order *types.Order, trade *types.Trade, entry *types.CashLedgerEntry, position *types.Position) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(trade).Error; err != nil {
			return err
		}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		if err := tx.Save(position).Error; err != nil {
			return err
		}

		order.Status = types.OrderStatusExecuted
		order.UpdatedAt = time.Now().UTC()
		return tx.Model(order).
			Updates(map[string]interface{}{
				"status":     types.OrderStatusExecuted,
				"updated_at": order.UpdatedAt,
			}).Error
	})
}
