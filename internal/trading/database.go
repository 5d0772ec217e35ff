package trading

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

func (d *Database) GetOrder(orderID string) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (d *Database) GetOrderByOrderIDAndUserID(orderID string, userID uint) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("order_id = ? AND user_id = ?", orderID, userID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (d *Database) ListUserOrders(userID uint) ([]types.Order, error) {
	var orders []types.Order
	err := d.db.
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// CreateOrderWithIdempotency creates a new order and idempotency record in a transaction
func (d *Database) CreateOrderWithIdempotency(order *types.Order, idempotencyKey string) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}

		record := types.IdempotencyRecord{
			IdempotencyKey: idempotencyKey,
			ResourceID:     order.OrderID,
			ResourceType:   "order",
			ExpiresAt:      time.Now().Add(24 * time.Hour),
		}
		return tx.Create(&record).Error
	})
}

// GetIdempotencyRecord retrieves an idempotency record by key, or nil.
func (d *Database) GetIdempotencyRecord(key string) (*types.IdempotencyRecord, error) {
	var record types.IdempotencyRecord
	if err := d.db.Where("idempotency_key = ?", key).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// CancelQueuedOrder flips an order to CANCELED only while it is still QUEUED.
// A false return means the order had already left the queue.
func (d *Database) CancelQueuedOrder(order *types.Order) (bool, error) {
	result := d.db.Model(&types.Order{}).
		Where("id = ? AND status = ?", order.ID, types.OrderStatusQueued).
		Updates(map[string]interface{}{
			"status":     types.OrderStatusCanceled,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	order.Status = types.OrderStatusCanceled
	return true, nil
}
