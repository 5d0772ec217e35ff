package market

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

func (d *Database) GetState() (*types.MarketState, error) {
	var state types.MarketState
	if err := d.db.First(&state).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}

func (d *Database) CreateState(state *types.MarketState) error {
	return d.db.Create(state).Error
}

func (d *Database) SaveState(state *types.MarketState) error {
	return d.db.Save(state).Error
}

// GetHoliday returns the holiday entry for the given calendar date, or nil.
// Dates are stored normalized to midnight UTC of the calendar day.
func (d *Database) GetHoliday(date time.Time) (*types.MarketCalendar, error) {
	var holiday types.MarketCalendar
	normalized := NormalizeDate(date)
	err := d.db.Where("date = ? AND is_holiday = ?", normalized, true).First(&holiday).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &holiday, nil
}

// GetHours returns the active trading hours for a weekday (0=Monday), or nil
// when none are configured.
func (d *Database) GetHours(dayOfWeek int) (*types.MarketHours, error) {
	var hours types.MarketHours
	err := d.db.Where("day_of_week = ? AND is_active = ?", dayOfWeek, true).First(&hours).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &hours, nil
}

func (d *Database) ListLivePrices() ([]types.PriceLive, error) {
	var prices []types.PriceLive
	if err := d.db.Find(&prices).Error; err != nil {
		return nil, err
	}
	return prices, nil
}

func (d *Database) SaveLivePrice(price *types.PriceLive) error {
	return d.db.Save(price).Error
}

func (d *Database) CreateAuditLog(entry *types.AuditLog) error {
	return d.db.Create(entry).Error
}

// NormalizeDate collapses a timestamp to midnight UTC of its calendar date,
// the form holiday entries are stored in.
func NormalizeDate(t time.Time) time.Time {
	y, m, day := t.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}
