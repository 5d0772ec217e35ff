package database

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/ksred/market-sim/internal/database/migrations"
	"github.com/ksred/market-sim/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase initializes and returns a new GORM DB connection at the given
// path, migrating the full schema.
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// NewTestDatabase returns a private in-memory database with the full schema,
// for use in tests. Each call yields an isolated database; cache=shared keeps
// it alive across the connections gorm pools.
func NewTestDatabase() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	return NewDatabase(dsn)
}

// Migrate applies the schema and seed migrations to an existing connection.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&types.User{},
		&types.Stock{},
		&types.PriceLive{},
		&types.PriceTick{},
		&types.Order{},
		&types.Trade{},
		&types.Position{},
		&types.CashLedgerEntry{},
		&types.Candle{},
		&types.MarketState{},
		&types.MarketHours{},
		&types.MarketCalendar{},
		&types.AuditLog{},
		&types.IdempotencyRecord{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	if err := migrations.SeedMarketHours(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
