package migrations

import (
	"github.com/ksred/market-sim/internal/types"
	"gorm.io/gorm"
)

// SeedMarketHours installs the default weekday trading schedule the first time
// the database is created. 0=Monday .. 4=Friday, regular session 09:30-16:00
// in the market timezone. Weekends get no row, which the schedule controller
// treats as closed.
func SeedMarketHours(db *gorm.DB) error {
	var count int64
	if err := db.Model(&types.MarketHours{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	for day := 0; day < 5; day++ {
		hours := types.MarketHours{
			DayOfWeek: day,
			OpenTime:  "09:30",
			CloseTime: "16:00",
			IsActive:  true,
		}
		if err := db.Create(&hours).Error; err != nil {
			return err
		}
	}

	return nil
}
