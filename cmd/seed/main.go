package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ksred/market-sim/internal/config"
	"github.com/ksred/market-sim/internal/database"
	"github.com/ksred/market-sim/internal/market"
	"github.com/ksred/market-sim/internal/types"
	"gorm.io/gorm"
)

// stockSeed declares one instrument to provision.
type stockSeed struct {
	ticker      string
	company     string
	floatShares int64
	price       string
}

var sampleStocks = []stockSeed{
	{"XXBZR", "Helix Software PLC", 13109095636, "217.23"},
	{"RMG", "Harbor Entertainment PLC", 16440348471, "88.88"},
	{"QCMU", "Pioneer Digital Holdings", 11384756150, "53.33"},
	{"KGEI", "Greenfield Logistics Corp.", 2652679899, "141.17"},
	{"WQQN", "Cobalt Financial PLC", 3936013136, "325.28"},
	{"VQK", "Redwood Foods Group", 17021307990, "278.67"},
	{"MUT", "Prospera Apparel Inc.", 12671055841, "356.64"},
	{"VXV", "Atlas Materials Ltd.", 9116000632, "140.05"},
	{"YWE", "Apex Mining Corp.", 17947862162, "102.60"},
	{"KUP", "Cypress Analytics Group", 12889118777, "78.31"},
	{"KZL", "Ironclad Networks Holdings", 15777264214, "128.56"},
	{"JYWQ", "Citadel Water Inc.", 16040849713, "293.25"},
	{"ZDS", "TrueNorth Telecom PLC", 10502693662, "188.46"},
	{"DCH", "Granite Security PLC", 12749005936, "221.64"},
	{"GQH", "OpenGate Marine Group", 13398973433, "58.42"},
	{"LBN", "Nimbus Media Ltd.", 18144516026, "94.56"},
	{"MWQ", "Beacon Realty PLC", 9442312278, "346.51"},
	{"ZMR", "Cascade Mobility Corp.", 15805548077, "158.66"},
	{"HQS", "Vertex Electric Holdings", 18853493636, "207.63"},
	{"JXW", "Aurora Pharmaceuticals PLC", 11595655591, "214.65"},
}

type holidaySeed struct {
	date time.Time
	name string
}

var sampleHolidays = []holidaySeed{
	{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "New Year's Day"},
	{time.Date(2024, 7, 4, 0, 0, 0, 0, time.UTC), "Independence Day"},
	{time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC), "Christmas Day"},
}

func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// main provisions the working data set: demo users with opening deposits,
// the instrument list with live prices, the weekday schedule, a closed
// market state, and sample holidays. Idempotent: existing rows are kept.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}

	if err := seedUsers(db); err != nil {
		log.Fatal().Err(err).Msg("failed to seed users")
	}
	if err := seedStocks(db); err != nil {
		log.Fatal().Err(err).Msg("failed to seed stocks")
	}
	if err := seedMarketState(db); err != nil {
		log.Fatal().Err(err).Msg("failed to seed market state")
	}
	if err := seedHolidays(db); err != nil {
		log.Fatal().Err(err).Msg("failed to seed holidays")
	}

	log.Info().Msg("database seeded successfully")
	log.Info().Msg("demo credentials: demo-api-key / demo-api-secret")
}

func seedUsers(db *gorm.DB) error {
	var existing types.User
	err := db.Where("email = ?", "demo@example.com").First(&existing).Error
	if err == nil {
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}

	user := types.User{
		Email:     "demo@example.com",
		APIKey:    "demo-api-key",
		APISecret: "demo-api-secret",
		IsActive:  true,
	}
	if err := db.Create(&user).Error; err != nil {
		return err
	}

	// Opening balance, like any other ledger movement.
	deposit := types.CashLedgerEntry{
		UserID:          user.ID,
		TransactionType: types.CashTypeDeposit,
		Amount:          decimal.RequireFromString("10000.00"),
		Description:     "Initial demo balance",
		CreatedAt:       time.Now().UTC(),
	}
	if err := db.Create(&deposit).Error; err != nil {
		return err
	}

	log.Info().Str("email", user.Email).Msg("created demo user with $10,000 starting balance")
	return nil
}

func seedStocks(db *gorm.DB) error {
	for _, seed := range sampleStocks {
		var existing types.Stock
		err := db.Where("ticker = ?", seed.ticker).First(&existing).Error
		if err == nil {
			continue
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}

		stock := types.Stock{
			Ticker:       seed.ticker,
			Company:      seed.company,
			FloatShares:  seed.floatShares,
			InitialPrice: decimal.RequireFromString(seed.price),
			IsActive:     true,
		}
		if err := db.Create(&stock).Error; err != nil {
			return err
		}

		price := types.PriceLive{
			StockID:   stock.ID,
			LastPrice: stock.InitialPrice,
			OpenPrice: stock.InitialPrice,
			HighPrice: stock.InitialPrice,
			LowPrice:  stock.InitialPrice,
			UpdatedAt: time.Now().UTC(),
		}
		if err := db.Create(&price).Error; err != nil {
			return err
		}

		log.Info().Str("ticker", stock.Ticker).Msg("created stock")
	}
	return nil
}

func seedMarketState(db *gorm.DB) error {
	var count int64
	if err := db.Model(&types.MarketState{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	state := types.MarketState{
		IsOpen:      false,
		LastUpdated: time.Now().UTC(),
	}
	return db.Create(&state).Error
}

func seedHolidays(db *gorm.DB) error {
	for _, seed := range sampleHolidays {
		date := market.NormalizeDate(seed.date)

		var existing types.MarketCalendar
		err := db.Where("date = ?", date).First(&existing).Error
		if err == nil {
			continue
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}

		holiday := types.MarketCalendar{
			Date:      date,
			Name:      seed.name,
			IsHoliday: true,
		}
		if err := db.Create(&holiday).Error; err != nil {
			return err
		}
	}
	return nil
}
