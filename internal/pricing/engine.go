package pricing

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/ksred/market-sim/internal/config"
	"github.com/ksred/market-sim/internal/market"
	"github.com/ksred/market-sim/internal/types"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// minPrice is the floor a random-walk step can never go below.
var minPrice = decimal.RequireFromString("0.01")

// OrderProcessor settles whatever orders are queued. The engine invokes it
// once per tick cycle while the market is open.
type OrderProcessor interface {
	ProcessQueuedOrders() error
}

// Engine advances every active stock's price by one stochastic step per tick
// and records each step as a PriceTick. It is the sole writer of PriceLive.
type Engine struct {
	db     *Database
	market *market.Service
	orders OrderProcessor

	tickInterval  time.Duration
	drift         float64
	volatility    float64
	maxTickPct    float64
	tickRetention int

	// norm draws one standard-normal sample; swapped out in tests.
	norm func() float64
}

func NewEngine(gormDB *gorm.DB, marketService *market.Service, orders OrderProcessor, cfg *config.Config) *Engine {
	return &Engine{
		db:            NewDatabase(gormDB),
		market:        marketService,
		orders:        orders,
		tickInterval:  cfg.TickInterval(),
		drift:         cfg.DefaultDrift,
		volatility:    cfg.DefaultVolatility,
		maxTickPct:    cfg.MaxTickPct,
		tickRetention: cfg.TickRetention,
		norm:          rand.NormFloat64,
	}
}

// Start begins the price update loop
func (e *Engine) Start(ctx context.Context) {
	logger := log.With().Str("component", "price_engine").Logger()
	logger.Info().
		Dur("tick_interval", e.tickInterval).
		Float64("drift", e.drift).
		Float64("volatility", e.volatility).
		Float64("max_tick_pct", e.maxTickPct).
		Msg("starting price engine")

	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down price engine")
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}

// Tick runs one full engine cycle: a price step for every active stock, then
// one settlement pass over the queued orders. Closed market means no work.
func (e *Engine) Tick() {
	logger := log.With().Str("component", "price_engine").Logger()

	open, err := e.market.IsOpen()
	if err != nil {
		logger.Error().Err(err).Msg("failed to read market state")
		return
	}
	if !open {
		return
	}

	e.updatePrices()

	if e.orders != nil {
		if err := e.orders.ProcessQueuedOrders(); err != nil {
			logger.Error().Err(err).Msg("order processing pass failed")
		}
	}
}

// updatePrices steps every active stock. A failure on one stock is logged and
// must never abort the remaining stocks.
func (e *Engine) updatePrices() {
	logger := log.With().Str("component", "price_engine").Logger()

	stocks, err := e.db.ListActiveStocks()
	if err != nil {
		logger.Error().Err(err).Msg("failed to list active stocks")
		return
	}

	for i := range stocks {
		if err := e.updateStockPrice(&stocks[i]); err != nil {
			logger.Error().Err(err).Str("ticker", stocks[i].Ticker).Msg("failed to update stock price")
		}
	}
}

// updateStockPrice advances one stock by a single random-walk step.
func (e *Engine) updateStockPrice(stock *types.Stock) error {
	logger := log.With().Str("component", "price_engine").Str("ticker", stock.Ticker).Logger()

	price, err := e.db.GetLivePrice(stock.ID)
	if err != nil {
		return fmt.Errorf("failed to fetch live price: %w", err)
	}
	if price == nil {
		logger.Info().Msg("initializing price data from listing price")
		price = &types.PriceLive{
			StockID:   stock.ID,
			LastPrice: stock.InitialPrice,
			OpenPrice: stock.InitialPrice,
			HighPrice: stock.InitialPrice,
			LowPrice:  stock.InitialPrice,
			UpdatedAt: time.Now().UTC(),
		}
		if err := e.db.CreateLivePrice(price); err != nil {
			return fmt.Errorf("failed to initialize live price: %w", err)
		}
	}

	newPrice := e.step(price.LastPrice)
	now := time.Now().UTC()

	price.LastPrice = newPrice
	if newPrice.GreaterThan(price.HighPrice) {
		price.HighPrice = newPrice
	}
	if newPrice.LessThan(price.LowPrice) {
		price.LowPrice = newPrice
	}
	price.UpdatedAt = now

	if err := e.db.SaveLivePrice(price); err != nil {
		return fmt.Errorf("failed to save live price: %w", err)
	}

	tick := &types.PriceTick{
		StockID:   stock.ID,
		Price:     newPrice,
		Timestamp: now,
	}
	if err := e.db.CreateTick(tick); err != nil {
		return fmt.Errorf("failed to record price tick: %w", err)
	}

	// Retention is opportunistic: a failed prune only means the next cycle
	// deletes a little more.
	if err := e.db.PruneTicks(stock.ID, e.tickRetention); err != nil {
		logger.Debug().Err(err).Msg("tick pruning failed")
	}

	logger.Debug().Str("price", newPrice.String()).Msg("price updated")
	return nil
}

// step produces the next price from the current one: a drift + volatility
// random walk with the fractional move clamped to ±maxTickPct, floored at
// 0.01 and rounded half-up to four decimal places.
func (e *Engine) step(current decimal.Decimal) decimal.Decimal {
	cur := current.InexactFloat64()
	dt := e.tickInterval.Seconds() / 86400.0

	change := e.drift*dt + e.volatility*e.norm()*math.Sqrt(dt)
	if change > e.maxTickPct {
		change = e.maxTickPct
	} else if change < -e.maxTickPct {
		change = -e.maxTickPct
	}

	next := decimal.NewFromFloat(cur * (1 + change)).Round(4)
	if next.LessThan(minPrice) {
		return minPrice
	}
	return next
}
