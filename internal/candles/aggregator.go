package candles

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/market-sim/internal/config"
	"github.com/ksred/market-sim/internal/types"
	"github.com/ksred/market-sim/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// defaultQueryLimit caps candle queries that do not name their own limit.
const defaultQueryLimit = 100

// Aggregator folds price ticks into fixed-width OHLCV bars, independently per
// (stock, interval). It runs on its own cadence and may lag arbitrarily
// behind the price engine.
type Aggregator struct {
	db           *Database
	frequency    time.Duration
	backfillDays int

	// now is swapped out in tests to pin the window walk.
	now func() time.Time
}

func NewAggregator(gormDB *gorm.DB, cfg *config.Config) *Aggregator {
	return &Aggregator{
		db:           NewDatabase(gormDB),
		frequency:    cfg.AggregationInterval(),
		backfillDays: cfg.CandleBackfillDays,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Start runs one backfill pass over the historical horizon, then aggregates
// incrementally on the configured cadence.
func (a *Aggregator) Start(ctx context.Context) {
	logger := log.With().Str("component", "candle_aggregator").Logger()
	logger.Info().
		Dur("frequency", a.frequency).
		Int("backfill_days", a.backfillDays).
		Msg("starting candle aggregator")

	if err := a.Backfill(); err != nil {
		logger.Error().Err(err).Msg("historical backfill failed")
	}

	ticker := time.NewTicker(a.frequency)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down candle aggregator")
			return
		case <-ticker.C:
			a.ProcessAllStocks()
		}
	}
}

// Backfill walks the full historical horizon for every active stock and
// interval. Idempotent: existing windows are skipped.
func (a *Aggregator) Backfill() error {
	logger := log.With().Str("component", "candle_aggregator").Logger()
	logger.Info().Int("days", a.backfillDays).Msg("backfilling historical candles")

	stocks, err := a.db.ListActiveStocks()
	if err != nil {
		return fmt.Errorf("failed to list active stocks: %w", err)
	}

	end := a.now()
	start := end.AddDate(0, 0, -a.backfillDays)

	for i := range stocks {
		for interval, seconds := range types.IntervalSeconds {
			if err := a.aggregateRange(stocks[i].ID, interval, seconds, start, end); err != nil {
				logger.Error().
					Err(err).
					Str("ticker", stocks[i].Ticker).
					Str("interval", interval).
					Msg("backfill failed for interval")
			}
		}
	}

	logger.Info().Msg("historical backfill completed")
	return nil
}

// ProcessAllStocks runs one incremental aggregation cycle. Failures are
// isolated per stock and per interval.
func (a *Aggregator) ProcessAllStocks() {
	logger := log.With().Str("component", "candle_aggregator").Logger()

	stocks, err := a.db.ListActiveStocks()
	if err != nil {
		logger.Error().Err(err).Msg("failed to list active stocks")
		return
	}

	for i := range stocks {
		if err := a.ProcessStock(stocks[i].ID); err != nil {
			logger.Error().Err(err).Str("ticker", stocks[i].Ticker).Msg("failed to process stock candles")
		}
	}
}

// ProcessStock aggregates every interval for one stock, resuming each
// interval from its latest persisted window.
func (a *Aggregator) ProcessStock(stockID uint) error {
	logger := log.With().Str("component", "candle_aggregator").Uint("stock_id", stockID).Logger()

	var firstErr error
	for interval, seconds := range types.IntervalSeconds {
		if err := a.aggregateLatest(stockID, interval, seconds); err != nil {
			logger.Error().Err(err).Str("interval", interval).Msg("interval aggregation failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (a *Aggregator) aggregateLatest(stockID uint, interval string, intervalSeconds int64) error {
	latest, err := a.db.GetLatestCandle(stockID, interval)
	if err != nil {
		return fmt.Errorf("failed to fetch latest candle: %w", err)
	}

	now := a.now()
	var start time.Time
	if latest != nil {
		start = latest.TimestampEnd
	} else {
		start = now.Add(-24 * time.Hour)
	}

	return a.aggregateRange(stockID, interval, intervalSeconds, start, now)
}

// aggregateRange walks window-by-window from start to end, synthesizing one
// candle per non-empty window that does not already have one. Windows are
// write-once: a window aggregated before it has fully elapsed is frozen with
// whatever ticks existed at that moment, even if more arrive later.
func (a *Aggregator) aggregateRange(stockID uint, interval string, intervalSeconds int64, start, end time.Time) error {
	windowStart := FloorToInterval(start, intervalSeconds)
	width := time.Duration(intervalSeconds) * time.Second

	var batch []types.Candle

	for windowStart.Before(end) {
		windowEnd := windowStart.Add(width)

		exists, err := a.db.CandleExists(stockID, interval, windowStart)
		if err != nil {
			return fmt.Errorf("failed to check window %s: %w", windowStart, err)
		}
		if !exists {
			ticks, err := a.db.GetTicksInWindow(stockID, windowStart, windowEnd)
			if err != nil {
				return fmt.Errorf("failed to fetch ticks for window %s: %w", windowStart, err)
			}
			if len(ticks) > 0 {
				batch = append(batch, buildCandle(stockID, interval, windowStart, windowEnd, ticks))
			}
		}

		windowStart = windowEnd
	}

	if err := a.db.CreateCandles(batch); err != nil {
		return fmt.Errorf("failed to commit %d candles: %w", len(batch), err)
	}
	return nil
}

// buildCandle synthesizes one OHLCV bar: open and close from the first and
// last tick, high/low over the window. Volume is the tick count; no
// trade-size datum feeds the aggregator.
func buildCandle(stockID uint, interval string, start, end time.Time, ticks []types.PriceTick) types.Candle {
	candle := types.Candle{
		StockID:        stockID,
		Interval:       interval,
		TimestampStart: start,
		TimestampEnd:   end,
		OpenPrice:      ticks[0].Price,
		ClosePrice:     ticks[len(ticks)-1].Price,
		HighPrice:      ticks[0].Price,
		LowPrice:       ticks[0].Price,
		Volume:         int64(len(ticks)),
	}

	for i := range ticks {
		if ticks[i].Price.GreaterThan(candle.HighPrice) {
			candle.HighPrice = ticks[i].Price
		}
		if ticks[i].Price.LessThan(candle.LowPrice) {
			candle.LowPrice = ticks[i].Price
		}
	}
	return candle
}

// FloorToInterval floors a timestamp to the enclosing window start.
func FloorToInterval(t time.Time, intervalSeconds int64) time.Time {
	floored := (t.Unix() / intervalSeconds) * intervalSeconds
	return time.Unix(floored, 0).UTC()
}

// Candles returns up to limit bars for one (stock, interval) pair in
// ascending chronological order.
func (a *Aggregator) Candles(stockID uint, interval string, limit int) ([]types.Candle, error) {
	if _, ok := types.IntervalSeconds[interval]; !ok {
		return nil, fmt.Errorf("unsupported interval %q", interval)
	}
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	return a.db.ListCandles(stockID, interval, limit)
}

// GinHandlers contains HTTP handlers for candle endpoints
type GinHandlers struct {
	aggregator *Aggregator
}

func NewGinHandlers(aggregator *Aggregator) *GinHandlers {
	return &GinHandlers{
		aggregator: aggregator,
	}
}

// CandlesHandler handles GET requests for a ticker's OHLCV bars
// Query parameters: interval (1h, 4h, 1d), limit
func (h *GinHandlers) CandlesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ticker := c.Param("ticker")
		interval := c.DefaultQuery("interval", types.Interval1h)

		limit := defaultQueryLimit
		if raw := c.Query("limit"); raw != "" {
			parsed, err := parsePositiveInt(raw)
			if err != nil {
				response.BadRequest(c, "limit must be a positive integer")
				return
			}
			limit = parsed
		}

		stock, err := h.aggregator.db.GetStockByTicker(ticker)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		if stock == nil {
			response.NotFound(c, "Unknown ticker")
			return
		}

		candles, err := h.aggregator.Candles(stock.ID, interval, limit)
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		response.Success(c, candles)
	}
}

func parsePositiveInt(raw string) (int, error) {
	var value int
	if _, err := fmt.Sscanf(raw, "%d", &value); err != nil {
		return 0, err
	}
	if value <= 0 {
		return 0, fmt.Errorf("value must be positive")
	}
	return value, nil
}
