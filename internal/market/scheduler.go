package market

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Scheduler reconciles the market flag with the configured calendar on a
// minute cadence, and restarts the OHLC session at the daily boundary. It
// never touches the flag while an emergency override is set.
type Scheduler struct {
	service       *Service
	loc           *time.Location
	checkInterval time.Duration

	lastSeenDay string
}

func NewScheduler(service *Service, loc *time.Location) *Scheduler {
	return &Scheduler{
		service:       service,
		loc:           loc,
		checkInterval: time.Minute,
	}
}

// Start begins the schedule reconciliation loop
func (s *Scheduler) Start(ctx context.Context) {
	logger := log.With().Str("component", "market_scheduler").Logger()
	logger.Info().Str("timezone", s.loc.String()).Msg("starting market scheduler")

	s.lastSeenDay = time.Now().In(s.loc).Format("2006-01-02")

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	// Reconcile immediately on startup rather than waiting a full interval.
	s.runOnce(time.Now())

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down market scheduler")
			return
		case <-ticker.C:
			s.runOnce(time.Now())
		}
	}
}

func (s *Scheduler) runOnce(now time.Time) {
	logger := log.With().Str("component", "market_scheduler").Logger()

	localNow := now.In(s.loc)

	if day := localNow.Format("2006-01-02"); day != s.lastSeenDay {
		s.lastSeenDay = day
		if err := s.dailyReset(); err != nil {
			logger.Error().Err(err).Msg("daily session reset failed")
		}
	}

	shouldBeOpen, err := s.ShouldBeOpen(localNow)
	if err != nil {
		logger.Error().Err(err).Msg("failed to compute scheduled market state")
		return
	}

	reason := fmt.Sprintf("scheduled decision at %s", localNow.Format("2006-01-02 15:04:05 MST"))
	changed, err := s.service.applyScheduledState(shouldBeOpen, reason)
	if err != nil {
		logger.Error().Err(err).Msg("failed to apply scheduled market state")
		return
	}
	if changed {
		logger.Info().Bool("is_open", shouldBeOpen).Msg("market state changed by schedule")
	}
}

// ShouldBeOpen computes the scheduled decision for a moment in the market
// timezone: open on Mon-Fri, outside holidays, within that weekday's
// configured hours, bounds inclusive.
func (s *Scheduler) ShouldBeOpen(localNow time.Time) (bool, error) {
	weekday := mondayIndexed(localNow.Weekday())
	if weekday >= 5 {
		return false, nil
	}

	holiday, err := s.service.db.GetHoliday(localNow)
	if err != nil {
		return false, fmt.Errorf("failed to check holiday calendar: %w", err)
	}
	if holiday != nil {
		return false, nil
	}

	hours, err := s.service.db.GetHours(weekday)
	if err != nil {
		return false, fmt.Errorf("failed to fetch market hours: %w", err)
	}
	if hours == nil {
		return false, nil
	}

	openSecs, err := parseClock(hours.OpenTime)
	if err != nil {
		return false, fmt.Errorf("invalid open time %q: %w", hours.OpenTime, err)
	}
	closeSecs, err := parseClock(hours.CloseTime)
	if err != nil {
		return false, fmt.Errorf("invalid close time %q: %w", hours.CloseTime, err)
	}

	nowSecs := localNow.Hour()*3600 + localNow.Minute()*60 + localNow.Second()
	return nowSecs >= openSecs && nowSecs <= closeSecs, nil
}

// dailyReset restarts every instrument's OHLC session from its current last
// price. The session open is whatever the price happens to be at the
// boundary, not the original listing price.
func (s *Scheduler) dailyReset() error {
	logger := log.With().Str("component", "market_scheduler").Logger()

	prices, err := s.service.db.ListLivePrices()
	if err != nil {
		return fmt.Errorf("failed to list live prices: %w", err)
	}

	for i := range prices {
		price := &prices[i]
		price.OpenPrice = price.LastPrice
		price.HighPrice = price.LastPrice
		price.LowPrice = price.LastPrice
		price.UpdatedAt = time.Now().UTC()
		if err := s.service.db.SaveLivePrice(price); err != nil {
			logger.Error().Err(err).Uint("stock_id", price.StockID).Msg("failed to reset session prices")
			continue
		}
	}

	logger.Info().Int("instruments", len(prices)).Msg("daily session reset completed")
	return nil
}

// mondayIndexed converts Go's Sunday-first weekday to the schedule's
// 0=Monday .. 6=Sunday numbering.
func mondayIndexed(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// parseClock converts an "HH:MM" string to seconds after midnight.
func parseClock(value string) (int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, err
	}
	return t.Hour()*3600 + t.Minute()*60, nil
}
