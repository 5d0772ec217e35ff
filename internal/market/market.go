package market

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/market-sim/internal/types"
	"github.com/ksred/market-sim/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service owns the singleton MarketState. Every read and write of the
// trading-permitted flag goes through it.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// Current returns the market state, creating a default closed state if the
// row is missing.
func (s *Service) Current() (*types.MarketState, error) {
	state, err := s.db.GetState()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch market state: %w", err)
	}
	if state == nil {
		log.Warn().Str("component", "market").Msg("no market state found, creating default closed state")
		state = &types.MarketState{
			IsOpen:      false,
			LastUpdated: time.Now().UTC(),
		}
		if err := s.db.CreateState(state); err != nil {
			return nil, fmt.Errorf("failed to create default market state: %w", err)
		}
	}
	return state, nil
}

// IsOpen reports whether trading is currently permitted.
func (s *Service) IsOpen() (bool, error) {
	state, err := s.Current()
	if err != nil {
		return false, err
	}
	return state.IsOpen, nil
}

// SetOpen forces the market open or closed. When emergency is set, the
// override suppresses scheduled decisions until explicitly cleared.
func (s *Service) SetOpen(open, emergency bool, reason string, userID *uint) error {
	state, err := s.Current()
	if err != nil {
		return err
	}

	state.IsOpen = open
	state.EmergencyOverride = emergency
	state.LastUpdated = time.Now().UTC()
	if err := s.db.SaveState(state); err != nil {
		return fmt.Errorf("failed to update market state: %w", err)
	}

	action := "manual_market_close"
	if open {
		action = "manual_market_open"
	}
	s.audit(userID, action, reason)

	log.Info().
		Str("component", "market").
		Bool("is_open", open).
		Bool("emergency_override", emergency).
		Str("reason", reason).
		Msg("market state set manually")

	return nil
}

// ClearOverride drops the emergency override so the schedule controller can
// resume flipping the flag. The is_open value itself is left untouched until
// the next scheduled pass.
func (s *Service) ClearOverride(reason string, userID *uint) error {
	state, err := s.Current()
	if err != nil {
		return err
	}
	if !state.EmergencyOverride {
		return nil
	}

	state.EmergencyOverride = false
	state.LastUpdated = time.Now().UTC()
	if err := s.db.SaveState(state); err != nil {
		return fmt.Errorf("failed to clear emergency override: %w", err)
	}
	s.audit(userID, "market_override_cleared", reason)

	log.Info().Str("component", "market").Str("reason", reason).Msg("emergency override cleared")
	return nil
}

// applyScheduledState flips is_open to the scheduled decision. It is a no-op
// while the emergency override is set or when the flag already matches.
func (s *Service) applyScheduledState(shouldBeOpen bool, reason string) (bool, error) {
	state, err := s.Current()
	if err != nil {
		return false, err
	}
	if state.EmergencyOverride || state.IsOpen == shouldBeOpen {
		return false, nil
	}

	state.IsOpen = shouldBeOpen
	state.LastUpdated = time.Now().UTC()
	if err := s.db.SaveState(state); err != nil {
		return false, fmt.Errorf("failed to update market state: %w", err)
	}

	action := "scheduled_market_close"
	if shouldBeOpen {
		action = "scheduled_market_open"
	}
	s.audit(nil, action, reason)

	return true, nil
}

// audit records a state transition. Failures are logged, never propagated:
// the trail must not block the state change itself.
func (s *Service) audit(userID *uint, action, details string) {
	entry := &types.AuditLog{
		UserID:       userID,
		Action:       action,
		ResourceType: "market_state",
		Details:      details,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.db.CreateAuditLog(entry); err != nil {
		log.Error().Err(err).Str("component", "market").Str("action", action).Msg("failed to write audit log")
	}
}

// GinHandlers contains HTTP handlers for market state endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// StatusHandler handles GET requests for the current market state
func (h *GinHandlers) StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		state, err := h.service.Current()
		response.Handle(c, state, err)
	}
}

// ToggleHandler handles POST requests that force the market open or closed
func (h *GinHandlers) ToggleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			Open      bool   `json:"open"`
			Emergency bool   `json:"emergency"`
			Reason    string `json:"reason"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := h.service.SetOpen(request.Open, request.Emergency, request.Reason, nil); err != nil {
			response.Handle(c, nil, err)
			return
		}

		state, err := h.service.Current()
		response.Handle(c, state, err)
	}
}

// ClearOverrideHandler handles POST requests that clear the emergency override
func (h *GinHandlers) ClearOverrideHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			Reason string `json:"reason"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := h.service.ClearOverride(request.Reason, nil); err != nil {
			response.Handle(c, nil, err)
			return
		}

		state, err := h.service.Current()
		response.Handle(c, state, err)
	}
}
