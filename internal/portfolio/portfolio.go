package portfolio

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/market-sim/internal/types"
	"github.com/ksred/market-sim/pkg/middleware"
	"github.com/ksred/market-sim/pkg/response"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInsufficientFunds = errors.New("insufficient funds for withdrawal")
)

// PositionView is an open position joined with its current quote.
type PositionView struct {
	Ticker        string          `json:"ticker"`
	Company       string          `json:"company"`
	Quantity      int64           `json:"quantity"`
	AvgCost       decimal.Decimal `json:"avg_cost"`
	LastPrice     decimal.Decimal `json:"last_price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// Summary is the full portfolio view for a user.
type Summary struct {
	CashBalance decimal.Decimal `json:"cash_balance"`
	Positions   []PositionView  `json:"positions"`
}

// Service exposes balances, holdings, and cash movements for the portfolio
// and cash collaborators.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// Balance returns the ledger-derived cash balance.
func (s *Service) Balance(userID uint) (decimal.Decimal, error) {
	return s.db.GetUserBalance(userID)
}

// Deposit appends a positive cash movement to the ledger.
func (s *Service) Deposit(userID uint, amount decimal.Decimal, description string) (*types.CashLedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	entry := &types.CashLedgerEntry{
		UserID:          userID,
		TransactionType: types.CashTypeDeposit,
		Amount:          amount.Round(2),
		Description:     description,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.db.CreateLedgerEntry(entry); err != nil {
		return nil, fmt.Errorf("failed to record deposit: %w", err)
	}

	log.Info().
		Str("component", "portfolio").
		Uint("user_id", userID).
		Str("amount", entry.Amount.String()).
		Msg("deposit recorded")

	return entry, nil
}

// Withdraw appends a negative cash movement, rejected when it would overdraw
// the ledger-derived balance.
func (s *Service) Withdraw(userID uint, amount decimal.Decimal, description string) (*types.CashLedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	balance, err := s.db.GetUserBalance(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute balance: %w", err)
	}
	if balance.LessThan(amount) {
		return nil, ErrInsufficientFunds
	}

	entry := &types.CashLedgerEntry{
		UserID:          userID,
		TransactionType: types.CashTypeWithdrawal,
		Amount:          amount.Round(2).Neg(),
		Description:     description,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.db.CreateLedgerEntry(entry); err != nil {
		return nil, fmt.Errorf("failed to record withdrawal: %w", err)
	}

	log.Info().
		Str("component", "portfolio").
		Uint("user_id", userID).
		Str("amount", entry.Amount.String()).
		Msg("withdrawal recorded")

	return entry, nil
}

// GetSummary returns the cash balance plus every open position valued at the
// live price.
func (s *Service) GetSummary(userID uint) (*Summary, error) {
	balance, err := s.db.GetUserBalance(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute balance: %w", err)
	}

	positions, err := s.db.ListPositions(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}

	views := make([]PositionView, 0, len(positions))
	for i := range positions {
		view, err := s.buildView(&positions[i])
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}

	return &Summary{
		CashBalance: balance,
		Positions:   views,
	}, nil
}

func (s *Service) buildView(position *types.Position) (*PositionView, error) {
	stock, err := s.db.GetStock(position.StockID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stock %d: %w", position.StockID, err)
	}

	view := &PositionView{
		Quantity: position.Quantity,
		AvgCost:  position.AvgCost,
	}
	if stock != nil {
		view.Ticker = stock.Ticker
		view.Company = stock.Company
	}

	price, err := s.db.GetLivePrice(position.StockID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch live price: %w", err)
	}
	if price != nil {
		view.LastPrice = price.LastPrice
		view.MarketValue = price.LastPrice.Mul(decimal.NewFromInt(position.Quantity))
		view.UnrealizedPnL = position.UnrealizedPnL(price.LastPrice)
	}

	return view, nil
}

// Trades returns the user's fill history, newest first.
func (s *Service) Trades(userID uint) ([]types.Trade, error) {
	return s.db.ListTrades(userID)
}

// Ledger returns the user's cash movements, newest first.
func (s *Service) Ledger(userID uint) ([]types.CashLedgerEntry, error) {
	return s.db.ListLedgerEntries(userID)
}

// GinHandlers contains HTTP handlers for portfolio and cash endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

type cashRequest struct {
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Description string          `json:"description"`
}

// SummaryHandler handles GET requests for the portfolio summary
func (h *GinHandlers) SummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		summary, err := h.service.GetSummary(userID)
		response.Handle(c, summary, err)
	}
}

// TradesHandler handles GET requests for the user's trade history
func (h *GinHandlers) TradesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		trades, err := h.service.Trades(userID)
		response.Handle(c, trades, err)
	}
}

// LedgerHandler handles GET requests for the user's cash ledger
func (h *GinHandlers) LedgerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		entries, err := h.service.Ledger(userID)
		response.Handle(c, entries, err)
	}
}

// DepositHandler handles POST requests to deposit cash
func (h *GinHandlers) DepositHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		var req cashRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		entry, err := h.service.Deposit(userID, req.Amount, req.Description)
		if errors.Is(err, ErrInvalidAmount) {
			response.BadRequest(c, err.Error())
			return
		}
		response.Handle(c, entry, err)
	}
}

// WithdrawHandler handles POST requests to withdraw cash
func (h *GinHandlers) WithdrawHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		var req cashRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		entry, err := h.service.Withdraw(userID, req.Amount, req.Description)
		switch {
		case errors.Is(err, ErrInvalidAmount):
			response.BadRequest(c, err.Error())
		case errors.Is(err, ErrInsufficientFunds):
			response.Conflict(c, err.Error())
		default:
			response.Handle(c, entry, err)
		}
	}
}
