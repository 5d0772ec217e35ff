package trading

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/market-sim/internal/types"
	"github.com/ksred/market-sim/pkg/middleware"
	"github.com/ksred/market-sim/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// maxOrderQuantity bounds a single order.
const maxOrderQuantity = 10000

var (
	ErrUnknownTicker = errors.New("unknown or inactive ticker")
	ErrInvalidSide   = errors.New("side must be BUY or SELL")
	ErrInvalidQty    = fmt.Errorf("quantity must be between 1 and %d", maxOrderQuantity)
	ErrNotCancelable = errors.New("only queued orders can be canceled")
	ErrOrderNotFound = errors.New("order not found")
)

// CreateOrderRequest is the trading collaborator's order submission.
type CreateOrderRequest struct {
	Ticker   string `json:"ticker" binding:"required"`
	Side     string `json:"side" binding:"required"`
	Quantity int64  `json:"quantity" binding:"required"`
}

// Service accepts, cancels, and reads back user orders. Execution belongs to
// the execution engine; orders created here always start QUEUED.
type Service struct {
	db *Database
}

// NewService creates a new trading service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// CreateOrder queues a new market order with idempotency support. A repeated
// idempotency key returns the order it originally created instead of queueing
// a duplicate.
func (s *Service) CreateOrder(userID uint, req CreateOrderRequest, idempotencyKey string) (*types.Order, error) {
	record, err := s.db.GetIdempotencyRecord(idempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	if record != nil && record.ExpiresAt.After(time.Now()) {
		existing, err := s.db.GetOrder(record.ResourceID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, ErrOrderNotFound
		}
		return existing, nil
	}

	if req.Side != types.OrderSideBuy && req.Side != types.OrderSideSell {
		return nil, ErrInvalidSide
	}
	if req.Quantity < 1 || req.Quantity > maxOrderQuantity {
		return nil, ErrInvalidQty
	}

	stock, err := s.db.GetStockByTicker(req.Ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to look up ticker: %w", err)
	}
	if stock == nil || !stock.IsActive {
		return nil, ErrUnknownTicker
	}

	now := time.Now().UTC()
	order := &types.Order{
		OrderID:        "ORD_" + uuid.New().String(),
		UserID:         userID,
		StockID:        stock.ID,
		OrderType:      types.OrderTypeMarket,
		Side:           req.Side,
		Quantity:       req.Quantity,
		Status:         types.OrderStatusQueued,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.db.CreateOrderWithIdempotency(order, idempotencyKey); err != nil {
		return nil, err
	}

	log.Info().
		Str("component", "trading").
		Str("order_id", order.OrderID).
		Str("ticker", stock.Ticker).
		Str("side", order.Side).
		Int64("quantity", order.Quantity).
		Msg("order queued")

	return order, nil
}

// CancelOrder cancels one of the user's orders. Cancellation is valid only
// while the order is still QUEUED; anything in flight or terminal stays put.
func (s *Service) CancelOrder(userID uint, orderID string) (*types.Order, error) {
	order, err := s.db.GetOrderByOrderIDAndUserID(orderID, userID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	canceled, err := s.db.CancelQueuedOrder(order)
	if err != nil {
		return nil, err
	}
	if !canceled {
		return nil, ErrNotCancelable
	}

	log.Info().Str("component", "trading").Str("order_id", order.OrderID).Msg("order canceled")
	return order, nil
}

// GetOrder retrieves one of the user's orders by its public ID.
func (s *Service) GetOrder(userID uint, orderID string) (*types.Order, error) {
	return s.db.GetOrderByOrderIDAndUserID(orderID, userID)
}

// ListOrders returns the user's orders, newest first.
func (s *Service) ListOrders(userID uint) ([]types.Order, error) {
	return s.db.ListUserOrders(userID)
}

// GinHandlers contains HTTP handlers for trading endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for trading endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreateOrderHandler handles POST requests to queue new orders
// Requires a valid JWT token and idempotency key in headers
func (h *GinHandlers) CreateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		idempotencyKey := c.GetHeader("Idempotency-Key")
		if idempotencyKey == "" {
			response.BadRequest(c, "Idempotency-Key header is required")
			return
		}

		userID, ok := middleware.UserID(c)
		if !ok {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		var req CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := h.service.CreateOrder(userID, req, idempotencyKey)
		if err != nil {
			switch {
			case errors.Is(err, ErrInvalidSide), errors.Is(err, ErrInvalidQty), errors.Is(err, ErrUnknownTicker):
				response.BadRequest(c, err.Error())
			default:
				response.InternalError(c, err.Error())
			}
			return
		}

		response.Success(c, order)
	}
}

// GetOrderStatusHandler handles GET requests to retrieve order status
// URL parameter: order_id
func (h *GinHandlers) GetOrderStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		orderID := c.Param("order_id")
		if orderID == "" {
			response.BadRequest(c, "Order ID is required")
			return
		}

		order, err := h.service.GetOrder(userID, orderID)
		if err != nil || order == nil {
			response.NotFound(c, "Order not found")
			return
		}

		response.Success(c, order)
	}
}

// ListOrdersHandler handles GET requests for the user's order history
func (h *GinHandlers) ListOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		orders, err := h.service.ListOrders(userID)
		response.Handle(c, orders, err)
	}
}

// CancelOrderHandler handles DELETE requests to cancel queued orders
// URL parameter: order_id
func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		order, err := h.service.CancelOrder(userID, c.Param("order_id"))
		if err != nil {
			switch {
			case errors.Is(err, ErrOrderNotFound):
				response.NotFound(c, err.Error())
			case errors.Is(err, ErrNotCancelable):
				response.Conflict(c, err.Error())
			default:
				response.InternalError(c, err.Error())
			}
			return
		}

		response.Success(c, order)
	}
}
