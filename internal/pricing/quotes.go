package pricing

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/market-sim/internal/types"
	"github.com/ksred/market-sim/pkg/response"
	"github.com/shopspring/decimal"
)

// Quote is the LivePrice snapshot exposed to collaborators.
type Quote struct {
	Ticker    string          `json:"ticker"`
	Company   string          `json:"company"`
	Last      decimal.Decimal `json:"last"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Change    decimal.Decimal `json:"change"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Quotes returns a snapshot for every active stock that has price data.
func (e *Engine) Quotes() ([]Quote, error) {
	stocks, err := e.db.ListActiveStocks()
	if err != nil {
		return nil, err
	}

	quotes := make([]Quote, 0, len(stocks))
	for i := range stocks {
		quote, err := e.quoteFor(&stocks[i])
		if err != nil {
			return nil, err
		}
		if quote != nil {
			quotes = append(quotes, *quote)
		}
	}
	return quotes, nil
}

// QuoteByTicker returns the snapshot for one ticker, or nil when the stock is
// unknown or has no price data yet.
func (e *Engine) QuoteByTicker(ticker string) (*Quote, error) {
	stock, err := e.db.GetStockByTicker(ticker)
	if err != nil || stock == nil {
		return nil, err
	}
	return e.quoteFor(stock)
}

func (e *Engine) quoteFor(stock *types.Stock) (*Quote, error) {
	price, err := e.db.GetLivePrice(stock.ID)
	if err != nil || price == nil {
		return nil, err
	}
	return &Quote{
		Ticker:    stock.Ticker,
		Company:   stock.Company,
		Last:      price.LastPrice,
		Open:      price.OpenPrice,
		High:      price.HighPrice,
		Low:       price.LowPrice,
		Change:    price.Change(),
		UpdatedAt: price.UpdatedAt,
	}, nil
}

// GinHandlers contains HTTP handlers for quote endpoints
type GinHandlers struct {
	engine *Engine
}

func NewGinHandlers(engine *Engine) *GinHandlers {
	return &GinHandlers{
		engine: engine,
	}
}

// QuotesHandler handles GET requests for all quote snapshots
func (h *GinHandlers) QuotesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		quotes, err := h.engine.Quotes()
		response.Handle(c, quotes, err)
	}
}

// QuoteHandler handles GET requests for a single ticker's quote
func (h *GinHandlers) QuoteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ticker := c.Param("ticker")

		quote, err := h.engine.QuoteByTicker(ticker)
		if err == nil && quote == nil {
			response.NotFound(c, "No quote for ticker")
			return
		}
		response.Handle(c, quote, err)
	}
}
