package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/market-sim/internal/auth"
	"github.com/ksred/market-sim/internal/candles"
	"github.com/ksred/market-sim/internal/config"
	"github.com/ksred/market-sim/internal/database"
	"github.com/ksred/market-sim/internal/execution"
	"github.com/ksred/market-sim/internal/market"
	"github.com/ksred/market-sim/internal/portfolio"
	"github.com/ksred/market-sim/internal/pricing"
	"github.com/ksred/market-sim/internal/trading"
	"github.com/ksred/market-sim/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the simulation server with graceful shutdown
// support: the HTTP API plus the price engine, market scheduler, and candle
// aggregator background loops.
func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(db, cfg.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)

	marketService := market.NewService(db)
	marketHandlers := market.NewGinHandlers(marketService)

	executionEngine := execution.NewEngine(db)

	priceEngine := pricing.NewEngine(db, marketService, executionEngine, cfg)
	quoteHandlers := pricing.NewGinHandlers(priceEngine)

	aggregator := candles.NewAggregator(db, cfg)
	candleHandlers := candles.NewGinHandlers(aggregator)

	tradingService := trading.NewService(db)
	tradingHandlers := trading.NewGinHandlers(tradingService)

	portfolioService := portfolio.NewService(db)
	portfolioHandlers := portfolio.NewGinHandlers(portfolioService)

	// Start background engines
	engineCtx, engineCancel := context.WithCancel(context.Background())
	defer engineCancel()

	scheduler := market.NewScheduler(marketService, cfg.MarketLocation())
	go scheduler.Start(engineCtx)
	go priceEngine.Start(engineCtx)
	go aggregator.Start(engineCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, cfg.JWTSecret, authHandlers, marketHandlers, quoteHandlers, candleHandlers, tradingHandlers, portfolioHandlers)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Stop the background engines before closing the listener
	engineCancel()

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - Market data routes: Public quote/candle/status endpoints
// - Order, portfolio, and cash routes: Protected by JWT authentication
// - Internal routes: Operator endpoints for the manual market override
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	marketHandlers *market.GinHandlers,
	quoteHandlers *pricing.GinHandlers,
	candleHandlers *candles.GinHandlers,
	tradingHandlers *trading.GinHandlers,
	portfolioHandlers *portfolio.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Market data routes
		v1.GET("/market/status", marketHandlers.StatusHandler())
		v1.GET("/quotes", quoteHandlers.QuotesHandler())
		v1.GET("/quotes/:ticker", quoteHandlers.QuoteHandler())
		v1.GET("/stocks/:ticker/candles", candleHandlers.CandlesHandler())

		// Order routes
		orders := v1.Group("/orders")
		orders.Use(middleware.JWTAuth(jwtSecret))
		{
			orders.POST("", tradingHandlers.CreateOrderHandler())
			orders.GET("", tradingHandlers.ListOrdersHandler())
			orders.GET("/:order_id", tradingHandlers.GetOrderStatusHandler())
			orders.DELETE("/:order_id", tradingHandlers.CancelOrderHandler())
		}

		// Portfolio and cash routes
		account := v1.Group("")
		account.Use(middleware.JWTAuth(jwtSecret))
		{
			account.GET("/portfolio", portfolioHandlers.SummaryHandler())
			account.GET("/portfolio/trades", portfolioHandlers.TradesHandler())
			account.GET("/portfolio/ledger", portfolioHandlers.LedgerHandler())
			account.POST("/cash/deposit", portfolioHandlers.DepositHandler())
			account.POST("/cash/withdraw", portfolioHandlers.WithdrawHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.POST("/market/toggle", marketHandlers.ToggleHandler())
			internal.POST("/market/override/clear", marketHandlers.ClearOverrideHandler())
		}
	}
}
