package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	minOrders  = 15
	maxOrders  = 150
	numWorkers = 5
)

var sides = []string{"BUY", "SELL"}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// apiEnvelope is the standard response wrapper used by every endpoint.
type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// simulationClient handles HTTP communication with the market API
type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client

	mu    sync.Mutex
	stats map[string]*routeStats
}

// newSimulationClient creates and initializes a new simulation client
// It authenticates with the API and prepares performance tracking
func newSimulationClient(baseURL string) (*simulationClient, error) {
	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	sc := &simulationClient{
		baseURL: baseURL,
		client:  client,
		stats: map[string]*routeStats{
			"auth":      {name: "Authentication"},
			"deposit":   {name: "Cash Deposit"},
			"quotes":    {name: "List Quotes"},
			"create":    {name: "Create Order"},
			"get":       {name: "Get Order"},
			"portfolio": {name: "Portfolio Summary"},
		},
	}

	token, err := sc.authenticate()
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	sc.authToken = token

	return sc, nil
}

func (sc *simulationClient) record(route string, start time.Time, failed bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	rs := sc.stats[route]
	rs.addDuration(time.Since(start))
	if failed {
		rs.failures++
	}
}

// doJSON sends a request with auth headers and unwraps the response envelope.
func (sc *simulationClient) doJSON(method, path string, payload any, idempotent bool) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if sc.authToken != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotent {
		req.Header.Set("Idempotency-Key", uuid.New().String())
	}

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("path", path).Str("response", string(respBody)).Msg("API response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("%s %s failed with status %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}
	if !envelope.Success {
		return nil, fmt.Errorf("%s %s rejected: %s", method, path, envelope.Error)
	}

	return envelope.Data, nil
}

// authenticate exchanges the demo API credentials for a JWT token
func (sc *simulationClient) authenticate() (string, error) {
	start := time.Now()
	failed := false
	defer func() { sc.record("auth", start, failed) }()

	credentials := map[string]string{
		"api_key":    "demo-api-key",
		"api_secret": "demo-api-secret",
	}

	data, err := sc.doJSON("POST", "/api/v1/auth/token", credentials, false)
	if err != nil {
		failed = true
		return "", err
	}

	var result struct {
		Token string `json:"jwt_token"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		failed = true
		return "", err
	}
	if result.Token == "" {
		failed = true
		return "", fmt.Errorf("no token in response: %s", string(data))
	}

	return result.Token, nil
}

// deposit funds the demo account so buy orders have cash to settle against
func (sc *simulationClient) deposit(amount string) error {
	start := time.Now()
	failed := false
	defer func() { sc.record("deposit", start, failed) }()

	payload := map[string]string{
		"amount":      amount,
		"description": "Simulation funding",
	}
	if _, err := sc.doJSON("POST", "/api/v1/cash/deposit", payload, false); err != nil {
		failed = true
		return err
	}
	return nil
}

// listTickers fetches the live quote board and returns its tickers
func (sc *simulationClient) listTickers() ([]string, error) {
	start := time.Now()
	failed := false
	defer func() { sc.record("quotes", start, failed) }()

	data, err := sc.doJSON("GET", "/api/v1/quotes", nil, false)
	if err != nil {
		failed = true
		return nil, err
	}

	var quotes []struct {
		Ticker string `json:"ticker"`
	}
	if err := json.Unmarshal(data, &quotes); err != nil {
		failed = true
		return nil, err
	}

	tickers := make([]string, 0, len(quotes))
	for _, q := range quotes {
		tickers = append(tickers, q.Ticker)
	}
	return tickers, nil
}

// createOrder submits a new market order and returns its order ID
func (sc *simulationClient) createOrder(ticker, side string, quantity int64) (string, error) {
	start := time.Now()
	failed := false
	defer func() { sc.record("create", start, failed) }()

	payload := map[string]any{
		"ticker":   ticker,
		"side":     side,
		"quantity": quantity,
	}

	data, err := sc.doJSON("POST", "/api/v1/orders", payload, true)
	if err != nil {
		failed = true
		return "", err
	}

	var result struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		failed = true
		return "", err
	}
	if result.OrderID == "" {
		failed = true
		return "", fmt.Errorf("no order ID in response: %s", string(data))
	}

	return result.OrderID, nil
}

// getOrderStatus retrieves the current status of an order
func (sc *simulationClient) getOrderStatus(orderID string) (string, error) {
	start := time.Now()
	failed := false
	defer func() { sc.record("get", start, failed) }()

	data, err := sc.doJSON("GET", "/api/v1/orders/"+orderID, nil, false)
	if err != nil {
		failed = true
		return "", err
	}

	var result struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		failed = true
		return "", err
	}
	return result.Status, nil
}

// portfolioSummary fetches the cash balance and open positions
func (sc *simulationClient) portfolioSummary() (string, int, error) {
	start := time.Now()
	failed := false
	defer func() { sc.record("portfolio", start, failed) }()

	data, err := sc.doJSON("GET", "/api/v1/portfolio", nil, false)
	if err != nil {
		failed = true
		return "", 0, err
	}

	var result struct {
		CashBalance string `json:"cash_balance"`
		Positions   []struct {
			Ticker string `json:"ticker"`
		} `json:"positions"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		failed = true
		return "", 0, err
	}
	return result.CashBalance, len(result.Positions), nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// main runs a trading load simulation against a running API server.
// Point it at a server started with cmd/server and seeded with cmd/seed.
func main() {
	baseURL := os.Getenv("SIM_SERVER_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	simClient, err := newSimulationClient(baseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize simulation client")
	}

	if err := simClient.deposit("50000.00"); err != nil {
		log.Fatal().Err(err).Msg("Failed to fund account")
	}

	tickers, err := simClient.listTickers()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to fetch quote board")
	}
	if len(tickers) == 0 {
		log.Fatal().Msg("No active stocks: run the seed tool first")
	}
	log.Info().Int("tickers", len(tickers)).Msg("Loaded quote board")

	targetOrders := rand.Intn(maxOrders-minOrders) + minOrders
	log.Info().Int("target_orders", targetOrders).Msg("Starting simulation")

	ordersChan := make(chan string, targetOrders)
	var wg sync.WaitGroup

	type orderMeta struct {
		ticker string
		side   string
	}
	var metaMu sync.Mutex
	orderMetas := make(map[string]orderMeta)

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for j := 0; j < targetOrders/numWorkers; j++ {
				ticker := tickers[rand.Intn(len(tickers))]
				side := sides[rand.Intn(len(sides))]
				quantity := int64(rand.Intn(20) + 1)

				orderID, err := simClient.createOrder(ticker, side, quantity)
				if err != nil {
					log.Error().Err(err).
						Int("worker_id", workerID).
						Str("ticker", ticker).
						Msg("Failed to create order")
					continue
				}

				metaMu.Lock()
				orderMetas[orderID] = orderMeta{ticker: ticker, side: side}
				metaMu.Unlock()
				ordersChan <- orderID

				log.Info().
					Int("worker_id", workerID).
					Str("order_id", orderID).
					Str("ticker", ticker).
					Str("side", side).
					Int64("quantity", quantity).
					Msg("Order created")

				time.Sleep(time.Duration(rand.Intn(500)) * time.Millisecond)
			}
		}(i)
	}

	wg.Wait()
	close(ordersChan)

	var orderIDs []string
	for orderID := range ordersChan {
		orderIDs = append(orderIDs, orderID)
	}
	log.Info().Int("orders_created", len(orderIDs)).Msg("All orders created")

	stats := struct {
		TotalOrders    int
		ExecutedOrders int
		RejectedOrders int
		QueuedOrders   int
		StartTime      time.Time
		Tickers        map[string]int
		Sides          map[string]int
	}{
		StartTime: time.Now(),
		Tickers:   make(map[string]int),
		Sides:     make(map[string]int),
	}
	stats.TotalOrders = len(orderIDs)

	// The execution engine drains the queue on each price tick, so give it a
	// few tick intervals before polling final statuses.
	log.Info().Msg("Waiting for the execution engine to drain the queue")
	time.Sleep(10 * time.Second)

	for _, orderID := range orderIDs {
		status, err := simClient.getOrderStatus(orderID)
		if err != nil {
			log.Error().Err(err).Str("order_id", orderID).Msg("Failed to fetch order status")
			continue
		}

		metaMu.Lock()
		meta := orderMetas[orderID]
		metaMu.Unlock()

		switch status {
		case "EXECUTED":
			stats.ExecutedOrders++
			stats.Tickers[meta.ticker]++
			stats.Sides[meta.side]++
		case "REJECTED":
			stats.RejectedOrders++
		default:
			stats.QueuedOrders++
		}

		log.Info().
			Str("order_id", orderID).
			Str("ticker", meta.ticker).
			Str("status", status).
			Msg("Order settled")
	}

	cashBalance, positionCount, err := simClient.portfolioSummary()
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch portfolio summary")
	}

	duration := time.Since(stats.StartTime)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("TRADING SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Printf(`
Order Statistics
----------------
Total Orders:     %d
Executed:         %d
Rejected:         %d
Still Queued:     %d
Cash Balance:     $%s
Open Positions:   %d
Duration:         %v

Ticker Distribution
-------------------
`, stats.TotalOrders, stats.ExecutedOrders, stats.RejectedOrders, stats.QueuedOrders,
		cashBalance, positionCount, duration.Round(time.Millisecond))

	maxTickerCount := 0
	for _, count := range stats.Tickers {
		if count > maxTickerCount {
			maxTickerCount = count
		}
	}
	for ticker, count := range stats.Tickers {
		barLength := int(float64(count) / float64(maxTickerCount) * 20)
		bar := strings.Repeat("#", barLength)
		fmt.Printf("%-6s: %s (%d)\n", ticker, bar, count)
	}

	fmt.Println("\nSide Distribution")
	fmt.Println("-----------------")
	for side, count := range stats.Sides {
		barLength := int(float64(count) / float64(stats.TotalOrders) * 20)
		bar := strings.Repeat("#", barLength)
		fmt.Printf("%-4s: %s (%d)\n", side, bar, count)
	}

	fmt.Println("\n" + strings.Repeat("=", 80))

	successRate := float64(stats.ExecutedOrders) / float64(stats.TotalOrders) * 100
	log.Info().
		Float64("success_rate", successRate).
		Int("total_orders", stats.TotalOrders).
		Int("executed_orders", stats.ExecutedOrders).
		Dur("duration", duration).
		Msg("Simulation completed")

	simClient.printPerformanceStats()
}
