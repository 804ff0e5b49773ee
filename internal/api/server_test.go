package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"challenge-desk-go/internal/challenge"
	"challenge-desk-go/internal/config"
	"challenge-desk-go/internal/database"
	"challenge-desk-go/internal/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePrices struct {
	quotes  map[string]market.Quote
	cleared []string
}

func (f *fakePrices) GetPrice(_ context.Context, symbol string) (market.Quote, error) {
	symbol = market.NormalizeSymbol(symbol)
	switch symbol {
	case "LIMIT":
		return market.Quote{}, &market.PriceError{Kind: market.KindRateLimited, Symbol: symbol, Message: "throttled"}
	case "DOWN":
		return market.Quote{}, &market.PriceError{Kind: market.KindUpstream, Symbol: symbol, Message: "bad gateway"}
	}
	q, ok := f.quotes[symbol]
	if !ok {
		return market.Quote{}, &market.PriceError{Kind: market.KindSymbolNotFound, Symbol: symbol, Message: "unknown"}
	}
	return q, nil
}

func (f *fakePrices) GetPrices(ctx context.Context, symbols []string) []market.PriceResult {
	out := make([]market.PriceResult, 0, len(symbols))
	for _, s := range symbols {
		q, err := f.GetPrice(ctx, s)
		res := market.PriceResult{Symbol: market.NormalizeSymbol(s), Err: err}
		if err == nil {
			res.Quote = &q
		}
		out = append(out, res)
	}
	return out
}

func (f *fakePrices) GetHistory(_ context.Context, symbol, period, interval string) (market.HistoricalSeries, error) {
	return market.HistoricalSeries{Symbol: market.NormalizeSymbol(symbol), Period: period, Interval: interval, Data: []market.Candle{}, Source: market.SourceSynthetic}, nil
}

func (f *fakePrices) CacheStats() market.OracleStats {
	return market.OracleStats{Domestic: market.CacheStats{TotalEntries: 2, TTLSeconds: 60}}
}

func (f *fakePrices) ClearCache(symbol string) { f.cleared = append(f.cleared, symbol) }

// setupTestServer creates a test server over a real service and an in-memory database.
func setupTestServer(t *testing.T) (*httptest.Server, *fakePrices) {
	t.Helper()
	db, err := database.NewDatabase(&config.Database{DSN: "file::memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	prices := &fakePrices{quotes: map[string]market.Quote{
		"IAM":  {Symbol: "IAM", CurrentPrice: 100, Market: "Casablanca Stock Exchange", Currency: "MAD", Source: market.SourceSynthetic, Timestamp: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)},
		"AAPL": {Symbol: "AAPL", CurrentPrice: 1001, Market: "International", Currency: "USD", Source: market.SourceLive},
	}}
	now := func() time.Time { return time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC) }
	svc := challenge.NewService(database.NewRepository(db), prices, config.DefaultPlans(), zap.NewNop(), now)
	srv := NewServer(0, prices, svc, zap.NewNop())

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, prices
}

func doJSON(t *testing.T, method, url string, body any, out any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealth(t *testing.T) {
	ts, _ := setupTestServer(t)

	var body map[string]string
	resp := doJSON(t, http.MethodGet, ts.URL+"/health", nil, &body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestPriceEndpoints(t *testing.T) {
	ts, prices := setupTestServer(t)

	t.Run("Single", func(t *testing.T) {
		var body map[string]any
		resp := doJSON(t, http.MethodGet, ts.URL+"/api/market/price/iam", nil, &body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "IAM", body["symbol"])
		assert.Equal(t, 100.0, body["current_price"])
		assert.Equal(t, "2026-03-10T09:00:00Z", body["timestamp"])
		assert.Equal(t, "synthetic", body["source"])
		assert.NotContains(t, body, "previous_close")
	})

	t.Run("ErrorStatuses", func(t *testing.T) {
		for symbol, status := range map[string]int{
			"LIMIT": http.StatusTooManyRequests,
			"DOWN":  http.StatusBadGateway,
			"NOPE":  http.StatusNotFound,
		} {
			var body errorResponse
			resp := doJSON(t, http.MethodGet, ts.URL+"/api/market/price/"+symbol, nil, &body)
			assert.Equal(t, status, resp.StatusCode, symbol)
			assert.NotEmpty(t, body.Error)
		}
	})

	t.Run("Batch", func(t *testing.T) {
		var body struct {
			Prices []market.Quote `json:"prices"`
			Count  int            `json:"count"`
			Errors []priceFailure `json:"errors"`
		}
		resp := doJSON(t, http.MethodGet, ts.URL+"/api/market/prices?symbols=IAM,%20nope%20,AAPL,", nil, &body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 2, body.Count)
		require.Len(t, body.Errors, 1)
		assert.Equal(t, "NOPE", body.Errors[0].Symbol)
		assert.Equal(t, "symbol_not_found", body.Errors[0].Error)
	})

	t.Run("BatchRequiresSymbols", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, ts.URL+"/api/market/prices", nil, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("HistoryDefaults", func(t *testing.T) {
		var series market.HistoricalSeries
		resp := doJSON(t, http.MethodGet, ts.URL+"/api/market/history/atw", nil, &series)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "1mo", series.Period)
		assert.Equal(t, "1h", series.Interval)
	})

	t.Run("Cache", func(t *testing.T) {
		var stats market.OracleStats
		resp := doJSON(t, http.MethodGet, ts.URL+"/api/market/cache/stats", nil, &stats)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 2, stats.Domestic.TotalEntries)

		resp = doJSON(t, http.MethodPost, ts.URL+"/api/market/cache/clear?symbol=aapl", nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, []string{"AAPL"}, prices.cleared)
	})
}

func TestChallengeFlow(t *testing.T) {
	ts, _ := setupTestServer(t)

	var created struct {
		ID             uint    `json:"id"`
		Status         string  `json:"status"`
		CurrentBalance float64 `json:"current_balance"`
	}
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/challenges", startChallengeRequest{UserID: 3, Plan: "Pro"}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "active", created.Status)
	assert.Equal(t, 10000.0, created.CurrentBalance)

	var exec struct {
		Trade struct {
			Action string  `json:"action"`
			Total  float64 `json:"total_value"`
		} `json:"trade"`
		CurrentBalance float64 `json:"current_balance"`
		PnLPercent     float64 `json:"pnl_percent"`
		RuleCheck      struct {
			Status  string             `json:"status"`
			Reason  string             `json:"reason"`
			Metrics map[string]float64 `json:"metrics"`
		} `json:"rule_check"`
		PriceInfo struct {
			PriceUsed float64 `json:"price_used"`
		} `json:"price_info"`
	}
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/trades/execute",
		executeTradeRequest{ChallengeID: created.ID, Symbol: "IAM", Action: "buy", Quantity: 6}, &exec)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "buy", exec.Trade.Action)
	assert.Equal(t, 600.0, exec.Trade.Total)
	assert.Equal(t, 9400.0, exec.CurrentBalance)
	assert.Equal(t, -6.0, exec.PnLPercent)
	assert.Equal(t, "failed", exec.RuleCheck.Status)
	assert.Equal(t, "max_daily_loss", exec.RuleCheck.Reason)
	assert.Equal(t, 6.0, exec.RuleCheck.Metrics["daily_loss_percent"])
	assert.Equal(t, 100.0, exec.PriceInfo.PriceUsed)

	var errBody errorResponse
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/trades/execute",
		executeTradeRequest{ChallengeID: created.ID, Symbol: "IAM", Action: "buy", Quantity: 1}, &errBody)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "challenge_inactive", errBody.Error)

	var summary struct {
		Challenge struct {
			Status string `json:"status"`
		} `json:"challenge"`
		Performance struct {
			TotalPnL float64 `json:"total_pnl"`
		} `json:"performance"`
	}
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/challenges/"+itoa(created.ID), nil, &summary)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "failed", summary.Challenge.Status)
	assert.Equal(t, -600.0, summary.Performance.TotalPnL)

	var history struct {
		Count  int `json:"count"`
		Trades []struct {
			PnL float64 `json:"pnl"`
		} `json:"trades"`
	}
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/trades/history/"+itoa(created.ID), nil, &history)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, history.Count)
	assert.Equal(t, -600.0, history.Trades[0].PnL)
}

func TestStartChallengeWhileActive(t *testing.T) {
	ts, _ := setupTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/challenges", startChallengeRequest{UserID: 5, Plan: "starter"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body errorResponse
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/challenges", startChallengeRequest{UserID: 5, Plan: "pro"}, &body)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "active_challenge_exists", body.Error)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/challenges", startChallengeRequest{UserID: 6, Plan: "pro"}, nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestChallengeErrors(t *testing.T) {
	ts, _ := setupTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"UnknownPlan", http.MethodPost, "/api/challenges", startChallengeRequest{UserID: 1, Plan: "gold"}, http.StatusBadRequest, "unknown_plan"},
		{"MissingUser", http.MethodPost, "/api/challenges", startChallengeRequest{Plan: "pro"}, http.StatusBadRequest, "bad_request"},
		{"BadID", http.MethodGet, "/api/challenges/abc", nil, http.StatusBadRequest, "bad_request"},
		{"MissingChallenge", http.MethodGet, "/api/challenges/77", nil, http.StatusNotFound, "not_found"},
		{"InvalidAction", http.MethodPost, "/api/trades/execute", executeTradeRequest{ChallengeID: 1, Symbol: "IAM", Action: "hold", Quantity: 1}, http.StatusBadRequest, "invalid_action"},
		{"InvalidQuantity", http.MethodPost, "/api/trades/execute", executeTradeRequest{ChallengeID: 1, Symbol: "IAM", Action: "buy"}, http.StatusBadRequest, "invalid_quantity"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var body errorResponse
			resp := doJSON(t, tc.method, ts.URL+tc.path, tc.body, &body)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, tc.code, body.Error)
		})
	}

	t.Run("MalformedJSON", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/trades/execute", "application/json", strings.NewReader("{"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
