package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"challenge-desk-go/internal/challenge"
	"challenge-desk-go/internal/market"
	"challenge-desk-go/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Prices is the price oracle as seen by the HTTP layer.
type Prices interface {
	GetPrice(ctx context.Context, symbol string) (market.Quote, error)
	GetPrices(ctx context.Context, symbols []string) []market.PriceResult
	GetHistory(ctx context.Context, symbol, period, interval string) (market.HistoricalSeries, error)
	CacheStats() market.OracleStats
	ClearCache(symbol string)
}

// Challenges is the challenge service as seen by the HTTP layer.
type Challenges interface {
	StartChallenge(ctx context.Context, userID uint, planName string) (*models.Challenge, error)
	ExecuteTrade(ctx context.Context, in challenge.TradeInput) (*challenge.Execution, error)
	Summary(ctx context.Context, challengeID uint) (*challenge.Summary, error)
	History(ctx context.Context, challengeID uint) (*challenge.History, error)
}

var (
	_ Prices     = (*market.Oracle)(nil)
	_ Challenges = (*challenge.Service)(nil)
)

// Server exposes the oracle and the challenge service over HTTP.
type Server struct {
	server     *http.Server
	prices     Prices
	challenges Challenges
	logger     *zap.Logger
}

// NewServer creates a server listening on port.
func NewServer(port int, prices Prices, challenges Challenges, logger *zap.Logger) *Server {
	s := &Server{
		prices:     prices,
		challenges: challenges,
		logger:     logger.Named("api-server"),
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler wrapped in the request middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)

	mux.HandleFunc("GET /api/market/price/{symbol}", s.priceHandler)
	mux.HandleFunc("GET /api/market/prices", s.pricesHandler)
	mux.HandleFunc("GET /api/market/history/{symbol}", s.historyHandler)
	mux.HandleFunc("GET /api/market/cache/stats", s.cacheStatsHandler)
	mux.HandleFunc("POST /api/market/cache/clear", s.cacheClearHandler)

	mux.HandleFunc("POST /api/challenges", s.startChallengeHandler)
	mux.HandleFunc("GET /api/challenges/{id}", s.challengeHandler)
	mux.HandleFunc("POST /api/trades/execute", s.executeTradeHandler)
	mux.HandleFunc("GET /api/trades/history/{id}", s.tradeHistoryHandler)

	return s.withRequestID(mux)
}

// Start runs the HTTP server in a new goroutine.
func (s *Server) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("Handled request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
