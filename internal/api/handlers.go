package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"challenge-desk-go/internal/challenge"
	"challenge-desk-go/internal/market"
	"go.uber.org/zap"
)

const maxBatchSymbols = 50

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}

func pathID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", r.PathValue("id"))
	}
	return uint(id), nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) priceHandler(w http.ResponseWriter, r *http.Request) {
	q, err := s.prices.GetPrice(r.Context(), r.PathValue("symbol"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, q)
}

type priceFailure struct {
	Symbol  string `json:"symbol"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

type pricesResponse struct {
	Prices []market.Quote `json:"prices"`
	Count  int            `json:"count"`
	Errors []priceFailure `json:"errors"`
}

func (s *Server) pricesHandler(w http.ResponseWriter, r *http.Request) {
	var symbols []string
	for _, sym := range strings.Split(r.URL.Query().Get("symbols"), ",") {
		if sym = strings.TrimSpace(sym); sym != "" {
			symbols = append(symbols, sym)
		}
	}
	if len(symbols) == 0 {
		s.badRequest(w, "symbols query parameter is required")
		return
	}
	if len(symbols) > maxBatchSymbols {
		s.badRequest(w, fmt.Sprintf("at most %d symbols per request", maxBatchSymbols))
		return
	}

	resp := pricesResponse{Prices: []market.Quote{}, Errors: []priceFailure{}}
	for _, res := range s.prices.GetPrices(r.Context(), symbols) {
		if res.Err != nil {
			_, code := statusFor(res.Err)
			resp.Errors = append(resp.Errors, priceFailure{Symbol: res.Symbol, Error: code, Message: res.Err.Error()})
			continue
		}
		resp.Prices = append(resp.Prices, *res.Quote)
	}
	resp.Count = len(resp.Prices)
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "1mo"
	}
	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = "1h"
	}

	series, err := s.prices.GetHistory(r.Context(), r.PathValue("symbol"), period, interval)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, series)
}

func (s *Server) cacheStatsHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.prices.CacheStats())
}

func (s *Server) cacheClearHandler(w http.ResponseWriter, r *http.Request) {
	symbol := market.NormalizeSymbol(r.URL.Query().Get("symbol"))
	s.prices.ClearCache(symbol)
	s.logger.Info("Price cache cleared", zap.String("symbol", symbol))
	s.writeJSON(w, http.StatusOK, map[string]string{"cleared": symbol})
}

type startChallengeRequest struct {
	UserID uint   `json:"user_id"`
	Plan   string `json:"plan"`
}

func (s *Server) startChallengeHandler(w http.ResponseWriter, r *http.Request) {
	var req startChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid JSON body")
		return
	}
	if req.UserID == 0 {
		s.badRequest(w, "user_id is required")
		return
	}

	ch, err := s.challenges.StartChallenge(r.Context(), req.UserID, req.Plan)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, ch)
}

func (s *Server) challengeHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	summary, err := s.challenges.Summary(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

type executeTradeRequest struct {
	ChallengeID uint    `json:"challenge_id"`
	Symbol      string  `json:"symbol"`
	Action      string  `json:"action"`
	Quantity    float64 `json:"quantity"`
}

type executeTradeResponse struct {
	*challenge.Execution
	RuleCheckError string `json:"rule_check_error,omitempty"`
}

func (s *Server) executeTradeHandler(w http.ResponseWriter, r *http.Request) {
	var req executeTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid JSON body")
		return
	}

	exec, err := s.challenges.ExecuteTrade(r.Context(), challenge.TradeInput{
		ChallengeID: req.ChallengeID,
		Symbol:      req.Symbol,
		Side:        req.Action,
		Quantity:    req.Quantity,
	})
	if exec != nil {
		// The trade is booked even when the follow-up rule check failed.
		resp := executeTradeResponse{Execution: exec}
		if err != nil {
			resp.RuleCheckError = err.Error()
		}
		s.writeJSON(w, http.StatusCreated, resp)
		return
	}
	s.writeError(w, r, err)
}

func (s *Server) tradeHistoryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	history, err := s.challenges.History(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, history)
}
