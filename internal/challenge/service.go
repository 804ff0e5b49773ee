package challenge

import (
	"context"
	"fmt"
	"time"

	"challenge-desk-go/internal/config"
	"challenge-desk-go/internal/market"
	"challenge-desk-go/internal/models"
	"challenge-desk-go/internal/money"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PriceSource resolves the execution price of a symbol.
type PriceSource interface {
	GetPrice(ctx context.Context, symbol string) (market.Quote, error)
}

// TradeInput is an unpriced trade as submitted by a participant.
type TradeInput struct {
	ChallengeID uint
	Symbol      string
	Side        string
	Quantity    float64
}

// PriceInfo records which quote a trade was executed at.
type PriceInfo struct {
	Symbol    string  `json:"symbol"`
	PriceUsed float64 `json:"price_used"`
	Source    string  `json:"source"`
	Market    string  `json:"market"`
	Currency  string  `json:"currency"`
	FromCache bool    `json:"from_cache"`
}

// Execution is the outcome of a trade followed by its rule check.
type Execution struct {
	TradeReceipt
	RuleCheck *RuleCheck `json:"rule_check"`
	PriceInfo *PriceInfo `json:"price_info,omitempty"`
}

// Performance summarizes lifetime and same-day results.
type Performance struct {
	TotalPnL          float64 `json:"total_pnl"`
	TotalPnLPercent   float64 `json:"total_pnl_percent"`
	DailyPnL          float64 `json:"daily_pnl"`
	DailyPnLPercent   float64 `json:"daily_pnl_percent"`
	TradesToday       int64   `json:"trades_today"`
	StartBalanceToday float64 `json:"start_balance_today"`
	CurrentBalance    float64 `json:"current_balance"`
}

// Summary is a challenge with its reconstructed performance.
type Summary struct {
	Challenge   *models.Challenge `json:"challenge"`
	Performance Performance       `json:"performance"`
}

// HistoryEntry is a trade with its signed cash flow.
type HistoryEntry struct {
	models.Trade
	PnL float64 `json:"pnl"`
}

// History is the full ledger of a challenge, newest first.
type History struct {
	ChallengeID    uint           `json:"challenge_id"`
	Trades         []HistoryEntry `json:"trades"`
	Count          int            `json:"count"`
	TotalPnL       float64        `json:"total_pnl"`
	CurrentBalance float64        `json:"current_balance"`
}

// Service runs the challenge use cases. Trade booking and rule evaluation
// for one challenge are serialized; different challenges run in parallel.
type Service struct {
	repo      Repository
	prices    PriceSource
	plans     Plans
	ledger    *Ledger
	boundary  *DayBoundary
	evaluator *Evaluator
	locks     *keyedMutex
	userLocks *keyedMutex
	logger    *zap.Logger
	now       func() time.Time
}

// NewService wires the ledger, day boundary and evaluator over repo.
// A nil now defaults to time.Now.
func NewService(repo Repository, prices PriceSource, plans map[string]config.Plan, logger *zap.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	boundary := NewDayBoundary(repo, now)
	return &Service{
		repo:      repo,
		prices:    prices,
		plans:     NewPlans(plans),
		ledger:    NewLedger(repo, logger, now),
		boundary:  boundary,
		evaluator: NewEvaluator(repo, boundary, logger, now),
		locks:     newKeyedMutex(),
		userLocks: newKeyedMutex(),
		logger:    logger.Named("challenge"),
		now:       now,
	}
}

// StartChallenge opens an active challenge for userID on the named plan.
// A user holds at most one active challenge at a time.
func (s *Service) StartChallenge(ctx context.Context, userID uint, planName string) (*models.Challenge, error) {
	name, plan, err := s.plans.Lookup(planName)
	if err != nil {
		return nil, err
	}

	unlock := s.userLocks.Lock(userID)
	defer unlock()

	active, err := s.repo.ActiveChallengeForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, fmt.Errorf("%w: user %d, challenge %d", ErrActiveChallengeExists, userID, active.ID)
	}

	ch := &models.Challenge{
		Reference:           uuid.NewString(),
		UserID:              userID,
		PlanType:            name,
		StartingBalance:     plan.StartingBalance,
		CurrentBalance:      plan.StartingBalance,
		Status:              models.StatusActive,
		MaxDailyLossPercent: plan.MaxDailyLossPercent,
		MaxTotalLossPercent: plan.MaxTotalLossPercent,
		ProfitTargetPercent: plan.ProfitTargetPercent,
		CreatedAt:           s.now().UTC(),
	}
	if err := s.repo.CreateChallenge(ctx, ch); err != nil {
		return nil, err
	}

	s.logger.Info("Challenge started",
		zap.Uint("challenge_id", ch.ID),
		zap.Uint("user_id", userID),
		zap.String("plan", name),
		zap.Float64("starting_balance", ch.StartingBalance),
	)
	return ch, nil
}

// ExecuteTrade prices the trade through the oracle, books it and evaluates
// the challenge rules.
func (s *Service) ExecuteTrade(ctx context.Context, in TradeInput) (*Execution, error) {
	side, err := ParseSide(in.Side)
	if err != nil {
		return nil, err
	}
	if err := validQuantity(in.Quantity); err != nil {
		return nil, err
	}
	symbol := market.NormalizeSymbol(in.Symbol)
	if symbol == "" {
		return nil, invalid(CodeInvalidSymbol, "symbol is required")
	}

	ch, err := s.repo.GetChallenge(ctx, in.ChallengeID)
	if err != nil {
		return nil, err
	}
	if ch.Status != models.StatusActive {
		return nil, fmt.Errorf("%w: challenge %d is %s", ErrChallengeInactive, ch.ID, ch.Status)
	}

	quote, err := s.prices.GetPrice(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to price %s: %w", symbol, err)
	}

	exec, err := s.Settle(ctx, TradeRequest{
		ChallengeID: in.ChallengeID,
		Symbol:      symbol,
		Side:        side,
		Quantity:    in.Quantity,
		Price:       quote.CurrentPrice,
	})
	if exec != nil {
		exec.PriceInfo = &PriceInfo{
			Symbol:    quote.Symbol,
			PriceUsed: quote.CurrentPrice,
			Source:    quote.Source,
			Market:    quote.Market,
			Currency:  quote.Currency,
			FromCache: quote.FromCache,
		}
	}
	return exec, err
}

// Settle books an already priced trade and then evaluates the challenge,
// holding the challenge lock across both steps. If the trade is booked but
// the evaluation fails, the execution is returned together with the error.
func (s *Service) Settle(ctx context.Context, req TradeRequest) (*Execution, error) {
	unlock := s.locks.Lock(req.ChallengeID)
	defer unlock()

	receipt, err := s.ledger.ExecuteTrade(ctx, req)
	if err != nil {
		return nil, err
	}

	exec := &Execution{TradeReceipt: *receipt}
	check, err := s.evaluator.Evaluate(ctx, req.ChallengeID)
	if err != nil {
		s.logger.Error("Rule check failed after trade", zap.Uint("challenge_id", req.ChallengeID), zap.Uint("trade_id", receipt.Trade.ID), zap.Error(err))
		return exec, fmt.Errorf("trade %d booked but rule check failed: %w", receipt.Trade.ID, err)
	}
	exec.RuleCheck = check
	return exec, nil
}

// Evaluate runs the rule check for a challenge on its own.
func (s *Service) Evaluate(ctx context.Context, challengeID uint) (*RuleCheck, error) {
	unlock := s.locks.Lock(challengeID)
	defer unlock()
	return s.evaluator.Evaluate(ctx, challengeID)
}

// Summary returns the challenge with lifetime and daily results.
func (s *Service) Summary(ctx context.Context, challengeID uint) (*Summary, error) {
	ch, err := s.repo.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	day, err := s.boundary.Today(ctx, ch)
	if err != nil {
		return nil, err
	}

	return &Summary{
		Challenge: ch,
		Performance: Performance{
			TotalPnL:          money.Sub(ch.CurrentBalance, ch.StartingBalance),
			TotalPnLPercent:   money.Round2(ch.ProfitPercent()),
			DailyPnL:          money.Sub(day.End, day.Start),
			DailyPnLPercent:   money.Round2(money.PercentChange(day.Start, day.End)),
			TradesToday:       day.TradesToday,
			StartBalanceToday: money.Round2(day.Start),
			CurrentBalance:    money.Round2(ch.CurrentBalance),
		},
	}, nil
}

// History returns every trade of the challenge, newest first.
func (s *Service) History(ctx context.Context, challengeID uint) (*History, error) {
	ch, err := s.repo.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	trades, err := s.repo.ListTrades(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	h := &History{
		ChallengeID:    ch.ID,
		Trades:         make([]HistoryEntry, 0, len(trades)),
		Count:          len(trades),
		TotalPnL:       money.Sub(ch.CurrentBalance, ch.StartingBalance),
		CurrentBalance: ch.CurrentBalance,
	}
	for _, t := range trades {
		h.Trades = append(h.Trades, HistoryEntry{Trade: t, PnL: t.CashFlow()})
	}
	return h, nil
}
