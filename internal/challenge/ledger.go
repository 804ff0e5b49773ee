package challenge

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"challenge-desk-go/internal/market"
	"challenge-desk-go/internal/models"
	"challenge-desk-go/internal/money"
	"go.uber.org/zap"
)

// TradeRequest is a priced trade ready to be booked.
type TradeRequest struct {
	ChallengeID uint
	Symbol      string
	Side        models.Side
	Quantity    float64
	Price       float64
}

// TradeReceipt is what the ledger returns after booking a trade.
type TradeReceipt struct {
	Trade          models.Trade `json:"trade"`
	CurrentBalance float64      `json:"current_balance"`
	PnLPercent     float64      `json:"pnl_percent"`
}

// Ledger books trades against a challenge balance. Balances only move by
// the trade's cash flow; no positions are tracked and a buy may take the
// balance below zero.
type Ledger struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewLedger creates a ledger. A nil now defaults to time.Now.
func NewLedger(repo Repository, logger *zap.Logger, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{repo: repo, logger: logger.Named("ledger"), now: now}
}

// ParseSide normalizes a side string.
func ParseSide(s string) (models.Side, error) {
	side := models.Side(strings.ToLower(strings.TrimSpace(s)))
	if side != models.SideBuy && side != models.SideSell {
		return "", invalid(CodeInvalidAction, "action must be buy or sell, got %q", s)
	}
	return side, nil
}

func validQuantity(q float64) error {
	if !(q > 0) || math.IsInf(q, 0) {
		return invalid(CodeInvalidQuantity, "quantity must be positive, got %v", q)
	}
	return nil
}

func validPrice(p float64) error {
	if !(p > 0) || math.IsInf(p, 0) {
		return invalid(CodeInvalidPrice, "price must be positive, got %v", p)
	}
	return nil
}

// ExecuteTrade validates req, computes the new balance and persists the
// trade together with the balance. It does not evaluate challenge rules.
func (l *Ledger) ExecuteTrade(ctx context.Context, req TradeRequest) (*TradeReceipt, error) {
	side, err := ParseSide(string(req.Side))
	if err != nil {
		return nil, err
	}
	if err := validQuantity(req.Quantity); err != nil {
		return nil, err
	}
	if err := validPrice(req.Price); err != nil {
		return nil, err
	}
	symbol := market.NormalizeSymbol(req.Symbol)
	if symbol == "" {
		return nil, invalid(CodeInvalidSymbol, "symbol is required")
	}

	ch, err := l.repo.GetChallenge(ctx, req.ChallengeID)
	if err != nil {
		return nil, err
	}
	if ch.Status != models.StatusActive {
		return nil, fmt.Errorf("%w: challenge %d is %s", ErrChallengeInactive, ch.ID, ch.Status)
	}

	total := money.Mul(req.Quantity, req.Price)
	balance := money.Sub(ch.CurrentBalance, total)
	if side == models.SideSell {
		balance = money.Add(ch.CurrentBalance, total)
	}

	trade := models.Trade{
		ChallengeID:       ch.ID,
		Symbol:            symbol,
		Side:              side,
		Quantity:          req.Quantity,
		Price:             req.Price,
		TotalValue:        total,
		BalanceAfterTrade: balance,
		CreatedAt:         l.now().UTC(),
	}
	if err := l.repo.AppendTrade(ctx, ch, &trade); err != nil {
		return nil, err
	}

	l.logger.Info("Trade booked",
		zap.Uint("challenge_id", ch.ID),
		zap.Uint("trade_id", trade.ID),
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Float64("total_value", total),
		zap.Float64("balance", balance),
	)

	return &TradeReceipt{
		Trade:          trade,
		CurrentBalance: balance,
		PnLPercent:     money.Round2(money.PercentChange(ch.StartingBalance, balance)),
	}, nil
}
