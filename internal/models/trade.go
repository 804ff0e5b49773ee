package models

import "time"

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Trade is an immutable ledger entry. BalanceAfterTrade is the challenge
// balance right after the trade was committed.
type Trade struct {
	ID                uint      `json:"id" gorm:"primaryKey"`
	ChallengeID       uint      `json:"challenge_id" gorm:"not null;index:idx_trades_challenge_created,priority:1"`
	Symbol            string    `json:"symbol" gorm:"size:20;not null;index"`
	Side              Side      `json:"action" gorm:"size:10;not null"`
	Quantity          float64   `json:"quantity" gorm:"not null"`
	Price             float64   `json:"price" gorm:"not null"`
	TotalValue        float64   `json:"total_value" gorm:"not null"`
	BalanceAfterTrade float64   `json:"balance_after_trade" gorm:"not null"`
	CreatedAt         time.Time `json:"created_at" gorm:"not null;index:idx_trades_challenge_created,priority:2"`
}

// CashFlow is the signed effect of the trade on the balance.
func (t *Trade) CashFlow() float64 {
	if t.Side == SideBuy {
		return -t.TotalValue
	}
	return t.TotalValue
}
