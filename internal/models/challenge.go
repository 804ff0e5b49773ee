package models

import "time"

// Status is the outcome state of a challenge.
type Status string

const (
	StatusActive Status = "active"
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusPassed || s == StatusFailed
}

// Challenge is a simulated trading account evaluated against fixed plan rules.
// Rule parameters never change after creation; CurrentBalance and Status are
// owned by the ledger and the evaluator respectively.
type Challenge struct {
	ID                  uint       `json:"id" gorm:"primaryKey"`
	Reference           string     `json:"reference" gorm:"uniqueIndex;size:36"`
	UserID              uint       `json:"user_id" gorm:"index;not null"`
	PlanType            string     `json:"plan_type" gorm:"size:20;not null"`
	StartingBalance     float64    `json:"starting_balance" gorm:"not null"`
	CurrentBalance      float64    `json:"current_balance" gorm:"not null"`
	Status              Status     `json:"status" gorm:"size:20;not null;default:active;index"`
	MaxDailyLossPercent float64    `json:"max_daily_loss_percent" gorm:"not null"`
	MaxTotalLossPercent float64    `json:"max_total_loss_percent" gorm:"not null"`
	ProfitTargetPercent float64    `json:"profit_target_percent" gorm:"not null"`
	CreatedAt           time.Time  `json:"created_at"`
	EndedAt             *time.Time `json:"ended_at,omitempty"`
	// Version is bumped on every balance or status write and guards against lost updates.
	Version uint `json:"-" gorm:"not null;default:0"`
}

// ProfitPercent is the lifetime result relative to the starting balance.
func (c *Challenge) ProfitPercent() float64 {
	if c.StartingBalance <= 0 {
		return 0
	}
	return (c.CurrentBalance - c.StartingBalance) / c.StartingBalance * 100
}
