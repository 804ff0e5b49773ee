package challenge

import (
	"context"
	"time"

	"challenge-desk-go/internal/models"
	"challenge-desk-go/internal/money"
	"go.uber.org/zap"
)

// Reason names the rule that ended a challenge.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonMaxDailyLoss Reason = "max_daily_loss"
	ReasonMaxTotalLoss Reason = "max_total_loss"
	ReasonProfitTarget Reason = "profit_target"
)

// Metrics are the figures a rule check is decided on.
type Metrics struct {
	DailyLossPercent     float64 `json:"daily_loss_percent"`
	TotalLossPercent     float64 `json:"total_loss_percent"`
	ProfitPercent        float64 `json:"profit_percent"`
	StartingBalanceToday float64 `json:"starting_balance_today"`
	EndBalanceToday      float64 `json:"end_balance_today"`
}

// RuleCheck is the result of one evaluation. Metrics is nil when the
// challenge had already finished and no rules were checked.
type RuleCheck struct {
	ChallengeID uint          `json:"challenge_id"`
	Status      models.Status `json:"status"`
	Reason      Reason        `json:"reason,omitempty"`
	Transition  bool          `json:"transition"`
	Metrics     *Metrics      `json:"metrics,omitempty"`
}

// ComputeMetrics derives the loss and profit percentages for a challenge
// given its reconstructed balances for today.
func ComputeMetrics(ch *models.Challenge, startToday, endToday float64) Metrics {
	m := Metrics{StartingBalanceToday: startToday, EndBalanceToday: endToday}
	if startToday > 0 {
		m.DailyLossPercent = max(0, (startToday-endToday)/startToday*100)
	}
	m.ProfitPercent = ch.ProfitPercent()
	m.TotalLossPercent = max(0, -m.ProfitPercent)
	return m
}

// Decide applies the rules in priority order: daily loss, then total loss,
// then profit target. The first breached rule wins.
func Decide(ch *models.Challenge, m Metrics) (models.Status, Reason) {
	switch {
	case m.DailyLossPercent > ch.MaxDailyLossPercent:
		return models.StatusFailed, ReasonMaxDailyLoss
	case m.TotalLossPercent > ch.MaxTotalLossPercent:
		return models.StatusFailed, ReasonMaxTotalLoss
	case m.ProfitPercent > ch.ProfitTargetPercent:
		return models.StatusPassed, ReasonProfitTarget
	}
	return models.StatusActive, ReasonNone
}

// Evaluator drives the active → passed | failed state machine.
type Evaluator struct {
	repo     Repository
	boundary *DayBoundary
	logger   *zap.Logger
	now      func() time.Time
}

// NewEvaluator creates an evaluator. A nil now defaults to time.Now.
func NewEvaluator(repo Repository, boundary *DayBoundary, logger *zap.Logger, now func() time.Time) *Evaluator {
	if now == nil {
		now = time.Now
	}
	return &Evaluator{repo: repo, boundary: boundary, logger: logger.Named("evaluator"), now: now}
}

// Evaluate checks the rules for challengeID and persists a transition when
// one applies. Passed and failed challenges are returned untouched, with
// their stored status and no metrics.
func (e *Evaluator) Evaluate(ctx context.Context, challengeID uint) (*RuleCheck, error) {
	ch, err := e.repo.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if ch.Status.Terminal() {
		return &RuleCheck{ChallengeID: ch.ID, Status: ch.Status}, nil
	}

	day, err := e.boundary.Today(ctx, ch)
	if err != nil {
		return nil, err
	}
	m := ComputeMetrics(ch, day.Start, day.End)
	status, reason := Decide(ch, m)

	check := &RuleCheck{
		ChallengeID: ch.ID,
		Status:      status,
		Reason:      reason,
		Metrics:     roundMetrics(m),
	}
	if status == models.StatusActive {
		return check, nil
	}

	if err := e.repo.UpdateStatus(ctx, ch, status, e.now().UTC()); err != nil {
		return nil, err
	}
	check.Transition = true

	e.logger.Info("Challenge finished",
		zap.Uint("challenge_id", ch.ID),
		zap.String("status", string(status)),
		zap.String("reason", string(reason)),
		zap.Float64("daily_loss_percent", m.DailyLossPercent),
		zap.Float64("total_loss_percent", m.TotalLossPercent),
		zap.Float64("profit_percent", m.ProfitPercent),
	)
	return check, nil
}

func roundMetrics(m Metrics) *Metrics {
	return &Metrics{
		DailyLossPercent:     money.Round2(m.DailyLossPercent),
		TotalLossPercent:     money.Round2(m.TotalLossPercent),
		ProfitPercent:        money.Round2(m.ProfitPercent),
		StartingBalanceToday: money.Round2(m.StartingBalanceToday),
		EndBalanceToday:      money.Round2(m.EndBalanceToday),
	}
}
