package challenge_test

import (
	"testing"

	"challenge-desk-go/internal/challenge"
	"challenge-desk-go/internal/models"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func ruleChallenge(balance float64) *models.Challenge {
	return &models.Challenge{
		StartingBalance:     10000,
		CurrentBalance:      balance,
		Status:              models.StatusActive,
		MaxDailyLossPercent: 5,
		MaxTotalLossPercent: 10,
		ProfitTargetPercent: 10,
	}
}

func TestComputeMetrics(t *testing.T) {
	m := challenge.ComputeMetrics(ruleChallenge(9400), 10000, 9400)
	assert.InDelta(t, 6.0, m.DailyLossPercent, 1e-9)
	assert.InDelta(t, 6.0, m.TotalLossPercent, 1e-9)
	assert.InDelta(t, -6.0, m.ProfitPercent, 1e-9)

	m = challenge.ComputeMetrics(ruleChallenge(10500), 10000, 10500)
	assert.Equal(t, 0.0, m.DailyLossPercent, "gains are not negative losses")
	assert.Equal(t, 0.0, m.TotalLossPercent)

	m = challenge.ComputeMetrics(ruleChallenge(10000), 0, -50)
	assert.Equal(t, 0.0, m.DailyLossPercent, "no daily loss is computed from a non-positive start")
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name   string
		m      challenge.Metrics
		status models.Status
		reason challenge.Reason
	}{
		{"Active", challenge.Metrics{DailyLossPercent: 5, TotalLossPercent: 10, ProfitPercent: 10}, models.StatusActive, challenge.ReasonNone},
		{"DailyLoss", challenge.Metrics{DailyLossPercent: 5.01}, models.StatusFailed, challenge.ReasonMaxDailyLoss},
		{"TotalLoss", challenge.Metrics{DailyLossPercent: 1, TotalLossPercent: 10.5}, models.StatusFailed, challenge.ReasonMaxTotalLoss},
		{"ProfitTarget", challenge.Metrics{ProfitPercent: 10.01}, models.StatusPassed, challenge.ReasonProfitTarget},
		{"DailyBeforeTotal", challenge.Metrics{DailyLossPercent: 20, TotalLossPercent: 20}, models.StatusFailed, challenge.ReasonMaxDailyLoss},
		{"DailyBeforeProfit", challenge.Metrics{DailyLossPercent: 6, ProfitPercent: 12}, models.StatusFailed, challenge.ReasonMaxDailyLoss},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, reason := challenge.Decide(ruleChallenge(10000), tc.m)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.reason, reason)
		})
	}
}

func TestDecideProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ch := &models.Challenge{
			StartingBalance:     rapid.Float64Range(1000, 100000).Draw(t, "starting"),
			MaxDailyLossPercent: rapid.Float64Range(0.5, 20).Draw(t, "maxDaily"),
			MaxTotalLossPercent: rapid.Float64Range(0.5, 50).Draw(t, "maxTotal"),
			ProfitTargetPercent: rapid.Float64Range(0.5, 50).Draw(t, "target"),
		}
		ch.CurrentBalance = rapid.Float64Range(-ch.StartingBalance, ch.StartingBalance*3).Draw(t, "current")
		start := rapid.Float64Range(1, ch.StartingBalance*3).Draw(t, "startToday")

		m := challenge.ComputeMetrics(ch, start, ch.CurrentBalance)
		status, reason := challenge.Decide(ch, m)

		if m.DailyLossPercent < 0 || m.TotalLossPercent < 0 {
			t.Fatalf("negative loss metric: %+v", m)
		}
		switch {
		case m.DailyLossPercent > ch.MaxDailyLossPercent:
			if status != models.StatusFailed || reason != challenge.ReasonMaxDailyLoss {
				t.Fatalf("daily breach decided %s/%s", status, reason)
			}
		case m.TotalLossPercent > ch.MaxTotalLossPercent:
			if status != models.StatusFailed || reason != challenge.ReasonMaxTotalLoss {
				t.Fatalf("total breach decided %s/%s", status, reason)
			}
		case m.ProfitPercent > ch.ProfitTargetPercent:
			if status != models.StatusPassed || reason != challenge.ReasonProfitTarget {
				t.Fatalf("profit breach decided %s/%s", status, reason)
			}
		default:
			if status != models.StatusActive || reason != challenge.ReasonNone {
				t.Fatalf("no breach decided %s/%s", status, reason)
			}
		}
	})
}
