package challenge

import (
	"context"
	"time"

	"challenge-desk-go/internal/models"
)

// StartOfDay returns UTC midnight of t's UTC day.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayBalances are the reconstructed balances of the current UTC day.
type DayBalances struct {
	Boundary    time.Time
	Start       float64
	End         float64
	TradesToday int64
}

// DayBoundary derives today's balances from the trade history. Nothing is
// written; no daily snapshot exists.
type DayBoundary struct {
	repo Repository
	now  func() time.Time
}

// NewDayBoundary creates a reconstructor. A nil now defaults to time.Now.
func NewDayBoundary(repo Repository, now func() time.Time) *DayBoundary {
	if now == nil {
		now = time.Now
	}
	return &DayBoundary{repo: repo, now: now}
}

// StartOfDayBalance is the balance after the last trade before today's
// boundary. Without such a trade it is the current balance for a challenge
// created before today, and the starting balance for one created today.
func (b *DayBoundary) StartOfDayBalance(ctx context.Context, ch *models.Challenge) (float64, error) {
	return b.startOfDay(ctx, ch, StartOfDay(b.now()))
}

// EndOfDayBalance is the balance after today's last trade, or the start of
// day balance when there were no trades today.
func (b *DayBoundary) EndOfDayBalance(ctx context.Context, ch *models.Challenge) (float64, error) {
	boundary := StartOfDay(b.now())
	start, err := b.startOfDay(ctx, ch, boundary)
	if err != nil {
		return 0, err
	}
	return b.endOfDay(ctx, ch, boundary, start)
}

// Today computes both balances against a single boundary.
func (b *DayBoundary) Today(ctx context.Context, ch *models.Challenge) (DayBalances, error) {
	boundary := StartOfDay(b.now())
	start, err := b.startOfDay(ctx, ch, boundary)
	if err != nil {
		return DayBalances{}, err
	}
	end, err := b.endOfDay(ctx, ch, boundary, start)
	if err != nil {
		return DayBalances{}, err
	}
	n, err := b.repo.CountTradesSince(ctx, ch.ID, boundary)
	if err != nil {
		return DayBalances{}, err
	}
	return DayBalances{Boundary: boundary, Start: start, End: end, TradesToday: n}, nil
}

func (b *DayBoundary) startOfDay(ctx context.Context, ch *models.Challenge, boundary time.Time) (float64, error) {
	last, err := b.repo.LatestTradeBefore(ctx, ch.ID, boundary)
	if err != nil {
		return 0, err
	}
	if last != nil {
		return last.BalanceAfterTrade, nil
	}
	if ch.CreatedAt.Before(boundary) {
		// No trade before today: treated as "unchanged since midnight".
		return ch.CurrentBalance, nil
	}
	return ch.StartingBalance, nil
}

func (b *DayBoundary) endOfDay(ctx context.Context, ch *models.Challenge, boundary time.Time, start float64) (float64, error) {
	last, err := b.repo.LatestTradeSince(ctx, ch.ID, boundary)
	if err != nil {
		return 0, err
	}
	if last != nil {
		return last.BalanceAfterTrade, nil
	}
	return start, nil
}
