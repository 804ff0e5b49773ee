package challenge

import (
	"context"
	"time"

	"challenge-desk-go/internal/models"
)

// Repository persists challenges and their trade ledger.
//
// Writes that change a challenge are guarded by its Version: they succeed
// only if the stored row still has the version and the active status of the
// passed-in value, and on success they bump the version in place.
type Repository interface {
	CreateChallenge(ctx context.Context, c *models.Challenge) error
	GetChallenge(ctx context.Context, id uint) (*models.Challenge, error)
	// ActiveChallengeForUser returns the user's active challenge, or nil.
	ActiveChallengeForUser(ctx context.Context, userID uint) (*models.Challenge, error)

	// AppendTrade inserts t and sets the challenge balance to
	// t.BalanceAfterTrade in one transaction.
	AppendTrade(ctx context.Context, c *models.Challenge, t *models.Trade) error
	// UpdateStatus moves an active challenge to status and stamps endedAt.
	UpdateStatus(ctx context.Context, c *models.Challenge, status models.Status, endedAt time.Time) error

	// LatestTradeBefore returns the newest trade created strictly before at, or nil.
	LatestTradeBefore(ctx context.Context, challengeID uint, at time.Time) (*models.Trade, error)
	// LatestTradeSince returns the newest trade created at or after at, or nil.
	LatestTradeSince(ctx context.Context, challengeID uint, at time.Time) (*models.Trade, error)
	// CountTradesSince counts trades created at or after at.
	CountTradesSince(ctx context.Context, challengeID uint, at time.Time) (int64, error)
	// ListTrades returns every trade of the challenge, newest first.
	ListTrades(ctx context.Context, challengeID uint) ([]models.Trade, error)
}
