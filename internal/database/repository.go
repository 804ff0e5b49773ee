package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"challenge-desk-go/internal/challenge"
	"challenge-desk-go/internal/models"
	"gorm.io/gorm"
)

// Repository is the gorm-backed challenge store.
type Repository struct {
	db *gorm.DB
}

// ensure Repository implements the interface
var _ challenge.Repository = (*Repository)(nil)

// NewRepository wraps db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateChallenge(ctx context.Context, c *models.Challenge) error {
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("failed to create challenge: %w", err)
	}
	return nil
}

func (r *Repository) GetChallenge(ctx context.Context, id uint) (*models.Challenge, error) {
	return getChallenge(r.db.WithContext(ctx), id)
}

func (r *Repository) ActiveChallengeForUser(ctx context.Context, userID uint) (*models.Challenge, error) {
	var c models.Challenge
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.StatusActive).
		Order("id DESC").
		Limit(1).
		Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active challenge for user %d: %w", userID, err)
	}
	return &c, nil
}

func getChallenge(tx *gorm.DB, id uint) (*models.Challenge, error) {
	var c models.Challenge
	err := tx.Take(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id %d", challenge.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load challenge %d: %w", id, err)
	}
	return &c, nil
}

func (r *Repository) AppendTrade(ctx context.Context, c *models.Challenge, t *models.Trade) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Challenge{}).
			Where("id = ? AND version = ? AND status = ?", c.ID, c.Version, models.StatusActive).
			Updates(map[string]any{
				"current_balance": t.BalanceAfterTrade,
				"version":         gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update balance: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return staleWrite(tx, c.ID)
		}

		t.ChallengeID = c.ID
		if err := tx.Create(t).Error; err != nil {
			return fmt.Errorf("failed to insert trade: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.CurrentBalance = t.BalanceAfterTrade
	c.Version++
	return nil
}

func (r *Repository) UpdateStatus(ctx context.Context, c *models.Challenge, status models.Status, endedAt time.Time) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Challenge{}).
			Where("id = ? AND version = ? AND status = ?", c.ID, c.Version, models.StatusActive).
			Updates(map[string]any{
				"status":   status,
				"ended_at": endedAt,
				"version":  gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update status: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return staleWrite(tx, c.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.Status = status
	c.EndedAt = &endedAt
	c.Version++
	return nil
}

// staleWrite explains why a guarded update matched no row.
func staleWrite(tx *gorm.DB, id uint) error {
	current, err := getChallenge(tx, id)
	if err != nil {
		return err
	}
	if current.Status != models.StatusActive {
		return fmt.Errorf("%w: challenge %d is %s", challenge.ErrChallengeInactive, id, current.Status)
	}
	return fmt.Errorf("%w: challenge %d", challenge.ErrConflict, id)
}

func (r *Repository) LatestTradeBefore(ctx context.Context, challengeID uint, at time.Time) (*models.Trade, error) {
	return r.latestTrade(ctx, "challenge_id = ? AND created_at < ?", challengeID, at.UTC())
}

func (r *Repository) LatestTradeSince(ctx context.Context, challengeID uint, at time.Time) (*models.Trade, error) {
	return r.latestTrade(ctx, "challenge_id = ? AND created_at >= ?", challengeID, at.UTC())
}

func (r *Repository) latestTrade(ctx context.Context, query string, args ...any) (*models.Trade, error) {
	var t models.Trade
	err := r.db.WithContext(ctx).
		Where(query, args...).
		Order("created_at DESC, id DESC").
		Limit(1).
		Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	return &t, nil
}

func (r *Repository) CountTradesSince(ctx context.Context, challengeID uint, at time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Trade{}).
		Where("challenge_id = ? AND created_at >= ?", challengeID, at.UTC()).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count trades: %w", err)
	}
	return n, nil
}

func (r *Repository) ListTrades(ctx context.Context, challengeID uint) ([]models.Trade, error) {
	var trades []models.Trade
	err := r.db.WithContext(ctx).
		Where("challenge_id = ?", challengeID).
		Order("created_at DESC, id DESC").
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return trades, nil
}
