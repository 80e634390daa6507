package repository

import (
	"context"
	"fmt"

	"github.com/basedgoydev/greed-farm/database"
	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/jackc/pgx/v5"
)

const distributionSelect = `
	SELECT d.id, d.user_id, u.wallet, d.epoch_number, d.stake_amount::text,
	       d.reward_amount::text, d.created_at
	FROM distributions d
	JOIN users u ON u.id = d.user_id`

// DistributionRepository implements the DistributionRepository interface
type DistributionRepository struct {
	q queryable
}

// NewDistributionRepository creates a new distribution repository
func NewDistributionRepository(db *database.DB) *DistributionRepository {
	return &DistributionRepository{q: db.Pool}
}

// newDistributionRepositoryWithTx creates a new distribution repository with a transaction
func newDistributionRepositoryWithTx(tx queryable) *DistributionRepository {
	return &DistributionRepository{q: tx}
}

// Create inserts a distribution. The conflict clause keeps the surrounding
// transaction usable when the user was already credited for the epoch.
func (r *DistributionRepository) Create(ctx context.Context, distribution *entities.Distribution) error {
	query := `
		INSERT INTO distributions (user_id, epoch_number, stake_amount, reward_amount, created_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5)
		ON CONFLICT (user_id, epoch_number) DO NOTHING
		RETURNING id
	`

	err := r.q.QueryRow(ctx, query,
		distribution.UserID,
		distribution.EpochNumber,
		amountArg(distribution.StakeAmount),
		amountArg(distribution.RewardAmount),
		distribution.CreatedAt,
	).Scan(&distribution.ID)

	if err == pgx.ErrNoRows {
		return entities.ErrAlreadyDistributed.WithMessage("user %d already credited for epoch %d", distribution.UserID, distribution.EpochNumber)
	}
	if err != nil {
		return fmt.Errorf("failed to create distribution for user %d epoch %d: %w", distribution.UserID, distribution.EpochNumber, err)
	}

	return nil
}

func (r *DistributionRepository) list(ctx context.Context, query string, args ...any) ([]*entities.Distribution, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var distributions []*entities.Distribution
	for rows.Next() {
		var d entities.Distribution
		err := rows.Scan(
			&d.ID,
			&d.UserID,
			&d.Wallet,
			&d.EpochNumber,
			scanAmount(&d.StakeAmount),
			scanAmount(&d.RewardAmount),
			&d.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan distribution: %w", err)
		}
		distributions = append(distributions, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate distributions: %w", err)
	}

	return distributions, nil
}

// GetByEpoch returns all distributions for an epoch
func (r *DistributionRepository) GetByEpoch(ctx context.Context, epochNumber int64) ([]*entities.Distribution, error) {
	distributions, err := r.list(ctx, distributionSelect+` WHERE d.epoch_number = $1 ORDER BY d.user_id`, epochNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to get distributions for epoch %d: %w", epochNumber, err)
	}
	return distributions, nil
}

// GetByUser returns a user's most recent distributions
func (r *DistributionRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*entities.Distribution, error) {
	query := distributionSelect + ` WHERE d.user_id = $1 ORDER BY d.epoch_number DESC LIMIT $2`

	distributions, err := r.list(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get distributions for user %d: %w", userID, err)
	}
	return distributions, nil
}
