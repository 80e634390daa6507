package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/basedgoydev/greed-farm/database"
	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/basedgoydev/greed-farm/domain/safemath"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
)

const stakeSelect = `
	SELECT s.id, s.user_id, u.wallet, s.amount::text, s.staked_at, s.active, s.unstaked_at,
	       s.source, s.created_at, s.updated_at
	FROM stakes s
	JOIN users u ON u.id = s.user_id`

// StakeRepository implements the StakeRepository interface
type StakeRepository struct {
	q queryable
}

// NewStakeRepository creates a new stake repository
func NewStakeRepository(db *database.DB) *StakeRepository {
	return &StakeRepository{q: db.Pool}
}

// newStakeRepositoryWithTx creates a new stake repository with a transaction
func newStakeRepositoryWithTx(tx queryable) *StakeRepository {
	return &StakeRepository{q: tx}
}

func scanStake(row pgx.Row) (*entities.Stake, error) {
	var stake entities.Stake
	var source string
	err := row.Scan(
		&stake.ID,
		&stake.UserID,
		&stake.Wallet,
		scanAmount(&stake.Amount),
		&stake.StakedAt,
		&stake.Active,
		&stake.UnstakedAt,
		&source,
		&stake.CreatedAt,
		&stake.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	stake.Source = entities.StakeSource(source)
	return &stake, nil
}

func (r *StakeRepository) list(ctx context.Context, query string, args ...any) ([]*entities.Stake, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stakes []*entities.Stake
	for rows.Next() {
		stake, err := scanStake(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stake: %w", err)
		}
		stakes = append(stakes, stake)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stakes: %w", err)
	}

	return stakes, nil
}

// GetActiveByUser returns the user's active stake, locked for update
func (r *StakeRepository) GetActiveByUser(ctx context.Context, userID int64) (*entities.Stake, error) {
	query := stakeSelect + ` WHERE s.user_id = $1 AND s.active FOR UPDATE OF s`

	stake, err := scanStake(r.q.QueryRow(ctx, query, userID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active stake for user %d: %w", userID, err)
	}

	return stake, nil
}

// GetAllActive returns every active stake
func (r *StakeRepository) GetAllActive(ctx context.Context) ([]*entities.Stake, error) {
	stakes, err := r.list(ctx, stakeSelect+` WHERE s.active ORDER BY s.user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to get active stakes: %w", err)
	}
	return stakes, nil
}

// GetEligible returns active non-zero stakes staked strictly before cutoff
func (r *StakeRepository) GetEligible(ctx context.Context, cutoff time.Time) ([]*entities.Stake, error) {
	query := stakeSelect + `
		WHERE s.active AND s.amount > 0 AND s.staked_at < $1
		ORDER BY s.user_id
	`

	stakes, err := r.list(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to get eligible stakes: %w", err)
	}
	return stakes, nil
}

// Create inserts an active stake
func (r *StakeRepository) Create(ctx context.Context, stake *entities.Stake) error {
	query := `
		INSERT INTO stakes (user_id, amount, staked_at, active, source)
		VALUES ($1, $2::numeric, $3, TRUE, $4)
		RETURNING id, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		stake.UserID,
		amountArg(stake.Amount),
		stake.StakedAt,
		string(stake.Source),
	).Scan(&stake.ID, &stake.CreatedAt, &stake.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "idx_stakes_one_active_per_user") {
			return entities.ErrMixedStakeSource.WithMessage("user %d already has an active stake", stake.UserID)
		}
		return fmt.Errorf("failed to create stake for user %d: %w", stake.UserID, err)
	}

	stake.Active = true
	return nil
}

// Update writes amount, staked_at and source of an active stake
func (r *StakeRepository) Update(ctx context.Context, stake *entities.Stake) error {
	query := `
		UPDATE stakes
		SET amount = $2::numeric, staked_at = $3, source = $4
		WHERE id = $1 AND active
		RETURNING updated_at
	`

	err := r.q.QueryRow(ctx, query,
		stake.ID,
		amountArg(stake.Amount),
		stake.StakedAt,
		string(stake.Source),
	).Scan(&stake.UpdatedAt)

	if err == pgx.ErrNoRows {
		return entities.ErrNoActiveStake.WithMessage("stake %d is not active", stake.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update stake %d: %w", stake.ID, err)
	}

	return nil
}

// Deactivate soft-deletes a stake
func (r *StakeRepository) Deactivate(ctx context.Context, stakeID int64, at time.Time) error {
	query := `
		UPDATE stakes
		SET active = FALSE, unstaked_at = $2
		WHERE id = $1 AND active
	`

	result, err := r.q.Exec(ctx, query, stakeID, at)
	if err != nil {
		return fmt.Errorf("failed to deactivate stake %d: %w", stakeID, err)
	}

	if result.RowsAffected() == 0 {
		return entities.ErrNoActiveStake.WithMessage("stake %d is not active", stakeID)
	}

	return nil
}

// SumActive returns the total of all active stakes
func (r *StakeRepository) SumActive(ctx context.Context) (*uint256.Int, error) {
	var total *uint256.Int
	err := r.q.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0)::text FROM stakes WHERE active`).Scan(scanAmount(&total))
	if err != nil {
		return nil, fmt.Errorf("failed to sum active stakes: %w", err)
	}
	return safemath.Clone(total), nil
}
