package repository

import (
	"context"
	"fmt"

	"github.com/basedgoydev/greed-farm/database"
	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/jackc/pgx/v5"
)

const epochColumns = `
	id, epoch_number, started_at, ended_at, treasury_snapshot::text, fees_collected::text,
	pool_additions::text, total_eligible_stake::text, total_distributed::text,
	recipients, quorum_reached, distributed`

// EpochRepository implements the EpochRepository interface
type EpochRepository struct {
	q queryable
}

// NewEpochRepository creates a new epoch repository
func NewEpochRepository(db *database.DB) *EpochRepository {
	return &EpochRepository{q: db.Pool}
}

// newEpochRepositoryWithTx creates a new epoch repository with a transaction
func newEpochRepositoryWithTx(tx queryable) *EpochRepository {
	return &EpochRepository{q: tx}
}

func scanEpoch(row pgx.Row) (*entities.Epoch, error) {
	var epoch entities.Epoch
	err := row.Scan(
		&epoch.ID,
		&epoch.EpochNumber,
		&epoch.StartedAt,
		&epoch.EndedAt,
		scanAmount(&epoch.TreasurySnapshot),
		scanAmount(&epoch.FeesCollected),
		scanAmount(&epoch.PoolAdditions),
		scanAmount(&epoch.TotalEligibleStake),
		scanAmount(&epoch.TotalDistributed),
		&epoch.Recipients,
		&epoch.QuorumReached,
		&epoch.Distributed,
	)
	if err != nil {
		return nil, err
	}
	return &epoch, nil
}

// GetByNumber retrieves an epoch by its number
func (r *EpochRepository) GetByNumber(ctx context.Context, number int64) (*entities.Epoch, error) {
	query := `SELECT ` + epochColumns + ` FROM epochs WHERE epoch_number = $1`

	epoch, err := scanEpoch(r.q.QueryRow(ctx, query, number))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get epoch %d: %w", number, err)
	}

	return epoch, nil
}

// GetCurrent returns the open epoch
func (r *EpochRepository) GetCurrent(ctx context.Context) (*entities.Epoch, error) {
	query := `
		SELECT ` + epochColumns + `
		FROM epochs
		WHERE ended_at IS NULL
		ORDER BY epoch_number DESC
		LIMIT 1
	`

	epoch, err := scanEpoch(r.q.QueryRow(ctx, query))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current epoch: %w", err)
	}

	return epoch, nil
}

// Create inserts a new epoch
func (r *EpochRepository) Create(ctx context.Context, epoch *entities.Epoch) error {
	query := `
		INSERT INTO epochs (
			epoch_number, started_at, ended_at, treasury_snapshot, fees_collected, pool_additions,
			total_eligible_stake, total_distributed, recipients, quorum_reached, distributed
		)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9, $10, $11)
		RETURNING id
	`

	err := r.q.QueryRow(ctx, query,
		epoch.EpochNumber,
		epoch.StartedAt,
		epoch.EndedAt,
		nullableAmountArg(epoch.TreasurySnapshot),
		amountArg(epoch.FeesCollected),
		amountArg(epoch.PoolAdditions),
		amountArg(epoch.TotalEligibleStake),
		amountArg(epoch.TotalDistributed),
		epoch.Recipients,
		epoch.QuorumReached,
		epoch.Distributed,
	).Scan(&epoch.ID)
	if err != nil {
		return fmt.Errorf("failed to create epoch %d: %w", epoch.EpochNumber, err)
	}

	return nil
}

// Update writes the epoch's totals. The schema rejects changes to closed epochs.
func (r *EpochRepository) Update(ctx context.Context, epoch *entities.Epoch) error {
	query := `
		UPDATE epochs
		SET ended_at = $2,
			treasury_snapshot = $3::numeric,
			fees_collected = $4::numeric,
			pool_additions = $5::numeric,
			total_eligible_stake = $6::numeric,
			total_distributed = $7::numeric,
			recipients = $8,
			quorum_reached = $9,
			distributed = $10
		WHERE epoch_number = $1
	`

	result, err := r.q.Exec(ctx, query,
		epoch.EpochNumber,
		epoch.EndedAt,
		nullableAmountArg(epoch.TreasurySnapshot),
		amountArg(epoch.FeesCollected),
		amountArg(epoch.PoolAdditions),
		amountArg(epoch.TotalEligibleStake),
		amountArg(epoch.TotalDistributed),
		epoch.Recipients,
		epoch.QuorumReached,
		epoch.Distributed,
	)
	if err != nil {
		return fmt.Errorf("failed to update epoch %d: %w", epoch.EpochNumber, err)
	}

	if result.RowsAffected() == 0 {
		return entities.ErrEpochNotFound.WithMessage("epoch %d not found", epoch.EpochNumber)
	}

	return nil
}

// GetHistory returns the most recent epochs, newest first
func (r *EpochRepository) GetHistory(ctx context.Context, limit int) ([]*entities.Epoch, error) {
	query := `SELECT ` + epochColumns + ` FROM epochs ORDER BY epoch_number DESC LIMIT $1`

	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get epoch history: %w", err)
	}
	defer rows.Close()

	var epochs []*entities.Epoch
	for rows.Next() {
		epoch, err := scanEpoch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan epoch: %w", err)
		}
		epochs = append(epochs, epoch)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate epochs: %w", err)
	}

	return epochs, nil
}
