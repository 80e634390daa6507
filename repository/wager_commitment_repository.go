package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/basedgoydev/greed-farm/database"
	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const commitmentColumns = `
	id, wallet, secret_seed, commitment_hash, expires_at, consumed, consumed_at, created_at`

// WagerCommitmentRepository implements the WagerCommitmentRepository interface
type WagerCommitmentRepository struct {
	q queryable
}

// NewWagerCommitmentRepository creates a new wager commitment repository
func NewWagerCommitmentRepository(db *database.DB) *WagerCommitmentRepository {
	return &WagerCommitmentRepository{q: db.Pool}
}

// newWagerCommitmentRepositoryWithTx creates a new wager commitment repository with a transaction
func newWagerCommitmentRepositoryWithTx(tx queryable) *WagerCommitmentRepository {
	return &WagerCommitmentRepository{q: tx}
}

func scanCommitment(row pgx.Row) (*entities.WagerCommitment, error) {
	var c entities.WagerCommitment
	err := row.Scan(
		&c.ID,
		&c.Wallet,
		&c.SecretSeed,
		&c.CommitmentHash,
		&c.ExpiresAt,
		&c.Consumed,
		&c.ConsumedAt,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a commitment
func (r *WagerCommitmentRepository) Create(ctx context.Context, commitment *entities.WagerCommitment) error {
	query := `
		INSERT INTO wager_commitments (id, wallet, secret_seed, commitment_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.q.Exec(ctx, query,
		commitment.ID,
		commitment.Wallet,
		commitment.SecretSeed,
		commitment.CommitmentHash,
		commitment.ExpiresAt,
		commitment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create commitment for %s: %w", commitment.Wallet, err)
	}

	return nil
}

// GetActiveByWallet returns the newest pending commitment of wallet that is still valid at now
func (r *WagerCommitmentRepository) GetActiveByWallet(ctx context.Context, wallet string, now time.Time) (*entities.WagerCommitment, error) {
	query := `
		SELECT ` + commitmentColumns + `
		FROM wager_commitments
		WHERE wallet = $1 AND NOT consumed AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	commitment, err := scanCommitment(r.q.QueryRow(ctx, query, wallet, now))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active commitment for %s: %w", wallet, err)
	}

	return commitment, nil
}

// GetByIDForUpdate retrieves and locks a commitment
func (r *WagerCommitmentRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*entities.WagerCommitment, error) {
	query := `SELECT ` + commitmentColumns + ` FROM wager_commitments WHERE id = $1 FOR UPDATE`

	commitment, err := scanCommitment(r.q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get commitment %s: %w", id, err)
	}

	return commitment, nil
}

// MarkConsumed flips the consumed flag exactly once
func (r *WagerCommitmentRepository) MarkConsumed(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE wager_commitments
		SET consumed = TRUE, consumed_at = $2
		WHERE id = $1 AND NOT consumed
	`

	result, err := r.q.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to consume commitment %s: %w", id, err)
	}

	if result.RowsAffected() == 0 {
		return entities.ErrCommitmentConsumed
	}

	return nil
}

// DeleteStale removes consumed commitments and those expired before expiredBefore
func (r *WagerCommitmentRepository) DeleteStale(ctx context.Context, expiredBefore time.Time) (int64, error) {
	result, err := r.q.Exec(ctx, `DELETE FROM wager_commitments WHERE consumed OR expires_at < $1`, expiredBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale commitments: %w", err)
	}
	return result.RowsAffected(), nil
}
