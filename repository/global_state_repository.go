package repository

import (
	"context"
	"fmt"

	"github.com/basedgoydev/greed-farm/database"
	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/jackc/pgx/v5"
)

const globalStateColumns = `
	current_epoch, shared_pool::text, greed_pot::text, reserve_balance::text,
	total_staked::text, last_treasury_balance::text, quorum_reached_at, version, updated_at`

// GlobalStateRepository implements the GlobalStateRepository interface
type GlobalStateRepository struct {
	q queryable
}

// NewGlobalStateRepository creates a new global state repository
func NewGlobalStateRepository(db *database.DB) *GlobalStateRepository {
	return &GlobalStateRepository{q: db.Pool}
}

// newGlobalStateRepositoryWithTx creates a new global state repository with a transaction
func newGlobalStateRepositoryWithTx(tx queryable) *GlobalStateRepository {
	return &GlobalStateRepository{q: tx}
}

// Get returns the protocol row, or nil before bootstrap
func (r *GlobalStateRepository) Get(ctx context.Context) (*entities.GlobalState, error) {
	return r.get(ctx, "")
}

// GetForUpdate returns the protocol row locked until the transaction ends
func (r *GlobalStateRepository) GetForUpdate(ctx context.Context) (*entities.GlobalState, error) {
	return r.get(ctx, "FOR UPDATE")
}

func (r *GlobalStateRepository) get(ctx context.Context, lock string) (*entities.GlobalState, error) {
	query := `SELECT ` + globalStateColumns + ` FROM global_state WHERE id = $1 ` + lock

	var state entities.GlobalState
	err := r.q.QueryRow(ctx, query, entities.GlobalStateID).Scan(
		&state.CurrentEpoch,
		scanAmount(&state.SharedPool),
		scanAmount(&state.GreedPot),
		scanAmount(&state.Reserve),
		scanAmount(&state.TotalStaked),
		scanAmount(&state.LastTreasuryBalance),
		&state.QuorumReachedAt,
		&state.Version,
		&state.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get global state: %w", err)
	}

	return &state, nil
}

// Initialize inserts the protocol row unless it already exists
func (r *GlobalStateRepository) Initialize(ctx context.Context, state *entities.GlobalState) (bool, error) {
	query := `
		INSERT INTO global_state (
			id, current_epoch, shared_pool, greed_pot, reserve_balance, total_staked,
			last_treasury_balance, quorum_reached_at, version, updated_at
		)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8, 1, $9)
		ON CONFLICT (id) DO NOTHING
	`

	result, err := r.q.Exec(ctx, query,
		entities.GlobalStateID,
		state.CurrentEpoch,
		amountArg(state.SharedPool),
		amountArg(state.GreedPot),
		amountArg(state.Reserve),
		amountArg(state.TotalStaked),
		nullableAmountArg(state.LastTreasuryBalance),
		state.QuorumReachedAt,
		state.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to initialize global state: %w", err)
	}

	if result.RowsAffected() == 0 {
		return false, nil
	}
	state.Version = 1
	return true, nil
}

// Save writes the row if nobody changed it since it was read
func (r *GlobalStateRepository) Save(ctx context.Context, state *entities.GlobalState) error {
	query := `
		UPDATE global_state
		SET current_epoch = $1,
			shared_pool = $2::numeric,
			greed_pot = $3::numeric,
			reserve_balance = $4::numeric,
			total_staked = $5::numeric,
			last_treasury_balance = $6::numeric,
			quorum_reached_at = $7,
			updated_at = $8,
			version = version + 1
		WHERE id = $9 AND version = $10
	`

	result, err := r.q.Exec(ctx, query,
		state.CurrentEpoch,
		amountArg(state.SharedPool),
		amountArg(state.GreedPot),
		amountArg(state.Reserve),
		amountArg(state.TotalStaked),
		nullableAmountArg(state.LastTreasuryBalance),
		state.QuorumReachedAt,
		state.UpdatedAt,
		entities.GlobalStateID,
		state.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to save global state: %w", err)
	}

	if result.RowsAffected() == 0 {
		return entities.ErrStaleGlobalState.WithMessage("global state version %d is stale", state.Version)
	}

	state.Version++
	return nil
}
