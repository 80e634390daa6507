package repository

import (
	"context"
	"fmt"

	"github.com/basedgoydev/greed-farm/database"
	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/jackc/pgx/v5"
)

const userColumns = `
	id, wallet, claimable::text, total_claimed::text, total_won::text, total_lost::text,
	created_at, updated_at`

// UserRepository implements the UserRepository interface
type UserRepository struct {
	q queryable
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{q: db.Pool}
}

// newUserRepositoryWithTx creates a new user repository with a transaction
func newUserRepositoryWithTx(tx queryable) *UserRepository {
	return &UserRepository{q: tx}
}

func scanUser(row pgx.Row) (*entities.User, error) {
	var user entities.User
	err := row.Scan(
		&user.ID,
		&user.Wallet,
		scanAmount(&user.Claimable),
		scanAmount(&user.TotalClaimed),
		scanAmount(&user.TotalWon),
		scanAmount(&user.TotalLost),
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) getOne(ctx context.Context, where string, arg any, lock string) (*entities.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where + ` = $1 ` + lock

	user, err := scanUser(r.q.QueryRow(ctx, query, arg))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by %s %v: %w", where, arg, err)
	}

	return user, nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*entities.User, error) {
	return r.getOne(ctx, "id", id, "")
}

// GetByIDForUpdate retrieves a user by ID with a row lock
func (r *UserRepository) GetByIDForUpdate(ctx context.Context, id int64) (*entities.User, error) {
	return r.getOne(ctx, "id", id, "FOR UPDATE")
}

// GetByWallet retrieves a user by wallet
func (r *UserRepository) GetByWallet(ctx context.Context, wallet string) (*entities.User, error) {
	return r.getOne(ctx, "wallet", wallet, "")
}

// GetByWalletForUpdate retrieves a user by wallet with a row lock
func (r *UserRepository) GetByWalletForUpdate(ctx context.Context, wallet string) (*entities.User, error) {
	return r.getOne(ctx, "wallet", wallet, "FOR UPDATE")
}

// GetOrCreate returns the user for wallet, inserting one with zero balances
func (r *UserRepository) GetOrCreate(ctx context.Context, wallet string) (*entities.User, error) {
	query := `
		INSERT INTO users (wallet)
		VALUES ($1)
		ON CONFLICT (wallet) DO NOTHING
	`

	if _, err := r.q.Exec(ctx, query, wallet); err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", wallet, err)
	}

	user, err := r.GetByWallet(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s vanished after insert", wallet)
	}

	return user, nil
}

// UpdateBalances writes claimable and the cumulative totals
func (r *UserRepository) UpdateBalances(ctx context.Context, user *entities.User) error {
	query := `
		UPDATE users
		SET claimable = $2::numeric,
			total_claimed = $3::numeric,
			total_won = $4::numeric,
			total_lost = $5::numeric
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.q.QueryRow(ctx, query,
		user.ID,
		amountArg(user.Claimable),
		amountArg(user.TotalClaimed),
		amountArg(user.TotalWon),
		amountArg(user.TotalLost),
	).Scan(&user.UpdatedAt)

	if err == pgx.ErrNoRows {
		return entities.ErrUserNotFound.WithMessage("user %d not found", user.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update balances for user %d: %w", user.ID, err)
	}

	return nil
}
