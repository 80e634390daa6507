package repository

import (
	"context"
	"fmt"

	"github.com/basedgoydev/greed-farm/database"
	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/jackc/pgx/v5"
)

const wagerRecordColumns = `
	id, commitment_id, user_id, wallet, epoch_number, risk_amount::text, risk_percent, won,
	payout::text, pot_before::text, pot_after::text, claimable_before::text, claimable_after::text,
	secret_seed, commitment_hash, client_seed, combined_hash, created_at`

// WagerRecordRepository implements the WagerRecordRepository interface
type WagerRecordRepository struct {
	q queryable
}

// NewWagerRecordRepository creates a new wager record repository
func NewWagerRecordRepository(db *database.DB) *WagerRecordRepository {
	return &WagerRecordRepository{q: db.Pool}
}

// newWagerRecordRepositoryWithTx creates a new wager record repository with a transaction
func newWagerRecordRepositoryWithTx(tx queryable) *WagerRecordRepository {
	return &WagerRecordRepository{q: tx}
}

func scanWagerRecord(row pgx.Row) (*entities.WagerRecord, error) {
	var w entities.WagerRecord
	var riskPercent int16
	err := row.Scan(
		&w.ID,
		&w.CommitmentID,
		&w.UserID,
		&w.Wallet,
		&w.EpochNumber,
		scanAmount(&w.RiskAmount),
		&riskPercent,
		&w.Won,
		scanAmount(&w.Payout),
		scanAmount(&w.PotBefore),
		scanAmount(&w.PotAfter),
		scanAmount(&w.ClaimableBefore),
		scanAmount(&w.ClaimableAfter),
		&w.SecretSeed,
		&w.CommitmentHash,
		&w.ClientSeed,
		&w.CombinedHash,
		&w.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	w.RiskPercent = entities.RiskPercent(riskPercent)
	return &w, nil
}

// Create inserts a settled wager. A second record for the same commitment is a
// lost settle race and yields entities.ErrCommitmentConsumed.
func (r *WagerRecordRepository) Create(ctx context.Context, record *entities.WagerRecord) error {
	query := `
		INSERT INTO wager_records (
			commitment_id, user_id, wallet, epoch_number, risk_amount, risk_percent, won, payout,
			pot_before, pot_after, claimable_before, claimable_after,
			secret_seed, commitment_hash, client_seed, combined_hash, created_at
		)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8::numeric,
			$9::numeric, $10::numeric, $11::numeric, $12::numeric,
			$13, $14, $15, $16, $17)
		RETURNING id
	`

	err := r.q.QueryRow(ctx, query,
		record.CommitmentID,
		record.UserID,
		record.Wallet,
		record.EpochNumber,
		amountArg(record.RiskAmount),
		int16(record.RiskPercent),
		record.Won,
		amountArg(record.Payout),
		amountArg(record.PotBefore),
		amountArg(record.PotAfter),
		amountArg(record.ClaimableBefore),
		amountArg(record.ClaimableAfter),
		record.SecretSeed,
		record.CommitmentHash,
		record.ClientSeed,
		record.CombinedHash,
		record.CreatedAt,
	).Scan(&record.ID)
	if err != nil {
		if isUniqueViolation(err, "wager_records_commitment_id_key") {
			return entities.ErrCommitmentConsumed
		}
		return fmt.Errorf("failed to record wager for %s: %w", record.Wallet, err)
	}

	return nil
}

// GetByID retrieves a settled wager
func (r *WagerRecordRepository) GetByID(ctx context.Context, id int64) (*entities.WagerRecord, error) {
	query := `SELECT ` + wagerRecordColumns + ` FROM wager_records WHERE id = $1`

	record, err := scanWagerRecord(r.q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wager %d: %w", id, err)
	}

	return record, nil
}

// GetByUser returns a user's most recent wagers
func (r *WagerRecordRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*entities.WagerRecord, error) {
	query := `
		SELECT ` + wagerRecordColumns + `
		FROM wager_records
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get wagers for user %d: %w", userID, err)
	}
	defer rows.Close()

	var records []*entities.WagerRecord
	for rows.Next() {
		record, err := scanWagerRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wager: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate wagers: %w", err)
	}

	return records, nil
}
