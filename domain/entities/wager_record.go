package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// RiskPercent is the share of claimable balance put at risk by one wager.
type RiskPercent uint64

const (
	RiskQuarter RiskPercent = 25
	RiskHalf    RiskPercent = 50
	RiskAll     RiskPercent = 100
)

// Validate rejects anything other than 25, 50 or 100.
func (p RiskPercent) Validate() error {
	switch p {
	case RiskQuarter, RiskHalf, RiskAll:
		return nil
	}
	return ErrInvalidRiskPercent
}

// WagerRecord is a settled wager with its full reveal data. Rows are
// write-once.
type WagerRecord struct {
	ID              int64        `db:"id"`
	CommitmentID    uuid.UUID    `db:"commitment_id"`
	UserID          int64        `db:"user_id"`
	Wallet          string       `db:"wallet"`
	EpochNumber     int64        `db:"epoch_number"`
	RiskAmount      *uint256.Int `db:"risk_amount"`
	RiskPercent     RiskPercent  `db:"risk_percent"`
	Won             bool         `db:"won"`
	Payout          *uint256.Int `db:"payout"`
	PotBefore       *uint256.Int `db:"pot_before"`
	PotAfter        *uint256.Int `db:"pot_after"`
	ClaimableBefore *uint256.Int `db:"claimable_before"`
	ClaimableAfter  *uint256.Int `db:"claimable_after"`
	SecretSeed      string       `db:"secret_seed"`
	CommitmentHash  string       `db:"commitment_hash"`
	ClientSeed      string       `db:"client_seed"`
	CombinedHash    string       `db:"combined_hash"`
	CreatedAt       time.Time    `db:"created_at"`
}

// WasCapped returns true for a win whose payout was limited by the pot
func (w *WagerRecord) WasCapped() bool {
	return w.Won && w.Payout != nil && w.RiskAmount != nil && w.Payout.Lt(w.RiskAmount)
}
