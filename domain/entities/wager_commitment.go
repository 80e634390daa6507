package entities

import (
	"time"

	"github.com/google/uuid"
)

// WagerCommitment is a pending commit-reveal commitment. SecretSeed must not
// leave the server until the commitment is consumed or expired.
type WagerCommitment struct {
	ID             uuid.UUID  `db:"id"`
	Wallet         string     `db:"wallet"`
	SecretSeed     string     `db:"secret_seed"`
	CommitmentHash string     `db:"commitment_hash"`
	ExpiresAt      time.Time  `db:"expires_at"`
	Consumed       bool       `db:"consumed"`
	ConsumedAt     *time.Time `db:"consumed_at"`
	CreatedAt      time.Time  `db:"created_at"`
}

// ParseCommitmentID decodes a caller supplied commitment id.
func ParseCommitmentID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, ErrInvalidCommitmentID.Wrap(err)
	}
	return id, nil
}

// IsExpired returns true once now has reached the expiry time
func (c *WagerCommitment) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// BelongsTo returns true if wallet owns the commitment
func (c *WagerCommitment) BelongsTo(wallet string) bool {
	return c.Wallet == wallet
}

// CheckSettleable returns the reason the commitment cannot be settled by
// wallet at now, or nil.
func (c *WagerCommitment) CheckSettleable(wallet string, now time.Time) error {
	switch {
	case c.Consumed:
		return ErrCommitmentConsumed
	case !c.BelongsTo(wallet):
		return ErrCommitmentForeign
	case c.IsExpired(now):
		return ErrCommitmentExpired
	}
	return nil
}
