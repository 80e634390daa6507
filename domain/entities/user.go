package entities

import (
	"regexp"
	"time"

	"github.com/holiman/uint256"
)

// walletPattern matches a base58 encoded 32 byte public key.
var walletPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// ValidateWallet rejects malformed wallet identifiers.
func ValidateWallet(wallet string) error {
	if !walletPattern.MatchString(wallet) {
		return ErrInvalidWallet
	}
	return nil
}

// User is a staking and wagering participant identified by wallet
type User struct {
	ID           int64        `db:"id"`
	Wallet       string       `db:"wallet"`
	Claimable    *uint256.Int `db:"claimable"`
	TotalClaimed *uint256.Int `db:"total_claimed"`
	TotalWon     *uint256.Int `db:"total_won"`
	TotalLost    *uint256.Int `db:"total_lost"`
	CreatedAt    time.Time    `db:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

// HasClaimable returns true if the user has a non-zero claimable balance
func (u *User) HasClaimable() bool {
	return u.Claimable != nil && !u.Claimable.IsZero()
}

// NetWagerResult returns total won minus total lost and whether it is positive.
func (u *User) NetWagerResult() (*uint256.Int, bool) {
	won, lost := cloneAmount(u.TotalWon), cloneAmount(u.TotalLost)
	if won.Lt(lost) {
		return new(uint256.Int).Sub(lost, won), false
	}
	return new(uint256.Int).Sub(won, lost), true
}
