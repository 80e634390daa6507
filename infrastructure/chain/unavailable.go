// Package chain holds the chain adapters that need no external node: one that
// is never reachable and an in-process simulation for development.
package chain

import (
	"context"
	"errors"

	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/basedgoydev/greed-farm/domain/interfaces"
	"github.com/holiman/uint256"
)

// ErrNotConfigured is the cause reported by Unavailable
var ErrNotConfigured = errors.New("chain adapter not configured")

// Unavailable fails every call. Readers fall back to local data and transfers abort.
type Unavailable struct{}

var _ interfaces.ChainAdapter = Unavailable{}

func (Unavailable) FetchStakeSnapshot(ctx context.Context, wallet string) (*entities.ExternalStake, error) {
	return nil, entities.NewExternalUnavailable("stake registry", ErrNotConfigured)
}

func (Unavailable) FetchAllStakes(ctx context.Context) ([]*entities.ExternalStake, error) {
	return nil, entities.NewExternalUnavailable("stake registry", ErrNotConfigured)
}

func (Unavailable) FetchTotalStaked(ctx context.Context) (*uint256.Int, error) {
	return nil, entities.NewExternalUnavailable("stake registry", ErrNotConfigured)
}

func (Unavailable) IsRegistryReady(ctx context.Context) bool {
	return false
}

func (Unavailable) CurrentTreasuryBalance(ctx context.Context) (*uint256.Int, error) {
	return nil, entities.NewExternalUnavailable("treasury", ErrNotConfigured)
}

func (Unavailable) Transfer(ctx context.Context, wallet string, amount *uint256.Int, memo string) (string, error) {
	return "", entities.NewExternalUnavailable("funds transfer", ErrNotConfigured)
}
