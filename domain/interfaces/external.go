package interfaces

import (
	"context"

	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/holiman/uint256"
)

// StakeRegistry reads the authoritative external stake ledger. Every call may
// fail transiently; callers fall back to local data.
type StakeRegistry interface {
	// FetchStakeSnapshot returns one wallet's position, or nil when absent
	FetchStakeSnapshot(ctx context.Context, wallet string) (*entities.ExternalStake, error)

	// FetchAllStakes returns every position in the registry
	FetchAllStakes(ctx context.Context) ([]*entities.ExternalStake, error)

	// FetchTotalStaked returns the registry's own aggregate
	FetchTotalStaked(ctx context.Context) (*uint256.Int, error)

	// IsRegistryReady reports whether the registry is deployed and readable
	IsRegistryReady(ctx context.Context) bool
}

// Treasury reads the external fee treasury
type Treasury interface {
	CurrentTreasuryBalance(ctx context.Context) (*uint256.Int, error)
}

// FundsTransferer moves funds out to a wallet. There is no local fallback, so
// failure aborts the calling operation.
type FundsTransferer interface {
	// Transfer sends amount to wallet and returns a transaction reference
	Transfer(ctx context.Context, wallet string, amount *uint256.Int, memo string) (string, error)
}

// ChainAdapter bundles every external collaborator
type ChainAdapter interface {
	StakeRegistry
	Treasury
	FundsTransferer
}
