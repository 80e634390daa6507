package interfaces

import (
	"time"

	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// ReconcileResult is the canonical eligible-stake view after reconciliation
type ReconcileResult struct {
	Eligible           []*entities.Stake
	LocalEligibleTotal *uint256.Int // distribution denominator
	ExternalTotal      *uint256.Int // nil when the registry total was unavailable
	QuorumTotal        *uint256.Int // max of the two totals above
	TotalStaked        *uint256.Int // all active local stakes, warm or not
	RegistryAvailable  bool
	Created            int
	Updated            int
	Deactivated        int
}

// DistributionResult summarises one distribution run
type DistributionResult struct {
	EpochNumber      int64
	Pool             *uint256.Int
	TotalEligible    *uint256.Int
	TotalDistributed *uint256.Int
	Remainder        *uint256.Int
	Recipients       int
	AlreadyCredited  int
	ZeroRewards      int
	Distributions    []*entities.Distribution
}

// TickResult describes what one epoch tick observed and did
type TickResult struct {
	EpochNumber        int64
	PreviousPhase      entities.EpochPhase
	Phase              entities.EpochPhase
	TreasuryObserved   bool
	FeesCollected      *uint256.Int
	PoolAddition       *uint256.Int
	ReserveAddition    *uint256.Int
	SharedPool         *uint256.Int
	QuorumStake        *uint256.Int
	Threshold          *uint256.Int
	CountdownRemaining time.Duration
	Distribution       *DistributionResult // set when the epoch advanced
	NextEpoch          int64
	NextQuorumSeeded   bool
}

// Advanced reports whether the tick closed the epoch
func (r *TickResult) Advanced() bool {
	return r.Distribution != nil
}

// CommitmentTicket is the public part of a wager commitment
type CommitmentTicket struct {
	ID             uuid.UUID
	CommitmentHash string
	ExpiresAt      time.Time
}

// SettleRequest carries the reveal half of a wager
type SettleRequest struct {
	Wallet       string
	RiskPercent  entities.RiskPercent
	CommitmentID string
	ClientSeed   string
}

// WagerOutcome is the result of a settled wager
type WagerOutcome struct {
	Record       *entities.WagerRecord
	NewClaimable *uint256.Int
}

// WagerVerification restates the reveal data and the checks a third party performs
type WagerVerification struct {
	WagerID        int64
	Wallet         string
	SecretSeed     string
	CommitmentHash string
	ClientSeed     string
	CombinedHash   string
	Roll           uint32
	WinThreshold   uint32
	Won            bool
	HashValid      bool // hash(secret seed) == commitment hash
	CombinedValid  bool // keyedHash(secret seed, client seed) == combined hash
	OutcomeValid   bool // roll < threshold == won
	Procedure      string
}

// Valid reports whether every check holds
func (v *WagerVerification) Valid() bool {
	return v.HashValid && v.CombinedValid && v.OutcomeValid
}

// HarvestProgress reports how close the current epoch is to distributing
type HarvestProgress struct {
	EpochNumber        int64
	Phase              entities.EpochPhase
	CurrentStake       *uint256.Int
	RequiredStake      *uint256.Int
	PercentBasisPoints uint64 // progress toward quorum, capped at 10000
	QuorumPercent      uint64 // of total supply
	SharedPool         *uint256.Int
	CountdownRemaining time.Duration
	RegistryAvailable  bool
}

// Percent returns progress as a percentage with two decimals
func (h *HarvestProgress) Percent() float64 {
	return float64(h.PercentBasisPoints) / 100
}

// StakeResult is the outcome of a custody stake or unstake
type StakeResult struct {
	Stake       *entities.Stake
	Amount      *uint256.Int
	TotalStaked *uint256.Int
	TxRef       string
}

// ClaimResult is the outcome of a claim
type ClaimResult struct {
	Amount *uint256.Int
	TxRef  string
}

// UserSummary is the read model of one participant
type UserSummary struct {
	User                *entities.User
	ActiveStake         *entities.Stake
	Eligible            bool
	WarmupRemaining     time.Duration
	RecentDistributions []*entities.Distribution
	RecentWagers        []*entities.WagerRecord
}
