package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/basedgoydev/greed-farm/domain/interfaces"
	"github.com/basedgoydev/greed-farm/domain/safemath"
	"github.com/basedgoydev/greed-farm/domain/services"
	"github.com/holiman/uint256"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultHistoryLimit is used when a caller asks for a non-positive count
	DefaultHistoryLimit = 10
	// MaxHistoryLimit caps epoch history reads
	MaxHistoryLimit = 100
	// summaryRecentLimit is how many distributions and wagers a user summary carries
	summaryRecentLimit = 10
)

// Settings are the tunables of the protocol facade
type Settings struct {
	Epoch                 services.EpochSettings
	Wager                 services.WagerSettings
	StakeWarmup           time.Duration
	ChainTimeout          time.Duration
	VerificationCacheSize int
}

// Protocol is the entry point for every protocol operation. Each call runs
// in its own unit of work; chain reads happen before the transaction starts.
type Protocol struct {
	uowFactory    interfaces.UnitOfWorkFactory
	chain         interfaces.ChainAdapter
	registry      *services.RegistryReader
	schedule      *services.QuorumSchedule
	settings      Settings
	seeds         services.SeedSource
	verifications *VerificationCache
	ticker        *EpochTicker
	now           func() time.Time
}

// Option configures a Protocol
type Option func(*Protocol)

// WithClock replaces the wall clock
func WithClock(now func() time.Time) Option {
	return func(p *Protocol) {
		p.now = now
	}
}

// WithSeedSource replaces the secret seed generator
func WithSeedSource(seeds services.SeedSource) Option {
	return func(p *Protocol) {
		p.seeds = seeds
	}
}

// NewProtocol creates the facade. publisher receives tick completion events
// and may be nil.
func NewProtocol(
	uowFactory interfaces.UnitOfWorkFactory,
	chain interfaces.ChainAdapter,
	publisher interfaces.EventPublisher,
	schedule *services.QuorumSchedule,
	settings Settings,
	opts ...Option,
) (*Protocol, error) {
	if schedule == nil {
		return nil, errors.New("quorum schedule is required")
	}
	if settings.Epoch.PoolPolicy == "" {
		settings.Epoch.PoolPolicy = services.PoolPolicyCumulative
	}
	if err := settings.Epoch.PoolPolicy.Validate(); err != nil {
		return nil, err
	}

	verifications, err := NewVerificationCache(settings.VerificationCacheSize)
	if err != nil {
		return nil, err
	}

	p := &Protocol{
		uowFactory:    uowFactory,
		chain:         chain,
		registry:      services.NewRegistryReader(chain, settings.ChainTimeout),
		schedule:      schedule,
		settings:      settings,
		verifications: verifications,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	p.ticker = NewEpochTicker(p.runTick, publisher, p.now)

	return p, nil
}

// Ticker returns the single-flight ticker driving TickEpoch
func (p *Protocol) Ticker() *EpochTicker {
	return p.ticker
}

// Bootstrap creates the protocol state and the first epoch. Calling it again
// is a no-op.
func (p *Protocol) Bootstrap(ctx context.Context) (*entities.GlobalState, error) {
	baseline := p.readTreasury(ctx)
	now := p.now()

	uow := p.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	state := &entities.GlobalState{
		CurrentEpoch:        1,
		SharedPool:          safemath.Zero(),
		GreedPot:            safemath.Zero(),
		Reserve:             safemath.Zero(),
		TotalStaked:         safemath.Zero(),
		LastTreasuryBalance: baseline,
		UpdatedAt:           now,
	}
	created, err := uow.GlobalStateRepository().Initialize(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize global state: %w", err)
	}

	if created {
		if err := uow.EpochRepository().Create(ctx, entities.NewEpoch(1, now, baseline)); err != nil {
			return nil, fmt.Errorf("failed to create first epoch: %w", err)
		}
	}

	current, err := uow.GlobalStateRepository().Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get global state: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"created":      created,
		"currentEpoch": current.CurrentEpoch,
		"hasBaseline":  current.HasTreasuryBaseline(),
	}).Info("Protocol bootstrapped")

	return current, nil
}

// ReconcileAndGetEligibleStakes syncs the local ledger with the registry and
// returns the eligible view. Registry failures degrade to local data.
func (p *Protocol) ReconcileAndGetEligibleStakes(ctx context.Context) (*interfaces.ReconcileResult, error) {
	snapshot := p.registry.Snapshot(ctx)

	var result *interfaces.ReconcileResult
	err := p.write(ctx, func(uow interfaces.UnitOfWork) error {
		var err error
		result, err = p.reconciler(uow).Reconcile(ctx, snapshot, p.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// TickEpoch runs one epoch tick unless one is already running, in which case
// entities.ErrTickInProgress is returned.
func (p *Protocol) TickEpoch(ctx context.Context) (*interfaces.TickResult, error) {
	return p.ticker.Tick(ctx)
}

func (p *Protocol) runTick(ctx context.Context) (*interfaces.TickResult, error) {
	treasury := p.readTreasury(ctx)
	snapshot := p.registry.Snapshot(ctx)
	now := p.now()

	var result *interfaces.TickResult
	err := p.write(ctx, func(uow interfaces.UnitOfWork) error {
		stakes, err := p.reconciler(uow).Reconcile(ctx, snapshot, now)
		if err != nil {
			return fmt.Errorf("failed to reconcile stakes: %w", err)
		}

		distribution := services.NewDistributionService(
			uow.UserRepository(),
			uow.DistributionRepository(),
			uow.BalanceHistoryRepository(),
			uow.EventBus(),
		)
		epochService := services.NewEpochService(
			uow.GlobalStateRepository(),
			uow.EpochRepository(),
			distribution,
			uow.EventBus(),
			p.schedule,
			p.settings.Epoch,
		)

		result, err = epochService.Tick(ctx, services.TickInput{
			Now:             now,
			TreasuryBalance: treasury,
			Stakes:          stakes,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetGlobalState returns the protocol snapshot
func (p *Protocol) GetGlobalState(ctx context.Context) (*entities.GlobalState, error) {
	var state *entities.GlobalState
	err := p.read(ctx, func(uow interfaces.UnitOfWork) error {
		var err error
		state, err = uow.GlobalStateRepository().Get(ctx)
		if err != nil {
			return fmt.Errorf("failed to get global state: %w", err)
		}
		if state == nil {
			return entities.ErrNotBootstrapped
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// GetCurrentEpoch returns the open epoch
func (p *Protocol) GetCurrentEpoch(ctx context.Context) (*entities.Epoch, error) {
	var epoch *entities.Epoch
	err := p.read(ctx, func(uow interfaces.UnitOfWork) error {
		var err error
		epoch, err = uow.EpochRepository().GetCurrent(ctx)
		if err != nil {
			return fmt.Errorf("failed to get current epoch: %w", err)
		}
		if epoch == nil {
			return entities.ErrEpochNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return epoch, nil
}

// GetEpochHistory returns up to limit epochs, newest first
func (p *Protocol) GetEpochHistory(ctx context.Context, limit int) ([]*entities.Epoch, error) {
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}

	var history []*entities.Epoch
	err := p.read(ctx, func(uow interfaces.UnitOfWork) error {
		var err error
		history, err = uow.EpochRepository().GetHistory(ctx, limit)
		if err != nil {
			return fmt.Errorf("failed to get epoch history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}

// GetHarvestProgress reports how far the open epoch is from distributing.
// Nothing is written.
func (p *Protocol) GetHarvestProgress(ctx context.Context) (*interfaces.HarvestProgress, error) {
	registryTotal := p.registry.Total(ctx)
	now := p.now()

	var progress *interfaces.HarvestProgress
	err := p.read(ctx, func(uow interfaces.UnitOfWork) error {
		state, err := uow.GlobalStateRepository().Get(ctx)
		if err != nil {
			return fmt.Errorf("failed to get global state: %w", err)
		}
		if state == nil {
			return entities.ErrNotBootstrapped
		}

		epoch, err := uow.EpochRepository().GetCurrent(ctx)
		if err != nil {
			return fmt.Errorf("failed to get current epoch: %w", err)
		}
		if epoch == nil {
			return entities.ErrEpochNotFound.WithMessage("open epoch %d not found", state.CurrentEpoch)
		}

		view, err := p.reconciler(uow).EligibleView(ctx, registryTotal, now)
		if err != nil {
			return err
		}

		required := p.schedule.ThresholdFor(epoch.EpochNumber)
		progress = &interfaces.HarvestProgress{
			EpochNumber:        epoch.EpochNumber,
			Phase:              services.PhaseOf(state, epoch),
			CurrentStake:       view.QuorumTotal,
			RequiredStake:      required,
			PercentBasisPoints: safemath.RatioBasisPoints(view.QuorumTotal, required),
			QuorumPercent:      p.schedule.PercentFor(epoch.EpochNumber),
			SharedPool:         safemath.Clone(state.SharedPool),
			CountdownRemaining: state.CountdownRemaining(now, p.settings.Epoch.CountdownDuration),
			RegistryAvailable:  view.RegistryAvailable,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return progress, nil
}

// CreateWagerCommitment returns a pending commitment for wallet, reusing an
// unexpired one.
func (p *Protocol) CreateWagerCommitment(ctx context.Context, wallet string) (*interfaces.CommitmentTicket, error) {
	var ticket *interfaces.CommitmentTicket
	err := p.write(ctx, func(uow interfaces.UnitOfWork) error {
		var err error
		ticket, err = p.wagers(uow).CreateCommitment(ctx, wallet, p.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// SettleWager reveals a commitment and settles the wager against the greed pot
func (p *Protocol) SettleWager(ctx context.Context, req interfaces.SettleRequest) (*interfaces.WagerOutcome, error) {
	var outcome *interfaces.WagerOutcome
	err := p.write(ctx, func(uow interfaces.UnitOfWork) error {
		var err error
		outcome, err = p.wagers(uow).Settle(ctx, req, p.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// VerifyWager returns the reveal data of a settled wager with every check recomputed
func (p *Protocol) VerifyWager(ctx context.Context, wagerID int64) (*interfaces.WagerVerification, error) {
	return p.verifications.GetOrLoad(wagerID, func(id int64) (*interfaces.WagerVerification, error) {
		var verification *interfaces.WagerVerification
		err := p.read(ctx, func(uow interfaces.UnitOfWork) error {
			var err error
			verification, err = p.wagers(uow).Verify(ctx, id)
			return err
		})
		return verification, err
	})
}

// Stake adds amount to wallet's custody position
func (p *Protocol) Stake(ctx context.Context, wallet string, amount *uint256.Int) (*interfaces.StakeResult, error) {
	var result *interfaces.StakeResult
	err := p.write(ctx, func(uow interfaces.UnitOfWork) error {
		var err error
		result, err = p.stakes(uow).Stake(ctx, wallet, amount, p.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Unstake withdraws wallet's whole custody position
func (p *Protocol) Unstake(ctx context.Context, wallet string) (*interfaces.StakeResult, error) {
	uow := p.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	result, err := p.stakes(uow).Unstake(ctx, wallet, p.now())
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		logFundsAtRisk("unstake", wallet, result.Amount, result.TxRef, err)
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return result, nil
}

// Claim pays out wallet's whole claimable balance
func (p *Protocol) Claim(ctx context.Context, wallet string) (*interfaces.ClaimResult, error) {
	uow := p.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	claims := services.NewClaimService(
		uow.UserRepository(),
		uow.BalanceHistoryRepository(),
		uow.EventBus(),
		p.transferer(),
	)
	result, err := claims.Claim(ctx, wallet, p.now())
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		logFundsAtRisk("claim", wallet, result.Amount, result.TxRef, err)
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return result, nil
}

// RefreshWalletStake syncs one wallet with the registry and returns its
// active stake. When the registry cannot be read the local stake is returned.
func (p *Protocol) RefreshWalletStake(ctx context.Context, wallet string) (*entities.Stake, error) {
	if err := entities.ValidateWallet(wallet); err != nil {
		return nil, err
	}

	ext, available := p.registry.WalletSnapshot(ctx, wallet)
	if !available {
		var stake *entities.Stake
		err := p.read(ctx, func(uow interfaces.UnitOfWork) error {
			var err error
			stake, err = localStake(ctx, uow, wallet)
			return err
		})
		if err != nil {
			return nil, err
		}
		return stake, nil
	}

	var stake *entities.Stake
	err := p.write(ctx, func(uow interfaces.UnitOfWork) error {
		var err error
		stake, err = p.reconciler(uow).ReconcileWallet(ctx, wallet, ext, p.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return stake, nil
}

// CleanupCommitments deletes consumed and long-expired commitments
func (p *Protocol) CleanupCommitments(ctx context.Context) (int64, error) {
	var deleted int64
	err := p.write(ctx, func(uow interfaces.UnitOfWork) error {
		var err error
		deleted, err = p.wagers(uow).CleanupCommitments(ctx, p.now())
		return err
	})
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		log.WithField("deleted", deleted).Info("Cleaned up wager commitments")
	}
	return deleted, nil
}

// GetUserSummary returns the balances, stake and recent activity of wallet
func (p *Protocol) GetUserSummary(ctx context.Context, wallet string) (*interfaces.UserSummary, error) {
	if err := entities.ValidateWallet(wallet); err != nil {
		return nil, err
	}
	now := p.now()

	var summary *interfaces.UserSummary
	err := p.read(ctx, func(uow interfaces.UnitOfWork) error {
		user, err := uow.UserRepository().GetByWallet(ctx, wallet)
		if err != nil {
			return fmt.Errorf("failed to get user: %w", err)
		}
		if user == nil {
			return entities.ErrUserNotFound
		}

		stake, err := uow.StakeRepository().GetActiveByUser(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("failed to get active stake: %w", err)
		}

		distributions, err := uow.DistributionRepository().GetByUser(ctx, user.ID, summaryRecentLimit)
		if err != nil {
			return fmt.Errorf("failed to get distributions: %w", err)
		}

		wagers, err := uow.WagerRecordRepository().GetByUser(ctx, user.ID, summaryRecentLimit)
		if err != nil {
			return fmt.Errorf("failed to get wagers: %w", err)
		}

		summary = &interfaces.UserSummary{
			User:                user,
			ActiveStake:         stake,
			RecentDistributions: distributions,
			RecentWagers:        wagers,
		}
		if stake != nil {
			summary.Eligible = stake.IsEligible(now, p.settings.StakeWarmup)
			summary.WarmupRemaining = stake.WarmupRemaining(now, p.settings.StakeWarmup)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func (p *Protocol) reconciler(uow interfaces.UnitOfWork) *services.StakeReconciler {
	return services.NewStakeReconciler(
		uow.UserRepository(),
		uow.StakeRepository(),
		uow.GlobalStateRepository(),
		uow.EventBus(),
		p.settings.StakeWarmup,
	)
}

func (p *Protocol) wagers(uow interfaces.UnitOfWork) *services.WagerService {
	return services.NewWagerService(
		uow.WagerCommitmentRepository(),
		uow.WagerRecordRepository(),
		uow.UserRepository(),
		uow.GlobalStateRepository(),
		uow.BalanceHistoryRepository(),
		uow.EventBus(),
		p.settings.Wager,
		p.seeds,
	)
}

func (p *Protocol) stakes(uow interfaces.UnitOfWork) *services.StakeService {
	return services.NewStakeService(
		uow.UserRepository(),
		uow.StakeRepository(),
		uow.GlobalStateRepository(),
		uow.EventBus(),
		p.transferer(),
	)
}

// readTreasury returns nil when the treasury cannot be read
func (p *Protocol) readTreasury(ctx context.Context) *uint256.Int {
	readCtx, cancel := p.bounded(ctx)
	defer cancel()

	balance, err := p.chain.CurrentTreasuryBalance(readCtx)
	if err != nil {
		log.WithError(err).Warn("Treasury unavailable, skipping fee harvest")
		return nil
	}
	return balance
}

// transferer bounds every payout by the chain timeout
func (p *Protocol) transferer() interfaces.FundsTransferer {
	return boundedTransferer{p: p}
}

type boundedTransferer struct {
	p *Protocol
}

func (t boundedTransferer) Transfer(ctx context.Context, wallet string, amount *uint256.Int, memo string) (string, error) {
	transferCtx, cancel := t.p.bounded(ctx)
	defer cancel()
	return t.p.chain.Transfer(transferCtx, wallet, amount, memo)
}

func (p *Protocol) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.settings.ChainTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.settings.ChainTimeout)
}

// write runs fn in a unit of work and commits when it succeeds
func (p *Protocol) write(ctx context.Context, fn func(uow interfaces.UnitOfWork) error) error {
	uow := p.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := fn(uow); err != nil {
		return err
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// read runs fn in a unit of work that is always rolled back
func (p *Protocol) read(ctx context.Context, fn func(uow interfaces.UnitOfWork) error) error {
	uow := p.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return fn(uow)
}

func localStake(ctx context.Context, uow interfaces.UnitOfWork, wallet string) (*entities.Stake, error) {
	user, err := uow.UserRepository().GetByWallet(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, nil
	}

	stake, err := uow.StakeRepository().GetActiveByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active stake: %w", err)
	}
	return stake, nil
}

// logFundsAtRisk records a payout whose ledger write did not land
func logFundsAtRisk(operation, wallet string, amount *uint256.Int, txRef string, err error) {
	if txRef == "" {
		return
	}
	log.WithFields(log.Fields{
		"operation": operation,
		"wallet":    wallet,
		"amount":    safemath.Clone(amount).Dec(),
		"txRef":     txRef,
		"error":     err,
	}).Error("Funds transferred but ledger commit failed, funds at risk")
}
