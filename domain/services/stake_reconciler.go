package services

import (
	"context"
	"fmt"
	"time"

	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/basedgoydev/greed-farm/domain/interfaces"
	"github.com/basedgoydev/greed-farm/domain/safemath"
	"github.com/basedgoydev/greed-farm/events"
	"github.com/holiman/uint256"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// RegistrySnapshot is what could be read from the external registry in one
// pass. Each half degrades independently.
type RegistrySnapshot struct {
	Stakes          []*entities.ExternalStake
	StakesAvailable bool
	Total           *uint256.Int // nil when unavailable
	Err             error        // first failure, for logging
}

// Available reports whether any registry data was read.
func (s *RegistrySnapshot) Available() bool {
	return s != nil && (s.StakesAvailable || s.Total != nil)
}

// RegistryReader performs bounded reads against the external registry.
type RegistryReader struct {
	registry interfaces.StakeRegistry
	timeout  time.Duration
}

// NewRegistryReader creates a reader whose calls are bounded by timeout.
func NewRegistryReader(registry interfaces.StakeRegistry, timeout time.Duration) *RegistryReader {
	return &RegistryReader{registry: registry, timeout: timeout}
}

func (r *RegistryReader) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// Snapshot fetches the stake list and the registry total concurrently. It
// never fails; unavailable parts are left empty.
func (r *RegistryReader) Snapshot(ctx context.Context) *RegistrySnapshot {
	snapshot := &RegistrySnapshot{}

	readyCtx, cancel := r.bounded(ctx)
	ready := r.registry.IsRegistryReady(readyCtx)
	cancel()
	if !ready {
		snapshot.Err = entities.NewExternalUnavailable("stake registry", fmt.Errorf("registry not ready"))
		log.Warn("Stake registry not ready, using local stakes only")
		return snapshot
	}

	fetchCtx, cancel := r.bounded(ctx)
	defer cancel()

	var (
		stakes   []*entities.ExternalStake
		total    *uint256.Int
		stakeErr error
		totalErr error
	)

	// No shared context: a failed half must not cancel the other one
	var g errgroup.Group
	g.Go(func() error {
		stakes, stakeErr = r.registry.FetchAllStakes(fetchCtx)
		return stakeErr
	})
	g.Go(func() error {
		total, totalErr = r.registry.FetchTotalStaked(fetchCtx)
		return totalErr
	})
	if err := g.Wait(); err != nil {
		snapshot.Err = entities.NewExternalUnavailable("stake registry", err)
	}

	if stakeErr != nil {
		log.WithError(stakeErr).Warn("Failed to fetch registry stakes, keeping local stakes")
	} else {
		snapshot.Stakes = stakes
		snapshot.StakesAvailable = true
	}

	if totalErr != nil {
		log.WithError(totalErr).Warn("Failed to fetch registry total, using local total for quorum")
	} else if total != nil {
		snapshot.Total = total
	}

	return snapshot
}

// Total fetches only the registry aggregate. nil means unavailable.
func (r *RegistryReader) Total(ctx context.Context) *uint256.Int {
	fetchCtx, cancel := r.bounded(ctx)
	defer cancel()

	total, err := r.registry.FetchTotalStaked(fetchCtx)
	if err != nil {
		log.WithError(err).Warn("Failed to fetch registry total")
		return nil
	}
	return total
}

// WalletSnapshot fetches a single wallet's registry position. available is
// false when the registry could not be read.
func (r *RegistryReader) WalletSnapshot(ctx context.Context, wallet string) (stake *entities.ExternalStake, available bool) {
	fetchCtx, cancel := r.bounded(ctx)
	defer cancel()

	stake, err := r.registry.FetchStakeSnapshot(fetchCtx, wallet)
	if err != nil {
		log.WithFields(log.Fields{
			"wallet": wallet,
			"error":  err,
		}).Warn("Failed to fetch registry stake for wallet")
		return nil, false
	}
	return stake, true
}

// StakeUpdate overwrites a local stake with registry values.
type StakeUpdate struct {
	Stake    *entities.Stake
	Amount   *uint256.Int
	StakedAt time.Time
}

// ReconcilePlan is the set of local changes that brings the ledger in line
// with the registry.
type ReconcilePlan struct {
	Creates       []*entities.ExternalStake
	Updates       []StakeUpdate
	Deactivations []*entities.Stake
	Unchanged     int
	Skipped       int
}

// PlanReconciliation merges registry positions into the active local stakes.
// The registry wins for amount and staked_at. A zero registry amount closes
// the matching local stake. A registry-sourced stake whose wallet is missing
// from the list is closed; custody stakes are left untouched.
func PlanReconciliation(external []*entities.ExternalStake, local []*entities.Stake) *ReconcilePlan {
	plan := &ReconcilePlan{}

	byWallet := make(map[string]*entities.Stake, len(local))
	for _, stake := range local {
		if stake.Active {
			byWallet[stake.Wallet] = stake
		}
	}

	// Later entries for the same wallet replace earlier ones
	latest := make(map[string]*entities.ExternalStake, len(external))
	order := make([]string, 0, len(external))
	for _, ext := range external {
		if ext == nil || entities.ValidateWallet(ext.Wallet) != nil {
			plan.Skipped++
			continue
		}
		if _, seen := latest[ext.Wallet]; seen {
			log.WithField("wallet", ext.Wallet).Warn("Duplicate wallet in registry snapshot, keeping last entry")
			plan.Skipped++
		} else {
			order = append(order, ext.Wallet)
		}
		latest[ext.Wallet] = ext
	}

	for _, wallet := range order {
		ext := latest[wallet]
		amount := safemath.Clone(ext.Amount)
		current, exists := byWallet[wallet]

		switch {
		case amount.IsZero() && exists:
			plan.Deactivations = append(plan.Deactivations, current)
		case amount.IsZero():
			plan.Unchanged++
		case !exists:
			plan.Creates = append(plan.Creates, ext)
		case !current.Amount.Eq(amount) || !sameInstant(current.StakedAt, ext.StakedAt) || current.Source != entities.StakeSourceRegistry:
			plan.Updates = append(plan.Updates, StakeUpdate{Stake: current, Amount: amount, StakedAt: ext.StakedAt})
		default:
			plan.Unchanged++
		}
	}

	for _, stake := range local {
		if !stake.Active || stake.Source != entities.StakeSourceRegistry {
			continue
		}
		if _, listed := latest[stake.Wallet]; !listed {
			plan.Deactivations = append(plan.Deactivations, stake)
		}
	}

	return plan
}

// sameInstant compares at the storage precision of one microsecond.
func sameInstant(a, b time.Time) bool {
	return a.Truncate(time.Microsecond).Equal(b.Truncate(time.Microsecond))
}

// StakeReconciler applies registry snapshots to the local ledger and derives
// the eligible-stake view.
type StakeReconciler struct {
	userRepo        interfaces.UserRepository
	stakeRepo       interfaces.StakeRepository
	globalStateRepo interfaces.GlobalStateRepository
	eventPublisher  interfaces.EventPublisher
	warmup          time.Duration
}

// NewStakeReconciler creates a reconciler over the repositories of one unit of work
func NewStakeReconciler(
	userRepo interfaces.UserRepository,
	stakeRepo interfaces.StakeRepository,
	globalStateRepo interfaces.GlobalStateRepository,
	eventPublisher interfaces.EventPublisher,
	warmup time.Duration,
) *StakeReconciler {
	return &StakeReconciler{
		userRepo:        userRepo,
		stakeRepo:       stakeRepo,
		globalStateRepo: globalStateRepo,
		eventPublisher:  eventPublisher,
		warmup:          warmup,
	}
}

// Reconcile applies snapshot and returns the eligible view. With no registry
// data the local ledger is used as is.
func (r *StakeReconciler) Reconcile(ctx context.Context, snapshot *RegistrySnapshot, now time.Time) (*interfaces.ReconcileResult, error) {
	var plan *ReconcilePlan

	if snapshot != nil && snapshot.StakesAvailable {
		local, err := r.stakeRepo.GetAllActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get active stakes: %w", err)
		}

		plan = PlanReconciliation(snapshot.Stakes, local)
		if err := r.apply(ctx, plan, now); err != nil {
			return nil, err
		}
	}

	var externalTotal *uint256.Int
	if snapshot != nil {
		externalTotal = snapshot.Total
	}

	result, err := r.view(ctx, externalTotal, now)
	if err != nil {
		return nil, err
	}
	result.RegistryAvailable = snapshot.Available()
	if plan != nil {
		result.Created = len(plan.Creates)
		result.Updated = len(plan.Updates)
		result.Deactivated = len(plan.Deactivations)
	}

	if err := r.syncTotalStaked(ctx, result.TotalStaked, now); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"registryAvailable": result.RegistryAvailable,
		"created":           result.Created,
		"updated":           result.Updated,
		"deactivated":       result.Deactivated,
		"eligible":          len(result.Eligible),
		"localEligible":     result.LocalEligibleTotal.Dec(),
		"quorumTotal":       result.QuorumTotal.Dec(),
	}).Debug("Reconciled stakes")

	if err := r.eventPublisher.Publish(events.StakesReconciledEvent{
		RegistryAvailable: result.RegistryAvailable,
		Created:           result.Created,
		Updated:           result.Updated,
		Deactivated:       result.Deactivated,
		LocalTotal:        result.LocalEligibleTotal,
		QuorumTotal:       result.QuorumTotal,
	}); err != nil {
		log.WithError(err).Error("Failed to publish stakes reconciled event")
	}

	return result, nil
}

// ReconcileWallet applies a single registry position. A nil position means the
// registry has no entry for wallet, which closes a registry-sourced stake.
func (r *StakeReconciler) ReconcileWallet(ctx context.Context, wallet string, ext *entities.ExternalStake, now time.Time) (*entities.Stake, error) {
	if err := entities.ValidateWallet(wallet); err != nil {
		return nil, err
	}

	user, err := r.userRepo.GetByWallet(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var local []*entities.Stake
	if user != nil {
		current, err := r.stakeRepo.GetActiveByUser(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get active stake: %w", err)
		}
		if current != nil {
			current.Wallet = wallet
			local = append(local, current)
		}
	}

	var external []*entities.ExternalStake
	if ext != nil {
		ext.Wallet = wallet
		external = append(external, ext)
	}

	plan := PlanReconciliation(external, local)
	if len(plan.Creates)+len(plan.Updates)+len(plan.Deactivations) > 0 {
		if err := r.apply(ctx, plan, now); err != nil {
			return nil, err
		}

		total, err := r.stakeRepo.SumActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to sum active stakes: %w", err)
		}
		if err := r.syncTotalStaked(ctx, total, now); err != nil {
			return nil, err
		}
	}

	if user == nil {
		if user, err = r.userRepo.GetByWallet(ctx, wallet); err != nil || user == nil {
			return nil, err
		}
	}
	return r.stakeRepo.GetActiveByUser(ctx, user.ID)
}

// EligibleView computes the eligible view without writing anything.
func (r *StakeReconciler) EligibleView(ctx context.Context, externalTotal *uint256.Int, now time.Time) (*interfaces.ReconcileResult, error) {
	result, err := r.view(ctx, externalTotal, now)
	if err != nil {
		return nil, err
	}
	result.RegistryAvailable = externalTotal != nil
	return result, nil
}

func (r *StakeReconciler) apply(ctx context.Context, plan *ReconcilePlan, now time.Time) error {
	for _, ext := range plan.Creates {
		user, err := r.userRepo.GetOrCreate(ctx, ext.Wallet)
		if err != nil {
			return fmt.Errorf("failed to get or create user %s: %w", ext.Wallet, err)
		}
		stake := &entities.Stake{
			UserID:   user.ID,
			Wallet:   ext.Wallet,
			Amount:   safemath.Clone(ext.Amount),
			StakedAt: ext.StakedAt,
			Active:   true,
			Source:   entities.StakeSourceRegistry,
		}
		if err := r.stakeRepo.Create(ctx, stake); err != nil {
			return fmt.Errorf("failed to create stake for %s: %w", ext.Wallet, err)
		}
	}

	for _, update := range plan.Updates {
		update.Stake.Amount = update.Amount
		update.Stake.StakedAt = update.StakedAt
		update.Stake.Source = entities.StakeSourceRegistry
		if err := r.stakeRepo.Update(ctx, update.Stake); err != nil {
			return fmt.Errorf("failed to update stake %d: %w", update.Stake.ID, err)
		}
	}

	for _, stake := range plan.Deactivations {
		if err := r.stakeRepo.Deactivate(ctx, stake.ID, now); err != nil {
			return fmt.Errorf("failed to deactivate stake %d: %w", stake.ID, err)
		}
	}

	return nil
}

func (r *StakeReconciler) view(ctx context.Context, externalTotal *uint256.Int, now time.Time) (*interfaces.ReconcileResult, error) {
	eligible, err := r.stakeRepo.GetEligible(ctx, entities.EligibilityCutoff(now, r.warmup))
	if err != nil {
		return nil, fmt.Errorf("failed to get eligible stakes: %w", err)
	}

	localEligible := safemath.Zero()
	for _, stake := range eligible {
		if localEligible, err = safemath.Add(localEligible, stake.Amount); err != nil {
			return nil, fmt.Errorf("failed to total eligible stake: %w", err)
		}
	}

	totalStaked, err := r.stakeRepo.SumActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to sum active stakes: %w", err)
	}

	quorumTotal := safemath.Clone(localEligible)
	if externalTotal != nil {
		quorumTotal = safemath.Max(externalTotal, localEligible)
	}

	return &interfaces.ReconcileResult{
		Eligible:           eligible,
		LocalEligibleTotal: localEligible,
		ExternalTotal:      externalTotal,
		QuorumTotal:        quorumTotal,
		TotalStaked:        totalStaked,
	}, nil
}

func (r *StakeReconciler) syncTotalStaked(ctx context.Context, total *uint256.Int, now time.Time) error {
	state, err := r.globalStateRepo.GetForUpdate(ctx)
	if err != nil {
		return fmt.Errorf("failed to get global state: %w", err)
	}
	if state == nil || (state.TotalStaked != nil && state.TotalStaked.Eq(total)) {
		return nil
	}

	state.TotalStaked = safemath.Clone(total)
	state.UpdatedAt = now
	if err := r.globalStateRepo.Save(ctx, state); err != nil {
		return fmt.Errorf("failed to save total staked: %w", err)
	}
	return nil
}
