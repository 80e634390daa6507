package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/basedgoydev/greed-farm/domain/safemath"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Every read returns a copy and every write stores one, so callers never
// share memory with the dataset.

type globalStateRepository struct {
	data *dataset
}

func (r *globalStateRepository) Get(ctx context.Context) (*entities.GlobalState, error) {
	if r.data.globalState == nil {
		return nil, nil
	}
	return r.data.globalState.Clone(), nil
}

// GetForUpdate is Get; the unit of work already holds the store exclusively
func (r *globalStateRepository) GetForUpdate(ctx context.Context) (*entities.GlobalState, error) {
	return r.Get(ctx)
}

func (r *globalStateRepository) Initialize(ctx context.Context, state *entities.GlobalState) (bool, error) {
	if r.data.globalState != nil {
		return false, nil
	}
	state.Version = 1
	r.data.globalState = state.Clone()
	return true, nil
}

func (r *globalStateRepository) Save(ctx context.Context, state *entities.GlobalState) error {
	current := r.data.globalState
	if current == nil || current.Version != state.Version {
		return entities.ErrStaleGlobalState.WithMessage("global state version %d is stale", state.Version)
	}
	state.Version++
	r.data.globalState = state.Clone()
	return nil
}

type epochRepository struct {
	data *dataset
}

func (r *epochRepository) GetByNumber(ctx context.Context, number int64) (*entities.Epoch, error) {
	epoch, ok := r.data.epochs[number]
	if !ok {
		return nil, nil
	}
	return cloneEpoch(epoch), nil
}

func (r *epochRepository) GetCurrent(ctx context.Context) (*entities.Epoch, error) {
	var current *entities.Epoch
	for _, epoch := range r.data.epochs {
		if epoch.IsClosed() {
			continue
		}
		if current == nil || epoch.EpochNumber > current.EpochNumber {
			current = epoch
		}
	}
	if current == nil {
		return nil, nil
	}
	return cloneEpoch(current), nil
}

func (r *epochRepository) Create(ctx context.Context, epoch *entities.Epoch) error {
	if _, exists := r.data.epochs[epoch.EpochNumber]; exists {
		return fmt.Errorf("failed to create epoch %d: epoch number already exists", epoch.EpochNumber)
	}
	if !epoch.IsClosed() {
		for _, other := range r.data.epochs {
			if !other.IsClosed() {
				return fmt.Errorf("failed to create epoch %d: epoch %d is still open", epoch.EpochNumber, other.EpochNumber)
			}
		}
	}

	epoch.ID = r.data.id()
	r.data.epochs[epoch.EpochNumber] = cloneEpoch(epoch)
	return nil
}

func (r *epochRepository) Update(ctx context.Context, epoch *entities.Epoch) error {
	existing, ok := r.data.epochs[epoch.EpochNumber]
	if !ok {
		return entities.ErrEpochNotFound.WithMessage("epoch %d not found", epoch.EpochNumber)
	}
	if existing.IsClosed() {
		return fmt.Errorf("failed to update epoch %d: epoch is closed", epoch.EpochNumber)
	}

	updated := cloneEpoch(epoch)
	updated.ID = existing.ID
	updated.StartedAt = existing.StartedAt
	r.data.epochs[epoch.EpochNumber] = updated
	return nil
}

func (r *epochRepository) GetHistory(ctx context.Context, limit int) ([]*entities.Epoch, error) {
	epochs := make([]*entities.Epoch, 0, len(r.data.epochs))
	for _, epoch := range r.data.epochs {
		epochs = append(epochs, cloneEpoch(epoch))
	}
	sort.Slice(epochs, func(i, j int) bool {
		return epochs[i].EpochNumber > epochs[j].EpochNumber
	})
	return limitSlice(epochs, limit), nil
}

type userRepository struct {
	data  *dataset
	store *Store
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*entities.User, error) {
	user, ok := r.data.users[id]
	if !ok {
		return nil, nil
	}
	return cloneUser(user), nil
}

func (r *userRepository) GetByIDForUpdate(ctx context.Context, id int64) (*entities.User, error) {
	return r.GetByID(ctx, id)
}

func (r *userRepository) GetByWallet(ctx context.Context, wallet string) (*entities.User, error) {
	id, ok := r.data.wallets[wallet]
	if !ok {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}

func (r *userRepository) GetByWalletForUpdate(ctx context.Context, wallet string) (*entities.User, error) {
	return r.GetByWallet(ctx, wallet)
}

func (r *userRepository) GetOrCreate(ctx context.Context, wallet string) (*entities.User, error) {
	if user, _ := r.GetByWallet(ctx, wallet); user != nil {
		return user, nil
	}

	now := r.store.timestamp()
	user := &entities.User{
		ID:           r.data.id(),
		Wallet:       wallet,
		Claimable:    safemath.Zero(),
		TotalClaimed: safemath.Zero(),
		TotalWon:     safemath.Zero(),
		TotalLost:    safemath.Zero(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.data.users[user.ID] = user
	r.data.wallets[wallet] = user.ID
	return cloneUser(user), nil
}

func (r *userRepository) UpdateBalances(ctx context.Context, user *entities.User) error {
	existing, ok := r.data.users[user.ID]
	if !ok {
		return entities.ErrUserNotFound.WithMessage("user %d not found", user.ID)
	}

	updated := cloneUser(user)
	updated.Wallet = existing.Wallet
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = r.store.timestamp()
	user.UpdatedAt = updated.UpdatedAt
	r.data.users[user.ID] = updated
	return nil
}

type stakeRepository struct {
	data  *dataset
	store *Store
}

// withWallet returns a copy of s with the owner's wallet joined in
func (r *stakeRepository) withWallet(s *entities.Stake) *entities.Stake {
	c := cloneStake(s)
	if user, ok := r.data.users[s.UserID]; ok {
		c.Wallet = user.Wallet
	}
	return c
}

func (r *stakeRepository) list(match func(*entities.Stake) bool) []*entities.Stake {
	var stakes []*entities.Stake
	for _, s := range r.data.stakes {
		if match(s) {
			stakes = append(stakes, r.withWallet(s))
		}
	}
	sort.Slice(stakes, func(i, j int) bool {
		return stakes[i].UserID < stakes[j].UserID
	})
	return stakes
}

func (r *stakeRepository) GetActiveByUser(ctx context.Context, userID int64) (*entities.Stake, error) {
	for _, s := range r.data.stakes {
		if s.Active && s.UserID == userID {
			return r.withWallet(s), nil
		}
	}
	return nil, nil
}

func (r *stakeRepository) GetAllActive(ctx context.Context) ([]*entities.Stake, error) {
	return r.list(func(s *entities.Stake) bool { return s.Active }), nil
}

func (r *stakeRepository) GetEligible(ctx context.Context, cutoff time.Time) ([]*entities.Stake, error) {
	return r.list(func(s *entities.Stake) bool {
		return s.Active && !s.Amount.IsZero() && s.StakedAt.Before(cutoff)
	}), nil
}

func (r *stakeRepository) Create(ctx context.Context, stake *entities.Stake) error {
	if _, ok := r.data.users[stake.UserID]; !ok {
		return fmt.Errorf("failed to create stake for user %d: user does not exist", stake.UserID)
	}
	if stake.Amount == nil || stake.Amount.IsZero() {
		return fmt.Errorf("failed to create stake for user %d: active stake must be positive", stake.UserID)
	}
	if existing, _ := r.GetActiveByUser(ctx, stake.UserID); existing != nil {
		return entities.ErrMixedStakeSource.WithMessage("user %d already has an active stake", stake.UserID)
	}

	now := r.store.timestamp()
	stake.ID = r.data.id()
	stake.Active = true
	stake.CreatedAt = now
	stake.UpdatedAt = now
	r.data.stakes[stake.ID] = cloneStake(stake)
	return nil
}

func (r *stakeRepository) Update(ctx context.Context, stake *entities.Stake) error {
	existing, ok := r.data.stakes[stake.ID]
	if !ok || !existing.Active {
		return entities.ErrNoActiveStake.WithMessage("stake %d is not active", stake.ID)
	}
	if stake.Amount == nil || stake.Amount.IsZero() {
		return fmt.Errorf("failed to update stake %d: active stake must be positive", stake.ID)
	}

	updated := cloneStake(existing)
	updated.Amount = safemath.Clone(stake.Amount)
	updated.StakedAt = stake.StakedAt
	updated.Source = stake.Source
	updated.UpdatedAt = r.store.timestamp()
	stake.UpdatedAt = updated.UpdatedAt
	r.data.stakes[stake.ID] = updated
	return nil
}

func (r *stakeRepository) Deactivate(ctx context.Context, stakeID int64, at time.Time) error {
	existing, ok := r.data.stakes[stakeID]
	if !ok || !existing.Active {
		return entities.ErrNoActiveStake.WithMessage("stake %d is not active", stakeID)
	}

	updated := cloneStake(existing)
	updated.Active = false
	updated.UnstakedAt = &at
	updated.UpdatedAt = r.store.timestamp()
	r.data.stakes[stakeID] = updated
	return nil
}

func (r *stakeRepository) SumActive(ctx context.Context) (*uint256.Int, error) {
	total := safemath.Zero()
	for _, s := range r.data.stakes {
		if !s.Active {
			continue
		}
		var err error
		if total, err = safemath.Add(total, s.Amount); err != nil {
			return nil, fmt.Errorf("failed to sum active stakes: %w", err)
		}
	}
	return total, nil
}

type distributionRepository struct {
	data  *dataset
	store *Store
}

func (r *distributionRepository) Create(ctx context.Context, distribution *entities.Distribution) error {
	if _, ok := r.data.epochs[distribution.EpochNumber]; !ok {
		return fmt.Errorf("failed to create distribution: epoch %d does not exist", distribution.EpochNumber)
	}
	key := distributionKey{userID: distribution.UserID, epochNumber: distribution.EpochNumber}
	if _, exists := r.data.distributions[key]; exists {
		return entities.ErrAlreadyDistributed.WithMessage("user %d already rewarded for epoch %d",
			distribution.UserID, distribution.EpochNumber)
	}

	distribution.ID = r.data.id()
	if distribution.CreatedAt.IsZero() {
		distribution.CreatedAt = r.store.timestamp()
	}
	r.data.distributions[key] = cloneDistribution(distribution)
	return nil
}

func (r *distributionRepository) list(match func(*entities.Distribution) bool) []*entities.Distribution {
	var distributions []*entities.Distribution
	for _, d := range r.data.distributions {
		if !match(d) {
			continue
		}
		c := cloneDistribution(d)
		if user, ok := r.data.users[d.UserID]; ok {
			c.Wallet = user.Wallet
		}
		distributions = append(distributions, c)
	}
	return distributions
}

func (r *distributionRepository) GetByEpoch(ctx context.Context, epochNumber int64) ([]*entities.Distribution, error) {
	distributions := r.list(func(d *entities.Distribution) bool { return d.EpochNumber == epochNumber })
	sort.Slice(distributions, func(i, j int) bool {
		return distributions[i].UserID < distributions[j].UserID
	})
	return distributions, nil
}

func (r *distributionRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*entities.Distribution, error) {
	distributions := r.list(func(d *entities.Distribution) bool { return d.UserID == userID })
	sort.Slice(distributions, func(i, j int) bool {
		return distributions[i].EpochNumber > distributions[j].EpochNumber
	})
	return limitSlice(distributions, limit), nil
}

type wagerCommitmentRepository struct {
	data *dataset
}

func (r *wagerCommitmentRepository) Create(ctx context.Context, commitment *entities.WagerCommitment) error {
	if _, exists := r.data.commitments[commitment.ID]; exists {
		return fmt.Errorf("failed to create commitment %s: id already exists", commitment.ID)
	}
	r.data.commitments[commitment.ID] = cloneCommitment(commitment)
	return nil
}

func (r *wagerCommitmentRepository) GetActiveByWallet(ctx context.Context, wallet string, now time.Time) (*entities.WagerCommitment, error) {
	var newest *entities.WagerCommitment
	for _, c := range r.data.commitments {
		if c.Wallet != wallet || c.Consumed || !c.ExpiresAt.After(now) {
			continue
		}
		if newest == nil || c.CreatedAt.After(newest.CreatedAt) {
			newest = c
		}
	}
	if newest == nil {
		return nil, nil
	}
	return cloneCommitment(newest), nil
}

func (r *wagerCommitmentRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*entities.WagerCommitment, error) {
	c, ok := r.data.commitments[id]
	if !ok {
		return nil, nil
	}
	return cloneCommitment(c), nil
}

func (r *wagerCommitmentRepository) MarkConsumed(ctx context.Context, id uuid.UUID, at time.Time) error {
	c, ok := r.data.commitments[id]
	if !ok || c.Consumed {
		return entities.ErrCommitmentConsumed.WithMessage("commitment %s already consumed", id)
	}

	updated := cloneCommitment(c)
	updated.Consumed = true
	updated.ConsumedAt = &at
	r.data.commitments[id] = updated
	return nil
}

func (r *wagerCommitmentRepository) DeleteStale(ctx context.Context, expiredBefore time.Time) (int64, error) {
	var deleted int64
	for id, c := range r.data.commitments {
		if c.Consumed || c.ExpiresAt.Before(expiredBefore) {
			delete(r.data.commitments, id)
			deleted++
		}
	}
	return deleted, nil
}

type wagerRecordRepository struct {
	data *dataset
}

func (r *wagerRecordRepository) Create(ctx context.Context, record *entities.WagerRecord) error {
	if _, ok := r.data.users[record.UserID]; !ok {
		return fmt.Errorf("failed to create wager record: user %d does not exist", record.UserID)
	}
	if err := record.RiskPercent.Validate(); err != nil {
		return fmt.Errorf("failed to create wager record: %w", err)
	}
	if record.Payout.Gt(record.RiskAmount) {
		return fmt.Errorf("failed to create wager record: payout exceeds risk")
	}
	for _, existing := range r.data.records {
		if existing.CommitmentID == record.CommitmentID {
			return entities.ErrCommitmentConsumed.WithMessage("commitment %s already settled", record.CommitmentID)
		}
	}

	record.ID = r.data.id()
	r.data.records[record.ID] = cloneRecord(record)
	return nil
}

func (r *wagerRecordRepository) GetByID(ctx context.Context, id int64) (*entities.WagerRecord, error) {
	record, ok := r.data.records[id]
	if !ok {
		return nil, nil
	}
	return cloneRecord(record), nil
}

func (r *wagerRecordRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*entities.WagerRecord, error) {
	var records []*entities.WagerRecord
	for _, record := range r.data.records {
		if record.UserID == userID {
			records = append(records, cloneRecord(record))
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].ID > records[j].ID
	})
	return limitSlice(records, limit), nil
}

type balanceHistoryRepository struct {
	data *dataset
}

func (r *balanceHistoryRepository) Record(ctx context.Context, history *entities.BalanceHistory) error {
	if _, ok := r.data.users[history.UserID]; !ok {
		return fmt.Errorf("failed to record balance history: user %d does not exist", history.UserID)
	}

	history.ID = r.data.id()
	r.data.histories[history.ID] = cloneHistory(history)
	return nil
}

func (r *balanceHistoryRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*entities.BalanceHistory, error) {
	var histories []*entities.BalanceHistory
	for _, h := range r.data.histories {
		if h.UserID == userID {
			histories = append(histories, cloneHistory(h))
		}
	}
	sort.Slice(histories, func(i, j int) bool {
		if !histories[i].CreatedAt.Equal(histories[j].CreatedAt) {
			return histories[i].CreatedAt.After(histories[j].CreatedAt)
		}
		return histories[i].ID > histories[j].ID
	})
	return limitSlice(histories, limit), nil
}
