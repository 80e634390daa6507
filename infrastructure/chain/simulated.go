package chain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/basedgoydev/greed-farm/domain/interfaces"
	"github.com/basedgoydev/greed-farm/domain/safemath"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	log "github.com/sirupsen/logrus"
)

// ErrSimulatedOutage is returned while an outage is switched on
var ErrSimulatedOutage = errors.New("simulated chain outage")

// TransferRecord is one transfer accepted by the simulation
type TransferRecord struct {
	Ref    string
	Wallet string
	Amount *uint256.Int
	Memo   string
	At     time.Time
}

// Simulated is an in-process registry, treasury and payout ledger
type Simulated struct {
	mu               sync.Mutex
	stakes           map[string]*entities.ExternalStake
	totalOverride    *uint256.Int
	treasury         *uint256.Int
	transfers        []TransferRecord
	registryDown     bool
	treasuryDown     bool
	transfersDown    bool
	registryNotReady bool
}

var _ interfaces.ChainAdapter = (*Simulated)(nil)

// NewSimulated creates an empty simulation with a zero treasury
func NewSimulated() *Simulated {
	return &Simulated{
		stakes:   make(map[string]*entities.ExternalStake),
		treasury: safemath.Zero(),
	}
}

// SetStake sets a registry position
func (s *Simulated) SetStake(wallet string, amount *uint256.Int, stakedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stakes[wallet] = &entities.ExternalStake{Wallet: wallet, Amount: safemath.Clone(amount), StakedAt: stakedAt}
}

// RemoveStake deletes a registry position
func (s *Simulated) RemoveStake(wallet string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stakes, wallet)
}

// SetTotalStaked makes FetchTotalStaked report total instead of the sum of positions.
// A nil total restores the sum.
func (s *Simulated) SetTotalStaked(total *uint256.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if total == nil {
		s.totalOverride = nil
		return
	}
	s.totalOverride = safemath.Clone(total)
}

// SetTreasuryBalance sets the treasury balance
func (s *Simulated) SetTreasuryBalance(balance *uint256.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.treasury = safemath.Clone(balance)
}

// AddFees grows the treasury by amount
func (s *Simulated) AddFees(amount *uint256.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	balance, err := safemath.Add(s.treasury, amount)
	if err != nil {
		return err
	}
	s.treasury = balance
	return nil
}

// SetOutage switches simulated failures of each collaborator on or off
func (s *Simulated) SetOutage(registry, treasury, transfers bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registryDown = registry
	s.treasuryDown = treasury
	s.transfersDown = transfers
}

// SetRegistryReady controls IsRegistryReady independently of outages
func (s *Simulated) SetRegistryReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registryNotReady = !ready
}

// Transfers returns every accepted transfer in order
func (s *Simulated) Transfers() []TransferRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TransferRecord(nil), s.transfers...)
}

func (s *Simulated) FetchStakeSnapshot(ctx context.Context, wallet string) (*entities.ExternalStake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registryDown {
		return nil, ErrSimulatedOutage
	}
	stake, ok := s.stakes[wallet]
	if !ok {
		return nil, nil
	}
	c := *stake
	c.Amount = safemath.Clone(stake.Amount)
	return &c, nil
}

func (s *Simulated) FetchAllStakes(ctx context.Context) ([]*entities.ExternalStake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registryDown {
		return nil, ErrSimulatedOutage
	}
	stakes := make([]*entities.ExternalStake, 0, len(s.stakes))
	for _, stake := range s.stakes {
		c := *stake
		c.Amount = safemath.Clone(stake.Amount)
		stakes = append(stakes, &c)
	}
	sort.Slice(stakes, func(i, j int) bool { return stakes[i].Wallet < stakes[j].Wallet })
	return stakes, nil
}

func (s *Simulated) FetchTotalStaked(ctx context.Context) (*uint256.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registryDown {
		return nil, ErrSimulatedOutage
	}
	if s.totalOverride != nil {
		return safemath.Clone(s.totalOverride), nil
	}
	total := safemath.Zero()
	for _, stake := range s.stakes {
		var err error
		if total, err = safemath.Add(total, stake.Amount); err != nil {
			return nil, err
		}
	}
	return total, nil
}

func (s *Simulated) IsRegistryReady(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.registryDown && !s.registryNotReady
}

func (s *Simulated) CurrentTreasuryBalance(ctx context.Context) (*uint256.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.treasuryDown {
		return nil, ErrSimulatedOutage
	}
	return safemath.Clone(s.treasury), nil
}

func (s *Simulated) Transfer(ctx context.Context, wallet string, amount *uint256.Int, memo string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transfersDown {
		return "", ErrSimulatedOutage
	}

	ref := fmt.Sprintf("sim-%s", uuid.NewString())
	s.transfers = append(s.transfers, TransferRecord{
		Ref:    ref,
		Wallet: wallet,
		Amount: safemath.Clone(amount),
		Memo:   memo,
		At:     time.Now().UTC(),
	})

	log.WithFields(log.Fields{
		"wallet": wallet,
		"amount": amount.Dec(),
		"memo":   memo,
		"ref":    ref,
	}).Debug("Simulated transfer")
	return ref, nil
}
