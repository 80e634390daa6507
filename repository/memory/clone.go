package memory

import (
	"time"

	"github.com/basedgoydev/greed-farm/domain/entities"
	"github.com/basedgoydev/greed-farm/domain/safemath"
	"github.com/holiman/uint256"
)

func cloneNullable(v *uint256.Int) *uint256.Int {
	if v == nil {
		return nil
	}
	return safemath.Clone(v)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneEpoch(e *entities.Epoch) *entities.Epoch {
	c := *e
	c.EndedAt = cloneTime(e.EndedAt)
	c.TreasurySnapshot = cloneNullable(e.TreasurySnapshot)
	c.FeesCollected = safemath.Clone(e.FeesCollected)
	c.PoolAdditions = safemath.Clone(e.PoolAdditions)
	c.TotalEligibleStake = safemath.Clone(e.TotalEligibleStake)
	c.TotalDistributed = safemath.Clone(e.TotalDistributed)
	return &c
}

func cloneUser(u *entities.User) *entities.User {
	c := *u
	c.Claimable = safemath.Clone(u.Claimable)
	c.TotalClaimed = safemath.Clone(u.TotalClaimed)
	c.TotalWon = safemath.Clone(u.TotalWon)
	c.TotalLost = safemath.Clone(u.TotalLost)
	return &c
}

func cloneStake(s *entities.Stake) *entities.Stake {
	c := *s
	c.Amount = safemath.Clone(s.Amount)
	c.UnstakedAt = cloneTime(s.UnstakedAt)
	return &c
}

func cloneDistribution(d *entities.Distribution) *entities.Distribution {
	c := *d
	c.StakeAmount = safemath.Clone(d.StakeAmount)
	c.RewardAmount = safemath.Clone(d.RewardAmount)
	return &c
}

func cloneCommitment(w *entities.WagerCommitment) *entities.WagerCommitment {
	c := *w
	c.ConsumedAt = cloneTime(w.ConsumedAt)
	return &c
}

func cloneRecord(r *entities.WagerRecord) *entities.WagerRecord {
	c := *r
	c.RiskAmount = safemath.Clone(r.RiskAmount)
	c.Payout = safemath.Clone(r.Payout)
	c.PotBefore = safemath.Clone(r.PotBefore)
	c.PotAfter = safemath.Clone(r.PotAfter)
	c.ClaimableBefore = safemath.Clone(r.ClaimableBefore)
	c.ClaimableAfter = safemath.Clone(r.ClaimableAfter)
	return &c
}

func cloneHistory(h *entities.BalanceHistory) *entities.BalanceHistory {
	c := *h
	c.BalanceBefore = safemath.Clone(h.BalanceBefore)
	c.BalanceAfter = safemath.Clone(h.BalanceAfter)
	c.TransactionMetadata = make(map[string]any, len(h.TransactionMetadata))
	for k, v := range h.TransactionMetadata {
		c.TransactionMetadata[k] = v
	}
	if h.RelatedID != nil {
		id := *h.RelatedID
		c.RelatedID = &id
	}
	if h.RelatedType != nil {
		t := *h.RelatedType
		c.RelatedType = &t
	}
	return &c
}

func limitSlice[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
