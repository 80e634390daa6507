package services

import (
	"errors"
	"fmt"
	"sort"

	"github.com/basedgoydev/greed-farm/domain/safemath"
	"github.com/holiman/uint256"
)

// QuorumStep sets the quorum percentage from FromEpoch onwards.
type QuorumStep struct {
	FromEpoch int64
	Percent   uint64
}

// QuorumSchedule maps an epoch number to its required eligible stake.
type QuorumSchedule struct {
	steps       []QuorumStep
	totalSupply *uint256.Int
}

// NewQuorumSchedule validates and sorts steps. The first step must start at epoch 1.
func NewQuorumSchedule(totalSupply *uint256.Int, steps []QuorumStep) (*QuorumSchedule, error) {
	if len(steps) == 0 {
		return nil, errors.New("quorum schedule needs at least one step")
	}

	sorted := append([]QuorumStep(nil), steps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FromEpoch < sorted[j].FromEpoch })

	if sorted[0].FromEpoch != 1 {
		return nil, fmt.Errorf("quorum schedule must start at epoch 1, starts at %d", sorted[0].FromEpoch)
	}
	for i, step := range sorted {
		if step.Percent > 100 {
			return nil, fmt.Errorf("quorum step for epoch %d exceeds 100%%", step.FromEpoch)
		}
		if i > 0 && step.FromEpoch == sorted[i-1].FromEpoch {
			return nil, fmt.Errorf("duplicate quorum step for epoch %d", step.FromEpoch)
		}
	}

	return &QuorumSchedule{steps: sorted, totalSupply: safemath.Clone(totalSupply)}, nil
}

// PercentFor returns the quorum percentage in force for epoch.
func (q *QuorumSchedule) PercentFor(epoch int64) uint64 {
	pct := q.steps[0].Percent
	for _, step := range q.steps {
		if step.FromEpoch > epoch {
			break
		}
		pct = step.Percent
	}
	return pct
}

// ThresholdFor returns the eligible stake needed for epoch.
func (q *QuorumSchedule) ThresholdFor(epoch int64) *uint256.Int {
	return safemath.PercentageOf(q.totalSupply, q.PercentFor(epoch))
}

// IsMet reports whether stake clears the threshold for epoch.
func (q *QuorumSchedule) IsMet(epoch int64, stake *uint256.Int) bool {
	return !safemath.Clone(stake).Lt(q.ThresholdFor(epoch))
}
