// Package safemath implements checked arithmetic on non-negative integer
// amounts expressed in minor currency units.
//
// Every function treats its arguments as read-only and returns a freshly
// allocated result. A nil operand is treated as zero.
package safemath

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// ErrOverflow is returned when a result does not fit in 256 bits. It signals
// a violated modelling assumption and must never be swallowed.
var ErrOverflow = errors.New("arithmetic overflow")

// Zero returns a new zero amount.
func Zero() *uint256.Int {
	return new(uint256.Int)
}

// Clone returns a copy of v, or zero if v is nil.
func Clone(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

// Add returns a + b, failing with ErrOverflow.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(Clone(a), Clone(b))
	if overflow {
		return nil, fmt.Errorf("%w: %s + %s", ErrOverflow, Clone(a).Dec(), Clone(b).Dec())
	}
	return sum, nil
}

// Sum adds all values, failing with ErrOverflow.
func Sum(values ...*uint256.Int) (*uint256.Int, error) {
	total := Zero()
	for _, v := range values {
		var err error
		if total, err = Add(total, v); err != nil {
			return nil, err
		}
	}
	return total, nil
}

// Sub returns a - b clamped at zero. Subtracting more than is available is a
// "nothing left" condition, not an error.
func Sub(a, b *uint256.Int) *uint256.Int {
	a, b = Clone(a), Clone(b)
	if b.Gt(a) {
		return Zero()
	}
	return new(uint256.Int).Sub(a, b)
}

// Min returns a copy of the smaller of a and b.
func Min(a, b *uint256.Int) *uint256.Int {
	a, b = Clone(a), Clone(b)
	if a.Lt(b) {
		return a
	}
	return b
}

// Max returns a copy of the larger of a and b.
func Max(a, b *uint256.Int) *uint256.Int {
	a, b = Clone(a), Clone(b)
	if a.Gt(b) {
		return a
	}
	return b
}

// PercentageOf returns amount * pct / 100 with truncation. A pct of 100 or
// more returns amount unchanged.
func PercentageOf(amount *uint256.Int, pct uint64) *uint256.Int {
	if pct >= 100 {
		return Clone(amount)
	}
	if pct == 0 {
		return Zero()
	}
	// amount*pct/100 <= amount, so the 512-bit intermediate cannot overflow
	result, _ := new(uint256.Int).MulDivOverflow(Clone(amount), uint256.NewInt(pct), uint256.NewInt(100))
	return result
}

// ProRataShare returns (pool * stake) / total with truncation. Zero is returned
// when any operand is zero. The sum of shares across participants may be
// strictly less than pool; reconciling that remainder is the caller's job.
func ProRataShare(pool, stake, total *uint256.Int) (*uint256.Int, error) {
	pool, stake, total = Clone(pool), Clone(stake), Clone(total)
	if pool.IsZero() || stake.IsZero() || total.IsZero() {
		return Zero(), nil
	}
	share, overflow := new(uint256.Int).MulDivOverflow(pool, stake, total)
	if overflow {
		return nil, fmt.Errorf("%w: %s * %s / %s", ErrOverflow, pool.Dec(), stake.Dec(), total.Dec())
	}
	return share, nil
}

// RatioBasisPoints returns part * 10000 / whole, capped at 10000. A zero
// whole yields 10000 since any part meets a zero requirement.
func RatioBasisPoints(part, whole *uint256.Int) uint64 {
	part, whole = Clone(part), Clone(whole)
	if whole.IsZero() || !part.Lt(whole) {
		return 10000
	}
	bps, _ := new(uint256.Int).MulDivOverflow(part, uint256.NewInt(10000), whole)
	return bps.Uint64()
}

// Parse decodes a base-10 amount.
func Parse(s string) (*uint256.Int, error) {
	if s == "" {
		return Zero(), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) *uint256.Int {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}
