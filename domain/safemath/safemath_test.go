package safemath

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func maxUint256() *uint256.Int {
	return new(uint256.Int).SetAllOne()
}

func TestAdd(t *testing.T) {
	t.Parallel()

	sum, err := Add(uint256.NewInt(300), uint256.NewInt(700))
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), sum.Uint64())

	sum, err = Add(nil, uint256.NewInt(5))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), sum.Uint64())

	_, err = Add(maxUint256(), uint256.NewInt(1))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestAdd_DoesNotMutateOperands(t *testing.T) {
	t.Parallel()

	a := uint256.NewInt(10)
	b := uint256.NewInt(20)
	_, err := Add(a, b)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), a.Uint64())
	assert.Equal(t, uint64(20), b.Uint64())
}

func TestSum(t *testing.T) {
	t.Parallel()

	total, err := Sum(uint256.NewInt(1), uint256.NewInt(2), uint256.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, uint64(6), total.Uint64())

	total, err = Sum()
	require.NoError(t, err)
	assert.True(t, total.IsZero())

	_, err = Sum(maxUint256(), uint256.NewInt(1))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestSub_ClampsAtZero(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b uint64
		want uint64
	}{
		{"normal", 10, 3, 7},
		{"equal", 5, 5, 0},
		{"underflow clamps", 3, 10, 0},
		{"from zero", 0, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sub(uint256.NewInt(tt.a), uint256.NewInt(tt.b))
			assert.Equal(t, tt.want, got.Uint64())
		})
	}
}

func TestPercentageOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		amount uint64
		pct    uint64
		want   uint64
	}{
		{"quarter", 1000, 25, 250},
		{"half truncates", 101, 50, 50},
		{"full", 777, 100, 777},
		{"above hundred short-circuits", 777, 250, 777},
		{"zero percent", 1000, 0, 0},
		{"small amount truncates to zero", 3, 25, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PercentageOf(uint256.NewInt(tt.amount), tt.pct)
			assert.Equal(t, tt.want, got.Uint64())
		})
	}
}

func TestPercentageOf_LargeAmountDoesNotOverflow(t *testing.T) {
	t.Parallel()

	got := PercentageOf(maxUint256(), 50)
	expected := new(uint256.Int).Rsh(maxUint256(), 1)
	// max/2 and max*50/100 differ only by truncation
	assert.True(t, got.Eq(expected))
}

func TestProRataShare(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name               string
		pool, stake, total uint64
		want               uint64
	}{
		{"exact split A", 1000, 300, 1000, 300},
		{"exact split B", 1000, 700, 1000, 700},
		{"truncating A", 1000, 1, 3, 333},
		{"truncating B", 1000, 2, 3, 666},
		{"zero pool", 0, 1, 3, 0},
		{"zero stake", 1000, 0, 3, 0},
		{"zero total", 1000, 1, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ProRataShare(uint256.NewInt(tt.pool), uint256.NewInt(tt.stake), uint256.NewInt(tt.total))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Uint64())
		})
	}
}

func TestProRataShare_Overflow(t *testing.T) {
	t.Parallel()

	// stake larger than total makes the quotient exceed 256 bits
	_, err := ProRataShare(maxUint256(), maxUint256(), uint256.NewInt(1))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestProRataShare_MonotonicInStake(t *testing.T) {
	t.Parallel()

	pool := uint256.NewInt(1_000_003)
	others := uint64(12_345)

	previous := Zero()
	for stake := uint64(1); stake <= 4096; stake *= 2 {
		total := uint256.NewInt(stake + others)
		share, err := ProRataShare(pool, uint256.NewInt(stake), total)
		require.NoError(t, err)
		assert.False(t, share.Lt(previous), "doubling stake %d decreased share", stake)
		previous = share
	}
}

func TestProRataShare_SumNeverExceedsPool(t *testing.T) {
	t.Parallel()

	stakeSets := [][]uint64{
		{300, 700},
		{1, 2},
		{1, 1, 1},
		{7, 11, 13, 17, 19},
		{999_999, 1},
	}
	pools := []uint64{0, 1, 2, 999, 1000, 123_457}

	for _, stakes := range stakeSets {
		var total uint64
		for _, s := range stakes {
			total += s
		}
		for _, pool := range pools {
			distributed := Zero()
			for _, s := range stakes {
				share, err := ProRataShare(uint256.NewInt(pool), uint256.NewInt(s), uint256.NewInt(total))
				require.NoError(t, err)
				distributed, err = Add(distributed, share)
				require.NoError(t, err)
			}
			assert.False(t, distributed.Gt(uint256.NewInt(pool)), "pool %d stakes %v", pool, stakes)
		}
	}
}

func TestMinMax(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint64(3), Min(uint256.NewInt(3), uint256.NewInt(9)).Uint64())
	assert.Equal(t, uint64(9), Max(uint256.NewInt(3), uint256.NewInt(9)).Uint64())
	assert.Equal(t, uint64(0), Min(nil, uint256.NewInt(9)).Uint64())
}

func TestRatioBasisPoints(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint64(5000), RatioBasisPoints(uint256.NewInt(50), uint256.NewInt(100)))
	assert.Equal(t, uint64(10000), RatioBasisPoints(uint256.NewInt(150), uint256.NewInt(100)))
	assert.Equal(t, uint64(10000), RatioBasisPoints(uint256.NewInt(0), uint256.NewInt(0)))
	assert.Equal(t, uint64(3333), RatioBasisPoints(uint256.NewInt(1), uint256.NewInt(3)))
}

func TestParse(t *testing.T) {
	t.Parallel()

	v, err := Parse("1000000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000000", v.Dec())

	v, err = Parse("")
	require.NoError(t, err)
	assert.True(t, v.IsZero())

	_, err = Parse("-5")
	assert.Error(t, err)

	_, err = Parse("abc")
	assert.Error(t, err)
}
