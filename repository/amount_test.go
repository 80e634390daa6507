package repository

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountScanner(t *testing.T) {
	t.Parallel()

	var v *uint256.Int
	require.NoError(t, scanAmount(&v).Scan("115792089237316195423570985008687907853269984665640564039457584007913129639935"))
	assert.True(t, v.Eq(new(uint256.Int).SetAllOne()))

	require.NoError(t, scanAmount(&v).Scan([]byte("42")))
	assert.Equal(t, uint64(42), v.Uint64())

	require.NoError(t, scanAmount(&v).Scan(nil))
	assert.Nil(t, v)

	assert.Error(t, scanAmount(&v).Scan("-1"))
	assert.Error(t, scanAmount(&v).Scan(int64(3)))
}

func TestAmountArgs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0", amountArg(nil))
	assert.Equal(t, "1000", amountArg(uint256.NewInt(1000)))
	assert.Nil(t, nullableAmountArg(nil))
	assert.Equal(t, "7", *nullableAmountArg(uint256.NewInt(7)))
}
