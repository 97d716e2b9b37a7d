package convert

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntToInt32(t *testing.T) {
	v, err := IntToInt32(25)
	require.NoError(t, err)
	assert.Equal(t, int32(25), v)

	_, err = IntToInt32(math.MaxInt32 + 1)
	assert.Error(t, err)
	_, err = IntToInt32(math.MinInt32 - 1)
	assert.Error(t, err)
}

func TestIntToUint32Clamped(t *testing.T) {
	assert.Equal(t, uint32(5), IntToUint32Clamped(5))
	assert.Equal(t, uint32(0), IntToUint32Clamped(-3))
	assert.Equal(t, uint32(math.MaxUint32), IntToUint32Clamped(math.MaxUint32+10))
}

func TestIntToUintSafe(t *testing.T) {
	assert.Equal(t, uint(3), IntToUintSafe(3))
	assert.Panics(t, func() { IntToUintSafe(-1) })
}
