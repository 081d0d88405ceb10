package convert

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntToInt32(t *testing.T) {
	got, err := IntToInt32(25)
	require.NoError(t, err)
	assert.Equal(t, int32(25), got)

	_, err = IntToInt32(math.MaxInt32 + 1)
	assert.Error(t, err)
}

func TestIntToInt32Clamped(t *testing.T) {
	assert.Equal(t, int32(10), IntToInt32Clamped(10))
	assert.Equal(t, int32(math.MaxInt32), IntToInt32Clamped(math.MaxInt32+1))
	assert.Equal(t, int32(math.MinInt32), IntToInt32Clamped(math.MinInt32-1))
}
