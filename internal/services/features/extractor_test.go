package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogReturns(t *testing.T) {
	assert.Nil(t, LogReturns([]float64{1}))

	r := LogReturns([]float64{1, math.E, 0, 2})
	require.Len(t, r, 3)
	assert.InDelta(t, 1.0, r[0], 1e-12)
	assert.Equal(t, 0.0, r[1])
	assert.Equal(t, 0.0, r[2])
}

func TestVector(t *testing.T) {
	prices := make([]float64, 25)
	volumes := make([]float64, 25)
	for i := range prices {
		prices[i] = float64(i + 1)
		volumes[i] = 100
	}
	v, err := Vector(prices, volumes)
	require.NoError(t, err)
	require.Len(t, v, VectorLen)
	assert.Equal(t, 6.0, v[0])
	assert.Equal(t, 25.0, v[Window-1])
	assert.Equal(t, 100.0, v[Window])
	for _, d := range v[2*Window:] {
		assert.Equal(t, 1.0, d)
	}

	_, err = Vector(prices[:19], volumes)
	require.Error(t, err)
}

func TestMeanVariance(t *testing.T) {
	m, v := MeanVariance([]float64{1, 2, 3, 4})
	assert.InDelta(t, 2.5, m, 1e-12)
	assert.InDelta(t, 1.25, v, 1e-12)

	m, v = MeanVariance(nil)
	assert.Zero(t, m)
	assert.Zero(t, v)
}
