package numeric

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noise(seed int64, n int, sd float64) []float64 {
	r := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = r.NormFloat64() * sd
	}
	return out
}

func TestMacKinnonP(t *testing.T) {
	assert.Equal(t, 1.0, MacKinnonP(3))
	assert.Equal(t, 0.0, MacKinnonP(-19))
	assert.InDelta(t, 0.05, MacKinnonP(-2.86), 0.01)
	assert.Less(t, MacKinnonP(-4), MacKinnonP(-2))
	assert.Less(t, MacKinnonP(-1), MacKinnonP(0.5))
}

func TestADFStationarySeries(t *testing.T) {
	p, err := ADF{}.PValue(noise(1, 500, 1))
	require.NoError(t, err)
	assert.Less(t, p, 0.01)
}

func TestADFExplosiveSeries(t *testing.T) {
	eps := noise(2, 300, 0.01)
	x := make([]float64, len(eps))
	for i := range x {
		x[i] = math.Pow(1.02, float64(i)) + eps[i]
	}
	p, err := ADF{}.PValue(x)
	require.NoError(t, err)
	assert.Greater(t, p, 0.9)
}

func TestADFTooShort(t *testing.T) {
	_, err := ADF{}.PValue([]float64{1, 2})
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestJohansenCointegratedPair(t *testing.T) {
	steps := noise(3, 400, 1)
	spread := noise(4, 400, 0.5)
	data := make([][]float64, len(steps))
	w := 0.0
	for i := range steps {
		w += steps[i]
		data[i] = []float64{w, w + spread[i]}
	}
	trace, maxEig, err := Johansen{}.Rank(data, 0, 1)
	require.NoError(t, err)
	require.Len(t, trace, 2)
	require.Len(t, maxEig, 2)
	assert.Greater(t, trace[0], 20.0)
	assert.GreaterOrEqual(t, trace[0], maxEig[0])
	assert.InDelta(t, trace[1], maxEig[1], 1e-9)
}

func TestJohansenRejectsBadInput(t *testing.T) {
	_, _, err := Johansen{}.Rank([][]float64{{1, 2}, {2, 3}, {3, 4}}, 0, 1)
	require.ErrorIs(t, err, ErrInsufficientData)

	_, _, err = Johansen{}.Rank([][]float64{{1, 2}}, 1, 1)
	require.Error(t, err)
}

func TestPCA(t *testing.T) {
	n := 12
	m := make([][]float64, n)
	e := noise(5, n*4, 0.1)
	for i := 0; i < n; i++ {
		f := float64(i)
		m[i] = []float64{f + e[4*i], 2*f + e[4*i+1], -f + e[4*i+2], e[4*i+3]}
	}
	p := NewPCA(3)
	_, err := p.Transform(m)
	require.ErrorIs(t, err, ErrNotFitted)

	require.NoError(t, p.Fit(m))
	proj, err := p.Transform(m)
	require.NoError(t, err)
	require.Len(t, proj, n)
	require.Len(t, proj[0], 3)

	ev := p.ExplainedVariance()
	require.Len(t, ev, 3)
	sum := 0.0
	for i, v := range ev {
		sum += v
		if i > 0 {
			assert.LessOrEqual(t, v, ev[i-1])
		}
	}
	assert.LessOrEqual(t, sum, 1+1e-9)
	assert.Greater(t, ev[0], 0.9)
}

func TestPCARejectsSmallMatrix(t *testing.T) {
	err := NewPCA(3).Fit([][]float64{{1, 2, 3}, {4, 5, 6}})
	require.ErrorIs(t, err, ErrInsufficientData)
	err = NewPCA(3).Fit([][]float64{{1, 2}, {3, 4}, {5, 6}})
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestGaussianHMMSeparatesRegimes(t *testing.T) {
	e := noise(6, 400, 0.001)
	obs := make([]float64, 400)
	for i := range obs {
		mu := 0.01
		if i >= 200 {
			mu = -0.01
		}
		obs[i] = mu + e[i]
	}
	model, err := NewGaussianHMMFitter().Fit(obs, 2)
	require.NoError(t, err)

	path, err := model.Predict(obs)
	require.NoError(t, err)
	require.Len(t, path, len(obs))
	assert.Equal(t, path[0], path[150])
	assert.Equal(t, path[250], path[399])
	assert.NotEqual(t, path[0], path[399])
}

func TestGaussianHMMTooShort(t *testing.T) {
	_, err := NewGaussianHMMFitter().Fit([]float64{0.1, 0.2, 0.3}, 2)
	require.ErrorIs(t, err, ErrInsufficientData)
}
