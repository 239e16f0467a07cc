package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantBridge/internal/domain/models"
	"QuantBridge/internal/protocol"
	"QuantBridge/internal/services/numeric"
)

func ramp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i + 1)
	}
	return out
}

func flat(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func newEngine(opts ...EngineOption) *FusionEngine {
	return NewFusionEngine(numeric.NewGaussianHMMFitter(), nil, opts...)
}

func TestColdStartIsIdempotent(t *testing.T) {
	e := newEngine()
	batch := models.ObservationBatch{Prices: ramp(30), Volumes: flat(30, 100)}

	first := e.Process(context.Background(), batch)
	want, ok := first.Bundle()
	require.True(t, ok)
	assert.Equal(t, 0.5, want.MLProbability)
	assert.False(t, want.IsDirectionalRegime)

	for i := 0; i < 5; i++ {
		got, ok := e.Process(context.Background(), batch).Bundle()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, uint64(6), e.Snapshot().Processed)
}

func TestEndToEndRamp(t *testing.T) {
	e := newEngine()
	raw := fmt.Sprintf(`{"prices":[%s],"volumes":[%s]}`, joinFloats(ramp(30)), joinFloats(flat(30, 100)))

	res := e.DecodeAndProcess(context.Background(), []byte(raw))
	b, ok := res.Bundle()
	require.True(t, ok, "unexpected failure: %v", res.Err())

	assert.Equal(t, 0.5, b.MLProbability)
	assert.False(t, b.IsDirectionalRegime)
	assert.InDelta(t, 1.0, b.Correlation, 1e-12)
	assert.True(t, b.HedgeSignal)
	assert.Equal(t, 0.0, b.ZScore)
	assert.False(t, b.KalmanSignal)
	assert.False(t, b.OptimalStopSignal)

	out := string(protocol.Encode(res))
	assert.Contains(t, out, `"mlProbability":0.5`)
	assert.Contains(t, out, `"hedgeSignal":true`)
	assert.Contains(t, out, `"isDirectionalRegime":false`)
}

func joinFloats(xs []float64) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, ",")
}

func TestThresholdsAreStrict(t *testing.T) {
	assert.False(t, kalmanSignal(2.0))
	assert.False(t, kalmanSignal(-2.0))
	assert.True(t, kalmanSignal(2.0000001))
	assert.True(t, kalmanSignal(-2.5))
	assert.False(t, kalmanSignal(0))

	assert.False(t, hedgeSignal(0.7))
	assert.True(t, hedgeSignal(0.7000001))
	assert.False(t, hedgeSignal(-0.9))
}

func TestProcessRejectsInvalidInput(t *testing.T) {
	e := newEngine()
	tests := []struct {
		name  string
		batch models.ObservationBatch
	}{
		{"no prices", models.ObservationBatch{}},
		{"volume mismatch", models.ObservationBatch{Prices: ramp(5), Volumes: ramp(4)}},
		{"pair mismatch", models.ObservationBatch{Prices: ramp(5), Volumes: ramp(5), Pair1: ramp(5), Pair2: ramp(4)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.Process(context.Background(), tt.batch)
			_, ok := res.Bundle()
			assert.False(t, ok)
			require.ErrorIs(t, res.Err(), models.ErrInvalidInput)
		})
	}
	assert.Equal(t, uint64(3), e.Snapshot().Failed)

	res := e.DecodeAndProcess(context.Background(), []byte(`{"prices":[1,2`))
	require.ErrorIs(t, res.Err(), models.ErrInvalidInput)
}

func TestPairLegsDriveCorrelation(t *testing.T) {
	e := newEngine()
	b, ok := e.Process(context.Background(), models.ObservationBatch{
		Prices:  ramp(10),
		Volumes: flat(10, 1),
		Pair1:   []float64{1, 2, 3, 4, 5},
		Pair2:   []float64{5, 4, 3, 2, 1},
	}).Bundle()
	require.True(t, ok)
	assert.InDelta(t, -1.0, b.Correlation, 1e-12)
	assert.False(t, b.HedgeSignal)

	snap := e.Snapshot()
	require.NotNil(t, snap.Correlation)
	assert.InDelta(t, -1.0, snap.Correlation[0][1], 1e-12)
}

type stubModel struct {
	p     float64
	err   error
	panic bool
}

func (m stubModel) PredictProbability(ctx context.Context, features []float64) (float64, error) {
	if m.panic {
		var xs []float64
		_ = xs[len(features)]
	}
	return m.p, m.err
}

func (m stubModel) Name() string { return "stub" }

func TestTrainedClassifier(t *testing.T) {
	e := newEngine()
	require.NoError(t, e.Classifier().Train(stubModel{p: 0.83}))

	b, ok := e.Process(context.Background(), models.ObservationBatch{Prices: ramp(30), Volumes: flat(30, 1)}).Bundle()
	require.True(t, ok)
	assert.Equal(t, 0.83, b.MLProbability)

	// short windows never reach the model
	b, ok = e.Process(context.Background(), models.ObservationBatch{Prices: ramp(19), Volumes: flat(19, 1)}).Bundle()
	require.True(t, ok)
	assert.Equal(t, 0.5, b.MLProbability)
}

func TestModelErrorFailsWholeBundle(t *testing.T) {
	e := newEngine()
	require.NoError(t, e.Classifier().Train(stubModel{err: errors.New("scoring down")}))
	res := e.Process(context.Background(), models.ObservationBatch{Prices: ramp(30), Volumes: flat(30, 1)})
	_, ok := res.Bundle()
	assert.False(t, ok)
	assert.Contains(t, res.Err().Error(), "scoring down")
}

func TestPanicIsRecovered(t *testing.T) {
	e := newEngine()
	require.NoError(t, e.Classifier().Train(stubModel{panic: true}))
	res := e.Process(context.Background(), models.ObservationBatch{Prices: ramp(30), Volumes: flat(30, 1)})
	require.ErrorIs(t, res.Err(), models.ErrNumeric)

	// the engine stays usable below the feature window
	_, ok := e.Process(context.Background(), models.ObservationBatch{Prices: ramp(10), Volumes: flat(10, 1)}).Bundle()
	assert.True(t, ok)
}

func TestKalmanSeeding(t *testing.T) {
	e := newEngine(WithKalmanSeeding(1))
	b, ok := e.Process(context.Background(), models.ObservationBatch{Prices: []float64{100}, Volumes: []float64{1}}).Bundle()
	require.True(t, ok)
	assert.Equal(t, 0.0, b.ZScore)
	assert.True(t, e.Snapshot().Kalman.Initialized)

	b, ok = e.Process(context.Background(), models.ObservationBatch{Prices: []float64{100, 110}, Volumes: []float64{1, 1}}).Bundle()
	require.True(t, ok)
	assert.Greater(t, b.ZScore, 2.0)
	assert.True(t, b.KalmanSignal)
}

func TestUnseededKalmanStaysCold(t *testing.T) {
	e := newEngine()
	for _, p := range []float64{100, 150, 50} {
		b, ok := e.Process(context.Background(), models.ObservationBatch{Prices: []float64{p}, Volumes: []float64{1}}).Bundle()
		require.True(t, ok)
		assert.Equal(t, 0.0, b.ZScore)
	}
	assert.False(t, e.Snapshot().Kalman.Initialized)
}

func TestConcurrentProcessing(t *testing.T) {
	e := newEngine(WithKalmanSeeding(1))
	const workers, perWorker = 16, 40

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))
			for i := 0; i < perWorker; i++ {
				n := 2 + r.Intn(60)
				prices := make([]float64, n)
				p := 100.0
				for j := range prices {
					p += r.NormFloat64()
					prices[j] = p
				}
				res := e.Process(context.Background(), models.ObservationBatch{Prices: prices, Volumes: flat(n, 10)})
				if err := res.Err(); err != nil {
					errs <- err
				}
			}
		}(int64(w))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("unexpected failure: %v", err)
	}

	snap := e.Snapshot()
	assert.Equal(t, uint64(workers*perWorker), snap.Processed)
	assert.Equal(t, uint64(0), snap.Failed)
	assert.LessOrEqual(t, snap.Regime.HistoryLen, 1000)
	require.NotNil(t, snap.Correlation)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			assert.LessOrEqual(t, snap.Correlation[i][j], 1.0)
			assert.GreaterOrEqual(t, snap.Correlation[i][j], -1.0)
		}
	}
}
