package estimators

import (
	"fmt"
	"math"
	"sync"

	"QuantBridge/internal/domain/models"
	"QuantBridge/internal/services/features"
)

const hedgeDecay = 0.95

// Hedge estimates correlation, beta and hedge ratio of a pair and keeps an
// exponentially smoothed 2x2 correlation matrix.
type Hedge struct {
	mu     sync.Mutex
	corr   [2][2]float64
	seeded bool
}

func NewHedge() *Hedge { return &Hedge{} }

func (h *Hedge) Estimate(a, b []float64) (models.HedgeResult, error) {
	var res models.HedgeResult
	if len(a) < 2 || len(b) < 2 {
		return res, nil
	}
	if len(a) != len(b) {
		return res, fmt.Errorf("%w: pair lengths differ (%d vs %d)", models.ErrInvalidInput, len(a), len(b))
	}

	ma, va := features.MeanVariance(a)
	mb, vb := features.MeanVariance(b)
	if va == 0 || vb == 0 {
		return res, nil
	}
	sum := 0.0
	for i := range a {
		sum += (a[i] - ma) * (b[i] - mb)
	}
	n := float64(len(a))

	sa, sb := math.Sqrt(va), math.Sqrt(vb)
	r := math.Max(-1, math.Min(1, sum/n/(sa*sb)))
	// beta pairs the sample covariance (n-1) with the population variance of b
	beta := sum / (n - 1) / vb
	ratio := beta * sa / sb
	for _, v := range []float64{r, beta, ratio} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return models.HedgeResult{}, fmt.Errorf("%w: non-finite hedge statistics", models.ErrNumeric)
		}
	}

	obs := [2][2]float64{{1, r}, {r, 1}}
	h.mu.Lock()
	if !h.seeded {
		h.corr, h.seeded = obs, true
	} else {
		for i := 0; i < 2; i++ {
			for j := 0; j < 2; j++ {
				h.corr[i][j] = hedgeDecay*h.corr[i][j] + (1-hedgeDecay)*obs[i][j]
			}
		}
	}
	h.mu.Unlock()

	res.Correlation, res.Beta, res.HedgeRatio = r, beta, ratio
	return res, nil
}

// Matrix returns the smoothed correlation matrix and whether it has been set.
func (h *Hedge) Matrix() ([2][2]float64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.corr, h.seeded
}
