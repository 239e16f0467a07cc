package estimators

import (
	"math"
	"sync"

	"QuantBridge/internal/domain/models"
)

const (
	kalmanR = 0.1
	kalmanQ = 0.01
)

// Kalman tracks a level and its rate of change with a constant-velocity model:
// F=[[1,1],[0,1]], H=[1,0].
type Kalman struct {
	mu          sync.Mutex
	initialized bool
	x           [2]float64
	p           [2][2]float64
	r, q        float64
}

func NewKalman() *Kalman {
	return &Kalman{r: kalmanR, q: kalmanQ}
}

// Initialize seeds the belief. Calling it again resets the filter.
func (k *Kalman) Initialize(state [2]float64, covariance [2][2]float64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.x = state
	k.p = covariance
	k.initialized = true
}

func (k *Kalman) Initialized() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.initialized
}

// Update folds one observation into the belief and returns its z-score
// against the predicted level. Uninitialised filters return 0 and keep no state.
func (k *Kalman) Update(obs float64) float64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.initialized || math.IsNaN(obs) || math.IsInf(obs, 0) {
		return 0
	}

	// predict
	x := [2]float64{k.x[0] + k.x[1], k.x[1]}
	a, b, c, d := k.p[0][0], k.p[0][1], k.p[1][0], k.p[1][1]
	p := [2][2]float64{
		{a + b + c + d + k.q, b + d},
		{c + d, d + k.q},
	}

	z := 0.0
	if p[0][0] > 0 {
		z = (obs - x[0]) / math.Sqrt(p[0][0])
	}

	// update
	s := p[0][0] + k.r
	if s <= 0 {
		k.x, k.p = x, p
		return z
	}
	gain := [2]float64{p[0][0] / s, p[1][0] / s}
	y := obs - x[0]
	k.x = [2]float64{x[0] + gain[0]*y, x[1] + gain[1]*y}
	k.p = [2][2]float64{
		{p[0][0] - gain[0]*p[0][0], p[0][1] - gain[0]*p[0][1]},
		{p[1][0] - gain[1]*p[0][0], p[1][1] - gain[1]*p[0][1]},
	}
	return z
}

func (k *Kalman) Snapshot() models.KalmanSnapshot {
	k.mu.Lock()
	defer k.mu.Unlock()
	return models.KalmanSnapshot{Initialized: k.initialized, State: k.x, Covariance: k.p}
}
