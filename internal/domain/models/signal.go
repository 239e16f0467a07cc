package models

import (
	"errors"
	"time"
)

// ObservationBatch is one request worth of ticks, oldest first.
// Pair1/Pair2 are the legs used for the hedge estimate; nil means "use Prices".
type ObservationBatch struct {
	Prices  []float64
	Volumes []float64
	Pair1   []float64
	Pair2   []float64
}

// Last returns the most recent price.
func (b ObservationBatch) Last() float64 {
	if len(b.Prices) == 0 {
		return 0
	}
	return b.Prices[len(b.Prices)-1]
}

// SignalBundle is the fixed output schema of one fusion pass.
// Note: no transport concerns here; see internal/protocol for the wire form.
type SignalBundle struct {
	ZScore              float64
	IsDirectionalRegime bool
	MLProbability       float64 // [0,1]
	KalmanSignal        bool
	HedgeSignal         bool
	Correlation         float64 // [-1,1]
	OptimalStopSignal   bool
}

// Result carries either a bundle or an error, never both.
type Result struct {
	bundle *SignalBundle
	err    error
}

// Success wraps a completed bundle.
func Success(b SignalBundle) Result { return Result{bundle: &b} }

// Failure wraps an error. A nil error is replaced so the result stays a failure.
func Failure(err error) Result {
	if err == nil {
		err = errors.New("unknown failure")
	}
	return Result{err: err}
}

// Bundle returns the bundle and true on success.
func (r Result) Bundle() (SignalBundle, bool) {
	if r.bundle == nil {
		return SignalBundle{}, false
	}
	return *r.bundle, true
}

// Err returns the failure, or nil on success.
func (r Result) Err() error { return r.err }

// SignalRecord is what gets published/stored after a successful pass.
type SignalRecord struct {
	Timestamp time.Time
	Source    string // tcp, ws, kafka
	LastPrice float64
	Bundle    SignalBundle
}

// HedgeResult is the output of the dynamic hedge estimator.
type HedgeResult struct {
	Correlation float64
	Beta        float64
	HedgeRatio  float64
}

// CointegrationResult holds the unit-root and rank test statistics for a pair.
type CointegrationResult struct {
	ADFPValue         float64 `json:"adf_pvalue"`
	TraceStatistic    float64 `json:"johansen_trace"`
	MaxEigenStatistic float64 `json:"johansen_max_eig"`
}

// ComponentResult is a fixed-rank projection of a price matrix (rows=time).
type ComponentResult struct {
	Components        [][]float64 `json:"components"`
	Momentum          [][]float64 `json:"momentum"`
	ExplainedVariance []float64   `json:"explained_variance"`
}
