package service

import "context"

// UnitRootTester returns the p-value of a unit-root test on a single series.
type UnitRootTester interface {
	PValue(series []float64) (float64, error)
}

// CointegrationRankTester runs a VAR cointegration rank test on the columns of
// data (rows=time). It returns the trace and max-eigenvalue statistics ordered
// by hypothesised rank r=0,1,...
type CointegrationRankTester interface {
	Rank(data [][]float64, detOrder, lagDiff int) (trace, maxEig []float64, err error)
}

// Projector is a fixed-rank linear projection fitted on a matrix (rows=time).
type Projector interface {
	Fit(matrix [][]float64) error
	Transform(matrix [][]float64) ([][]float64, error)
	ExplainedVariance() []float64
}

// ProjectorFactory builds an unfitted projector keeping n components.
type ProjectorFactory func(n int) Projector

// RegimeModel is a fitted hidden-state model over returns.
type RegimeModel interface {
	// Predict returns the most likely state for every return.
	Predict(returns []float64) ([]int, error)
}

// RegimeFitter fits a hidden-state model with the given number of states.
type RegimeFitter interface {
	Fit(returns []float64, states int) (RegimeModel, error)
}

// EnsembleModel is a pretrained binary classifier.
type EnsembleModel interface {
	// PredictProbability returns P(positive class) for one feature vector.
	PredictProbability(ctx context.Context, features []float64) (float64, error)
	Name() string
}
