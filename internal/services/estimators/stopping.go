package estimators

import (
	"QuantBridge/internal/services/features"
)

const DefaultRiskAversion = 2.0

// Stopping flags when the risk-adjusted drift of log returns turns negative.
type Stopping struct {
	RiskAversion float64
}

func NewStopping() Stopping { return Stopping{RiskAversion: DefaultRiskAversion} }

// ShouldStop reports mean - 0.5*gamma*variance < 0 over the series' log returns.
func (s Stopping) ShouldStop(series []float64) bool {
	if len(series) < 2 {
		return false
	}
	mean, variance := features.MeanVariance(features.LogReturns(series))
	return mean-0.5*s.RiskAversion*variance < 0
}
