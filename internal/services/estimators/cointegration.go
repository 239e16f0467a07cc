package estimators

import (
	"fmt"

	"QuantBridge/internal/domain/models"
	domsvc "QuantBridge/internal/domain/service"
)

// Cointegration runs an ADF test on the spread a-b and a Johansen rank test
// on the pair. It holds no state.
type Cointegration struct {
	unitRoot domsvc.UnitRootTester
	rank     domsvc.CointegrationRankTester
}

func NewCointegration(unitRoot domsvc.UnitRootTester, rank domsvc.CointegrationRankTester) *Cointegration {
	return &Cointegration{unitRoot: unitRoot, rank: rank}
}

func (c *Cointegration) Test(a, b []float64) (models.CointegrationResult, error) {
	var res models.CointegrationResult
	if len(a) != len(b) {
		return res, fmt.Errorf("%w: series lengths differ (%d vs %d)", models.ErrInvalidInput, len(a), len(b))
	}
	if len(a) < 2 {
		return res, fmt.Errorf("%w: need at least 2 observations", models.ErrInvalidInput)
	}
	spread := make([]float64, len(a))
	data := make([][]float64, len(a))
	for i := range a {
		spread[i] = a[i] - b[i]
		data[i] = []float64{a[i], b[i]}
	}

	p, err := c.unitRoot.PValue(spread)
	if err != nil {
		return res, fmt.Errorf("%w: unit root test: %v", models.ErrNumeric, err)
	}
	trace, maxEig, err := c.rank.Rank(data, 0, 1)
	if err != nil {
		return res, fmt.Errorf("%w: rank test: %v", models.ErrNumeric, err)
	}
	if len(trace) == 0 || len(maxEig) == 0 {
		return res, fmt.Errorf("%w: rank test returned no statistics", models.ErrNumeric)
	}
	res.ADFPValue = p
	res.TraceStatistic = trace[0]
	res.MaxEigenStatistic = maxEig[0]
	return res, nil
}
