package numeric

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// MacKinnon (1994, 2010) response-surface coefficients for a single series
// with a constant term.
var (
	tauMaxC   = 2.74
	tauMinC   = -18.83
	tauStarC  = -1.61
	tauSmallC = []float64{2.1659, 1.4412, 0.038269}
	tauLargeC = []float64{1.7339, 0.93202, -0.12745, -0.010368}
)

// ADF is an augmented Dickey-Fuller test with a constant and AIC lag selection.
type ADF struct {
	// MaxLag overrides the Schwert rule when positive.
	MaxLag int
}

// PValue implements service.UnitRootTester.
func (a ADF) PValue(series []float64) (float64, error) {
	stat, _, err := a.Statistic(series)
	if err != nil {
		return 0, err
	}
	return MacKinnonP(stat), nil
}

// Statistic returns the ADF t-statistic and the lag chosen by AIC.
func (a ADF) Statistic(x []float64) (float64, int, error) {
	n := len(x)
	maxlag := a.MaxLag
	if maxlag <= 0 {
		maxlag = int(math.Ceil(12 * math.Pow(float64(n)/100, 0.25)))
	}
	// leave room for the constant and the level term
	if lim := n/2 - 2; maxlag > lim {
		maxlag = lim
	}
	if maxlag < 0 {
		return 0, 0, fmt.Errorf("adf: %w: %d observations", ErrInsufficientData, n)
	}
	dx := make([]float64, n-1)
	for i := 1; i < n; i++ {
		dx[i-1] = x[i] - x[i-1]
	}

	bestLag, bestAIC := 0, math.Inf(1)
	for lag := 0; lag <= maxlag; lag++ {
		fit, err := ols(adfDesign(x, dx, maxlag, lag))
		if err != nil {
			continue
		}
		if aic := fit.aic(); aic < bestAIC {
			bestAIC, bestLag = aic, lag
		}
	}
	if math.IsInf(bestAIC, 1) {
		return 0, 0, fmt.Errorf("adf: %w", ErrSingular)
	}

	fit, err := ols(adfDesign(x, dx, bestLag, bestLag))
	if err != nil {
		return 0, 0, fmt.Errorf("adf: %w", err)
	}
	// column 1 is the lagged level
	return fit.params[1] / fit.bse[1], bestLag, nil
}

// adfDesign regresses dx_t on [1, x_t, dx_{t-1}..dx_{t-lag}], dropping the
// first trim rows so every candidate lag shares one sample.
func adfDesign(x, dx []float64, trim, lag int) ([]float64, *mat.Dense) {
	rows := len(dx) - trim
	cols := 2 + lag
	y := make([]float64, rows)
	d := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		t := trim + i
		y[i] = dx[t]
		d.Set(i, 0, 1)
		d.Set(i, 1, x[t])
		for j := 1; j <= lag; j++ {
			d.Set(i, 1+j, dx[t-j])
		}
	}
	return y, d
}

// MacKinnonP maps an ADF statistic to its approximate p-value.
func MacKinnonP(stat float64) float64 {
	switch {
	case stat > tauMaxC:
		return 1
	case stat < tauMinC:
		return 0
	}
	coef := tauLargeC
	if stat <= tauStarC {
		coef = tauSmallC
	}
	v, p := 0.0, 1.0
	for _, c := range coef {
		v += c * p
		p *= stat
	}
	return distuv.UnitNormal.CDF(v)
}
