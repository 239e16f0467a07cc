package numeric

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Johansen is the VAR cointegration rank test.
type Johansen struct{}

// Rank implements service.CointegrationRankTester. Only a constant term
// (detOrder 0) or no deterministic term (detOrder -1) is supported.
func (Johansen) Rank(data [][]float64, detOrder, lagDiff int) ([]float64, []float64, error) {
	if detOrder < -1 || detOrder > 0 {
		return nil, nil, fmt.Errorf("johansen: unsupported det_order %d", detOrder)
	}
	if lagDiff < 1 {
		return nil, nil, errors.New("johansen: k_ar_diff must be >= 1")
	}
	endog, err := toDense(data)
	if err != nil {
		return nil, nil, fmt.Errorf("johansen: %w", err)
	}
	nobs, neqs := endog.Dims()
	// rows left after differencing and lagging must exceed the regressors
	t := nobs - 1 - lagDiff
	if t <= neqs*lagDiff+neqs {
		return nil, nil, fmt.Errorf("johansen: %w: %d observations", ErrInsufficientData, nobs)
	}
	detrend := func(m *mat.Dense) {
		if detOrder == 0 {
			demean(m)
		}
	}
	detrend(endog)

	// dx_t, its lags and the lagged level, aligned on t = lagDiff..nobs-2
	dx := mat.NewDense(t, neqs, nil)
	z := mat.NewDense(t, neqs*lagDiff, nil)
	lx := mat.NewDense(t, neqs, nil)
	for i := 0; i < t; i++ {
		row := lagDiff + i
		for j := 0; j < neqs; j++ {
			dx.Set(i, j, endog.At(row+1, j)-endog.At(row, j))
			lx.Set(i, j, endog.At(row, j))
			for l := 1; l <= lagDiff; l++ {
				z.Set(i, (l-1)*neqs+j, endog.At(row+1-l, j)-endog.At(row-l, j))
			}
		}
	}
	detrend(z)
	detrend(dx)
	detrend(lx)

	r0, err := residualize(dx, z)
	if err != nil {
		return nil, nil, fmt.Errorf("johansen: %w", err)
	}
	rk, err := residualize(lx, z)
	if err != nil {
		return nil, nil, fmt.Errorf("johansen: %w", err)
	}

	moment := func(a, b *mat.Dense) *mat.Dense {
		var m mat.Dense
		m.Mul(a.T(), b)
		m.Scale(1/float64(t), &m)
		return &m
	}
	skk := moment(rk, rk)
	sk0 := moment(rk, r0)
	s00 := moment(r0, r0)

	var s00inv, skkinv mat.Dense
	if err := s00inv.Inverse(s00); err != nil {
		return nil, nil, fmt.Errorf("johansen: %w", ErrSingular)
	}
	if err := skkinv.Inverse(skk); err != nil {
		return nil, nil, fmt.Errorf("johansen: %w", ErrSingular)
	}
	var sig, tmp, prod mat.Dense
	tmp.Mul(sk0, &s00inv)
	sig.Mul(&tmp, sk0.T())
	prod.Mul(&skkinv, &sig)

	var eig mat.Eigen
	if ok := eig.Factorize(&prod, mat.EigenNone); !ok {
		return nil, nil, errors.New("johansen: eigen decomposition failed")
	}
	vals := eig.Values(nil)
	a := make([]float64, len(vals))
	for i, v := range vals {
		a[i] = real(v)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(a)))

	trace := make([]float64, neqs)
	maxEig := make([]float64, neqs)
	for i := 0; i < neqs; i++ {
		for _, ai := range a[i:] {
			trace[i] += math.Log(1 - ai)
		}
		trace[i] *= -float64(t)
		maxEig[i] = -float64(t) * math.Log(1-a[i])
	}
	return trace, maxEig, nil
}
