// Package numeric holds the gonum-backed statistical providers used behind the
// capability interfaces in internal/domain/service.
package numeric

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrSingular         = errors.New("singular matrix")
)

type olsFit struct {
	params []float64
	bse    []float64
	ssr    float64
	nobs   int
}

// aic matches the Gaussian log-likelihood based criterion used by OLS.
func (f *olsFit) aic() float64 {
	n := float64(f.nobs)
	llf := -n / 2 * (math.Log(2*math.Pi) + math.Log(f.ssr/n) + 1)
	return -2*llf + 2*float64(len(f.params))
}

func ols(y []float64, x *mat.Dense) (*olsFit, error) {
	n, k := x.Dims()
	if n != len(y) {
		return nil, errors.New("ols: row mismatch")
	}
	if n <= k {
		return nil, ErrInsufficientData
	}
	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	var inv mat.Dense
	if err := inv.Inverse(&xtx); err != nil {
		return nil, ErrSingular
	}
	yv := mat.NewVecDense(n, y)
	var xty mat.VecDense
	xty.MulVec(x.T(), yv)
	var beta mat.VecDense
	beta.MulVec(&inv, &xty)

	var fitted mat.VecDense
	fitted.MulVec(x, &beta)
	ssr := 0.0
	for i := 0; i < n; i++ {
		r := y[i] - fitted.AtVec(i)
		ssr += r * r
	}
	if ssr <= 0 {
		return nil, ErrSingular
	}
	sigma2 := ssr / float64(n-k)
	out := &olsFit{
		params: make([]float64, k),
		bse:    make([]float64, k),
		ssr:    ssr,
		nobs:   n,
	}
	for j := 0; j < k; j++ {
		out.params[j] = beta.AtVec(j)
		out.bse[j] = math.Sqrt(sigma2 * inv.At(j, j))
	}
	return out, nil
}

// residualize removes the least-squares projection of y on z (column-wise).
func residualize(y, z *mat.Dense) (*mat.Dense, error) {
	var b mat.Dense
	if err := b.Solve(z, y); err != nil {
		return nil, ErrSingular
	}
	var proj mat.Dense
	proj.Mul(z, &b)
	var r mat.Dense
	r.Sub(y, &proj)
	return &r, nil
}

// demean subtracts each column's mean in place.
func demean(m *mat.Dense) {
	r, c := m.Dims()
	for j := 0; j < c; j++ {
		s := 0.0
		for i := 0; i < r; i++ {
			s += m.At(i, j)
		}
		mu := s / float64(r)
		for i := 0; i < r; i++ {
			m.Set(i, j, m.At(i, j)-mu)
		}
	}
}

// toDense converts a row-major matrix; all rows must share the same width.
func toDense(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrInsufficientData
	}
	c := len(rows[0])
	data := make([]float64, 0, len(rows)*c)
	for _, row := range rows {
		if len(row) != c {
			return nil, errors.New("ragged matrix")
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), c, data), nil
}

func fromDense(m mat.Matrix) [][]float64 {
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := 0; i < r; i++ {
		out[i] = make([]float64, c)
		for j := 0; j < c; j++ {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}
