package numeric

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var ErrNotFitted = errors.New("projector not fitted")

// PCA keeps the leading n principal components of a rows=observations matrix.
type PCA struct {
	n     int
	mean  []float64
	vecs  *mat.Dense // cols x n
	ratio []float64
}

func NewPCA(n int) *PCA { return &PCA{n: n} }

func (p *PCA) Fit(matrix [][]float64) error {
	x, err := toDense(matrix)
	if err != nil {
		return fmt.Errorf("pca: %w", err)
	}
	r, c := x.Dims()
	if r < p.n || c < p.n {
		return fmt.Errorf("pca: %w: need at least %d rows and columns, got %dx%d", ErrInsufficientData, p.n, r, c)
	}
	var pc stat.PC
	if ok := pc.PrincipalComponents(x, nil); !ok {
		return errors.New("pca: decomposition failed")
	}
	vars := pc.VarsTo(nil)
	total := floats.Sum(vars)
	var all mat.Dense
	pc.VectorsTo(&all)

	p.vecs = mat.DenseCopyOf(all.Slice(0, c, 0, p.n))
	p.ratio = make([]float64, p.n)
	if total > 0 {
		for i := 0; i < p.n; i++ {
			p.ratio[i] = vars[i] / total
		}
	}
	p.mean = make([]float64, c)
	for j := 0; j < c; j++ {
		p.mean[j] = stat.Mean(mat.Col(nil, j, x), nil)
	}
	return nil
}

// Transform projects centred rows onto the fitted components.
func (p *PCA) Transform(matrix [][]float64) ([][]float64, error) {
	if p.vecs == nil {
		return nil, ErrNotFitted
	}
	x, err := toDense(matrix)
	if err != nil {
		return nil, fmt.Errorf("pca: %w", err)
	}
	r, c := x.Dims()
	if c != len(p.mean) {
		return nil, fmt.Errorf("pca: expected %d columns, got %d", len(p.mean), c)
	}
	centred := mat.NewDense(r, c, nil)
	centred.Apply(func(_, j int, v float64) float64 { return v - p.mean[j] }, x)
	var out mat.Dense
	out.Mul(centred, p.vecs)
	return fromDense(&out), nil
}

func (p *PCA) ExplainedVariance() []float64 {
	return append([]float64(nil), p.ratio...)
}
