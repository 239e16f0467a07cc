package numeric

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"QuantBridge/internal/domain/service"
)

const varFloor = 1e-12

// GaussianHMMFitter fits a univariate Gaussian HMM with Baum-Welch.
type GaussianHMMFitter struct {
	MaxIter int
	Tol     float64
}

func NewGaussianHMMFitter() *GaussianHMMFitter {
	return &GaussianHMMFitter{MaxIter: 100, Tol: 1e-4}
}

// GaussianHMM is a fitted model. Its fields are read-only after Fit.
type GaussianHMM struct {
	Start []float64
	Trans [][]float64
	Means []float64
	Vars  []float64
}

// Fit implements service.RegimeFitter.
func (f *GaussianHMMFitter) Fit(obs []float64, states int) (service.RegimeModel, error) {
	if states < 1 {
		return nil, fmt.Errorf("hmm: invalid state count %d", states)
	}
	if len(obs) < 2*states {
		return nil, fmt.Errorf("hmm: %w: %d observations for %d states", ErrInsufficientData, len(obs), states)
	}
	m := initHMM(obs, states)
	prev := math.Inf(-1)
	for it := 0; it < f.MaxIter; it++ {
		ll := m.baumWelchStep(obs)
		if math.IsNaN(ll) {
			return nil, fmt.Errorf("hmm: %w: likelihood diverged", ErrSingular)
		}
		if ll-prev < f.Tol {
			break
		}
		prev = ll
	}
	return m, nil
}

// initHMM seeds means and variances from equal-size quantile buckets.
func initHMM(obs []float64, k int) *GaussianHMM {
	sorted := append([]float64(nil), obs...)
	sort.Float64s(sorted)
	_, globalVar := stat.MeanVariance(obs, nil)
	m := &GaussianHMM{
		Start: make([]float64, k),
		Trans: make([][]float64, k),
		Means: make([]float64, k),
		Vars:  make([]float64, k),
	}
	size := len(sorted) / k
	for i := 0; i < k; i++ {
		m.Start[i] = 1 / float64(k)
		m.Trans[i] = make([]float64, k)
		for j := range m.Trans[i] {
			if i == j {
				m.Trans[i][j] = 0.9
			} else if k > 1 {
				m.Trans[i][j] = 0.1 / float64(k-1)
			}
		}
		if k == 1 {
			m.Trans[i][i] = 1
		}
		lo, hi := i*size, (i+1)*size
		if i == k-1 {
			hi = len(sorted)
		}
		mu, v := stat.MeanVariance(sorted[lo:hi], nil)
		if math.IsNaN(v) || v < varFloor {
			v = math.Max(globalVar, varFloor)
		}
		m.Means[i], m.Vars[i] = mu, v
	}
	return m
}

func (m *GaussianHMM) emissions(obs []float64) [][]float64 {
	k := len(m.Means)
	b := make([][]float64, len(obs))
	for t, x := range obs {
		b[t] = make([]float64, k)
		for i := 0; i < k; i++ {
			n := distuv.Normal{Mu: m.Means[i], Sigma: math.Sqrt(m.Vars[i])}
			b[t][i] = n.Prob(x)
		}
	}
	return b
}

// baumWelchStep runs one scaled forward-backward pass, re-estimates the
// parameters and returns the log-likelihood under the old parameters.
func (m *GaussianHMM) baumWelchStep(obs []float64) float64 {
	k, n := len(m.Means), len(obs)
	b := m.emissions(obs)

	alpha := make([][]float64, n)
	scale := make([]float64, n)
	for t := 0; t < n; t++ {
		alpha[t] = make([]float64, k)
		for j := 0; j < k; j++ {
			if t == 0 {
				alpha[t][j] = m.Start[j] * b[t][j]
				continue
			}
			s := 0.0
			for i := 0; i < k; i++ {
				s += alpha[t-1][i] * m.Trans[i][j]
			}
			alpha[t][j] = s * b[t][j]
		}
		scale[t] = floats.Sum(alpha[t])
		if scale[t] == 0 {
			return math.NaN()
		}
		floats.Scale(1/scale[t], alpha[t])
	}

	beta := make([][]float64, n)
	beta[n-1] = make([]float64, k)
	for i := range beta[n-1] {
		beta[n-1][i] = 1
	}
	for t := n - 2; t >= 0; t-- {
		beta[t] = make([]float64, k)
		for i := 0; i < k; i++ {
			s := 0.0
			for j := 0; j < k; j++ {
				s += m.Trans[i][j] * b[t+1][j] * beta[t+1][j]
			}
			beta[t][i] = s / scale[t+1]
		}
	}

	gamma := make([][]float64, n)
	for t := 0; t < n; t++ {
		gamma[t] = make([]float64, k)
		for i := 0; i < k; i++ {
			gamma[t][i] = alpha[t][i] * beta[t][i]
		}
		if s := floats.Sum(gamma[t]); s > 0 {
			floats.Scale(1/s, gamma[t])
		}
	}

	xi := make([][]float64, k)
	for i := range xi {
		xi[i] = make([]float64, k)
	}
	for t := 0; t < n-1; t++ {
		for i := 0; i < k; i++ {
			for j := 0; j < k; j++ {
				xi[i][j] += alpha[t][i] * m.Trans[i][j] * b[t+1][j] * beta[t+1][j] / scale[t+1]
			}
		}
	}

	copy(m.Start, gamma[0])
	for i := 0; i < k; i++ {
		if s := floats.Sum(xi[i]); s > 0 {
			for j := 0; j < k; j++ {
				m.Trans[i][j] = xi[i][j] / s
			}
		}
		sw, mu := 0.0, 0.0
		for t := 0; t < n; t++ {
			sw += gamma[t][i]
			mu += gamma[t][i] * obs[t]
		}
		if sw == 0 {
			continue
		}
		mu /= sw
		v := 0.0
		for t := 0; t < n; t++ {
			d := obs[t] - mu
			v += gamma[t][i] * d * d
		}
		m.Means[i] = mu
		m.Vars[i] = math.Max(v/sw, varFloor)
	}

	ll := 0.0
	for _, s := range scale {
		ll += math.Log(s)
	}
	return ll
}

// Predict implements service.RegimeModel with Viterbi decoding.
func (m *GaussianHMM) Predict(obs []float64) ([]int, error) {
	if len(obs) == 0 {
		return nil, ErrInsufficientData
	}
	k, n := len(m.Means), len(obs)
	logp := func(p float64) float64 {
		if p <= 0 {
			return math.Inf(-1)
		}
		return math.Log(p)
	}
	delta := make([][]float64, n)
	back := make([][]int, n)
	for t := 0; t < n; t++ {
		delta[t] = make([]float64, k)
		back[t] = make([]int, k)
		for j := 0; j < k; j++ {
			e := distuv.Normal{Mu: m.Means[j], Sigma: math.Sqrt(m.Vars[j])}.LogProb(obs[t])
			if t == 0 {
				delta[t][j] = logp(m.Start[j]) + e
				continue
			}
			best, arg := math.Inf(-1), 0
			for i := 0; i < k; i++ {
				if v := delta[t-1][i] + logp(m.Trans[i][j]); v > best {
					best, arg = v, i
				}
			}
			delta[t][j] = best + e
			back[t][j] = arg
		}
	}
	path := make([]int, n)
	path[n-1] = floats.MaxIdx(delta[n-1])
	for t := n - 1; t > 0; t-- {
		path[t-1] = back[t][path[t]]
	}
	return path, nil
}
