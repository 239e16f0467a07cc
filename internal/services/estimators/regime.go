package estimators

import (
	"sync"

	"QuantBridge/internal/domain/models"
	domsvc "QuantBridge/internal/domain/service"
	"QuantBridge/internal/services/features"
)

const (
	regimeStates     = 2
	regimeWarmup     = 100
	regimeRun        = 10
	DefaultRegimeCap = 1000
)

const (
	RegimeCold   = "cold"
	RegimeWarm   = "warm"
	RegimeFitted = "fitted"
)

// Regime labels each batch with a hidden market state and reports whether
// the recent labels agree.
type Regime struct {
	mu      sync.Mutex
	fitter  domsvc.RegimeFitter
	model   fitted[domsvc.RegimeModel]
	history []int
	cap     int
	// model labels pushed since the fit; provisional labels never count toward a run
	inferred int
}

func NewRegime(fitter domsvc.RegimeFitter, historyCap int) *Regime {
	if historyCap < regimeWarmup {
		historyCap = DefaultRegimeCap
	}
	return &Regime{fitter: fitter, cap: historyCap}
}

// Classify returns true when the last 10 labels are identical. Until 100
// labels exist it records a provisional up/down label and never touches the model.
func (r *Regime) Classify(prices []float64) bool {
	returns := features.LogReturns(prices)

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.history) < regimeWarmup {
		label := 0
		if n := len(returns); n > 0 && returns[n-1] > 0 {
			label = 1
		}
		r.push(label)
		return false
	}

	model, ok := r.model.get()
	if !ok {
		m, err := r.fitter.Fit(returns, regimeStates)
		if err != nil {
			return false
		}
		_ = r.model.train(m)
		model = m
	}
	labels, err := model.Predict(returns)
	if err != nil || len(labels) == 0 {
		return false
	}
	r.push(labels[len(labels)-1])
	if r.inferred < regimeRun {
		r.inferred++
	}
	if r.inferred < regimeRun {
		return false
	}

	tail := r.history[len(r.history)-regimeRun:]
	for _, l := range tail[1:] {
		if l != tail[0] {
			return false
		}
	}
	return true
}

func (r *Regime) push(label int) {
	r.history = append(r.history, label)
	if over := len(r.history) - r.cap; over > 0 {
		r.history = append(r.history[:0], r.history[over:]...)
	}
}

func (r *Regime) Snapshot() models.RegimeSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := models.RegimeSnapshot{HistoryLen: len(r.history), Status: RegimeCold}
	if _, ok := r.model.get(); ok {
		s.Status = RegimeFitted
	} else if len(r.history) >= regimeWarmup {
		s.Status = RegimeWarm
	}
	if n := len(r.history); n > 0 {
		last := r.history[n-1]
		s.LastLabel = &last
	}
	return s
}
