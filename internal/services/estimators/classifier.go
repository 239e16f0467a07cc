package estimators

import (
	"context"
	"fmt"
	"math"
	"sync"

	"QuantBridge/internal/domain/models"
	domsvc "QuantBridge/internal/domain/service"
)

// NeutralProbability is reported until a model is trained.
const NeutralProbability = 0.5

// Classifier wraps a pretrained ensemble model behind a fit-once slot.
type Classifier struct {
	mu    sync.RWMutex
	model fitted[domsvc.EnsembleModel]
}

func NewClassifier() *Classifier { return &Classifier{} }

// Train installs the model. It can happen once per process.
func (c *Classifier) Train(m domsvc.EnsembleModel) error {
	if m == nil {
		return fmt.Errorf("%w: nil model", models.ErrInvalidInput)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model.train(m)
}

// Predict returns the positive-class probability clamped to [0,1].
func (c *Classifier) Predict(ctx context.Context, features []float64) (float64, error) {
	c.mu.RLock()
	m, ok := c.model.get()
	c.mu.RUnlock()
	if !ok {
		return NeutralProbability, nil
	}
	p, err := m.PredictProbability(ctx, features)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", m.Name(), err)
	}
	if math.IsNaN(p) {
		return 0, fmt.Errorf("%w: %s returned NaN", models.ErrNumeric, m.Name())
	}
	return math.Min(1, math.Max(0, p)), nil
}

func (c *Classifier) Snapshot() models.ClassifierSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.model.get()
	if !ok {
		return models.ClassifierSnapshot{}
	}
	return models.ClassifierSnapshot{Trained: true, Model: m.Name()}
}
