package usecase

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"QuantBridge/internal/domain/models"
	domsvc "QuantBridge/internal/domain/service"
	"QuantBridge/internal/protocol"
	"QuantBridge/internal/services/estimators"
	"QuantBridge/internal/services/features"
	applogger "QuantBridge/pkg/logger"
)

const (
	zScoreThreshold      = 2.0
	correlationThreshold = 0.7
)

// EngineOption configures FusionEngine.
type EngineOption func(*EngineConfig)

// EngineConfig holds the tunables of the fusion engine.
type EngineConfig struct {
	SeedOnFirst      bool
	InitialVariance  float64
	RegimeHistoryCap int
}

// WithKalmanSeeding initialises the state estimator from the first price seen.
func WithKalmanSeeding(initialVariance float64) EngineOption {
	return func(c *EngineConfig) {
		c.SeedOnFirst = true
		if initialVariance > 0 {
			c.InitialVariance = initialVariance
		}
	}
}

// WithRegimeHistoryCap bounds the regime label history.
func WithRegimeHistoryCap(n int) EngineOption {
	return func(c *EngineConfig) {
		c.RegimeHistoryCap = n
	}
}

// FusionEngine owns all estimator state. The state is process-global: every
// session, transport and consumer shares one engine and calls to Process are
// serialised.
type FusionEngine struct {
	mu         sync.Mutex
	cfg        EngineConfig
	kalman     *estimators.Kalman
	regime     *estimators.Regime
	classifier *estimators.Classifier
	hedge      *estimators.Hedge
	stopping   estimators.Stopping
	log        *applogger.Logger

	processed atomic.Uint64
	failed    atomic.Uint64
}

func NewFusionEngine(fitter domsvc.RegimeFitter, log *applogger.Logger, opts ...EngineOption) *FusionEngine {
	cfg := EngineConfig{InitialVariance: 1, RegimeHistoryCap: estimators.DefaultRegimeCap}
	for _, opt := range opts {
		opt(&cfg)
	}
	if log == nil {
		log = applogger.Nop()
	}
	return &FusionEngine{
		cfg:        cfg,
		kalman:     estimators.NewKalman(),
		regime:     estimators.NewRegime(fitter, cfg.RegimeHistoryCap),
		classifier: estimators.NewClassifier(),
		hedge:      estimators.NewHedge(),
		stopping:   estimators.NewStopping(),
		log:        log,
	}
}

// Classifier exposes the probability classifier so a model can be installed.
func (e *FusionEngine) Classifier() *estimators.Classifier { return e.classifier }

// Kalman exposes the state estimator for explicit initialisation.
func (e *FusionEngine) Kalman() *estimators.Kalman { return e.kalman }

// DecodeAndProcess parses one wire request and runs it through the engine.
func (e *FusionEngine) DecodeAndProcess(ctx context.Context, raw []byte) models.Result {
	batch, err := protocol.Decode(raw)
	if err != nil {
		e.failed.Add(1)
		return models.Failure(err)
	}
	return e.Process(ctx, batch)
}

// Process computes one signal bundle. Any error or panic inside an estimator
// yields a failed Result and no partial bundle.
func (e *FusionEngine) Process(ctx context.Context, batch models.ObservationBatch) (res models.Result) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("estimator panic",
				applogger.Any("panic", r),
				applogger.String("stack", string(debug.Stack())),
			)
			res = models.Failure(fmt.Errorf("%w: internal estimator failure: %v", models.ErrNumeric, r))
		}
		if _, ok := res.Bundle(); ok {
			e.processed.Add(1)
		} else {
			e.failed.Add(1)
		}
	}()

	if err := validateBatch(batch); err != nil {
		return models.Failure(err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	bundle, err := e.fuse(ctx, batch)
	if err != nil {
		return models.Failure(err)
	}
	return models.Success(bundle)
}

func (e *FusionEngine) fuse(ctx context.Context, batch models.ObservationBatch) (models.SignalBundle, error) {
	var b models.SignalBundle
	last := batch.Last()

	if e.cfg.SeedOnFirst && !e.kalman.Initialized() {
		v := e.cfg.InitialVariance
		e.kalman.Initialize([2]float64{last, 0}, [2][2]float64{{v, 0}, {0, v}})
	}
	b.ZScore = e.kalman.Update(last)
	b.IsDirectionalRegime = e.regime.Classify(batch.Prices)

	b.MLProbability = estimators.NeutralProbability
	if fv, err := features.Vector(batch.Prices, batch.Volumes); err == nil {
		p, err := e.classifier.Predict(ctx, fv)
		if err != nil {
			return b, fmt.Errorf("probability classifier: %w", err)
		}
		b.MLProbability = p
	}

	// without counter legs the pair defaults to the price series against itself
	a, c := batch.Pair1, batch.Pair2
	if a == nil || c == nil {
		a, c = batch.Prices, batch.Prices
	}
	h, err := e.hedge.Estimate(a, c)
	if err != nil {
		return b, fmt.Errorf("hedge estimator: %w", err)
	}
	b.Correlation = h.Correlation
	b.OptimalStopSignal = e.stopping.ShouldStop(batch.Prices)

	b.KalmanSignal = kalmanSignal(b.ZScore)
	b.HedgeSignal = hedgeSignal(b.Correlation)
	return b, nil
}

// Both thresholds are strict.
func kalmanSignal(z float64) bool { return math.Abs(z) > zScoreThreshold }

func hedgeSignal(r float64) bool { return r > correlationThreshold }

func validateBatch(b models.ObservationBatch) error {
	if len(b.Prices) == 0 {
		return fmt.Errorf("%w: prices is required", models.ErrInvalidInput)
	}
	if len(b.Volumes) != len(b.Prices) {
		return fmt.Errorf("%w: volumes has %d values, prices has %d", models.ErrInvalidInput, len(b.Volumes), len(b.Prices))
	}
	return nil
}

// Snapshot returns a copy of the estimator state.
func (e *FusionEngine) Snapshot() models.EngineSnapshot {
	s := models.EngineSnapshot{
		Processed:  e.processed.Load(),
		Failed:     e.failed.Load(),
		Kalman:     e.kalman.Snapshot(),
		Regime:     e.regime.Snapshot(),
		Classifier: e.classifier.Snapshot(),
	}
	if m, ok := e.hedge.Matrix(); ok {
		s.Correlation = &m
	}
	return s
}
