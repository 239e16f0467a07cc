package usecase

import (
	"context"
	"sync"
	"time"

	"QuantBridge/internal/domain/models"
	domrepo "QuantBridge/internal/domain/repository"
	applogger "QuantBridge/pkg/logger"
)

// RecorderOption configures SignalRecorder.
type RecorderOption func(*SignalRecorder)

// WithRecorderBuffer sets how many records may wait for the sinks.
func WithRecorderBuffer(n int) RecorderOption {
	return func(r *SignalRecorder) {
		if n > 0 {
			r.bufSize = n
		}
	}
}

// SignalRecorder fans successful bundles out to the publisher and the audit
// store on a background goroutine. Record never blocks the caller; when the
// buffer is full the record is dropped and counted.
type SignalRecorder struct {
	pub     domrepo.SignalPublisher
	store   domrepo.SignalStore
	metrics domrepo.Metrics
	log     *applogger.Logger

	bufSize int
	bufCh   chan *models.SignalRecord
	done    chan struct{}
	mu      sync.Mutex
	started bool
	stopped bool
}

func NewSignalRecorder(pub domrepo.SignalPublisher, store domrepo.SignalStore, metrics domrepo.Metrics, log *applogger.Logger, opts ...RecorderOption) *SignalRecorder {
	r := &SignalRecorder{
		pub:     pub,
		store:   store,
		metrics: metrics,
		log:     log,
		bufSize: 1000,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.bufCh = make(chan *models.SignalRecord, r.bufSize)
	return r
}

// Start launches the sink worker. ctx bounds every sink call.
func (r *SignalRecorder) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	go func() {
		defer close(r.done)
		for rec := range r.bufCh {
			r.flush(ctx, rec)
		}
	}()
}

// Record enqueues rec and reports whether it was accepted.
func (r *SignalRecorder) Record(rec *models.SignalRecord) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	select {
	case r.bufCh <- rec:
		return true
	default:
		r.metrics.RecordError("recorder_drop")
		return false
	}
}

// Stop drains the queue and waits for the worker, bounded by ctx.
func (r *SignalRecorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	started := r.started
	close(r.bufCh)
	r.mu.Unlock()

	if !started {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *SignalRecorder) flush(ctx context.Context, rec *models.SignalRecord) {
	start := time.Now()
	if err := r.pub.Publish(ctx, rec); err != nil {
		r.metrics.RecordError("recorder_publish")
		r.log.Warn("publish signal failed", applogger.Error(err))
	}
	if err := r.store.Store(ctx, rec); err != nil {
		r.metrics.RecordError("recorder_store")
		r.log.Warn("store signal failed", applogger.Error(err))
	}
	r.metrics.RecordLatency("record", time.Since(start).Seconds())
}
