package usecase

import (
	"context"
	"time"

	"QuantBridge/internal/domain/models"
	domrepo "QuantBridge/internal/domain/repository"
	"QuantBridge/internal/protocol"
)

// Transport names used for metrics and record sources.
const (
	TransportTCP   = "tcp"
	TransportWS    = "ws"
	TransportKafka = "kafka"
)

// Recorder accepts successful bundles for asynchronous delivery.
type Recorder interface {
	Record(rec *models.SignalRecord) bool
}

// SignalService is what every transport calls: decode, fuse, measure, record.
type SignalService struct {
	engine   *FusionEngine
	recorder Recorder
	metrics  domrepo.Metrics
	now      func() time.Time
}

func NewSignalService(engine *FusionEngine, recorder Recorder, metrics domrepo.Metrics) *SignalService {
	return &SignalService{engine: engine, recorder: recorder, metrics: metrics, now: time.Now}
}

func (s *SignalService) Engine() *FusionEngine { return s.engine }

// Handle processes one raw request document received on transport.
func (s *SignalService) Handle(ctx context.Context, transport string, raw []byte) models.Result {
	batch, err := protocol.Decode(raw)
	if err != nil {
		s.metrics.RecordError("decode")
		s.metrics.RecordRequest(transport, "error")
		return models.Failure(err)
	}
	return s.HandleBatch(ctx, transport, batch)
}

// HandleBatch processes an already decoded batch.
func (s *SignalService) HandleBatch(ctx context.Context, transport string, batch models.ObservationBatch) models.Result {
	start := s.now()
	res := s.engine.Process(ctx, batch)
	s.metrics.RecordLatency("process", time.Since(start).Seconds())

	b, ok := res.Bundle()
	if !ok {
		s.metrics.RecordRequest(transport, "error")
		return res
	}
	s.metrics.RecordRequest(transport, "ok")
	if s.recorder != nil {
		s.recorder.Record(&models.SignalRecord{
			Timestamp: start.UTC(),
			Source:    transport,
			LastPrice: batch.Last(),
			Bundle:    b,
		})
	}
	return res
}
