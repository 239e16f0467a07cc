package repository

import (
	"context"

	"QuantBridge/internal/domain/models"
)

type SignalPublisher interface {
	Publish(ctx context.Context, rec *models.SignalRecord) error
	PublishBatch(ctx context.Context, recs []*models.SignalRecord) error
	Close() error
}

type SignalStore interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, rec *models.SignalRecord) error
	Recent(ctx context.Context, limit int) ([]*models.SignalRecord, error)
	Health(ctx context.Context) error // ping
	Close() error
}

type Metrics interface {
	SessionOpened(transport string)
	SessionClosed(transport string)
	RecordRequest(transport, result string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
