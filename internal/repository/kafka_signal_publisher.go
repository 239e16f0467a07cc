package repository

import (
	"context"
	"time"

	"QuantBridge/internal/domain/models"
	domrepo "QuantBridge/internal/domain/repository"
	pkgkafka "QuantBridge/pkg/kafka"
)

// SignalMessage is the JSON document written to the signals topic.
type SignalMessage struct {
	Timestamp           time.Time `json:"ts"`
	Source              string    `json:"source"`
	LastPrice           float64   `json:"lastPrice"`
	ZScore              float64   `json:"zScore"`
	IsDirectionalRegime bool      `json:"isDirectionalRegime"`
	MLProbability       float64   `json:"mlProbability"`
	KalmanSignal        bool      `json:"kalmanSignal"`
	HedgeSignal         bool      `json:"hedgeSignal"`
	Correlation         float64   `json:"correlation"`
	OptimalStopSignal   bool      `json:"optimalStopSignal"`
}

func NewSignalMessage(rec *models.SignalRecord) SignalMessage {
	b := rec.Bundle
	return SignalMessage{
		Timestamp:           rec.Timestamp,
		Source:              rec.Source,
		LastPrice:           rec.LastPrice,
		ZScore:              b.ZScore,
		IsDirectionalRegime: b.IsDirectionalRegime,
		MLProbability:       b.MLProbability,
		KalmanSignal:        b.KalmanSignal,
		HedgeSignal:         b.HedgeSignal,
		Correlation:         b.Correlation,
		OptimalStopSignal:   b.OptimalStopSignal,
	}
}

// KafkaSignalPublisher writes bundles to one topic, keyed by source transport.
type KafkaSignalPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaSignalPublisher(producer *pkgkafka.Producer, topic string) *KafkaSignalPublisher {
	return &KafkaSignalPublisher{producer: producer, topic: topic}
}

func (p *KafkaSignalPublisher) Publish(ctx context.Context, rec *models.SignalRecord) error {
	return p.producer.Publish(ctx, p.topic, []byte(rec.Source), NewSignalMessage(rec))
}

func (p *KafkaSignalPublisher) PublishBatch(ctx context.Context, recs []*models.SignalRecord) error {
	if len(recs) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(recs))
	for i, r := range recs {
		msgs[i] = pkgkafka.Message{Key: []byte(r.Source), Value: NewSignalMessage(r)}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaSignalPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var _ domrepo.SignalPublisher = (*KafkaSignalPublisher)(nil)
