package usecase

import (
	"context"
	"errors"
	"fmt"

	"QuantBridge/internal/domain/models"
	domrepo "QuantBridge/internal/domain/repository"
	pkgkafka "QuantBridge/pkg/kafka"
)

// KafkaObservationsHandler feeds observation batches from Kafka into the
// shared engine. Resulting bundles leave through the signal recorder.
type KafkaObservationsHandler struct {
	topic   string
	service *SignalService
	metrics domrepo.Metrics
}

func NewKafkaObservationsHandler(topic string, service *SignalService, metrics domrepo.Metrics) *KafkaObservationsHandler {
	return &KafkaObservationsHandler{topic: topic, service: service, metrics: metrics}
}

func (h *KafkaObservationsHandler) Topic() string { return h.topic }

// incoming message schema: same JSON object as a session request
func (h *KafkaObservationsHandler) Handle(ctx context.Context, b []byte) error {
	res := h.service.Handle(ctx, TransportKafka, b)
	if err := res.Err(); err != nil {
		h.metrics.RecordError("consumer_observation")
		// input and numeric failures are deterministic for a given payload
		if errors.Is(err, models.ErrInvalidInput) || errors.Is(err, models.ErrNumeric) {
			return pkgkafka.Permanent(fmt.Errorf("observation rejected: %w", err))
		}
		return fmt.Errorf("observation failed: %w", err)
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaObservationsHandler)(nil)
