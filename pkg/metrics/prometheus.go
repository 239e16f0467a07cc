package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	sessions *prometheus.GaugeVec
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		sessions: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quantbridge_sessions_active",
				Help: "Currently open client sessions",
			},
			[]string{"transport"},
		),
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantbridge_requests_total",
				Help: "Processed observation batches by outcome",
			},
			[]string{"transport", "result"},
		),
		errors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantbridge_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quantbridge_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) SessionOpened(transport string) {
	r.sessions.WithLabelValues(transport).Inc()
}

func (r *Recorder) SessionClosed(transport string) {
	r.sessions.WithLabelValues(transport).Dec()
}

// RecordRequest counts one request; result is "ok" or "error".
func (r *Recorder) RecordRequest(transport, result string) {
	r.requests.WithLabelValues(transport, result).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errors.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards all measurements.
type Nop struct{}

func (Nop) SessionOpened(string)          {}
func (Nop) SessionClosed(string)          {}
func (Nop) RecordRequest(string, string)  {}
func (Nop) RecordError(string)            {}
func (Nop) RecordLatency(string, float64) {}
