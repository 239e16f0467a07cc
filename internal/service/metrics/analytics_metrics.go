package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	AnalyticsLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "quantbridge",
			Subsystem: "analytics",
			Name:      "latency_seconds",
			Help:      "Latency of analytics endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	AnalyticsErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quantbridge",
			Subsystem: "analytics",
			Name:      "errors_total",
			Help:      "Errors by analytics endpoint",
		},
		[]string{"endpoint"},
	)

	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quantbridge",
			Subsystem: "analytics",
			Name:      "cache_lookups_total",
			Help:      "Cointegration cache lookups by outcome",
		},
		[]string{"result"},
	)

	Throttled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "quantbridge",
			Subsystem: "analytics",
			Name:      "throttled_total",
			Help:      "Requests rejected by the rate limiter",
		},
	)
)

// Register adds the analytics collectors to the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(AnalyticsLatency, AnalyticsErrors, CacheLookups, Throttled)
	})
}
