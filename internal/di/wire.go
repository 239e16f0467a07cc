//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"QuantBridge/pkg/config"
	"QuantBridge/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application. The
// cleanup func releases sinks and must run after App.Run returns.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// sinks
		ProvideClickHouseClient,
		ProvideSignalStore,
		ProvideKafkaProducer,
		ProvideSignalPublisher,

		// engine
		ProvideRegimeFitter,
		ProvideEnsembleModel,
		ProvideFusionEngine,
		ProvideSignalRecorder,
		ProvideSignalService,

		// analytics API
		ProvideBytesCache,
		ProvideCointegrationCache,
		ProvideRateLimiter,
		ProvideCointegration,
		ProvideComponents,
		ProvideHealthChecks,
		ProvideAnalyticsHandler,
		ProvideSessionWSHandler,

		// transports
		ProvideSessionServer,
		ProvideHTTPServer,
		ProvideKafkaConsumer,

		ProvideApp,
	)
	return nil, nil, nil
}
