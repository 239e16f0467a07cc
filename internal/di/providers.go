package di

import (
	"context"
	"fmt"
	"time"

	"QuantBridge/internal/domain/repository"
	domsvc "QuantBridge/internal/domain/service"
	"QuantBridge/internal/handler/api"
	"QuantBridge/internal/handler/session"
	internalrepo "QuantBridge/internal/repository"
	"QuantBridge/internal/service/cache"
	"QuantBridge/internal/service/ratelimit"
	"QuantBridge/internal/services/analytics"
	"QuantBridge/internal/services/estimators"
	"QuantBridge/internal/services/features"
	"QuantBridge/internal/services/numeric"
	"QuantBridge/internal/usecase"
	pkgch "QuantBridge/pkg/clickhouse"
	"QuantBridge/pkg/config"
	xhttp "QuantBridge/pkg/http"
	pkgkafka "QuantBridge/pkg/kafka"
	applogger "QuantBridge/pkg/logger"
	"QuantBridge/pkg/metrics"
	"QuantBridge/pkg/server"
)

// ProvideLogger builds the application logger from the log block.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient returns nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config, log *applogger.Logger) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			log.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	return client, cleanup, nil
}

// ProvideSignalStore picks the ClickHouse audit table or the in-memory ring.
func ProvideSignalStore(client *pkgch.Client, log *applogger.Logger) (repository.SignalStore, error) {
	if client == nil {
		return internalrepo.NewMemorySignalStore(0), nil
	}
	store := internalrepo.NewCHSignalStore(client, log)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// ProvideKafkaProducer returns nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithLinger(cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideSignalPublisher wraps the producer; the cleanup closes it after the
// recorder has drained.
func ProvideSignalPublisher(cfg *config.Config, producer *pkgkafka.Producer, log *applogger.Logger) (repository.SignalPublisher, func()) {
	if producer == nil {
		return internalrepo.NopPublisher{}, func() {}
	}
	pub := internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.SignalsTopic)
	return pub, func() {
		if err := pub.Close(); err != nil {
			log.Warn("kafka producer close error", applogger.Error(err))
		}
	}
}

// ProvideRegimeFitter returns the Gaussian HMM fitter.
func ProvideRegimeFitter() domsvc.RegimeFitter {
	return numeric.NewGaussianHMMFitter()
}

// ProvideEnsembleModel loads the ONNX export when configured, otherwise the
// remote scoring service, otherwise nothing (classifier stays untrained).
func ProvideEnsembleModel(cfg *config.Config, log *applogger.Logger) (domsvc.EnsembleModel, func(), error) {
	switch {
	case cfg.Analytics.ModelPath != "":
		m, err := analytics.LoadONNXEnsembleModel(cfg.Analytics.ModelPath, cfg.Analytics.ONNXLibraryPath, features.VectorLen)
		if err != nil {
			return nil, nil, err
		}
		return m, func() {
			if err := m.Close(); err != nil {
				log.Warn("onnx model close error", applogger.Error(err))
			}
		}, nil
	case cfg.Analytics.ScoringServiceURL != "":
		return analytics.NewHTTPEnsembleModel(cfg), func() {}, nil
	default:
		return nil, func() {}, nil
	}
}

// ProvideFusionEngine builds the shared engine and trains its classifier.
func ProvideFusionEngine(cfg *config.Config, fitter domsvc.RegimeFitter, model domsvc.EnsembleModel, log *applogger.Logger) (*usecase.FusionEngine, error) {
	opts := []usecase.EngineOption{usecase.WithRegimeHistoryCap(cfg.Engine.RegimeHistoryCap)}
	if cfg.Engine.Kalman.SeedOnFirst {
		opts = append(opts, usecase.WithKalmanSeeding(cfg.Engine.Kalman.InitialVariance))
	}
	engine := usecase.NewFusionEngine(fitter, log, opts...)
	if model != nil {
		if err := engine.Classifier().Train(model); err != nil {
			return nil, fmt.Errorf("train classifier: %w", err)
		}
		log.Info("classifier trained", applogger.String("model", model.Name()))
	}
	return engine, nil
}

// ProvideSignalRecorder creates the background sink fan-out.
func ProvideSignalRecorder(pub repository.SignalPublisher, store repository.SignalStore, m repository.Metrics, log *applogger.Logger) *usecase.SignalRecorder {
	return usecase.NewSignalRecorder(pub, store, m, log.With(applogger.String("component", "recorder")))
}

// ProvideSignalService is the entry point shared by every transport.
func ProvideSignalService(engine *usecase.FusionEngine, recorder *usecase.SignalRecorder, m repository.Metrics) *usecase.SignalService {
	return usecase.NewSignalService(engine, recorder, m)
}

// ProvideSessionServer creates the terminal TCP listener.
func ProvideSessionServer(cfg *config.Config, svc *usecase.SignalService, m repository.Metrics, log *applogger.Logger) *session.Server {
	return session.NewServer(cfg.SessionAddr(), svc, m, log)
}

// ProvideBytesCache uses Redis when enabled, the in-process TTL cache otherwise.
func ProvideBytesCache(cfg *config.Config, log *applogger.Logger) (cache.BytesCache, func()) {
	if !cfg.Analytics.Redis.Enabled {
		return cache.NewTTLCache(), func() {}
	}
	rc := cache.NewRedisCache(cache.RedisConfig{
		Addr:     cfg.Analytics.Redis.Addr,
		Password: cfg.Analytics.Redis.Password,
		DB:       cfg.Analytics.Redis.DB,
	})
	return rc, func() {
		if err := rc.Close(); err != nil {
			log.Warn("redis close error", applogger.Error(err))
		}
	}
}

func ProvideCointegrationCache(cfg *config.Config, store cache.BytesCache) *cache.CointegrationCache {
	return cache.NewCointegrationCache(store, cfg.Analytics.CointegrationTTL)
}

func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Analytics.RateLimit.Capacity, cfg.Analytics.RateLimit.RefillPerSec)
}

func ProvideCointegration() *estimators.Cointegration {
	return estimators.NewCointegration(numeric.ADF{}, numeric.Johansen{})
}

func ProvideComponents() *estimators.Components {
	return estimators.NewComponents(func(n int) domsvc.Projector { return numeric.NewPCA(n) })
}

// ProvideHealthChecks collects the optional dependencies worth probing.
func ProvideHealthChecks(model domsvc.EnsembleModel, store cache.BytesCache) map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{}
	if rc, ok := store.(*cache.RedisCache); ok {
		checks["redis"] = rc.Ping
	}
	if hm, ok := model.(*analytics.HTTPEnsembleModel); ok {
		checks["scoring"] = func(context.Context) error {
			if st := hm.BreakerState(); st == "open" {
				return fmt.Errorf("circuit breaker %s", st)
			}
			return nil
		}
	}
	return checks
}

func ProvideAnalyticsHandler(
	log *applogger.Logger,
	svc *usecase.SignalService,
	coint *estimators.Cointegration,
	comps *estimators.Components,
	cointCache *cache.CointegrationCache,
	limiter *ratelimit.Limiter,
	store repository.SignalStore,
	checks map[string]api.HealthCheck,
) *api.AnalyticsEchoHandler {
	return api.NewAnalyticsEchoHandler(log, svc, coint, comps, cointCache, limiter, store, checks)
}

func ProvideSessionWSHandler(svc *usecase.SignalService, m repository.Metrics, log *applogger.Logger) *api.SessionWSHandler {
	return api.NewSessionWSHandler(svc, m, log)
}

// ProvideHTTPServer mounts the analytics API and the WebSocket session route.
func ProvideHTTPServer(cfg *config.Config, log *applogger.Logger, a *api.AnalyticsEchoHandler, ws *api.SessionWSHandler) *xhttp.Server {
	return xhttp.NewServer(log, []xhttp.Handler{a, ws},
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(true),
	)
}

// ProvideKafkaConsumer returns nil unless Kafka is enabled and an
// observations topic is configured.
func ProvideKafkaConsumer(cfg *config.Config, svc *usecase.SignalService, m repository.Metrics, log *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.ObservationsTopic == "" {
		return nil, nil
	}
	c := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(c.GroupID),
		pkgkafka.WithConsumerWorkers(c.Workers),
		pkgkafka.WithConsumerBufferSize(c.BufferSize),
		pkgkafka.WithConsumerRetry(c.RetryMax, c.BackoffMin, c.BackoffMax),
		pkgkafka.WithConsumerDLQ(c.DLQTopic),
		pkgkafka.WithConsumerLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewKafkaObservationsHandler(cfg.Kafka.ObservationsTopic, svc, m))
	return consumer, nil
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	svc *usecase.SignalService,
	sessionServer *session.Server,
	httpServer *xhttp.Server,
	recorder *usecase.SignalRecorder,
	consumer *pkgkafka.Consumer,
) *server.App {
	return server.New(cfg, log, svc, sessionServer, httpServer, recorder, consumer)
}
