package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"QuantBridge/internal/handler/session"
	"QuantBridge/internal/usecase"
	"QuantBridge/pkg/config"
	xhttp "QuantBridge/pkg/http"
	pkgkafka "QuantBridge/pkg/kafka"
	applogger "QuantBridge/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	service    *usecase.SignalService
	session    *session.Server
	httpServer *xhttp.Server
	recorder   *usecase.SignalRecorder
	consumer   *pkgkafka.Consumer
}

// New creates a new App. consumer may be nil when no observations topic is configured.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	service *usecase.SignalService,
	sessionServer *session.Server,
	httpServer *xhttp.Server,
	recorder *usecase.SignalRecorder,
	consumer *pkgkafka.Consumer,
) *App {
	if log == nil {
		log = applogger.Nop()
	}
	return &App{
		cfg:        cfg,
		log:        log,
		service:    service,
		session:    sessionServer,
		httpServer: httpServer,
		recorder:   recorder,
		consumer:   consumer,
	}
}

// Run starts every component and blocks until SIGINT/SIGTERM or a fatal
// listener error.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext is Run with caller-controlled cancellation.
func (a *App) RunContext(ctx context.Context) error {
	// sink calls outlive the signal so the recorder can drain on shutdown
	sinkCtx, cancelSinks := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelSinks()
	a.recorder.Start(sinkCtx)

	if err := a.session.Start(ctx); err != nil {
		a.shutdown()
		return fmt.Errorf("session listener: %w", err)
	}

	if err := a.httpServer.Start(); err != nil {
		a.shutdown()
		return fmt.Errorf("http server: %w", err)
	}

	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			a.shutdown()
			return fmt.Errorf("kafka consumer: %w", err)
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.cfg.Kafka.ObservationsTopic))
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown stops intake first, then drains the recorder. Sinks are released by
// the caller afterwards.
func (a *App) shutdown() error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := a.session.Stop(ctx); err != nil {
		a.log.Warn("session stop error", applogger.Error(err))
		errs = append(errs, err)
	}
	if err := a.httpServer.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.log.Warn("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if err := a.recorder.Stop(ctx); err != nil {
		a.log.Warn("recorder drain incomplete", applogger.Error(err))
		errs = append(errs, err)
	}

	snap := a.service.Engine().Snapshot()
	a.log.Info("shutdown complete",
		applogger.Int64("processed", int64(snap.Processed)),
		applogger.Int64("failed", int64(snap.Failed)),
	)
	return errors.Join(errs...)
}
