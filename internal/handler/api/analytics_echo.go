package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"QuantBridge/internal/domain/models"
	domrepo "QuantBridge/internal/domain/repository"
	"QuantBridge/internal/service/cache"
	svcmetrics "QuantBridge/internal/service/metrics"
	"QuantBridge/internal/service/ratelimit"
	"QuantBridge/internal/services/estimators"
	"QuantBridge/internal/usecase"
	xhttp "QuantBridge/pkg/http"
	xlogger "QuantBridge/pkg/logger"
)

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

type CointegrationRequest struct {
	Series1 []float64 `json:"series1" validate:"required,min=3"`
	Series2 []float64 `json:"series2" validate:"required,min=3,eqfield=Series1"`
}

type ComponentsRequest struct {
	Matrix [][]float64 `json:"matrix" validate:"required,min=3,rectangular"`
}

type RecentSignalsRequest struct {
	Limit int `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}

// AnalyticsEchoHandler serves the admin and analytics API next to the session
// transports. Cointegration and component extraction run outside the engine
// lock; they hold no shared state.
type AnalyticsEchoHandler struct {
	logger  *xlogger.Logger
	service *usecase.SignalService
	coint   *estimators.Cointegration
	comps   *estimators.Components
	cache   *cache.CointegrationCache
	limiter *ratelimit.Limiter
	store   domrepo.SignalStore
	checks  map[string]HealthCheck
}

func NewAnalyticsEchoHandler(
	logger *xlogger.Logger,
	service *usecase.SignalService,
	coint *estimators.Cointegration,
	comps *estimators.Components,
	cointCache *cache.CointegrationCache,
	limiter *ratelimit.Limiter,
	store domrepo.SignalStore,
	checks map[string]HealthCheck,
) *AnalyticsEchoHandler {
	svcmetrics.Register()
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &AnalyticsEchoHandler{
		logger:  logger,
		service: service,
		coint:   coint,
		comps:   comps,
		cache:   cointCache,
		limiter: limiter,
		store:   store,
		checks:  checks,
	}
}

func (h *AnalyticsEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.GET("/state", h.State)
	g.POST("/cointegration", h.Cointegration, h.throttle)
	g.POST("/components", h.Components, h.throttle)
	g.GET("/signals/recent", h.RecentSignals)
}

func (h *AnalyticsEchoHandler) throttle(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.limiter != nil && !h.limiter.Allow(c.RealIP()) {
			svcmetrics.Throttled.Inc()
			return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limit exceeded"))
		}
		return next(c)
	}
}

func (h *AnalyticsEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks)+1)
	if err := h.store.Health(ctx); err != nil {
		results["signal_store"] = err.Error()
		status = http.StatusServiceUnavailable
	} else {
		results["signal_store"] = "ok"
	}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	return xhttp.DataResponse(c, status, results)
}

func (h *AnalyticsEchoHandler) State(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.service.Engine().Snapshot())
}

func (h *AnalyticsEchoHandler) Cointegration(c echo.Context) error {
	const endpoint = "cointegration"
	start := time.Now()
	defer func() { svcmetrics.AnalyticsLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &CointegrationRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()
	key := cache.PairKey(req.Series1, req.Series2)

	if h.cache != nil {
		res, ok, err := h.cache.Get(ctx, key)
		switch {
		case err != nil:
			svcmetrics.CacheLookups.WithLabelValues("error").Inc()
			h.logger.Warn("cointegration cache read failed", xlogger.Error(err))
		case ok:
			svcmetrics.CacheLookups.WithLabelValues("hit").Inc()
			return xhttp.SuccessResponse(c, res)
		default:
			svcmetrics.CacheLookups.WithLabelValues("miss").Inc()
		}
	}

	res, err := h.coint.Test(req.Series1, req.Series2)
	if err != nil {
		svcmetrics.AnalyticsErrors.WithLabelValues(endpoint).Inc()
		h.logger.Warn("cointegration test failed", xlogger.Int("n", len(req.Series1)), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, domainError(err))
	}
	if h.cache != nil {
		if err := h.cache.Set(ctx, key, res); err != nil {
			h.logger.Warn("cointegration cache write failed", xlogger.Error(err))
		}
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AnalyticsEchoHandler) Components(c echo.Context) error {
	const endpoint = "components"
	start := time.Now()
	defer func() { svcmetrics.AnalyticsLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &ComponentsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.comps.Extract(req.Matrix)
	if err != nil {
		svcmetrics.AnalyticsErrors.WithLabelValues(endpoint).Inc()
		h.logger.Warn("component extraction failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, domainError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AnalyticsEchoHandler) RecentSignals(c echo.Context) error {
	req := &RecentSignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	recs, err := h.store.Recent(c.Request().Context(), req.Limit)
	if err != nil {
		h.logger.Error("recent signals query failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("signal store unavailable").WithError(err))
	}
	rows := make([]signalRow, len(recs))
	for i, r := range recs {
		rows[i] = newSignalRow(r)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

type signalRow struct {
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

func newSignalRow(r *models.SignalRecord) signalRow {
	b := r.Bundle
	return signalRow{
		Timestamp:           r.Timestamp,
		Source:              r.Source,
		LastPrice:           r.LastPrice,
		ZScore:              b.ZScore,
		IsDirectionalRegime: b.IsDirectionalRegime,
		MLProbability:       b.MLProbability,
		KalmanSignal:        b.KalmanSignal,
		HedgeSignal:         b.HedgeSignal,
		Correlation:         b.Correlation,
		OptimalStopSignal:   b.OptimalStopSignal,
	}
}

// domainError maps engine sentinels onto HTTP errors.
func domainError(err error) error {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrNumeric):
		return xhttp.UnprocessableError(err.Error()).WithError(err)
	default:
		return xhttp.InternalError("analytics failure").WithError(err)
	}
}
