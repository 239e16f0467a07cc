package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantBridge/internal/domain/models"
	domsvc "QuantBridge/internal/domain/service"
	"QuantBridge/internal/repository"
	"QuantBridge/internal/service/cache"
	"QuantBridge/internal/service/ratelimit"
	"QuantBridge/internal/services/estimators"
	"QuantBridge/internal/services/numeric"
	"QuantBridge/internal/usecase"
	xhttp "QuantBridge/pkg/http"
	"QuantBridge/pkg/metrics"
)

type fixture struct {
	server  *xhttp.Server
	service *usecase.SignalService
	store   *repository.MemorySignalStore
	ttl     *cache.TTLCache
}

func newFixture(t *testing.T, limiter *ratelimit.Limiter, checks map[string]HealthCheck) *fixture {
	t.Helper()
	engine := usecase.NewFusionEngine(numeric.NewGaussianHMMFitter(), nil)
	store := repository.NewMemorySignalStore(100)
	svc := usecase.NewSignalService(engine, nil, metrics.Nop{})
	ttl := cache.NewTTLCache()

	coint := estimators.NewCointegration(numeric.ADF{}, numeric.Johansen{})
	comps := estimators.NewComponents(func(n int) domsvc.Projector { return numeric.NewPCA(n) })
	if limiter == nil {
		limiter = ratelimit.New(1000, 1000)
	}
	h := NewAnalyticsEchoHandler(nil, svc, coint, comps, cache.NewCointegrationCache(ttl, time.Minute), limiter, store, checks)
	ws := NewSessionWSHandler(svc, metrics.Nop{}, nil)

	s := xhttp.NewServer(nil, []xhttp.Handler{h, ws}, xhttp.WithMetricsRegistry(prometheus.NewRegistry()))
	return &fixture{server: s, service: svc, store: store, ttl: ttl}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.Echo().ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, rec.Code, env.Status)
	if dest != nil {
		require.NoError(t, json.Unmarshal(env.Data, dest))
	}
}

func cointegratedPair(n int) ([]float64, []float64) {
	r := rand.New(rand.NewSource(7))
	a := make([]float64, n)
	b := make([]float64, n)
	level := 100.0
	for i := range a {
		level += r.NormFloat64()
		a[i] = level
		b[i] = level + 0.5*r.NormFloat64()
	}
	return a, b
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil, map[string]HealthCheck{"scoring": func(context.Context) error { return nil }})
	rec := f.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var checks map[string]string
	decode(t, rec, &checks)
	assert.Equal(t, map[string]string{"signal_store": "ok", "scoring": "ok"}, checks)

	f = newFixture(t, nil, map[string]HealthCheck{"scoring": func(context.Context) error { return errors.New("breaker open") }})
	rec = f.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "breaker open")
}

func TestState(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.service.Handle(context.Background(), usecase.TransportTCP, []byte(`{"prices":[1,2,3],"volumes":[1,1,1]}`))

	rec := f.do(http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap models.EngineSnapshot
	decode(t, rec, &snap)
	assert.Equal(t, uint64(1), snap.Processed)
	assert.Equal(t, 1, snap.Regime.HistoryLen)
	assert.False(t, snap.Classifier.Trained)
	require.NotNil(t, snap.Correlation)
}

func TestCointegration(t *testing.T) {
	f := newFixture(t, nil, nil)
	a, b := cointegratedPair(200)
	body, err := json.Marshal(CointegrationRequest{Series1: a, Series2: b})
	require.NoError(t, err)

	rec := f.do(http.MethodPost, "/api/cointegration", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res models.CointegrationResult
	decode(t, rec, &res)
	assert.Less(t, res.ADFPValue, 0.05)
	assert.Greater(t, res.TraceStatistic, res.MaxEigenStatistic-1e-9)
	assert.Equal(t, 1, f.ttl.Len())

	// served from cache
	rec = f.do(http.MethodPost, "/api/cointegration", string(body))
	require.Equal(t, http.StatusOK, rec.Code)
	var cached models.CointegrationResult
	decode(t, rec, &cached)
	assert.Equal(t, res, cached)
}

func TestCointegrationRejectsBadInput(t *testing.T) {
	f := newFixture(t, nil, nil)
	rec := f.do(http.MethodPost, "/api/cointegration", `{"series1":[1,2,3,4],"series2":[1,2,3]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_EQFIELD")

	rec = f.do(http.MethodPost, "/api/cointegration", `{"series1":[1,2],"series2":[1,2]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_MIN")
}

func TestCointegrationThrottled(t *testing.T) {
	f := newFixture(t, ratelimit.New(1, 0), nil)
	body := `{"series1":[1,2,3,4],"series2":[1,2,3]}`
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/cointegration", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodPost, "/api/cointegration", body).Code)
}

func TestComponents(t *testing.T) {
	f := newFixture(t, nil, nil)
	r := rand.New(rand.NewSource(3))
	matrix := make([][]float64, 12)
	for i := range matrix {
		base := float64(i)
		matrix[i] = []float64{base + r.Float64(), 2*base + r.Float64(), -base + r.Float64(), r.Float64()}
	}
	body, err := json.Marshal(ComponentsRequest{Matrix: matrix})
	require.NoError(t, err)

	rec := f.do(http.MethodPost, "/api/components", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res models.ComponentResult
	decode(t, rec, &res)
	assert.Len(t, res.Components, 12)
	assert.Len(t, res.Momentum, 11)
	require.Len(t, res.ExplainedVariance, 3)
	sum := 0.0
	for _, v := range res.ExplainedVariance {
		sum += v
	}
	assert.LessOrEqual(t, sum, 1.0+1e-9)

	rec = f.do(http.MethodPost, "/api/components", `{"matrix":[[1,2,3],[4,5],[7,8,9]]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(http.MethodPost, "/api/components", `{"matrix":[[1,2],[3,4],[5,6]]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecentSignals(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		require.NoError(t, f.store.Store(ctx, &models.SignalRecord{
			Timestamp: time.Unix(int64(i), 0).UTC(),
			Source:    "tcp",
			LastPrice: float64(i),
		}))
	}

	rec := f.do(http.MethodGet, "/api/signals/recent?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rows  []signalRow `json:"rows"`
		Total int64       `json:"total"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Rows, 2)
	assert.Equal(t, 3.0, list.Rows[0].LastPrice)
	assert.Equal(t, int64(2), list.Total)

	rec = f.do(http.MethodGet, "/api/signals/recent?limit=0", "")
	// zero is replaced by the default
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(http.MethodGet, "/api/signals/recent?limit=9999", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebSocketSession(t *testing.T) {
	f := newFixture(t, nil, nil)
	ts := httptest.NewServer(f.server.Echo())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	prices := make([]string, 30)
	volumes := make([]string, 30)
	for i := range prices {
		prices[i] = fmt.Sprint(i + 1)
		volumes[i] = "100"
	}
	req := fmt.Sprintf(`{"prices":[%s],"volumes":[%s]}`, strings.Join(prices, ","), strings.Join(volumes, ","))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(req)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(msg, &out))
	assert.Equal(t, 0.5, out["mlProbability"])
	assert.Equal(t, true, out["hedgeSignal"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"prices":`)))
	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), `"error"`)
}
