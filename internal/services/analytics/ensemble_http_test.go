package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantBridge/pkg/config"
)

func testConfig(t *testing.T, url string) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Analytics.ScoringServiceURL = url
	cfg.Analytics.Timeout = time.Second
	return cfg
}

func TestHTTPEnsembleModelScores(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ensemble/predict_proba", r.URL.Path)
		var req scoreRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Features, 3)
		_ = json.NewEncoder(w).Encode(scoreResponse{Probability: 0.8})
	}))
	defer srv.Close()

	m := NewHTTPEnsembleModel(testConfig(t, srv.URL))
	p, err := m.PredictProbability(context.Background(), []float64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 0.8, p)
	assert.Equal(t, "closed", m.BreakerState())
}

func TestHTTPEnsembleModelBreakerOpens(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := NewHTTPEnsembleModel(testConfig(t, srv.URL))
	for i := 0; i < 2; i++ {
		_, err := m.PredictProbability(context.Background(), []float64{1})
		require.Error(t, err)
	}
	// the third failed attempt trips the breaker
	_, err := m.PredictProbability(context.Background(), []float64{1})
	require.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Equal(t, "open", m.BreakerState())
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestHTTPServiceBaseRequiresURL(t *testing.T) {
	m := NewHTTPEnsembleModel(testConfig(t, ""))
	_, err := m.PredictProbability(context.Background(), nil)
	require.Error(t, err)
}
