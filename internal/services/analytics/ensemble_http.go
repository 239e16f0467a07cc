package analytics

import (
	"context"
	"fmt"

	domsvc "QuantBridge/internal/domain/service"
	"QuantBridge/pkg/config"
	xhttp "QuantBridge/pkg/http"
)

// HTTPEnsembleModel scores feature vectors with a remote ensemble classifier.
type HTTPEnsembleModel struct{ base *HTTPServiceBase }

func NewHTTPEnsembleModel(cfg *config.Config, opts ...xhttp.ClientOption) *HTTPEnsembleModel {
	return &HTTPEnsembleModel{base: NewHTTPServiceBase(cfg, opts...)}
}

type scoreRequest struct {
	Features []float64 `json:"features"`
}

type scoreResponse struct {
	Probability float64 `json:"probability"`
}

func (m *HTTPEnsembleModel) PredictProbability(ctx context.Context, features []float64) (float64, error) {
	var sr scoreResponse
	if err := m.base.PostJSONWithRetry(ctx, "/ensemble/predict_proba", scoreRequest{Features: features}, &sr, 2); err != nil {
		return 0, fmt.Errorf("score: %w", err)
	}
	return sr.Probability, nil
}

func (m *HTTPEnsembleModel) Name() string { return "http-ensemble" }

func (m *HTTPEnsembleModel) BreakerState() string { return m.base.State() }

var _ domsvc.EnsembleModel = (*HTTPEnsembleModel)(nil)
