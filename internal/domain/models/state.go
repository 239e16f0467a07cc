package models

// EngineSnapshot is a read-only copy of the fusion engine's estimator state.
type EngineSnapshot struct {
	Processed  uint64             `json:"processed"`
	Failed     uint64             `json:"failed"`
	Kalman     KalmanSnapshot     `json:"kalman"`
	Regime     RegimeSnapshot     `json:"regime"`
	Classifier ClassifierSnapshot `json:"classifier"`
	// Correlation is nil until the hedge estimator has seen a valid pair.
	Correlation *[2][2]float64 `json:"correlation_matrix,omitempty"`
}

type KalmanSnapshot struct {
	Initialized bool          `json:"initialized"`
	State       [2]float64    `json:"state"`
	Covariance  [2][2]float64 `json:"covariance"`
}

type RegimeSnapshot struct {
	HistoryLen int    `json:"history_len"`
	Status     string `json:"status"` // cold, warm, fitted
	LastLabel  *int   `json:"last_label,omitempty"`
}

type ClassifierSnapshot struct {
	Trained bool   `json:"trained"`
	Model   string `json:"model,omitempty"`
}
