package protocol

import (
	"encoding/json"

	"QuantBridge/internal/domain/models"
)

// Response is the bundle as sent to the terminal.
type Response struct {
	ZScore              float64 `json:"zScore"`
	IsDirectionalRegime bool    `json:"isDirectionalRegime"`
	MLProbability       float64 `json:"mlProbability"`
	KalmanSignal        bool    `json:"kalmanSignal"`
	HedgeSignal         bool    `json:"hedgeSignal"`
	Correlation         float64 `json:"correlation"`
	OptimalStopSignal   bool    `json:"optimalStopSignal"`
}

// ErrorResponse is the only shape a failure takes on the wire.
type ErrorResponse struct {
	Error string `json:"error"`
}

func FromBundle(b models.SignalBundle) Response {
	return Response{
		ZScore:              b.ZScore,
		IsDirectionalRegime: b.IsDirectionalRegime,
		MLProbability:       b.MLProbability,
		KalmanSignal:        b.KalmanSignal,
		HedgeSignal:         b.HedgeSignal,
		Correlation:         b.Correlation,
		OptimalStopSignal:   b.OptimalStopSignal,
	}
}

// Payload returns the value to serialise for a result.
func Payload(r models.Result) interface{} {
	if b, ok := r.Bundle(); ok {
		return FromBundle(b)
	}
	msg := "internal error"
	if err := r.Err(); err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return ErrorResponse{Error: msg}
}

// Encode serialises a result followed by a newline.
func Encode(r models.Result) []byte {
	b, err := json.Marshal(Payload(r))
	if err != nil {
		b, _ = json.Marshal(ErrorResponse{Error: err.Error()})
	}
	return append(b, '\n')
}
