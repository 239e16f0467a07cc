// Package protocol is the wire form of the session protocol: one JSON
// observation object per request, one JSON document per response.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"

	"QuantBridge/internal/domain/models"
)

var validate = validator.New()

// Request is the observation batch as sent by the terminal.
type Request struct {
	Prices      []float64 `json:"prices" validate:"required,min=1"`
	Volumes     []float64 `json:"volumes" validate:"required,min=1"`
	Pair1Prices []float64 `json:"pair1_prices,omitempty"`
	Pair2Prices []float64 `json:"pair2_prices,omitempty"`
}

// Decode parses and validates one request document.
func Decode(raw []byte) (models.ObservationBatch, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return models.ObservationBatch{}, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	return req.Batch()
}

// Batch validates the request and converts it to a domain batch.
func (r Request) Batch() (models.ObservationBatch, error) {
	if err := validate.Struct(r); err != nil {
		return models.ObservationBatch{}, fmt.Errorf("%w: %s", models.ErrInvalidInput, describe(err))
	}
	if len(r.Volumes) != len(r.Prices) {
		return models.ObservationBatch{}, fmt.Errorf("%w: volumes has %d values, prices has %d",
			models.ErrInvalidInput, len(r.Volumes), len(r.Prices))
	}
	if (r.Pair1Prices == nil) != (r.Pair2Prices == nil) {
		return models.ObservationBatch{}, fmt.Errorf("%w: pair1_prices and pair2_prices must be sent together", models.ErrInvalidInput)
	}
	for name, xs := range map[string][]float64{
		"prices":       r.Prices,
		"volumes":      r.Volumes,
		"pair1_prices": r.Pair1Prices,
		"pair2_prices": r.Pair2Prices,
	} {
		for i, x := range xs {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return models.ObservationBatch{}, fmt.Errorf("%w: %s[%d] is not finite", models.ErrInvalidInput, name, i)
			}
		}
	}
	return models.ObservationBatch{
		Prices:  r.Prices,
		Volumes: r.Volumes,
		Pair1:   r.Pair1Prices,
		Pair2:   r.Pair2Prices,
	}, nil
}

func describe(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		switch fe.Tag() {
		case "required", "min":
			msgs = append(msgs, fmt.Sprintf("%s is required", strings.ToLower(fe.Field())))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
