package estimators

import (
	"fmt"

	"QuantBridge/internal/domain/models"
	domsvc "QuantBridge/internal/domain/service"
)

const componentCount = 3

// Components refits a 3-component projection on every call.
type Components struct {
	newProjector domsvc.ProjectorFactory
}

func NewComponents(factory domsvc.ProjectorFactory) *Components {
	return &Components{newProjector: factory}
}

// Extract projects a rows=time matrix and returns the projected series,
// their first differences along time and the explained-variance ratios.
func (c *Components) Extract(matrix [][]float64) (models.ComponentResult, error) {
	var res models.ComponentResult
	if len(matrix) < componentCount {
		return res, fmt.Errorf("%w: need at least %d rows, got %d", models.ErrInvalidInput, componentCount, len(matrix))
	}
	width := len(matrix[0])
	if width < componentCount {
		return res, fmt.Errorf("%w: need at least %d columns, got %d", models.ErrInvalidInput, componentCount, width)
	}
	for i, row := range matrix {
		if len(row) != width {
			return res, fmt.Errorf("%w: row %d has %d columns, want %d", models.ErrInvalidInput, i, len(row), width)
		}
	}

	p := c.newProjector(componentCount)
	if err := p.Fit(matrix); err != nil {
		return res, fmt.Errorf("%w: fit: %v", models.ErrNumeric, err)
	}
	proj, err := p.Transform(matrix)
	if err != nil {
		return res, fmt.Errorf("%w: transform: %v", models.ErrNumeric, err)
	}

	momentum := make([][]float64, 0, len(proj)-1)
	for t := 1; t < len(proj); t++ {
		row := make([]float64, len(proj[t]))
		for j := range row {
			row[j] = proj[t][j] - proj[t-1][j]
		}
		momentum = append(momentum, row)
	}
	res.Components = proj
	res.Momentum = momentum
	res.ExplainedVariance = p.ExplainedVariance()
	return res, nil
}
