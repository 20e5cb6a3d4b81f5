package aggregation

import (
	"github.com/inferloop/flsim/internal/model"
)

// aggregateFedAvg averages client weights proportionally to each client's
// data size. A single participant's weights pass through unchanged.
func (e *Engine) aggregateFedAvg(updates []ClientUpdate) (*Result, error) {
	if len(updates) == 1 {
		return &Result{Weights: updates[0].Weights.Clone()}, nil
	}

	var totalData int
	for _, u := range updates {
		totalData += u.DataSize
	}

	weights := make([]float64, len(updates))
	if totalData == 0 {
		// No data volume information; fall back to a uniform average.
		for i := range weights {
			weights[i] = 1 / float64(len(updates))
		}
	} else {
		for i, u := range updates {
			weights[i] = float64(u.DataSize) / float64(totalData)
		}
	}

	flat := averageFlat(updates, weights)
	merged, err := model.Unflatten(flat, updates[0].Weights.Shape())
	if err != nil {
		return nil, err
	}
	return &Result{Weights: merged}, nil
}
