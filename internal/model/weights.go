package model

import (
	"math/rand"

	"gonum.org/v1/gonum/stat"

	"github.com/inferloop/flsim/pkg/errors"
)

// ModelWeights holds the parameters of the small two-layer MLP every
// simulated client trains: two weight matrices and two bias vectors.
type ModelWeights struct {
	HiddenWeights [][]float64 `json:"hiddenWeights"`
	HiddenBias    []float64   `json:"hiddenBias"`
	OutputWeights [][]float64 `json:"outputWeights"`
	OutputBias    []float64   `json:"outputBias"`
}

// WeightShape describes the tensor dimensions of a ModelWeights value.
// Flattened vectors carry no structure, so the shape is needed to restore
// them.
type WeightShape struct {
	HiddenRows int `json:"hiddenRows"`
	HiddenCols int `json:"hiddenCols"`
	OutputRows int `json:"outputRows"`
	OutputCols int `json:"outputCols"`
}

// Len returns the length of the flattened vector for this shape.
func (s WeightShape) Len() int {
	return s.HiddenRows*s.HiddenCols + s.HiddenCols + s.OutputRows*s.OutputCols + s.OutputCols
}

// NewModelWeights allocates zeroed weights for the given shape.
func NewModelWeights(shape WeightShape) *ModelWeights {
	hidden := make([][]float64, shape.HiddenRows)
	for i := range hidden {
		hidden[i] = make([]float64, shape.HiddenCols)
	}
	output := make([][]float64, shape.OutputRows)
	for i := range output {
		output[i] = make([]float64, shape.OutputCols)
	}
	return &ModelWeights{
		HiddenWeights: hidden,
		HiddenBias:    make([]float64, shape.HiddenCols),
		OutputWeights: output,
		OutputBias:    make([]float64, shape.OutputCols),
	}
}

// RandomModelWeights initializes weights with small seeded random values,
// the usual starting point for a fresh global model.
func RandomModelWeights(shape WeightShape, seed int64) *ModelWeights {
	rng := rand.New(rand.NewSource(seed))
	w := NewModelWeights(shape)
	fill := func(v []float64) {
		for i := range v {
			v[i] = (rng.Float64() - 0.5) * 0.1
		}
	}
	for i := range w.HiddenWeights {
		fill(w.HiddenWeights[i])
	}
	fill(w.HiddenBias)
	for i := range w.OutputWeights {
		fill(w.OutputWeights[i])
	}
	fill(w.OutputBias)
	return w
}

// Shape returns the tensor dimensions of the weights.
func (w *ModelWeights) Shape() WeightShape {
	shape := WeightShape{
		HiddenRows: len(w.HiddenWeights),
		OutputRows: len(w.OutputWeights),
	}
	if shape.HiddenRows > 0 {
		shape.HiddenCols = len(w.HiddenWeights[0])
	}
	if shape.OutputRows > 0 {
		shape.OutputCols = len(w.OutputWeights[0])
	}
	return shape
}

// Flatten serializes the weights into a single ordered vector. The order is
// fixed (hidden matrix row-major, hidden bias, output matrix row-major,
// output bias) so that Unflatten is an exact inverse.
func (w *ModelWeights) Flatten() []float64 {
	flat := make([]float64, 0, w.Shape().Len())
	for _, row := range w.HiddenWeights {
		flat = append(flat, row...)
	}
	flat = append(flat, w.HiddenBias...)
	for _, row := range w.OutputWeights {
		flat = append(flat, row...)
	}
	flat = append(flat, w.OutputBias...)
	return flat
}

// Unflatten restores structured weights from a flat vector produced by
// Flatten with the same shape.
func Unflatten(flat []float64, shape WeightShape) (*ModelWeights, error) {
	if len(flat) != shape.Len() {
		return nil, errors.NewValidationError(errors.CodeInvalidInput,
			"flat vector length does not match shape")
	}

	w := NewModelWeights(shape)
	idx := 0
	for i := range w.HiddenWeights {
		idx += copy(w.HiddenWeights[i], flat[idx:idx+shape.HiddenCols])
	}
	idx += copy(w.HiddenBias, flat[idx:idx+shape.HiddenCols])
	for i := range w.OutputWeights {
		idx += copy(w.OutputWeights[i], flat[idx:idx+shape.OutputCols])
	}
	copy(w.OutputBias, flat[idx:])
	return w, nil
}

// Clone returns a deep copy of the weights.
func (w *ModelWeights) Clone() *ModelWeights {
	c := NewModelWeights(w.Shape())
	for i := range w.HiddenWeights {
		copy(c.HiddenWeights[i], w.HiddenWeights[i])
	}
	copy(c.HiddenBias, w.HiddenBias)
	for i := range w.OutputWeights {
		copy(c.OutputWeights[i], w.OutputWeights[i])
	}
	copy(c.OutputBias, w.OutputBias)
	return c
}

// TensorStats summarizes one tensor of a weight snapshot.
type TensorStats struct {
	Name string  `json:"name"`
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// SnapshotStats computes per-tensor mean and standard deviation, recorded in
// round metrics for trend charts.
func (w *ModelWeights) SnapshotStats() []TensorStats {
	flatMatrix := func(m [][]float64) []float64 {
		var out []float64
		for _, row := range m {
			out = append(out, row...)
		}
		return out
	}

	stats := make([]TensorStats, 0, 4)
	for _, tensor := range []struct {
		name   string
		values []float64
	}{
		{"hiddenWeights", flatMatrix(w.HiddenWeights)},
		{"hiddenBias", w.HiddenBias},
		{"outputWeights", flatMatrix(w.OutputWeights)},
		{"outputBias", w.OutputBias},
	} {
		var mean, std float64
		if len(tensor.values) > 0 {
			mean, std = stat.MeanStdDev(tensor.values, nil)
		}
		if len(tensor.values) < 2 {
			std = 0
		}
		stats = append(stats, TensorStats{Name: tensor.name, Mean: mean, Std: std})
	}
	return stats
}
