package reduction

import (
	"sync"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/inferloop/flsim/internal/model"
	"github.com/inferloop/flsim/pkg/errors"
)

// Sample is one flattened weight vector observed at a round, labeled with
// the entity (client id or the global model) it belongs to.
type Sample struct {
	Round    int
	EntityID string
	Vector   []float64
}

// Reducer projects weight trajectories onto their top three principal
// components for visualization. Output is derived data only; nothing in the
// simulation reads it back.
type Reducer struct {
	logger *logrus.Logger

	// mu guards prevComponents; Project may be called from concurrent
	// readers of the simulation state.
	mu sync.Mutex
	// previous components, kept to stabilize sign across recomputation
	prevComponents *mat.Dense
}

// NewReducer creates a PCA reducer.
func NewReducer(logger *logrus.Logger) *Reducer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Reducer{logger: logger}
}

// Project computes a 3D position for every sample. Data is mean-centered
// before decomposition and components are ordered by descending explained
// variance. PCA leaves component signs arbitrary, so each recomputation
// aligns signs to the previous one by a dot-product check, keeping
// trajectories stable across rounds.
func (r *Reducer) Project(samples []Sample) ([]model.Position3D, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(samples) == 0 {
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "no samples to project")
	}

	dim := len(samples[0].Vector)
	for _, s := range samples {
		if len(s.Vector) != dim {
			return nil, errors.NewValidationError(errors.CodeInvalidInput,
				"all sample vectors must have the same length")
		}
	}
	if dim == 0 {
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "sample vectors are empty")
	}

	data := mat.NewDense(len(samples), dim, nil)
	for i, s := range samples {
		data.SetRow(i, s.Vector)
	}

	// A single observation has no variance structure; place it at origin.
	if len(samples) < 2 {
		return []model.Position3D{{Round: samples[0].Round, EntityID: samples[0].EntityID}}, nil
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(data, nil); !ok {
		return nil, errors.NewInternalError("principal component decomposition failed")
	}

	var components mat.Dense
	pc.VectorsTo(&components)
	r.alignSigns(&components)

	// Mean-center, then project onto up to three components.
	means := make([]float64, dim)
	for j := 0; j < dim; j++ {
		means[j] = stat.Mean(mat.Col(nil, j, data), nil)
	}

	_, nComponents := components.Dims()
	axes := 3
	if nComponents < axes {
		axes = nComponents
	}

	positions := make([]model.Position3D, len(samples))
	for i, s := range samples {
		var coords [3]float64
		for a := 0; a < axes; a++ {
			var dot float64
			for j := 0; j < dim; j++ {
				dot += (s.Vector[j] - means[j]) * components.At(j, a)
			}
			coords[a] = dot
		}
		positions[i] = model.Position3D{
			Round:    s.Round,
			EntityID: s.EntityID,
			X:        coords[0],
			Y:        coords[1],
			Z:        coords[2],
		}
	}

	variances := pc.VarsTo(nil)
	r.logger.WithFields(logrus.Fields{
		"samples":    len(samples),
		"dimensions": dim,
		"variances":  leadingVariances(variances, axes),
	}).Debug("Projected weight vectors to 3D")

	prev := mat.DenseCopyOf(&components)
	r.prevComponents = prev

	return positions, nil
}

// alignSigns flips any component whose direction reversed relative to the
// previous projection.
func (r *Reducer) alignSigns(components *mat.Dense) {
	if r.prevComponents == nil {
		return
	}
	prevRows, prevCols := r.prevComponents.Dims()
	rows, cols := components.Dims()
	if prevRows != rows {
		return
	}
	if cols > prevCols {
		cols = prevCols
	}

	for c := 0; c < cols; c++ {
		var dot float64
		for j := 0; j < rows; j++ {
			dot += components.At(j, c) * r.prevComponents.At(j, c)
		}
		if dot < 0 {
			for j := 0; j < rows; j++ {
				components.Set(j, c, -components.At(j, c))
			}
		}
	}
}

func leadingVariances(vars []float64, n int) []float64 {
	if len(vars) < n {
		n = len(vars)
	}
	return vars[:n]
}
