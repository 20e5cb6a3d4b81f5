package distance

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/inferloop/flsim/pkg/errors"
)

// Metric selects the distance function used over flattened weight vectors.
type Metric string

const (
	MetricL1     Metric = "l1"
	MetricL2     Metric = "l2"
	MetricCosine Metric = "cosine"
)

// Epsilon floors degenerate distances (zero vectors, identical vectors) so
// that inverse-square weighting stays finite.
const Epsilon = 1e-9

// Valid reports whether the metric is one of the recognized options.
func (m Metric) Valid() bool {
	switch m {
	case MetricL1, MetricL2, MetricCosine:
		return true
	}
	return false
}

// Calculator computes distances and normalized similarities between weight
// vectors under a fixed metric.
type Calculator struct {
	metric Metric
}

// NewCalculator creates a calculator for the given metric.
func NewCalculator(metric Metric) (*Calculator, error) {
	if !metric.Valid() {
		return nil, errors.NewConfigurationError(errors.CodeInvalidMetric,
			"distance metric must be one of l1, l2, cosine")
	}
	return &Calculator{metric: metric}, nil
}

// Metric returns the configured metric.
func (c *Calculator) Metric() Metric {
	return c.metric
}

// Distance returns the distance between two equal-length vectors. Degenerate
// inputs resolve to the epsilon floor rather than an error, keeping
// aggregation total.
func (c *Calculator) Distance(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return Epsilon
	}

	var d float64
	switch c.metric {
	case MetricL1:
		for i := 0; i < n; i++ {
			d += math.Abs(a[i] - b[i])
		}
	case MetricL2:
		for i := 0; i < n; i++ {
			diff := a[i] - b[i]
			d += diff * diff
		}
		d = math.Sqrt(d)
	case MetricCosine:
		d = 1 - cosineSimilarity(a[:n], b[:n])
	}

	if d < Epsilon {
		return Epsilon
	}
	return d
}

// Similarity maps distance into [0, 1]: 1/(1+d) for L1/L2, raw cosine
// similarity clipped to [0, 1] for cosine.
func (c *Calculator) Similarity(a, b []float64) float64 {
	if c.metric == MetricCosine {
		n := len(a)
		if len(b) < n {
			n = len(b)
		}
		if n == 0 {
			return 0
		}
		s := cosineSimilarity(a[:n], b[:n])
		if s < 0 {
			return 0
		}
		if s > 1 {
			return 1
		}
		return s
	}
	return 1 / (1 + c.Distance(a, b))
}

func cosineSimilarity(a, b []float64) float64 {
	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)
	if normA < Epsilon || normB < Epsilon {
		// Zero vectors have no direction; treat them as maximally aligned
		// with each other and orthogonal to everything else.
		if normA < Epsilon && normB < Epsilon {
			return 1
		}
		return 0
	}
	return floats.Dot(a, b) / (normA * normB)
}
