package experiment

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/flsim/internal/distance"
	"github.com/inferloop/flsim/pkg/errors"
)

// ClusterKey identifies one cluster's accuracy series within an alignment.
type ClusterKey struct {
	Experiment int `json:"experiment"`
	ClusterID  int `json:"clusterId"`
}

// Alignment holds per-experiment series aligned on the round index. Rounds
// an experiment never reached are nil, not interpolated.
type Alignment struct {
	Rounds          int                       `json:"rounds"`
	Labels          []string                  `json:"labels"`
	GlobalLoss      [][]*float64              `json:"globalLoss"`
	GlobalAccuracy  [][]*float64              `json:"globalAccuracy"`
	ClusterAccuracy map[ClusterKey][]*float64 `json:"-"`
}

// Comparator aligns stored experiments and scores their similarity.
type Comparator struct {
	calc   *distance.Calculator
	logger *logrus.Logger
}

// NewComparator creates a comparison engine using the given metric for
// similarity scoring.
func NewComparator(metric distance.Metric, logger *logrus.Logger) (*Comparator, error) {
	if metric == "" {
		metric = distance.MetricCosine
	}
	calc, err := distance.NewCalculator(metric)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Comparator{calc: calc, logger: logger}, nil
}

// Align builds comparable global loss/accuracy series across experiments,
// plus per-cluster accuracy series where cluster metrics exist.
func (c *Comparator) Align(experiments []*ExperimentData) (*Alignment, error) {
	if len(experiments) == 0 {
		return nil, errors.NewExperimentError(errors.CodeNoExperiments, "no experiments to align")
	}

	maxRounds := 0
	for _, e := range experiments {
		if e.Rounds() > maxRounds {
			maxRounds = e.Rounds()
		}
	}

	alignment := &Alignment{
		Rounds:          maxRounds,
		Labels:          make([]string, len(experiments)),
		GlobalLoss:      make([][]*float64, len(experiments)),
		GlobalAccuracy:  make([][]*float64, len(experiments)),
		ClusterAccuracy: make(map[ClusterKey][]*float64),
	}

	for i, e := range experiments {
		alignment.Labels[i] = e.ServerConfig.AggregationMethod
		alignment.GlobalLoss[i] = make([]*float64, maxRounds)
		alignment.GlobalAccuracy[i] = make([]*float64, maxRounds)

		for r := range e.RoundHistory {
			rm := e.RoundHistory[r]
			loss, acc := rm.GlobalLoss, rm.GlobalAccuracy
			alignment.GlobalLoss[i][r] = &loss
			alignment.GlobalAccuracy[i][r] = &acc

			for _, cm := range rm.ClusterMetrics {
				key := ClusterKey{Experiment: i, ClusterID: cm.ClusterID}
				series, ok := alignment.ClusterAccuracy[key]
				if !ok {
					series = make([]*float64, maxRounds)
					alignment.ClusterAccuracy[key] = series
				}
				accuracy := cm.Accuracy
				series[r] = &accuracy
			}
		}
	}

	c.logger.WithFields(logrus.Fields{
		"experiments": len(experiments),
		"rounds":      maxRounds,
	}).Debug("Aligned experiments")

	return alignment, nil
}

// SimilarityMatrix scores every pair of experiments by the similarity of
// their final per-client weight vectors, normalized to [0, 1]. The matrix
// is symmetric with ones on the diagonal.
func (c *Comparator) SimilarityMatrix(experiments []*ExperimentData) ([][]float64, error) {
	if len(experiments) == 0 {
		return nil, errors.NewExperimentError(errors.CodeNoExperiments, "no experiments to compare")
	}

	n := len(experiments)
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
		matrix[i][i] = 1
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s := c.experimentSimilarity(experiments[i], experiments[j])
			matrix[i][j] = s
			matrix[j][i] = s
		}
	}

	return matrix, nil
}

// experimentSimilarity averages per-client similarities over the clients
// both experiments share. When the id sets are disjoint it falls back to
// comparing the mean weight vectors.
func (c *Comparator) experimentSimilarity(a, b *ExperimentData) float64 {
	vectorsA := clientVectors(a)
	vectorsB := clientVectors(b)

	shared := make([]string, 0, len(vectorsA))
	for id := range vectorsA {
		if _, ok := vectorsB[id]; ok {
			shared = append(shared, id)
		}
	}
	sort.Strings(shared)

	if len(shared) == 0 {
		meanA := meanVector(vectorsA)
		meanB := meanVector(vectorsB)
		if meanA == nil || meanB == nil {
			return 0
		}
		return c.calc.Similarity(meanA, meanB)
	}

	var total float64
	for _, id := range shared {
		total += c.calc.Similarity(vectorsA[id], vectorsB[id])
	}
	return total / float64(len(shared))
}

func clientVectors(e *ExperimentData) map[string][]float64 {
	vectors := make(map[string][]float64, len(e.ClientModels))
	for _, cm := range e.ClientModels {
		if cm.Weights == nil {
			continue
		}
		vectors[cm.ClientID] = cm.Weights.Flatten()
	}
	return vectors
}

func meanVector(vectors map[string][]float64) []float64 {
	var mean []float64
	count := 0
	for _, v := range vectors {
		if mean == nil {
			mean = make([]float64, len(v))
		}
		if len(v) != len(mean) {
			continue
		}
		for j, x := range v {
			mean[j] += x
		}
		count++
	}
	if count == 0 {
		return nil
	}
	for j := range mean {
		mean[j] /= float64(count)
	}
	return mean
}
