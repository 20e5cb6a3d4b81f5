package clustering

import (
	"math/rand"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/flsim/internal/distance"
	"github.com/inferloop/flsim/pkg/errors"
)

// KMeansConfig configures the clustering engine.
type KMeansConfig struct {
	// NumClusters is the requested k. Zero means select k automatically by
	// the elbow rule, bounded by the number of points.
	NumClusters   int     `json:"numClusters"`
	MaxIterations int     `json:"maxIterations"`
	Seed          int64   `json:"seed"`
	ElbowEpsilon  float64 `json:"elbowEpsilon"`
}

// Cluster is one k-means cluster: its index, member ids and centroid.
type Cluster struct {
	ID       int
	Members  []string
	Centroid []float64
}

// Result holds a complete clustering of the input points.
type Result struct {
	Clusters       []Cluster
	Assignments    map[string]int
	Iterations     int
	Converged      bool
	WithinVariance float64
}

// Point is one labeled weight vector to cluster.
type Point struct {
	ID     string
	Vector []float64
}

// Engine runs k-means over flattened client weight vectors.
type Engine struct {
	config *KMeansConfig
	calc   *distance.Calculator
	logger *logrus.Logger
}

const (
	defaultMaxIterations = 100
	defaultElbowEpsilon  = 0.15
	maxClusters          = 10
)

// NewEngine creates a clustering engine. A nil config gets defaults.
func NewEngine(config *KMeansConfig, calc *distance.Calculator, logger *logrus.Logger) (*Engine, error) {
	if config == nil {
		config = &KMeansConfig{}
	}
	if config.NumClusters < 0 || config.NumClusters > maxClusters {
		return nil, errors.NewConfigurationError(errors.CodeOutOfRange,
			"numClusters must be between 1 and 10, or 0 for automatic selection")
	}
	if config.MaxIterations <= 0 {
		config.MaxIterations = defaultMaxIterations
	}
	if config.ElbowEpsilon <= 0 {
		config.ElbowEpsilon = defaultElbowEpsilon
	}
	if calc == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "distance calculator is required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Engine{config: config, calc: calc, logger: logger}, nil
}

// Cluster partitions the points into k clusters. When k is unset it is
// chosen automatically: the smallest k whose relative variance improvement
// over k-1 falls below the elbow threshold.
func (e *Engine) Cluster(points []Point) (*Result, error) {
	if len(points) == 0 {
		return nil, errors.NewClusteringError(errors.CodeNoVectors, "no points to cluster")
	}

	// Input order must not influence the outcome.
	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	k := e.config.NumClusters
	if k == 0 {
		k = e.selectK(sorted)
	}
	if k > len(sorted) {
		k = len(sorted)
	}

	result := e.run(sorted, k)

	e.logger.WithFields(logrus.Fields{
		"k":          k,
		"points":     len(sorted),
		"iterations": result.Iterations,
		"converged":  result.Converged,
	}).Debug("K-means clustering finished")

	if !result.Converged {
		e.logger.WithField("max_iterations", e.config.MaxIterations).
			Warn("K-means reached iteration bound without converging, using last assignment")
	}

	return result, nil
}

// selectK applies the elbow rule over k in [1, min(10, n)].
func (e *Engine) selectK(points []Point) int {
	maxK := len(points)
	if maxK > maxClusters {
		maxK = maxClusters
	}

	prevVariance := e.run(points, 1).WithinVariance
	bestK := 1
	for k := 2; k <= maxK; k++ {
		variance := e.run(points, k).WithinVariance
		if prevVariance <= distance.Epsilon {
			break
		}
		improvement := (prevVariance - variance) / prevVariance
		if improvement < e.config.ElbowEpsilon {
			break
		}
		bestK = k
		prevVariance = variance
	}
	return bestK
}

// run performs one seeded k-means clustering with a fixed k.
func (e *Engine) run(points []Point, k int) *Result {
	rng := rand.New(rand.NewSource(e.config.Seed))

	centroids := e.initCentroids(points, k, rng)
	assignments := make([]int, len(points))
	for i := range assignments {
		assignments[i] = -1
	}

	iterations := 0
	converged := false
	for iterations < e.config.MaxIterations {
		iterations++
		changed := false

		// Reassign each point to its nearest centroid; ties break toward
		// the lowest cluster index.
		for i, p := range points {
			best := 0
			bestDist := e.calc.Distance(p.Vector, centroids[0])
			for c := 1; c < k; c++ {
				d := e.calc.Distance(p.Vector, centroids[c])
				if d < bestDist {
					best = c
					bestDist = d
				}
			}
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}

		if !changed {
			converged = true
			break
		}

		centroids = recomputeCentroids(points, assignments, centroids, k)
	}

	return e.buildResult(points, assignments, centroids, k, iterations, converged)
}

// initCentroids picks k distinct starting points using the seeded generator,
// so results are reproducible for a fixed seed.
func (e *Engine) initCentroids(points []Point, k int, rng *rand.Rand) [][]float64 {
	perm := rng.Perm(len(points))
	centroids := make([][]float64, 0, k)
	for _, idx := range perm {
		if len(centroids) == k {
			break
		}
		candidate := points[idx].Vector
		distinct := true
		for _, c := range centroids {
			if e.calc.Distance(candidate, c) <= distance.Epsilon {
				distinct = false
				break
			}
		}
		if distinct {
			centroids = append(centroids, append([]float64(nil), candidate...))
		}
	}
	// Fewer distinct points than k: reuse points to fill the remainder.
	for i := 0; len(centroids) < k; i++ {
		centroids = append(centroids, append([]float64(nil), points[perm[i%len(perm)]].Vector...))
	}
	return centroids
}

func recomputeCentroids(points []Point, assignments []int, previous [][]float64, k int) [][]float64 {
	dim := len(points[0].Vector)
	sums := make([][]float64, k)
	counts := make([]int, k)
	for c := range sums {
		sums[c] = make([]float64, dim)
	}

	for i, p := range points {
		c := assignments[i]
		counts[c]++
		for j, v := range p.Vector {
			sums[c][j] += v
		}
	}

	centroids := make([][]float64, k)
	for c := range centroids {
		if counts[c] == 0 {
			// Empty cluster keeps its previous centroid.
			centroids[c] = previous[c]
			continue
		}
		for j := range sums[c] {
			sums[c][j] /= float64(counts[c])
		}
		centroids[c] = sums[c]
	}
	return centroids
}

func (e *Engine) buildResult(points []Point, assignments []int, centroids [][]float64, k, iterations int, converged bool) *Result {
	result := &Result{
		Assignments: make(map[string]int, len(points)),
		Iterations:  iterations,
		Converged:   converged,
	}

	members := make([][]string, k)
	for i, p := range points {
		c := assignments[i]
		result.Assignments[p.ID] = c
		members[c] = append(members[c], p.ID)

		// Within-cluster squared distance drives the elbow rule.
		d := e.calc.Distance(p.Vector, centroids[c])
		result.WithinVariance += d * d
	}

	for c := 0; c < k; c++ {
		if len(members[c]) == 0 {
			continue
		}
		result.Clusters = append(result.Clusters, Cluster{
			ID:       c,
			Members:  members[c],
			Centroid: centroids[c],
		})
	}
	return result
}
