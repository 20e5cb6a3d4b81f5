package aggregation

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/flsim/internal/distance"
	"github.com/inferloop/flsim/internal/model"
	"github.com/inferloop/flsim/pkg/errors"
)

// ClientUpdate is one completed client's contribution to a round.
type ClientUpdate struct {
	ClientID string
	Weights  *model.ModelWeights
	DataSize int
	Loss     float64
	Accuracy float64
}

// Result is the outcome of one aggregation step.
type Result struct {
	Weights        *model.ModelWeights
	ClusterMetrics []model.ClusterMetrics
	// ClusteringIterations is the k-means iteration count, zero for
	// strategies that do not cluster.
	ClusteringIterations int
}

// Engine computes the new global model from completed client updates under
// the configured strategy. It carries the 50/50 group membership across
// rounds so dynamic reassignment stays permanent once applied.
type Engine struct {
	config *Config
	calc   *distance.Calculator
	groups *groupState
	logger *logrus.Logger
}

// NewEngine creates an aggregation engine. The config is validated here;
// strategies assume a valid one.
func NewEngine(config *Config, logger *logrus.Logger) (*Engine, error) {
	if config == nil {
		config = NewDefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}

	calc, err := distance.NewCalculator(config.DistanceMetric)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config: config,
		calc:   calc,
		logger: logger,
	}
	if config.ClientAggregationMethod == StrategyFiftyFifty {
		e.groups = newGroupState(config.FiftyFifty)
	}
	return e, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() *Config {
	return e.config
}

// Aggregate merges completed client updates into a new global model for the
// given round. The current global weights are only read, never mutated; the
// caller owns the swap. A round with zero completed clients yields a
// NO_PARTICIPANTS error and the caller retains the previous global model.
func (e *Engine) Aggregate(round int, global *model.ModelWeights, updates []ClientUpdate) (*Result, error) {
	if len(updates) == 0 {
		return nil, errors.NewAggregationError(errors.CodeNoParticipants,
			"no clients completed the round")
	}

	// Sort so the result is invariant to the caller's iteration order.
	sorted := make([]ClientUpdate, len(updates))
	copy(sorted, updates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ClientID < sorted[j].ClientID })

	shape := sorted[0].Weights.Shape()
	for _, u := range sorted[1:] {
		if u.Weights.Shape() != shape {
			return nil, errors.NewAggregationError(errors.CodeShapeMismatch,
				"client weight shapes do not match").WithContext("client_id", u.ClientID)
		}
	}

	var result *Result
	var err error
	switch e.config.ClientAggregationMethod {
	case StrategyFiftyFifty:
		result, err = e.aggregateFiftyFifty(round, sorted)
	case StrategyGravity:
		result, err = e.aggregateGravity(round, global, sorted)
	default:
		result, err = e.aggregateFedAvg(sorted)
	}
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"round":    round,
		"strategy": e.config.ClientAggregationMethod,
		"clients":  len(sorted),
	}).Info("Aggregated client updates")

	return result, nil
}

// averageFlat returns the weighted average of flattened client weights. The
// weights slice must sum to 1.
func averageFlat(updates []ClientUpdate, weights []float64) []float64 {
	flat := make([]float64, updates[0].Weights.Shape().Len())
	for i, u := range updates {
		for j, v := range u.Weights.Flatten() {
			flat[j] += weights[i] * v
		}
	}
	return flat
}

// plainAverage is the unweighted mean of the given flattened vectors.
func plainAverage(vectors [][]float64) []float64 {
	avg := make([]float64, len(vectors[0]))
	for _, v := range vectors {
		for j, x := range v {
			avg[j] += x
		}
	}
	for j := range avg {
		avg[j] /= float64(len(vectors))
	}
	return avg
}

// clusterAccuracy is the data-weighted average accuracy of a cluster's
// members.
func clusterAccuracy(members []string, byID map[string]ClientUpdate) float64 {
	var weighted, total float64
	for _, id := range members {
		u, ok := byID[id]
		if !ok {
			continue
		}
		weighted += float64(u.DataSize) * u.Accuracy
		total += float64(u.DataSize)
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

func updatesByID(updates []ClientUpdate) map[string]ClientUpdate {
	byID := make(map[string]ClientUpdate, len(updates))
	for _, u := range updates {
		byID[u.ClientID] = u
	}
	return byID
}
