package aggregation

import (
	"fmt"

	"github.com/inferloop/flsim/internal/clustering"
	"github.com/inferloop/flsim/internal/distance"
	"github.com/inferloop/flsim/pkg/errors"
)

// Strategy selects how completed client updates merge into the global model.
type Strategy string

const (
	// StrategyNone is plain federated averaging weighted by data size.
	StrategyNone Strategy = "none"
	// StrategyFiftyFifty blends two fixed client groups at exactly 0.5 each.
	StrategyFiftyFifty Strategy = "50-50"
	// StrategyGravity weights k-means clusters by mass and inverse-square
	// distance to the global model.
	StrategyGravity Strategy = "gravity"
)

// Valid reports whether the strategy is recognized.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyNone, StrategyFiftyFifty, StrategyGravity:
		return true
	}
	return false
}

// DynamicReassignment moves one client into another client's group starting
// at a given round. The move is permanent for the rest of the run.
type DynamicReassignment struct {
	DynamicClient  string `json:"dynamicClient"`
	ReceiverClient string `json:"receiverClient"`
	ChangeRound    int    `json:"changeRound"`
}

// GravityParams are the hyperparameters of the gravity strategy.
type GravityParams struct {
	GravitationConstant float64              `json:"gravitationConstant"`
	ClusterWeight       float64              `json:"clusterWeight"`
	ClientWeight        float64              `json:"clientWeight"`
	Dynamic             *DynamicReassignment `json:"dynamic,omitempty"`
}

// FiftyFiftyParams are the hyperparameters of the 50/50 strategy. GroupA and
// GroupB may be empty, in which case clients are split even/odd over the
// client list order at simulation start.
type FiftyFiftyParams struct {
	GroupA  []string             `json:"groupA,omitempty"`
	GroupB  []string             `json:"groupB,omitempty"`
	Dynamic *DynamicReassignment `json:"dynamic,omitempty"`
}

// Config is the server-side aggregation configuration. It is immutable for
// the duration of a run except for the dynamic reassignment, which alters
// group membership at its change round. Each strategy variant carries only
// its own fields and is validated here, not inside the strategies.
type Config struct {
	// AggregationMethod is a free-form label echoed through comparisons.
	AggregationMethod       string                   `json:"aggregationMethod"`
	ClientAggregationMethod Strategy                 `json:"clientAggregationMethod"`
	DistanceMetric          distance.Metric          `json:"distanceMetric"`
	Gravity                 *GravityParams           `json:"gravity,omitempty"`
	FiftyFifty              *FiftyFiftyParams        `json:"fiftyFifty,omitempty"`
	KMeans                  *clustering.KMeansConfig `json:"kmeans,omitempty"`
}

// NewDefaultConfig returns the default configuration: plain FedAvg with
// cosine distance.
func NewDefaultConfig() *Config {
	return &Config{
		AggregationMethod:       "fedavg",
		ClientAggregationMethod: StrategyNone,
		DistanceMetric:          distance.MetricCosine,
	}
}

// Validate checks the configuration against the recognized options. Invalid
// combinations are rejected here so the strategies never see them.
func (c *Config) Validate() error {
	if c.DistanceMetric == "" {
		c.DistanceMetric = distance.MetricCosine
	}
	if !c.DistanceMetric.Valid() {
		return errors.NewConfigurationError(errors.CodeInvalidMetric,
			fmt.Sprintf("unknown distance metric %q", c.DistanceMetric))
	}

	if c.ClientAggregationMethod == "" {
		c.ClientAggregationMethod = StrategyNone
	}
	if !c.ClientAggregationMethod.Valid() {
		return errors.NewConfigurationError(errors.CodeInvalidStrategy,
			fmt.Sprintf("unknown client aggregation method %q", c.ClientAggregationMethod))
	}

	switch c.ClientAggregationMethod {
	case StrategyGravity:
		if c.Gravity == nil {
			return errors.NewConfigurationError(errors.CodeMissingStrategyParams,
				"gravity aggregation requires gravity parameters")
		}
		if c.Gravity.GravitationConstant <= 0 {
			return errors.NewConfigurationError(errors.CodeOutOfRange,
				"gravitationConstant must be positive")
		}
		if c.Gravity.ClusterWeight < 0 || c.Gravity.ClientWeight < 0 {
			return errors.NewConfigurationError(errors.CodeOutOfRange,
				"clusterWeight and clientWeight must not be negative")
		}
		if c.Gravity.ClusterWeight == 0 && c.Gravity.ClientWeight == 0 {
			return errors.NewConfigurationError(errors.CodeOutOfRange,
				"gravity aggregation needs a non-zero cluster or client weight")
		}
		if err := validateDynamic(c.Gravity.Dynamic); err != nil {
			return err
		}
	case StrategyFiftyFifty:
		if c.FiftyFifty == nil {
			return errors.NewConfigurationError(errors.CodeMissingStrategyParams,
				"50-50 aggregation requires group parameters")
		}
		if err := validateDynamic(c.FiftyFifty.Dynamic); err != nil {
			return err
		}
	}

	if c.KMeans != nil {
		if c.KMeans.NumClusters < 0 || c.KMeans.NumClusters > 10 {
			return errors.NewConfigurationError(errors.CodeOutOfRange,
				"numClusters must be between 1 and 10, or 0 for automatic selection")
		}
	}

	return nil
}

func validateDynamic(d *DynamicReassignment) error {
	if d == nil {
		return nil
	}
	if d.DynamicClient == "" || d.ReceiverClient == "" {
		return errors.NewConfigurationError(errors.CodeMissingField,
			"dynamic reassignment requires both dynamicClient and receiverClient")
	}
	if d.DynamicClient == d.ReceiverClient {
		return errors.NewConfigurationError(errors.CodeInvalidInput,
			"dynamicClient and receiverClient must differ")
	}
	if d.ChangeRound < 0 {
		return errors.NewConfigurationError(errors.CodeOutOfRange,
			"changeRound must not be negative")
	}
	return nil
}

// ConfigPatch is a partial configuration update. Nil fields leave the
// current value unchanged.
type ConfigPatch struct {
	AggregationMethod       *string                  `json:"aggregationMethod,omitempty"`
	ClientAggregationMethod *Strategy                `json:"clientAggregationMethod,omitempty"`
	DistanceMetric          *distance.Metric         `json:"distanceMetric,omitempty"`
	Gravity                 *GravityParams           `json:"gravity,omitempty"`
	FiftyFifty              *FiftyFiftyParams        `json:"fiftyFifty,omitempty"`
	KMeans                  *clustering.KMeansConfig `json:"kmeans,omitempty"`
}

// ApplyPatch merges a patch into a configuration and validates the result.
// The input config is not modified; callers swap in the returned value only
// on success.
func ApplyPatch(current Config, patch ConfigPatch) (Config, error) {
	next := current
	if patch.AggregationMethod != nil {
		next.AggregationMethod = *patch.AggregationMethod
	}
	if patch.ClientAggregationMethod != nil {
		next.ClientAggregationMethod = *patch.ClientAggregationMethod
	}
	if patch.DistanceMetric != nil {
		next.DistanceMetric = *patch.DistanceMetric
	}
	if patch.Gravity != nil {
		next.Gravity = patch.Gravity
	}
	if patch.FiftyFifty != nil {
		next.FiftyFifty = patch.FiftyFifty
	}
	if patch.KMeans != nil {
		next.KMeans = patch.KMeans
	}

	if err := next.Validate(); err != nil {
		return current, err
	}
	return next, nil
}
