package training

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/flsim/internal/model"
	"github.com/inferloop/flsim/pkg/errors"
)

// Config tunes the simulated local training step.
type Config struct {
	Seed         int64   `json:"seed"`
	LearningRate float64 `json:"learningRate"`
	// NoiseScale controls how far a client's update drifts from the global
	// model each round.
	NoiseScale float64 `json:"noiseScale"`
	// FailureRate is the per-step probability that a client's training
	// fails, exercising the error path. Zero disables failures.
	FailureRate float64 `json:"failureRate"`
}

// Outcome is the product of one client's simulated local training.
type Outcome struct {
	Weights      *model.ModelWeights
	Loss         float64
	Accuracy     float64
	TestAccuracy float64
}

// SimTrainer is the black-box stand-in for real local training. It produces
// per-round loss decay, accuracy growth and a weight perturbation around the
// received global model, deterministically for a fixed seed.
type SimTrainer struct {
	config *Config
	logger *logrus.Logger
}

// NewSimTrainer creates a simulated trainer. A nil config gets defaults.
func NewSimTrainer(config *Config, logger *logrus.Logger) *SimTrainer {
	if config == nil {
		config = &Config{}
	}
	if config.LearningRate <= 0 {
		config.LearningRate = 0.01
	}
	if config.NoiseScale <= 0 {
		config.NoiseScale = 0.05
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &SimTrainer{config: config, logger: logger}
}

// Train runs one simulated local update for a client. The returned weights
// are a fresh copy; the global model passed in is never mutated.
func (t *SimTrainer) Train(ctx context.Context, clientID string, round int, dataSize int, global *model.ModelWeights) (*Outcome, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	rng := rand.New(rand.NewSource(t.clientSeed(clientID, round)))

	if t.config.FailureRate > 0 && rng.Float64() < t.config.FailureRate {
		return nil, errors.NewSimulationError(errors.CodeTrainingFailed,
			"simulated local training failure").WithContext("client_id", clientID)
	}

	// Larger partitions drift less: more data means a steadier gradient.
	dataFactor := 1.0
	if dataSize > 0 {
		dataFactor = 1 / math.Sqrt(float64(dataSize))
	}
	scale := t.config.NoiseScale * dataFactor

	weights := global.Clone()
	perturb := func(v float64) float64 {
		return v + rng.NormFloat64()*scale - t.config.LearningRate*v
	}
	for i := range weights.HiddenWeights {
		for j := range weights.HiddenWeights[i] {
			weights.HiddenWeights[i][j] = perturb(weights.HiddenWeights[i][j])
		}
	}
	for i := range weights.HiddenBias {
		weights.HiddenBias[i] = perturb(weights.HiddenBias[i])
	}
	for i := range weights.OutputWeights {
		for j := range weights.OutputWeights[i] {
			weights.OutputWeights[i][j] = perturb(weights.OutputWeights[i][j])
		}
	}
	for i := range weights.OutputBias {
		weights.OutputBias[i] = perturb(weights.OutputBias[i])
	}

	// Loss decays geometrically over rounds with client-specific jitter;
	// accuracy approaches 1 as loss shrinks.
	base := 1.0 + 0.2*rng.Float64()
	decay := math.Pow(0.85, float64(round))
	sizeBonus := 0.0
	if dataSize > 0 {
		sizeBonus = math.Log1p(float64(dataSize)) / 100
	}
	loss := base*decay*(1-sizeBonus) + 0.02*rng.Float64()
	if loss < 0.01 {
		loss = 0.01
	}
	accuracy := 1 - loss/(1+loss)
	testAccuracy := accuracy - 0.02 - 0.03*rng.Float64()
	if testAccuracy < 0 {
		testAccuracy = 0
	}

	t.logger.WithFields(logrus.Fields{
		"client_id": clientID,
		"round":     round,
		"loss":      loss,
		"accuracy":  accuracy,
	}).Debug("Simulated local training step")

	return &Outcome{
		Weights:      weights,
		Loss:         loss,
		Accuracy:     accuracy,
		TestAccuracy: testAccuracy,
	}, nil
}

// clientSeed derives a stable per-client, per-round seed from the base seed.
func (t *SimTrainer) clientSeed(clientID string, round int) int64 {
	h := fnv.New64a()
	h.Write([]byte(clientID))
	return t.config.Seed + int64(h.Sum64()&0x7fffffff) + int64(round)*7919
}
