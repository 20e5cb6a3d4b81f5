package simulation

import (
	"github.com/sirupsen/logrus"

	"github.com/inferloop/flsim/internal/aggregation"
	"github.com/inferloop/flsim/internal/model"
	"github.com/inferloop/flsim/internal/reduction"
	"github.com/inferloop/flsim/pkg/errors"
)

// State is a read-only snapshot of the simulation. Mutation happens only
// through the orchestrator's own methods.
type State struct {
	Round       int                  `json:"round"`
	Running     bool                 `json:"running"`
	Clients     []model.ClientState  `json:"clients"`
	History     []model.RoundMetrics `json:"history"`
	GlobalModel *model.ModelWeights  `json:"globalModel"`
}

// Snapshot returns a consistent copy of the current simulation state.
func (o *Orchestrator) Snapshot() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return State{
		Round:       len(o.history),
		Running:     o.running,
		Clients:     o.clientStatesLocked(),
		History:     append([]model.RoundMetrics(nil), o.history...),
		GlobalModel: o.global.Clone(),
	}
}

// Clients returns the current client states in declaration order.
func (o *Orchestrator) Clients() []model.ClientState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.clientStatesLocked()
}

func (o *Orchestrator) clientStatesLocked() []model.ClientState {
	states := make([]model.ClientState, 0, len(o.clients))
	for _, c := range o.clients {
		states = append(states, c.snapshot())
	}
	return states
}

// History returns a copy of the append-only round history.
func (o *Orchestrator) History() []model.RoundMetrics {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]model.RoundMetrics(nil), o.history...)
}

// GlobalModel returns a copy of the current global model.
func (o *Orchestrator) GlobalModel() *model.ModelWeights {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.global.Clone()
}

// ClientModels returns each client's latest local model. Clients that never
// completed a round are omitted.
func (o *Orchestrator) ClientModels() []model.ClientModel {
	o.mu.RLock()
	defer o.mu.RUnlock()
	models := make([]model.ClientModel, 0, len(o.clients))
	for _, c := range o.clients {
		w := c.weights()
		if w == nil {
			continue
		}
		models = append(models, model.ClientModel{ClientID: c.snapshot().ID, Weights: w.Clone()})
	}
	return models
}

// Config returns the aggregation configuration in effect.
func (o *Orchestrator) Config() *aggregation.Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.engine.Config()
}

// ApplyConfigPatch merges a partial configuration update into the current
// aggregation configuration and rebuilds the engine on success. Rejected
// while a round is in flight; an invalid patch leaves the current
// configuration in effect.
func (o *Orchestrator) ApplyConfigPatch(patch aggregation.ConfigPatch) (*aggregation.Config, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return nil, errors.NewSimulationError(errors.CodeRoundInProgress,
			"cannot change configuration while a round is running")
	}

	next, err := aggregation.ApplyPatch(*o.engine.Config(), patch)
	if err != nil {
		return nil, err
	}
	engine, err := aggregation.NewEngine(&next, o.logger)
	if err != nil {
		return nil, err
	}

	o.engine = engine
	o.logger.WithFields(logrus.Fields{
		"strategy": next.ClientAggregationMethod,
		"metric":   next.DistanceMetric,
	}).Info("Aggregation configuration updated")
	return engine.Config(), nil
}

// Positions projects the recorded weight trajectories to 3D for
// visualization. Read-only with respect to simulation state; safe to call
// off the critical path.
func (o *Orchestrator) Positions() ([]model.Position3D, error) {
	o.mu.RLock()
	trail := append([]reduction.Sample(nil), o.trail...)
	o.mu.RUnlock()
	if len(trail) == 0 {
		return nil, errors.NewSimulationError(errors.CodeInvalidInput, "no completed rounds to project")
	}
	return o.reducer.Project(trail)
}

// Reset abandons all progress: fresh client states, empty history, and the
// global model left as it is so a run can continue from the current weights.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return errors.NewSimulationError(errors.CodeRoundInProgress, "cannot reset while a round is running")
	}
	for _, c := range o.clients {
		c.forceIdle()
	}
	o.history = nil
	o.trail = nil
	return nil
}
