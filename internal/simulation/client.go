package simulation

import (
	"sync"

	"github.com/inferloop/flsim/internal/model"
	"github.com/inferloop/flsim/pkg/errors"
)

// validTransitions encodes the per-round client state machine:
// idle -> receiving -> training -> sending -> evaluating -> completed, with
// error reachable from any non-terminal working state.
var validTransitions = map[model.ClientStatus][]model.ClientStatus{
	model.StatusIdle:       {model.StatusReceiving},
	model.StatusReceiving:  {model.StatusTraining, model.StatusError, model.StatusIdle},
	model.StatusTraining:   {model.StatusSending, model.StatusError, model.StatusIdle},
	model.StatusSending:    {model.StatusEvaluating, model.StatusCompleted, model.StatusError, model.StatusIdle},
	model.StatusEvaluating: {model.StatusCompleted, model.StatusError, model.StatusIdle},
	model.StatusCompleted:  {model.StatusIdle},
	model.StatusError:      {model.StatusIdle},
}

// client is one simulated participant. Only the orchestrator mutates it
// during a round; everything else reads snapshots.
type client struct {
	mu         sync.Mutex
	state      model.ClientState
	localModel *model.ModelWeights
}

func newClient(id, name string, dataSize int) *client {
	return &client{
		state: model.ClientState{
			ID:       id,
			Name:     name,
			Status:   model.StatusIdle,
			DataSize: dataSize,
		},
	}
}

// transition moves the client into a new phase, resetting progress to zero.
func (c *client) transition(next model.ClientStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	allowed := false
	for _, s := range validTransitions[c.state.Status] {
		if s == next {
			allowed = true
			break
		}
	}
	if !allowed {
		return errors.NewSimulationError(errors.CodeInvalidTransition,
			"invalid client state transition").
			WithContext("client_id", c.state.ID).
			WithContext("from", string(c.state.Status)).
			WithContext("to", string(next))
	}

	c.state.Status = next
	c.state.Progress = 0
	return nil
}

// setProgress advances progress within the current phase. Progress is
// monotonically non-decreasing until the next phase resets it.
func (c *client) setProgress(progress int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if progress > 100 {
		progress = 100
	}
	if progress > c.state.Progress {
		c.state.Progress = progress
	}
}

// forceIdle resets the client regardless of its current phase, used when a
// round is abandoned.
func (c *client) forceIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Status = model.StatusIdle
	c.state.Progress = 0
}

func (c *client) snapshot() model.ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *client) recordOutcome(loss, accuracy, testAccuracy float64, weights *model.ModelWeights) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.LocalLoss = loss
	c.state.LocalAccuracy = accuracy
	c.state.LocalTestAccuracy = testAccuracy
	c.localModel = weights
}

func (c *client) markParticipated() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.RoundsParticipated++
}

func (c *client) weights() *model.ModelWeights {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localModel
}
