package experiment

import (
	"time"

	"github.com/inferloop/flsim/internal/aggregation"
	"github.com/inferloop/flsim/internal/model"
)

// ExperimentData is the persisted form of a completed run: the full round
// history, each client's final model, and the configuration that produced
// them. It is materialized only on save and carries no live state.
type ExperimentData struct {
	ID           string               `json:"id,omitempty"`
	Name         string               `json:"name,omitempty"`
	RoundHistory []model.RoundMetrics `json:"roundHistory"`
	ClientModels []model.ClientModel  `json:"clientModels"`
	ServerConfig aggregation.Config   `json:"serverConfig"`
	SavedAt      time.Time            `json:"savedAt"`
}

// Rounds returns the number of completed rounds in the experiment.
func (e *ExperimentData) Rounds() int {
	return len(e.RoundHistory)
}

// FinalGlobalLoss returns the last recorded global loss, or zero for an
// empty history.
func (e *ExperimentData) FinalGlobalLoss() float64 {
	if len(e.RoundHistory) == 0 {
		return 0
	}
	return e.RoundHistory[len(e.RoundHistory)-1].GlobalLoss
}

// FinalGlobalAccuracy returns the last recorded global accuracy, or zero
// for an empty history.
func (e *ExperimentData) FinalGlobalAccuracy() float64 {
	if len(e.RoundHistory) == 0 {
		return 0
	}
	return e.RoundHistory[len(e.RoundHistory)-1].GlobalAccuracy
}
