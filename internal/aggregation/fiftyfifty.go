package aggregation

import (
	"sort"

	"github.com/inferloop/flsim/internal/model"
)

const (
	groupA = 0
	groupB = 1
)

// groupState tracks which of the two fixed groups each client belongs to.
// Membership persists across rounds, so a dynamic reassignment applied at
// its change round stays in effect for the rest of the run.
type groupState struct {
	assignment map[string]int
	dynamic    *DynamicReassignment
	moved      bool
	nextGroup  int
}

func newGroupState(params *FiftyFiftyParams) *groupState {
	gs := &groupState{
		assignment: make(map[string]int),
		dynamic:    params.Dynamic,
	}
	for _, id := range params.GroupA {
		gs.assignment[id] = groupA
	}
	for _, id := range params.GroupB {
		gs.assignment[id] = groupB
	}
	return gs
}

// groupOf returns the client's group, assigning unseen clients alternately
// so an omitted explicit grouping becomes an even/odd split over first
// sight order.
func (gs *groupState) groupOf(clientID string) int {
	if g, ok := gs.assignment[clientID]; ok {
		return g
	}
	g := gs.nextGroup
	gs.assignment[clientID] = g
	gs.nextGroup = 1 - gs.nextGroup
	return g
}

// applyDynamic moves the dynamic client into the receiver's group once the
// change round is reached. The move is permanent.
func (gs *groupState) applyDynamic(round int) {
	if gs.dynamic == nil || gs.moved || round < gs.dynamic.ChangeRound {
		return
	}
	receiverGroup := gs.groupOf(gs.dynamic.ReceiverClient)
	gs.assignment[gs.dynamic.DynamicClient] = receiverGroup
	gs.moved = true
}

// aggregateFiftyFifty blends the two group averages at exactly 0.5 each,
// regardless of group sizes or data volumes.
func (e *Engine) aggregateFiftyFifty(round int, updates []ClientUpdate) (*Result, error) {
	e.groups.applyDynamic(round)

	// Register clients in sorted id order so implicit assignment does not
	// depend on the caller's iteration order.
	ids := make([]string, 0, len(updates))
	for _, u := range updates {
		ids = append(ids, u.ClientID)
	}
	sort.Strings(ids)
	for _, id := range ids {
		e.groups.groupOf(id)
	}

	var vectorsA, vectorsB [][]float64
	for _, u := range updates {
		if e.groups.groupOf(u.ClientID) == groupA {
			vectorsA = append(vectorsA, u.Weights.Flatten())
		} else {
			vectorsB = append(vectorsB, u.Weights.Flatten())
		}
	}

	shape := updates[0].Weights.Shape()
	var flat []float64
	switch {
	case len(vectorsA) == 0:
		flat = plainAverage(vectorsB)
	case len(vectorsB) == 0:
		flat = plainAverage(vectorsA)
	default:
		avgA := plainAverage(vectorsA)
		avgB := plainAverage(vectorsB)
		flat = make([]float64, len(avgA))
		for j := range flat {
			flat[j] = 0.5*avgA[j] + 0.5*avgB[j]
		}
	}

	merged, err := model.Unflatten(flat, shape)
	if err != nil {
		return nil, err
	}
	return &Result{Weights: merged}, nil
}
