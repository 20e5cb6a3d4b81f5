package model

import "time"

// ClientStatus is the lifecycle phase of a simulated client within a round.
type ClientStatus string

const (
	StatusIdle       ClientStatus = "idle"
	StatusReceiving  ClientStatus = "receiving"
	StatusTraining   ClientStatus = "training"
	StatusSending    ClientStatus = "sending"
	StatusEvaluating ClientStatus = "evaluating"
	StatusCompleted  ClientStatus = "completed"
	StatusError      ClientStatus = "error"
)

// Terminal reports whether the status ends a client's participation in the
// current round.
func (s ClientStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// ClientState is the observable state of one simulated client.
type ClientState struct {
	ID                 string       `json:"id"`
	Name               string       `json:"name"`
	Status             ClientStatus `json:"status"`
	Progress           int          `json:"progress"`
	DataSize           int          `json:"dataSize"`
	LocalLoss          float64      `json:"localLoss"`
	LocalAccuracy      float64      `json:"localAccuracy"`
	LocalTestAccuracy  float64      `json:"localTestAccuracy"`
	RoundsParticipated int          `json:"roundsParticipated"`
}

// ClusterMetrics summarizes one cluster produced during clustered
// aggregation.
type ClusterMetrics struct {
	ClusterID       int      `json:"clusterId"`
	Accuracy        float64  `json:"accuracy"`
	MemberClientIDs []string `json:"memberClientIds"`
	Approximate     bool     `json:"approximate,omitempty"`
}

// RoundMetrics records the outcome of one completed round. Instances are
// created once by the orchestrator and immutable afterwards.
type RoundMetrics struct {
	Round                int              `json:"round"`
	Timestamp            time.Time        `json:"timestamp"`
	GlobalLoss           float64          `json:"globalLoss"`
	GlobalAccuracy       float64          `json:"globalAccuracy"`
	AggregationTimeMs    float64          `json:"aggregationTime"`
	ParticipatingClients []string         `json:"participatingClients"`
	ClusterMetrics       []ClusterMetrics `json:"clusterMetrics,omitempty"`
	WeightsSnapshot      []TensorStats    `json:"weightsSnapshot,omitempty"`
}

// ClientModel pairs a client with its final model weights.
type ClientModel struct {
	ClientID string        `json:"clientId"`
	Weights  *ModelWeights `json:"weights"`
}

// GlobalEntityID labels the global model in projections where it appears
// alongside client entries.
const GlobalEntityID = "global"

// Position3D is a projected location of one entity's weights at one round.
// Derived data only: recomputable from weight history, never authoritative.
type Position3D struct {
	Round    int     `json:"round"`
	EntityID string  `json:"entityId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
}
