package simulation

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/flsim/internal/aggregation"
	"github.com/inferloop/flsim/internal/model"
	obsmetrics "github.com/inferloop/flsim/internal/observability/metrics"
	"github.com/inferloop/flsim/internal/reduction"
	"github.com/inferloop/flsim/internal/training"
	"github.com/inferloop/flsim/pkg/errors"
)

// Observer receives simulation updates after each round. Callbacks run on
// the orchestrator goroutine and should return quickly.
type Observer interface {
	OnClientUpdate(clients []model.ClientState)
	OnRoundComplete(metrics model.RoundMetrics)
}

// ClientSpec declares one simulated client and its private data partition.
type ClientSpec struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	DataSize int    `json:"dataSize"`
}

// Options configures an orchestrator.
type Options struct {
	Clients     []ClientSpec
	Shape       model.WeightShape
	Aggregation *aggregation.Config
	Trainer     *training.SimTrainer
	Seed        int64
	Logger      *logrus.Logger
	Collector   *obsmetrics.Collector
}

// Orchestrator drives the per-round client state machine and owns the only
// two pieces of shared mutable simulation state: the current global model
// (written once per round, by aggregation) and the append-only round
// history.
type Orchestrator struct {
	mu        sync.RWMutex
	clients   []*client
	global    *model.ModelWeights
	history   []model.RoundMetrics
	trail     []reduction.Sample
	running   bool
	engine    *aggregation.Engine
	trainer   *training.SimTrainer
	reducer   *reduction.Reducer
	observers []Observer
	collector *obsmetrics.Collector
	logger    *logrus.Logger
}

// NewOrchestrator creates an orchestrator with an initialized global model.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if len(opts.Clients) == 0 {
		return nil, errors.NewSimulationError(errors.CodeNoClients, "at least one client is required")
	}
	if opts.Shape.Len() == 0 {
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "model shape is empty")
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	engine, err := aggregation.NewEngine(opts.Aggregation, opts.Logger)
	if err != nil {
		return nil, err
	}

	trainer := opts.Trainer
	if trainer == nil {
		trainer = training.NewSimTrainer(&training.Config{Seed: opts.Seed}, opts.Logger)
	}

	clients := make([]*client, 0, len(opts.Clients))
	seen := make(map[string]bool, len(opts.Clients))
	for _, spec := range opts.Clients {
		if spec.ID == "" {
			return nil, errors.NewValidationError(errors.CodeMissingField, "client id is required")
		}
		if seen[spec.ID] {
			return nil, errors.NewValidationError(errors.CodeInvalidInput,
				"duplicate client id").WithContext("client_id", spec.ID)
		}
		seen[spec.ID] = true
		clients = append(clients, newClient(spec.ID, spec.Name, spec.DataSize))
	}

	return &Orchestrator{
		clients:   clients,
		global:    model.RandomModelWeights(opts.Shape, opts.Seed),
		engine:    engine,
		trainer:   trainer,
		reducer:   reduction.NewReducer(opts.Logger),
		collector: opts.Collector,
		logger:    opts.Logger,
	}, nil
}

// RegisterObserver subscribes an observer to round notifications.
func (o *Orchestrator) RegisterObserver(obs Observer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observers = append(o.observers, obs)
}

// RunRound executes one complete round: push the global model to every
// client, let them train concurrently, wait at the barrier, then aggregate.
// Cancelling the context abandons the round, forcing all clients back to
// idle without touching the round history.
func (o *Orchestrator) RunRound(ctx context.Context) (*model.RoundMetrics, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, errors.NewSimulationError(errors.CodeRoundInProgress, "a round is already running")
	}
	o.running = true
	round := len(o.history)
	globalCopy := o.global.Clone()
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	log := o.logger.WithField("round", round)
	log.WithField("clients", len(o.clients)).Info("Starting round")

	// Pull every terminal client from the previous round back to idle
	// before it can enter this one.
	for _, c := range o.clients {
		if c.snapshot().Status.Terminal() {
			if err := c.transition(model.StatusIdle); err != nil {
				return nil, err
			}
		}
	}

	if o.collector != nil {
		o.collector.SetActiveClients(len(o.clients))
		defer o.collector.SetActiveClients(0)
	}

	// Per-client pipelines run concurrently; aggregation may not start
	// until every client has reached a terminal state for the round.
	type clientResult struct {
		update aggregation.ClientUpdate
		err    error
	}
	results := make(chan clientResult, len(o.clients))
	var wg sync.WaitGroup
	for _, c := range o.clients {
		wg.Add(1)
		go func(c *client) {
			defer wg.Done()
			update, err := o.runClientRound(ctx, c, round, globalCopy)
			if err != nil {
				results <- clientResult{err: err}
				return
			}
			results <- clientResult{update: *update}
		}(c)
	}
	wg.Wait()
	close(results)

	if ctx.Err() != nil {
		for _, c := range o.clients {
			c.forceIdle()
		}
		o.notifyClients()
		if o.collector != nil {
			o.collector.ObserveRound("cancelled", string(o.engine.Config().ClientAggregationMethod), 0, 0, 0, 0)
		}
		log.Warn("Round cancelled, clients reset to idle")
		return nil, errors.WrapError(ctx.Err(), errors.ErrorTypeSimulation,
			errors.CodeRoundCancelled, "round cancelled")
	}

	var updates []aggregation.ClientUpdate
	failures := 0
	for r := range results {
		if r.err != nil {
			failures++
			continue
		}
		updates = append(updates, r.update)
	}

	participating := make([]string, 0, len(o.clients))
	for _, c := range o.clients {
		participating = append(participating, c.snapshot().ID)
	}
	sort.Strings(participating)

	aggStart := time.Now()
	result, err := o.engine.Aggregate(round, globalCopy, updates)
	aggDuration := time.Since(aggStart)

	metrics := model.RoundMetrics{
		Round:                round,
		Timestamp:            time.Now().UTC(),
		AggregationTimeMs:    float64(aggDuration.Microseconds()) / 1000,
		ParticipatingClients: participating,
	}

	if err != nil {
		var appErr *errors.AppError
		if !stderrors.As(err, &appErr) || appErr.Code != errors.CodeNoParticipants {
			return nil, err
		}
		// No-op round: the previous global model is retained and its last
		// known quality carried forward.
		if round > 0 {
			metrics.GlobalLoss = o.history[round-1].GlobalLoss
			metrics.GlobalAccuracy = o.history[round-1].GlobalAccuracy
		}
		log.Warn("No clients completed the round, keeping previous global model")
		o.appendRound(metrics, nil)
		o.finishRound("no_participants", aggDuration, failures, metrics)
		return &metrics, nil
	}

	metrics.GlobalLoss, metrics.GlobalAccuracy = weightedQuality(updates)
	metrics.ClusterMetrics = result.ClusterMetrics
	metrics.WeightsSnapshot = result.Weights.SnapshotStats()

	if o.collector != nil && result.ClusteringIterations > 0 {
		o.collector.ObserveClustering(result.ClusteringIterations)
	}

	o.mu.Lock()
	o.global = result.Weights
	o.mu.Unlock()

	for _, c := range o.clients {
		if c.snapshot().Status == model.StatusCompleted {
			c.markParticipated()
		}
	}

	o.appendRound(metrics, updates)
	o.finishRound("completed", aggDuration, failures, metrics)

	log.WithFields(logrus.Fields{
		"participants":   len(updates),
		"failures":       failures,
		"global_loss":    metrics.GlobalLoss,
		"global_acc":     metrics.GlobalAccuracy,
		"aggregation_ms": metrics.AggregationTimeMs,
	}).Info("Round completed")

	return &metrics, nil
}

// runClientRound walks a single client through its state machine for one
// round. Every phase checks for cancellation before starting.
func (o *Orchestrator) runClientRound(ctx context.Context, c *client, round int, global *model.ModelWeights) (*aggregation.ClientUpdate, error) {
	phase := func(status model.ClientStatus) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.transition(status); err != nil {
			return err
		}
		o.notifyClients()
		return nil
	}

	// receiving: server pushes the current global model down.
	if err := phase(model.StatusReceiving); err != nil {
		return nil, err
	}
	c.setProgress(100)

	// training: the client's local update.
	if err := phase(model.StatusTraining); err != nil {
		return nil, err
	}
	state := c.snapshot()
	outcome, err := o.trainer.Train(ctx, state.ID, round, state.DataSize, global)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		o.logger.WithError(err).WithField("client_id", state.ID).Warn("Client training failed")
		if terr := c.transition(model.StatusError); terr != nil {
			return nil, terr
		}
		o.notifyClients()
		return nil, err
	}
	c.setProgress(100)

	// sending: upload of the resulting weights.
	if err := phase(model.StatusSending); err != nil {
		return nil, err
	}
	c.setProgress(100)

	// evaluating: local test-set scoring.
	if err := phase(model.StatusEvaluating); err != nil {
		return nil, err
	}
	c.recordOutcome(outcome.Loss, outcome.Accuracy, outcome.TestAccuracy, outcome.Weights)
	c.setProgress(100)

	if err := phase(model.StatusCompleted); err != nil {
		return nil, err
	}

	return &aggregation.ClientUpdate{
		ClientID: state.ID,
		Weights:  outcome.Weights,
		DataSize: state.DataSize,
		Loss:     outcome.Loss,
		Accuracy: outcome.Accuracy,
	}, nil
}

// appendRound is the single writer of the round history. It also records
// the weight trail consumed by the 3D projection.
func (o *Orchestrator) appendRound(metrics model.RoundMetrics, updates []aggregation.ClientUpdate) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.history = append(o.history, metrics)
	if updates == nil {
		return
	}
	o.trail = append(o.trail, reduction.Sample{
		Round:    metrics.Round,
		EntityID: model.GlobalEntityID,
		Vector:   o.global.Flatten(),
	})
	for _, u := range updates {
		o.trail = append(o.trail, reduction.Sample{
			Round:    metrics.Round,
			EntityID: u.ClientID,
			Vector:   u.Weights.Flatten(),
		})
	}
}

func (o *Orchestrator) finishRound(outcome string, aggDuration time.Duration, failures int, metrics model.RoundMetrics) {
	if o.collector != nil {
		o.collector.ObserveRound(outcome, string(o.engine.Config().ClientAggregationMethod),
			aggDuration, failures, metrics.GlobalLoss, metrics.GlobalAccuracy)
	}
	o.notifyClients()
	o.mu.RLock()
	observers := append([]Observer(nil), o.observers...)
	o.mu.RUnlock()
	for _, obs := range observers {
		obs.OnRoundComplete(metrics)
	}
}

func (o *Orchestrator) notifyClients() {
	o.mu.RLock()
	observers := append([]Observer(nil), o.observers...)
	o.mu.RUnlock()
	if len(observers) == 0 {
		return
	}
	states := o.Clients()
	for _, obs := range observers {
		obs.OnClientUpdate(states)
	}
}

// weightedQuality computes the data-weighted global loss and accuracy over
// the round's completed updates.
func weightedQuality(updates []aggregation.ClientUpdate) (loss, accuracy float64) {
	var total float64
	for _, u := range updates {
		total += float64(u.DataSize)
	}
	if total == 0 {
		for _, u := range updates {
			loss += u.Loss
			accuracy += u.Accuracy
		}
		n := float64(len(updates))
		return loss / n, accuracy / n
	}
	for _, u := range updates {
		w := float64(u.DataSize) / total
		loss += w * u.Loss
		accuracy += w * u.Accuracy
	}
	return loss, accuracy
}
