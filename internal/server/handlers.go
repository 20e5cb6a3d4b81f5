package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/inferloop/flsim/internal/aggregation"
	"github.com/inferloop/flsim/internal/distance"
	"github.com/inferloop/flsim/internal/experiment"
	"github.com/inferloop/flsim/pkg/errors"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orchestrator.Snapshot())
}

func (s *Server) handleClients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orchestrator.Clients())
}

func (s *Server) handleRounds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orchestrator.History())
}

// handleRunRound executes one round synchronously. The round can be aborted
// through the cancel endpoint while it runs.
func (s *Server) handleRunRound(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	s.cancelMu.Lock()
	s.cancelRound = cancel
	s.cancelMu.Unlock()
	defer func() {
		s.cancelMu.Lock()
		s.cancelRound = nil
		s.cancelMu.Unlock()
		cancel()
	}()

	metrics, err := s.orchestrator.RunRound(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.cancelMu.Lock()
	cancel := s.cancelRound
	s.cancelMu.Unlock()

	if cancel == nil {
		writeError(w, errors.NewSimulationError(errors.CodeInvalidInput, "no round is running"))
		return
	}
	cancel()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.orchestrator.Positions()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orchestrator.Config())
}

// handleUpdateConfig applies a partial aggregation-config update between
// rounds. The patch is validated as a whole; on failure the previous
// configuration stays in effect.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var patch aggregation.ConfigPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, errors.NewValidationError(errors.CodeInvalidFormat, "malformed request body"))
		return
	}

	cfg, err := s.orchestrator.ApplyConfigPatch(patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleSaveExperiment(w http.ResponseWriter, r *http.Request) {
	data := s.store.Save(s.orchestrator.History(), s.orchestrator.ClientModels(), s.orchestrator.Config())

	raw, err := s.store.Marshal(data)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.backend.Put(r.Context(), data.ID, raw); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": data.ID})
}

func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	ids, err := s.backend.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"experiments": ids})
}

func (s *Server) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	raw, err := s.backend.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := s.store.Load(raw)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleDeleteExperiment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.backend.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

type compareRequest struct {
	IDs    []string `json:"ids"`
	Metric string   `json:"metric,omitempty"`
}

type compareResponse struct {
	Alignment  *experiment.Alignment `json:"alignment"`
	Similarity [][]float64           `json:"similarity"`
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewValidationError(errors.CodeInvalidFormat, "malformed request body"))
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, errors.NewValidationError(errors.CodeMissingField, "ids is required"))
		return
	}

	experiments := make([]*experiment.ExperimentData, 0, len(req.IDs))
	for _, id := range req.IDs {
		raw, err := s.backend.Get(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		data, err := s.store.Load(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		experiments = append(experiments, data)
	}

	metric := s.orchestrator.Config().DistanceMetric
	if req.Metric != "" {
		metric = distance.Metric(req.Metric)
	}
	comparator, err := experiment.NewComparator(metric, s.logger)
	if err != nil {
		writeError(w, err)
		return
	}

	alignment, err := comparator.Align(experiments)
	if err != nil {
		writeError(w, err)
		return
	}
	similarity, err := comparator.SimilarityMatrix(experiments)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, compareResponse{Alignment: alignment, Similarity: similarity})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		switch appErr.Type {
		case errors.ErrorTypeValidation, errors.ErrorTypeConfiguration:
			status = http.StatusBadRequest
		case errors.ErrorTypeExperiment:
			if appErr.Code == errors.CodeExperimentNotFound {
				status = http.StatusNotFound
			} else {
				status = http.StatusBadRequest
			}
		case errors.ErrorTypeSimulation:
			if appErr.Code == errors.CodeRoundInProgress {
				status = http.StatusConflict
			} else {
				status = http.StatusBadRequest
			}
		case errors.ErrorTypeStorage:
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]interface{}{"error": appErr})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
