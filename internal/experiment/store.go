package experiment

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/flsim/internal/aggregation"
	"github.com/inferloop/flsim/internal/model"
	"github.com/inferloop/flsim/pkg/errors"
)

// Store serializes completed runs to the experiment JSON document and
// validates documents on the way back in. It is pure data plumbing: saving
// never touches simulation state, and a rejected load leaves the caller's
// state untouched.
type Store struct {
	logger *logrus.Logger
}

// NewStore creates an experiment store.
func NewStore(logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{logger: logger}
}

// Save assembles an experiment document from a finished (or in-flight) run.
func (s *Store) Save(history []model.RoundMetrics, clientModels []model.ClientModel, config *aggregation.Config) *ExperimentData {
	data := &ExperimentData{
		ID:           uuid.NewString(),
		RoundHistory: append([]model.RoundMetrics(nil), history...),
		ClientModels: append([]model.ClientModel(nil), clientModels...),
		SavedAt:      time.Now().UTC(),
	}
	if config != nil {
		data.ServerConfig = *config
	}

	s.logger.WithFields(logrus.Fields{
		"experiment_id": data.ID,
		"rounds":        len(data.RoundHistory),
		"clients":       len(data.ClientModels),
	}).Info("Saved experiment")

	return data
}

// Marshal encodes an experiment document as a single UTF-8 JSON document.
func (s *Store) Marshal(data *ExperimentData) ([]byte, error) {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeExperiment,
			errors.CodeInvalidFormat, "failed to encode experiment")
	}
	return out, nil
}

// Load decodes and validates an experiment document. Malformed input is
// rejected with an error naming the first offending field.
func (s *Store) Load(raw []byte) (*ExperimentData, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeExperiment,
			errors.CodeInvalidExperimentFile, "experiment file is not a JSON object")
	}

	historyRaw, ok := fields["roundHistory"]
	if !ok {
		return nil, invalidField("roundHistory", "field is required")
	}
	var historyItems []json.RawMessage
	if err := json.Unmarshal(historyRaw, &historyItems); err != nil {
		return nil, invalidField("roundHistory", "must be an array")
	}

	data := &ExperimentData{}
	for i, item := range historyItems {
		var rm model.RoundMetrics
		if err := json.Unmarshal(item, &rm); err != nil {
			return nil, invalidField(fmt.Sprintf("roundHistory[%d]", i), "malformed round metrics")
		}
		if rm.Round != i {
			return nil, invalidField(fmt.Sprintf("roundHistory[%d].round", i),
				fmt.Sprintf("expected round index %d, got %d", i, rm.Round))
		}
		data.RoundHistory = append(data.RoundHistory, rm)
	}

	if modelsRaw, ok := fields["clientModels"]; ok {
		var items []json.RawMessage
		if err := json.Unmarshal(modelsRaw, &items); err != nil {
			return nil, invalidField("clientModels", "must be an array")
		}
		for i, item := range items {
			var cm model.ClientModel
			if err := json.Unmarshal(item, &cm); err != nil {
				return nil, invalidField(fmt.Sprintf("clientModels[%d]", i), "malformed client model")
			}
			if cm.ClientID == "" {
				return nil, invalidField(fmt.Sprintf("clientModels[%d].clientId", i), "field is required")
			}
			data.ClientModels = append(data.ClientModels, cm)
		}
	}

	if configRaw, ok := fields["serverConfig"]; ok {
		var cfg aggregation.Config
		if err := json.Unmarshal(configRaw, &cfg); err != nil {
			return nil, invalidField("serverConfig", "malformed configuration")
		}
		if err := cfg.Validate(); err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeExperiment,
				errors.CodeInvalidExperimentFile, "invalid field serverConfig")
		}
		data.ServerConfig = cfg
	}

	if savedAtRaw, ok := fields["savedAt"]; ok {
		if err := json.Unmarshal(savedAtRaw, &data.SavedAt); err != nil {
			return nil, invalidField("savedAt", "must be an ISO-8601 timestamp")
		}
	}
	if idRaw, ok := fields["id"]; ok {
		if err := json.Unmarshal(idRaw, &data.ID); err != nil {
			return nil, invalidField("id", "must be a string")
		}
	}
	if nameRaw, ok := fields["name"]; ok {
		if err := json.Unmarshal(nameRaw, &data.Name); err != nil {
			return nil, invalidField("name", "must be a string")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"experiment_id": data.ID,
		"rounds":        len(data.RoundHistory),
	}).Debug("Loaded experiment")

	return data, nil
}

func invalidField(field, reason string) error {
	return errors.NewExperimentError(errors.CodeInvalidExperimentFile,
		fmt.Sprintf("invalid field %s: %s", field, reason))
}
