package experiment

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/flsim/internal/aggregation"
	"github.com/inferloop/flsim/internal/model"
	"github.com/inferloop/flsim/pkg/errors"
)

func sampleHistory() []model.RoundMetrics {
	return []model.RoundMetrics{
		{
			Round:                0,
			Timestamp:            time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
			GlobalLoss:           0.9,
			GlobalAccuracy:       0.4,
			AggregationTimeMs:    1.5,
			ParticipatingClients: []string{"c1", "c2"},
		},
		{
			Round:                1,
			Timestamp:            time.Date(2025, 3, 1, 12, 1, 0, 0, time.UTC),
			GlobalLoss:           0.6,
			GlobalAccuracy:       0.6,
			AggregationTimeMs:    1.2,
			ParticipatingClients: []string{"c1", "c2"},
			ClusterMetrics: []model.ClusterMetrics{
				{ClusterID: 0, Accuracy: 0.55, MemberClientIDs: []string{"c1", "c2"}},
			},
		},
	}
}

func sampleClientModels() []model.ClientModel {
	shape := model.WeightShape{HiddenRows: 1, HiddenCols: 2, OutputRows: 2, OutputCols: 1}
	return []model.ClientModel{
		{ClientID: "c1", Weights: model.RandomModelWeights(shape, 1)},
		{ClientID: "c2", Weights: model.RandomModelWeights(shape, 2)},
	}
}

func TestSaveAssignsIDAndTimestamp(t *testing.T) {
	store := NewStore(logrus.New())

	data := store.Save(sampleHistory(), sampleClientModels(), aggregation.NewDefaultConfig())
	assert.NotEmpty(t, data.ID)
	assert.False(t, data.SavedAt.IsZero())
	assert.Len(t, data.RoundHistory, 2)
	assert.Len(t, data.ClientModels, 2)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := NewStore(logrus.New())
	saved := store.Save(sampleHistory(), sampleClientModels(), aggregation.NewDefaultConfig())

	raw, err := store.Marshal(saved)
	require.NoError(t, err)

	loaded, err := store.Load(raw)
	require.NoError(t, err)

	assert.Equal(t, saved.ID, loaded.ID)
	assert.Equal(t, saved.RoundHistory, loaded.RoundHistory)
	assert.Equal(t, saved.ClientModels, loaded.ClientModels)
	assert.Equal(t, saved.ServerConfig, loaded.ServerConfig)
	assert.True(t, saved.SavedAt.Equal(loaded.SavedAt))
}

func TestLoadRejectsMalformedDocuments(t *testing.T) {
	store := NewStore(logrus.New())

	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `{{`},
		{"not an object", `[1, 2, 3]`},
		{"missing roundHistory", `{"clientModels": []}`},
		{"roundHistory not an array", `{"roundHistory": {"round": 0}}`},
		{"roundHistory wrong index", `{"roundHistory": [{"round": 5}]}`},
		{"clientModels not an array", `{"roundHistory": [], "clientModels": 7}`},
		{"client model missing id", `{"roundHistory": [], "clientModels": [{"weights": null}]}`},
		{"savedAt not a timestamp", `{"roundHistory": [], "savedAt": 12}`},
		{"invalid server config", `{"roundHistory": [], "serverConfig": {"distanceMetric": "hamming"}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := store.Load([]byte(tc.raw))
			require.Error(t, err)

			var appErr *errors.AppError
			require.True(t, stderrors.As(err, &appErr))
			assert.Equal(t, errors.CodeInvalidExperimentFile, appErr.Code)
		})
	}
}

func TestLoadMinimalDocument(t *testing.T) {
	store := NewStore(logrus.New())

	loaded, err := store.Load([]byte(`{"roundHistory": []}`))
	require.NoError(t, err)
	assert.Empty(t, loaded.RoundHistory)
	assert.Empty(t, loaded.ClientModels)
}

func TestFinalQualityHelpers(t *testing.T) {
	empty := &ExperimentData{}
	assert.Equal(t, 0.0, empty.FinalGlobalLoss())
	assert.Equal(t, 0.0, empty.FinalGlobalAccuracy())

	data := &ExperimentData{RoundHistory: sampleHistory()}
	assert.Equal(t, 2, data.Rounds())
	assert.Equal(t, 0.6, data.FinalGlobalLoss())
	assert.Equal(t, 0.6, data.FinalGlobalAccuracy())
}
