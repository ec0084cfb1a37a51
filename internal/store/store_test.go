package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rngrant/520-DAVAR-Project/pkg/model"
	"github.com/rngrant/520-DAVAR-Project/pkg/search"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleResults() []search.Result {
	return []search.Result{
		{
			Index: 0, Preprocessor: "none", Model: "lr", Kind: "LogisticRegression",
			Params:    model.Params{"C": 0.5, "penalty": "l1", "max_iter": 100},
			Threshold: 0.1, Postprocessor: "none",
			Metrics:     map[string]float64{"accuracy_score": 0.7, "disparate_impact": math.NaN()},
			FitDuration: 12 * time.Millisecond,
		},
		{
			Index: 1, Preprocessor: "DisparateImpactRemover", Model: "rf", Kind: "RandomForestClassifier",
			Params:    model.Params{"n_estimators": "warn", "bootstrap": true, "max_depth": nil},
			Threshold: 0.2, Postprocessor: "CalibratedEqOddsPostprocessing",
			Metrics:     map[string]float64{"accuracy_score": 0.65, "disparate_impact": math.Inf(1)},
			FitDuration: 40 * time.Millisecond,
		},
	}
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestSaveAndLoadRun(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	id, err := s.SaveRun(ctx, Run{
		Dataset:     "compas",
		StartedAt:   started,
		FinishedAt:  started.Add(time.Minute),
		Config:      "models: {}",
		MetricNames: []string{"accuracy_score", "disparate_impact"},
	}, sampleResults())
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, "compas", runs[0].Dataset)
	assert.Equal(t, started, runs[0].StartedAt)
	assert.Equal(t, started.Add(time.Minute), runs[0].FinishedAt)
	assert.Equal(t, []string{"accuracy_score", "disparate_impact"}, runs[0].MetricNames)
	assert.Equal(t, 2, runs[0].Rows)

	got, err := s.Results(ctx, id)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "lr", got[0].Model)
	assert.Equal(t, "LogisticRegression", got[0].Kind)
	assert.Equal(t, model.Params{"C": 0.5, "penalty": "l1", "max_iter": 100}, got[0].Params)
	assert.Equal(t, "C=0.5;max_iter=100;penalty=l1", got[0].Hyperparameters())
	assert.InDelta(t, 0.7, got[0].Metrics["accuracy_score"], 1e-12)
	assert.True(t, math.IsNaN(got[0].Metrics["disparate_impact"]))
	assert.Equal(t, 12*time.Millisecond, got[0].FitDuration)

	assert.Equal(t, 1, got[1].Index)
	assert.Equal(t, model.Params{"n_estimators": "warn", "bootstrap": true, "max_depth": nil}, got[1].Params)
	assert.True(t, math.IsInf(got[1].Metrics["disparate_impact"], 1))
	assert.Equal(t, "CalibratedEqOddsPostprocessing", got[1].Postprocessor)
}

func TestSaveRunKeepsGivenID(t *testing.T) {
	s := openTemp(t)
	id, err := s.SaveRun(context.Background(), Run{ID: "run-1", Dataset: "csv"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "run-1", id)

	_, err = s.SaveRun(context.Background(), Run{ID: "run-1", Dataset: "csv"}, nil)
	require.Error(t, err)
}

func TestListRunsNewestFirst(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := s.SaveRun(ctx, Run{ID: "old", Dataset: "compas", StartedAt: base}, nil)
	require.NoError(t, err)
	_, err = s.SaveRun(ctx, Run{ID: "new", Dataset: "compas", StartedAt: base.Add(time.Hour)}, nil)
	require.NoError(t, err)

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "old", runs[1].ID)
	assert.Equal(t, 0, runs[1].Rows)
}

func TestResultsUnknownRun(t *testing.T) {
	s := openTemp(t)
	_, err := s.Results(context.Background(), "missing")
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestCanceledContext(t *testing.T) {
	s := openTemp(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.SaveRun(ctx, Run{Dataset: "compas"}, nil)
	require.ErrorIs(t, err, context.Canceled)
	_, err = s.ListRuns(ctx)
	require.ErrorIs(t, err, context.Canceled)
	_, err = s.Results(ctx, "x")
	require.ErrorIs(t, err, context.Canceled)
}

func TestNilStoreClose(t *testing.T) {
	var s *Store
	assert.NoError(t, s.Close())
}

func TestExtractUpMigration(t *testing.T) {
	got := extractUpMigration("-- +migrate Up\nCREATE TABLE a (x INT);\n-- +migrate Down\nDROP TABLE a;\n")
	assert.Equal(t, "\nCREATE TABLE a (x INT);\n", got)
	assert.Equal(t, "SELECT 1;", extractUpMigration("SELECT 1;"))
}
