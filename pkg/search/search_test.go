package search_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/rngrant/520-DAVAR-Project/internal/config"
	"github.com/rngrant/520-DAVAR-Project/pkg/dataset"
	"github.com/rngrant/520-DAVAR-Project/pkg/dataset/datasettest"
	"github.com/rngrant/520-DAVAR-Project/pkg/metrics"
	"github.com/rngrant/520-DAVAR-Project/pkg/mitigation"
	"github.com/rngrant/520-DAVAR-Project/pkg/search"
)

var (
	testModels = map[string]string{
		"lr":   "LogisticRegression",
		"tree": "DecisionTreeClassifier",
	}
	testMetrics = map[string][]string{
		"UnifiedMetricLibrary": {"accuracy_score", "statistical_parity_difference", "disparate_impact"},
	}
	testGrid = map[string]search.Grid{
		"lr":   {"penalty": {"l1", "l2"}, "C": {0.5, 1}},
		"tree": {"max_depth": {2, 3, 4}},
	}
	pre  = []search.Branch{{{Name: "Reweighing"}}}
	post = []mitigation.Step{{Name: "CalibratedEqOddsPostprocessing"}}
)

func newSearch(t *testing.T, opts ...search.Option) *search.ModelSearch {
	t.Helper()
	s, err := search.New(testModels, testMetrics, testGrid, []float64{0, 0.5}, opts...)
	require.NoError(t, err)
	return s
}

func TestGridSearchRowCount(t *testing.T) {
	s := newSearch(t, search.WithWorkers(4), search.WithSeed(3))
	assert.Equal(t, 7, s.GridSize())

	ds := datasettest.Biased(300, 1)
	got, err := s.GridSearch(context.Background(), ds, datasettest.Privileged, datasettest.Unprivileged, pre, post)
	require.NoError(t, err)
	assert.Len(t, got, (1+len(pre))*7*2*(1+len(post)))
	assert.Equal(t, got, s.Results())
	for i, r := range got {
		assert.Equal(t, i, r.Index)
		assert.Len(t, r.Metrics, 3)
	}
}

func TestGridSearchOrderAndDeterminism(t *testing.T) {
	ds := datasettest.Biased(300, 2)
	run := func(workers int) []search.Result {
		s := newSearch(t, search.WithWorkers(workers), search.WithSeed(9))
		got, err := s.GridSearch(context.Background(), ds, datasettest.Privileged, datasettest.Unprivileged, pre, post)
		require.NoError(t, err)
		withoutNaN(got)
		return got
	}
	serial, parallel := run(1), run(8)
	assert.Equal(t, serial, parallel)

	first := serial[:4]
	for _, r := range first {
		assert.Equal(t, "none", r.Preprocessor)
		assert.Equal(t, "lr", r.Model)
		assert.Equal(t, "C=0.5;penalty=l1", r.Hyperparameters())
	}
	assert.Equal(t, []float64{0, 0, 0.5, 0.5}, []float64{first[0].Threshold, first[1].Threshold, first[2].Threshold, first[3].Threshold})
	assert.Equal(t, "none", first[0].Postprocessor)
	assert.Equal(t, "CalibratedEqOddsPostprocessing", first[1].Postprocessor)
	assert.Equal(t, "C=0.5;penalty=l2", serial[4].Hyperparameters())
	assert.Equal(t, "Reweighing", serial[len(serial)-1].Preprocessor)
	assert.Equal(t, "tree", serial[len(serial)-1].Model)
}

func withoutNaN(rows []search.Result) {
	for i := range rows {
		rows[i].FitDuration = 0
		for k, v := range rows[i].Metrics {
			if math.IsNaN(v) {
				rows[i].Metrics[k] = -1
			}
		}
	}
}

func TestDefaultCompasGrid(t *testing.T) {
	cfg := config.Default()
	s, err := search.New(cfg.Models, cfg.Metrics, cfg.Hyperparameters, cfg.Thresholds,
		search.WithSeed(cfg.Run.Seed), search.WithTestFraction(cfg.Split.Test))
	require.NoError(t, err)
	assert.Equal(t, 15, s.GridSize())

	got, err := s.GridSearch(context.Background(), datasettest.Biased(400, 11),
		cfg.Privileged, cfg.Unprivileged, cfg.Branches(), cfg.Postprocessors)
	require.NoError(t, err)
	require.Len(t, got, (1+1)*15*5*(1+1))

	pres := map[string]int{}
	posts := map[string]int{}
	for _, r := range got {
		pres[r.Preprocessor]++
		posts[r.Postprocessor]++
		assert.Len(t, r.Metrics, 5)
		assert.False(t, math.IsNaN(r.Metrics["accuracy_score"]))
	}
	assert.Equal(t, map[string]int{"none": 150, "DisparateImpactRemover": 150}, pres)
	assert.Equal(t, map[string]int{"none": 150, "CalibratedEqOddsPostprocessing": 150}, posts)
	assert.Equal(t, "DisparateImpactRemover", got[150].Preprocessor)
	assert.Equal(t, "LogisticRegression", got[150].Model)
}

func TestRejectOptionRowsIgnoreSearchThreshold(t *testing.T) {
	s, err := search.New(map[string]string{"lr": "LogisticRegression"}, testMetrics, nil, []float64{0.2, 0.6})
	require.NoError(t, err)
	got, err := s.GridSearch(context.Background(), datasettest.Biased(300, 12),
		datasettest.Privileged, datasettest.Unprivileged, nil,
		[]mitigation.Step{{Name: "RejectOptionClassification"}})
	require.NoError(t, err)
	require.Len(t, got, 2*2)
	withoutNaN(got)

	// rows: (0.2, none), (0.2, roc), (0.6, none), (0.6, roc)
	assert.Equal(t, "RejectOptionClassification", got[1].Postprocessor)
	assert.Equal(t, got[1].Metrics, got[3].Metrics)
	assert.NotEqual(t, got[0].Metrics, got[2].Metrics)
}

func TestZeroThresholdSelectsEveryone(t *testing.T) {
	s := newSearch(t, search.WithSeed(1))
	got, err := s.GridSearch(context.Background(), datasettest.Biased(200, 3),
		datasettest.Privileged, datasettest.Unprivileged, nil, nil)
	require.NoError(t, err)
	for _, r := range got {
		if r.Threshold == 0 {
			assert.Equal(t, 0.0, r.Metrics["statistical_parity_difference"])
			assert.Equal(t, 1.0, r.Metrics["disparate_impact"])
		}
	}
}

func TestNewValidation(t *testing.T) {
	thr := []float64{0.5}
	_, err := search.New(nil, testMetrics, nil, thr)
	assert.ErrorIs(t, err, search.ErrNoModels)

	_, err = search.New(testModels, testMetrics, nil, nil)
	assert.ErrorIs(t, err, search.ErrNoThresholds)

	_, err = search.New(testModels, testMetrics, nil, []float64{0.2, 1.5})
	assert.ErrorIs(t, err, search.ErrThreshold)

	_, err = search.New(testModels, nil, nil, thr)
	assert.ErrorIs(t, err, search.ErrNoMetrics)

	_, err = search.New(testModels, map[string][]string{"UnifiedMetricLibrary": {"roc_auc"}}, nil, thr)
	assert.ErrorIs(t, err, metrics.ErrUnknownMetric)

	_, err = search.New(map[string]string{"m": "XGBoost"}, testMetrics, nil, thr)
	assert.Error(t, err)

	_, err = search.New(testModels, testMetrics, map[string]search.Grid{"svm": {"C": {1}}}, thr)
	assert.Error(t, err)

	_, err = search.New(testModels, testMetrics, map[string]search.Grid{"lr": {"penalty": {"elasticnet"}}}, thr)
	assert.Error(t, err)

	_, err = search.New(testModels, testMetrics, map[string]search.Grid{"lr": {"C": {}}}, thr)
	assert.Error(t, err)

	_, err = search.New(testModels, testMetrics, nil, thr, search.WithTestFraction(1))
	assert.Error(t, err)
}

func TestGridSearchErrors(t *testing.T) {
	s := newSearch(t)
	ds := datasettest.Biased(100, 1)
	ctx := context.Background()

	_, err := s.GridSearch(ctx, ds, dataset.Groups{{"age": 1}}, datasettest.Unprivileged, nil, nil)
	assert.Error(t, err)
	_, err = s.GridSearch(ctx, ds, nil, datasettest.Unprivileged, nil, nil)
	assert.ErrorIs(t, err, dataset.ErrEmptyGroups)
	_, err = s.GridSearch(ctx, ds, datasettest.Privileged, datasettest.Unprivileged,
		[]search.Branch{{{Name: "Optimus"}}}, nil)
	assert.Error(t, err)
	_, err = s.GridSearch(ctx, nil, datasettest.Privileged, datasettest.Unprivileged, nil, nil)
	assert.Error(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.GridSearch(cancelled, ds, datasettest.Privileged, datasettest.Unprivileged, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValidationFractionFitsPostprocessorOnHeldOutRows(t *testing.T) {
	s := newSearch(t, search.WithValidationFraction(0.2), search.WithTestFraction(0.3))
	got, err := s.GridSearch(context.Background(), datasettest.Biased(300, 4),
		datasettest.Privileged, datasettest.Unprivileged, nil, post)
	require.NoError(t, err)
	assert.Len(t, got, 7*2*2)
}

func TestCSVExport(t *testing.T) {
	s := newSearch(t)
	_, err := s.GridSearch(context.Background(), datasettest.Biased(150, 5),
		datasettest.Privileged, datasettest.Unprivileged, nil, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.WriteCSV(&buf))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1+len(s.Results()))
	assert.Equal(t, []string{"index", "preprocessor", "model", "hyperparameters", "threshold", "postprocessor",
		"accuracy_score", "statistical_parity_difference", "disparate_impact", "fit_seconds"}, records[0])
	assert.Equal(t, "0", records[1][0])
	assert.Equal(t, "none", records[1][1])
	assert.Equal(t, "lr", records[1][2])

	path := filepath.Join(t.TempDir(), "search_output.csv")
	require.NoError(t, s.ToCSV(path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var again bytes.Buffer
	require.NoError(t, s.WriteCSV(&again))
	assert.Equal(t, again.String(), string(raw))
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "NaN", search.FormatFloat(math.NaN()))
	assert.Equal(t, "+Inf", search.FormatFloat(math.Inf(1)))
	assert.Equal(t, "0.1", search.FormatFloat(0.1))
}

func TestBranchLabel(t *testing.T) {
	assert.Equal(t, "none", search.Branch(nil).Label())
	b := search.Branch{{Name: "DisparateImpactRemover"}, {Name: "Reweighing"}}
	assert.Equal(t, "DisparateImpactRemover+Reweighing", b.Label())
}

func TestGridSearchTracesEachConfiguration(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	s := newSearch(t, search.WithTracer(tp.Tracer("search-test")), search.WithWorkers(2))
	_, err := s.GridSearch(context.Background(), datasettest.Biased(150, 6),
		datasettest.Privileged, datasettest.Unprivileged, pre, nil)
	require.NoError(t, err)

	spans := exp.GetSpans()
	assert.Len(t, spans, 2*s.GridSize())
	for _, sp := range spans {
		assert.Equal(t, "search.evaluate", sp.Name)
	}
}
