package metrics_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rngrant/520-DAVAR-Project/pkg/dataset"
	"github.com/rngrant/520-DAVAR-Project/pkg/dataset/datasettest"
	"github.com/rngrant/520-DAVAR-Project/pkg/metrics"
)

var (
	priv   = dataset.Groups{{"g": 1}}
	unpriv = dataset.Groups{{"g": 0}}
)

// pair returns the truth dataset and predictions for a fixed 8-row example:
// privileged rows give one of each confusion cell, unprivileged rows give
// TP, FP, TN, TN.
func pair(t *testing.T) (*dataset.Dataset, *dataset.Dataset) {
	t.Helper()
	labels := []float64{1, 1, 0, 0, 1, 0, 0, 0}
	preds := []float64{1, 0, 1, 0, 1, 1, 0, 0}
	group := []float64{1, 1, 1, 1, 0, 0, 0, 0}
	truth := datasettest.FromRows(labels, labels, group)
	pred, err := truth.WithPredictions(preds, 0.5)
	require.NoError(t, err)
	return truth, pred
}

func TestClassificationMetricValues(t *testing.T) {
	truth, pred := pair(t)
	m, err := metrics.NewClassificationMetric(truth, pred, unpriv, priv)
	require.NoError(t, err)

	assert.Equal(t, metrics.Confusion{TP: 1, FP: 1, TN: 1, FN: 1}, m.Confusion(metrics.Privileged))
	assert.Equal(t, metrics.Confusion{TP: 1, FP: 1, TN: 2, FN: 0}, m.Confusion(metrics.Unprivileged))

	assert.InDelta(t, 5.0/8, m.Accuracy(), 1e-12)
	assert.InDelta(t, (2.0/3+3.0/5)/2, m.BalancedAccuracy(), 1e-12)
	assert.InDelta(t, 0.5, m.Precision(), 1e-12)
	assert.InDelta(t, 2.0/3, m.Recall(), 1e-12)
	assert.InDelta(t, 4.0/7, m.F1(), 1e-12)
	assert.InDelta(t, 0, m.StatisticalParityDifference(), 1e-12)
	assert.InDelta(t, 1, m.DisparateImpact(), 1e-12)
	assert.InDelta(t, 0.5, m.EqualOpportunityDifference(), 1e-12)
	assert.InDelta(t, 0.5*(1.0/3-0.5+0.5), m.AverageOddsDifference(), 1e-12)

	theil := (5*(8.0/9)*math.Log(8.0/9) + 2*(16.0/9)*math.Log(16.0/9)) / 8
	assert.InDelta(t, theil, m.TheilIndex(), 1e-12)
}

func TestPerfectPredictions(t *testing.T) {
	labels := []float64{1, 0, 1, 0}
	group := []float64{1, 1, 0, 0}
	truth := datasettest.FromRows(labels, labels, group)
	m, err := metrics.NewClassificationMetric(truth, truth.Copy(), unpriv, priv)
	require.NoError(t, err)
	assert.Equal(t, 1.0, m.Accuracy())
	assert.Equal(t, 0.0, m.AverageOddsDifference())
	assert.Equal(t, 0.0, m.StatisticalParityDifference())
	assert.Equal(t, 1.0, m.DisparateImpact())
	assert.Equal(t, 0.0, m.TheilIndex())
}

func TestWeightsScaleCounts(t *testing.T) {
	truth, pred := pair(t)
	truth.Weights[1] = 3 // privileged FN
	m, err := metrics.NewClassificationMetric(truth, pred, unpriv, priv)
	require.NoError(t, err)
	assert.Equal(t, 3.0, m.Confusion(metrics.Privileged).FN)
	assert.InDelta(t, 5.0/10, m.Accuracy(), 1e-12)
}

func TestZeroDenominators(t *testing.T) {
	labels := []float64{0, 0, 1, 0}
	group := []float64{0, 0, 1, 1}
	truth := datasettest.FromRows(labels, labels, group)
	pred, err := truth.WithPredictions([]float64{0, 0, 1, 1}, 0.5)
	require.NoError(t, err)
	m, err := metrics.NewClassificationMetric(truth, pred, unpriv, priv)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(m.EqualOpportunityDifference()))
	assert.Equal(t, 0.0, m.DisparateImpact())

	pred, err = truth.WithPredictions([]float64{1, 0, 0, 0}, 0.5)
	require.NoError(t, err)
	m, err = metrics.NewClassificationMetric(truth, pred, unpriv, priv)
	require.NoError(t, err)
	assert.True(t, math.IsInf(m.DisparateImpact(), 1))
}

func TestGeneralizedRates(t *testing.T) {
	labels := []float64{1, 0, 0}
	truth := datasettest.FromRows(labels, labels, []float64{1, 1, 0})
	pred := truth.Copy()
	copy(pred.Scores, []float64{0.9, 0.2, 0.4})
	m, err := metrics.NewClassificationMetric(truth, pred, unpriv, priv)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, m.GeneralizedFPR(metrics.All), 1e-12)
	assert.InDelta(t, 0.1, m.GeneralizedFNR(metrics.All), 1e-12)
	assert.InDelta(t, 0.2, m.GeneralizedFPR(metrics.Privileged), 1e-12)
}

func TestNewClassificationMetricErrors(t *testing.T) {
	truth, pred := pair(t)
	_, err := metrics.NewClassificationMetric(truth, pred.Subset([]int{0, 1}), unpriv, priv)
	assert.ErrorIs(t, err, metrics.ErrMismatch)
	_, err = metrics.NewClassificationMetric(truth, pred, dataset.Groups{{"race": 0}}, priv)
	assert.Error(t, err)
	_, err = metrics.NewClassificationMetric(truth, pred, nil, priv)
	assert.ErrorIs(t, err, dataset.ErrEmptyGroups)
}

func TestUnifiedMetricLibrary(t *testing.T) {
	names := []string{"accuracy_score", "average_odds_difference", "statistical_parity_difference",
		"equal_opportunity_difference", "disparate_impact"}
	lib, err := metrics.NewLibrary("UnifiedMetricLibrary", names)
	require.NoError(t, err)
	assert.Equal(t, "UnifiedMetricLibrary", lib.Name())
	assert.Equal(t, names, lib.Metrics())

	truth, pred := pair(t)
	got, err := lib.Compute(truth, pred, unpriv, priv)
	require.NoError(t, err)
	assert.Len(t, got, len(names))
	assert.InDelta(t, 5.0/8, got["accuracy_score"], 1e-12)
	assert.InDelta(t, 0.5, got["equal_opportunity_difference"], 1e-12)
}

func TestLibraryValidation(t *testing.T) {
	_, err := metrics.NewLibrary("UnifiedMetricLibrary", []string{"accuracy_score", "roc_auc"})
	assert.ErrorIs(t, err, metrics.ErrUnknownMetric)
	_, err = metrics.NewLibrary("UnifiedMetricLibrary", []string{"accuracy_score", "accuracy_score"})
	assert.Error(t, err)
	_, err = metrics.NewLibrary("UnifiedMetricLibrary", nil)
	assert.Error(t, err)
	_, err = metrics.NewLibrary("SklearnLibrary", []string{"accuracy_score"})
	assert.Error(t, err)
	assert.Contains(t, metrics.Libraries(), "UnifiedMetricLibrary")
}

func TestEveryUnifiedMetricHasIdeal(t *testing.T) {
	for name := range metrics.Unified {
		_, ok := metrics.Ideal[name]
		assert.True(t, ok, name)
	}
}
