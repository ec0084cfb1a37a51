package search

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withResults(rows ...map[string]float64) *ModelSearch {
	s := &ModelSearch{metricNames: []string{"accuracy_score", "disparate_impact"}}
	for i, m := range rows {
		s.results = append(s.results, Result{Index: i, Model: "m", Metrics: m})
	}
	return s
}

func TestRankAndBest(t *testing.T) {
	s := withResults(
		map[string]float64{"accuracy_score": 0.6, "disparate_impact": 0.8},
		map[string]float64{"accuracy_score": math.NaN(), "disparate_impact": 1},
		map[string]float64{"accuracy_score": 0.7, "disparate_impact": 0.5},
		map[string]float64{"accuracy_score": 0.6, "disparate_impact": 1.1},
	)
	ranked, err := s.Rank("accuracy_score", true)
	require.NoError(t, err)
	idx := make([]int, len(ranked))
	for i, r := range ranked {
		idx[i] = r.Index
	}
	assert.Equal(t, []int{2, 0, 3, 1}, idx)

	ranked, err = s.Rank("accuracy_score", false)
	require.NoError(t, err)
	assert.Equal(t, 0, ranked[0].Index)
	assert.Equal(t, 1, ranked[3].Index)

	best, err := s.Best("accuracy_score", true)
	require.NoError(t, err)
	assert.Equal(t, 2, best.Index)

	_, err = s.Best("theil_index", true)
	assert.Error(t, err)
	_, err = withResults().Best("accuracy_score", true)
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestClosestToIdeal(t *testing.T) {
	s := withResults(
		map[string]float64{"accuracy_score": 0.6, "disparate_impact": 1.3},
		map[string]float64{"accuracy_score": 0.9, "disparate_impact": math.NaN()},
		map[string]float64{"accuracy_score": 0.7, "disparate_impact": 0.9},
		map[string]float64{"accuracy_score": 0.5, "disparate_impact": 1.1},
	)
	best, err := s.Closest("accuracy_score")
	require.NoError(t, err)
	assert.Equal(t, 1, best.Index)

	// 0.9 and 1.1 are equally far from 1; the earlier row wins
	best, err = s.Closest("disparate_impact")
	require.NoError(t, err)
	assert.Equal(t, 2, best.Index)

	s.metricNames = append(s.metricNames, "average_odds_difference")
	s.results[3].Metrics["average_odds_difference"] = -0.05
	s.results[0].Metrics["average_odds_difference"] = 0.3
	s.results[1].Metrics["average_odds_difference"] = 0.2
	s.results[2].Metrics["average_odds_difference"] = math.NaN()
	best, err = s.Closest("average_odds_difference")
	require.NoError(t, err)
	assert.Equal(t, 3, best.Index, "smallest absolute difference, not the largest value")

	_, err = s.Closest("theil_index")
	assert.Error(t, err)
	_, err = withResults().Closest("accuracy_score")
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestFrontier(t *testing.T) {
	s := withResults(
		map[string]float64{"accuracy_score": 0.6, "disparate_impact": 0.95}, // on frontier
		map[string]float64{"accuracy_score": 0.7, "disparate_impact": 0.5},  // on frontier
		map[string]float64{"accuracy_score": 0.55, "disparate_impact": 0.8}, // dominated by 0
		map[string]float64{"accuracy_score": 0.6, "disparate_impact": 1.1},  // dominated by 0
		map[string]float64{"accuracy_score": 0.8, "disparate_impact": math.NaN()},
		map[string]float64{"accuracy_score": 0.65, "disparate_impact": 0.7}, // on frontier
	)
	front, err := s.Frontier("accuracy_score", "disparate_impact")
	require.NoError(t, err)
	idx := make([]int, len(front))
	for i, r := range front {
		idx[i] = r.Index
	}
	assert.Equal(t, []int{0, 1, 5}, idx)

	_, err = s.Frontier("accuracy_score", "average_odds_difference")
	assert.Error(t, err)
}
