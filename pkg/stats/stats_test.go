package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptive(t *testing.T) {
	x := []float64{4, 1, 3, 2}
	assert.InDelta(t, 2.5, Mean(x), 1e-12)
	assert.InDelta(t, 1.25, Variance(x), 1e-12)
	assert.InDelta(t, 2.5, Median(x), 1e-12)
	assert.InDelta(t, math.Sqrt(1.25), Std(x), 1e-12)
	assert.Equal(t, 0.0, Variance([]float64{3, 3, 3}))
	assert.Equal(t, []float64{4, 1, 3, 2}, x, "inputs are not reordered")
}

func TestQuantileSorted(t *testing.T) {
	x := []float64{0, 5, 10}
	assert.InDelta(t, 0, QuantileSorted(x, 0), 1e-12)
	assert.InDelta(t, 5, QuantileSorted(x, 0.5), 1e-12)
	assert.InDelta(t, 7.5, QuantileSorted(x, 0.75), 1e-12)
	assert.InDelta(t, 10, QuantileSorted(x, 1), 1e-12)
	assert.Equal(t, 0.0, QuantileSorted(nil, 0.5))
}

func TestStandardScaler(t *testing.T) {
	s := NewStandardScaler()
	out, err := s.FitTransform([][]float64{{1, 7}, {3, 7}})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{-1, 0}, {1, 0}}, out)
	assert.Equal(t, []float64{2, 7}, s.Mean)
	assert.Equal(t, []float64{1, 1}, s.Std, "constant column keeps unit scale")

	_, err = NewStandardScaler().FitTransform(nil)
	assert.Error(t, err)
	_, err = NewStandardScaler().FitTransform([][]float64{{1, 2}, {3}})
	assert.Error(t, err)
}
