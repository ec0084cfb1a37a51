package optim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStepPlain(t *testing.T) {
	w := []float64{1, -1}
	delta := NewSGD(0.5).Step(w, []float64{2, -2})
	assert.Equal(t, []float64{0, 0}, w)
	assert.InDelta(t, 1.0, delta, 1e-12)
}

func TestStepL1DrivesSmallWeightsToZero(t *testing.T) {
	w := []float64{0.05, 2}
	NewSGD(0.1, WithL1(1)).Step(w, []float64{0, 0})
	assert.Equal(t, 0.0, w[0])
	assert.InDelta(t, 1.9, w[1], 1e-12)
}

func TestStepL2Shrinks(t *testing.T) {
	w := []float64{2}
	NewSGD(0.1, WithL2(1)).Step(w, []float64{0})
	assert.InDelta(t, 1.8, w[0], 1e-12)
}
