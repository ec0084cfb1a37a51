package model

import (
	"errors"
	"fmt"
)

// Classifier is a binary probabilistic classifier. Labels are 0/1, weights
// are per-instance (nil means unit weights) and PredictProba returns
// P(label=1) for each row.
type Classifier interface {
	Fit(X [][]float64, y, w []float64) error
	PredictProba(X [][]float64) []float64
}

// ErrNotFitted is returned when a model is used before Fit.
var ErrNotFitted = errors.New("model: not fitted")

// Predict thresholds the probabilities of c at threshold.
func Predict(c Classifier, X [][]float64, threshold float64) []float64 {
	return BinaryPredFromProba(c.PredictProba(X), threshold)
}

// BinaryPredFromProba maps probabilities to 0/1 labels (p >= threshold is 1).
func BinaryPredFromProba(proba []float64, threshold float64) []float64 {
	out := make([]float64, len(proba))
	for i, p := range proba {
		if p >= threshold {
			out[i] = 1
		}
	}
	return out
}

// checkXY validates the common Fit inputs and returns the feature count.
func checkXY(prefix string, X [][]float64, y, w []float64) (int, error) {
	if len(X) == 0 {
		return 0, fmt.Errorf("%s: empty X", prefix)
	}
	if len(y) != len(X) {
		return 0, fmt.Errorf("%s: X and y length mismatch", prefix)
	}
	if w != nil && len(w) != len(X) {
		return 0, fmt.Errorf("%s: X and weights length mismatch", prefix)
	}
	p := len(X[0])
	for i := range X {
		if len(X[i]) != p {
			return 0, fmt.Errorf("%s: inconsistent number of features in X rows", prefix)
		}
	}
	for i, v := range y {
		if v != 0 && v != 1 {
			return 0, fmt.Errorf("%s: label %v at row %d is not 0/1", prefix, v, i)
		}
	}
	return p, nil
}

func weightAt(w []float64, i int) float64 {
	if w == nil {
		return 1
	}
	return w[i]
}
