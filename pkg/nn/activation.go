// Package nn holds the activation and loss functions shared by the
// gradient-trained classifiers.
package nn

import "math"

// Sigmoid maps a margin to a probability. Large negative inputs are handled
// without overflowing exp.
func Sigmoid(x float64) float64 {
	if x >= 0 {
		return 1.0 / (1.0 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1.0 + e)
}

func clampProb(p float64) float64 { return math.Min(math.Max(p, 1e-12), 1-1e-12) }
