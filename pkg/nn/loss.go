package nn

import "math"

// WeightedBCE is binary cross-entropy with per-sample weights. The gradient is
// taken with respect to the margin (p - y), normalised by the total weight.
// A nil w means unit weights.
func WeightedBCE(yTrue, yPred, w []float64) (float64, []float64) {
	n := len(yTrue)
	grad := make([]float64, n)
	if n == 0 {
		return 0, grad
	}
	total := 0.0
	for i := range n {
		total += weightAt(w, i)
	}
	if total == 0 {
		return 0, grad
	}
	s := 0.0
	for i := range n {
		wi := weightAt(w, i)
		p := clampProb(yPred[i])
		y := yTrue[i]
		s += -wi * (y*math.Log(p) + (1-y)*math.Log(1-p))
		grad[i] = wi * (p - y) / total
	}
	return s / total, grad
}

// Hinge is the weighted hinge loss for labels in {0,1} and raw margins.
// The returned gradient is d loss / d margin per sample.
func Hinge(yTrue, margin, w []float64) (float64, []float64) {
	n := len(yTrue)
	grad := make([]float64, n)
	if n == 0 {
		return 0, grad
	}
	total := 0.0
	for i := range n {
		total += weightAt(w, i)
	}
	if total == 0 {
		return 0, grad
	}
	s := 0.0
	for i := range n {
		wi := weightAt(w, i)
		y := 2*yTrue[i] - 1
		if v := 1 - y*margin[i]; v > 0 {
			s += wi * v
			grad[i] = -wi * y / total
		}
	}
	return s / total, grad
}

func weightAt(w []float64, i int) float64 {
	if w == nil {
		return 1
	}
	return w[i]
}
