// Package metrics computes classification and group-fairness metrics over a
// pair of datasets: one holding the true labels and one holding predictions.
//
// The favorable label (1) is treated as the positive class. Ratios whose
// denominator is zero follow floating-point division: 0/0 is NaN and x/0 is
// an infinity.
package metrics

import "math"

// Confusion holds instance-weighted confusion counts.
type Confusion struct {
	TP, FP, TN, FN float64
}

func (c Confusion) Total() float64     { return c.TP + c.FP + c.TN + c.FN }
func (c Confusion) Positives() float64 { return c.TP + c.FN }
func (c Confusion) Negatives() float64 { return c.TN + c.FP }

// BaseRate is the share of true favorable labels.
func (c Confusion) BaseRate() float64 { return div(c.Positives(), c.Total()) }

// SelectionRate is the share of predicted favorable labels.
func (c Confusion) SelectionRate() float64 { return div(c.TP+c.FP, c.Total()) }

func (c Confusion) TPR() float64       { return div(c.TP, c.Positives()) }
func (c Confusion) FPR() float64       { return div(c.FP, c.Negatives()) }
func (c Confusion) TNR() float64       { return div(c.TN, c.Negatives()) }
func (c Confusion) FNR() float64       { return div(c.FN, c.Positives()) }
func (c Confusion) PPV() float64       { return div(c.TP, c.TP+c.FP) }
func (c Confusion) FDR() float64       { return div(c.FP, c.TP+c.FP) }
func (c Confusion) Accuracy() float64  { return div(c.TP+c.TN, c.Total()) }
func (c Confusion) ErrorRate() float64 { return div(c.FP+c.FN, c.Total()) }

func div(a, b float64) float64 {
	if b == 0 {
		if a == 0 {
			return math.NaN()
		}
		return math.Inf(int(math.Copysign(1, a)))
	}
	return a / b
}

// confusion accumulates counts over rows where mask is true (nil = all rows).
func confusion(truth, pred, w []float64, mask []bool) Confusion {
	var c Confusion
	for i := range truth {
		if mask != nil && !mask[i] {
			continue
		}
		wi := w[i]
		switch {
		case truth[i] == 1 && pred[i] == 1:
			c.TP += wi
		case truth[i] == 0 && pred[i] == 1:
			c.FP += wi
		case truth[i] == 0 && pred[i] == 0:
			c.TN += wi
		default:
			c.FN += wi
		}
	}
	return c
}

// generalized returns soft confusion counts where the predicted score stands
// in for a hard decision.
func generalized(truth, scores, w []float64, mask []bool) Confusion {
	var c Confusion
	for i := range truth {
		if mask != nil && !mask[i] {
			continue
		}
		wi, s := w[i], scores[i]
		if truth[i] == 1 {
			c.TP += wi * s
			c.FN += wi * (1 - s)
		} else {
			c.FP += wi * s
			c.TN += wi * (1 - s)
		}
	}
	return c
}
