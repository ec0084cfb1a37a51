package metrics

import (
	"errors"
	"fmt"
	"math"

	"github.com/rngrant/520-DAVAR-Project/pkg/dataset"
)

// ErrMismatch is returned when the true and predicted datasets do not
// describe the same rows.
var ErrMismatch = errors.New("metrics: true and predicted datasets differ in shape")

// ClassificationMetric compares predictions against true labels, overall
// and for a privileged and an unprivileged group set. Instance weights come
// from the true dataset.
type ClassificationMetric struct {
	truth *dataset.Dataset
	pred  *dataset.Dataset

	unpriv []bool
	priv   []bool
}

// NewClassificationMetric validates the pair of datasets and resolves the
// group masks once.
func NewClassificationMetric(truth, pred *dataset.Dataset, unprivileged, privileged dataset.Groups) (*ClassificationMetric, error) {
	if truth == nil || pred == nil {
		return nil, errors.New("metrics: nil dataset")
	}
	if truth.Len() != pred.Len() || len(pred.Scores) != pred.Len() {
		return nil, fmt.Errorf("%w: %d vs %d rows", ErrMismatch, truth.Len(), pred.Len())
	}
	unpriv, err := unprivileged.Mask(truth)
	if err != nil {
		return nil, fmt.Errorf("metrics: unprivileged groups: %w", err)
	}
	priv, err := privileged.Mask(truth)
	if err != nil {
		return nil, fmt.Errorf("metrics: privileged groups: %w", err)
	}
	return &ClassificationMetric{truth: truth, pred: pred, unpriv: unpriv, priv: priv}, nil
}

// Group selects which rows a per-group quantity is computed over.
type Group int

const (
	All Group = iota
	Unprivileged
	Privileged
)

func (m *ClassificationMetric) mask(g Group) []bool {
	switch g {
	case Unprivileged:
		return m.unpriv
	case Privileged:
		return m.priv
	}
	return nil
}

// Confusion returns the weighted confusion counts for g.
func (m *ClassificationMetric) Confusion(g Group) Confusion {
	return confusion(m.truth.Labels, m.pred.Labels, m.truth.Weights, m.mask(g))
}

// Generalized returns the score-weighted confusion counts for g.
func (m *ClassificationMetric) Generalized(g Group) Confusion {
	return generalized(m.truth.Labels, m.pred.Scores, m.truth.Weights, m.mask(g))
}

// GeneralizedFPR is the expected score of true negatives.
func (m *ClassificationMetric) GeneralizedFPR(g Group) float64 { return m.Generalized(g).FPR() }

// GeneralizedFNR is the expected complement score of true positives.
func (m *ClassificationMetric) GeneralizedFNR(g Group) float64 { return m.Generalized(g).FNR() }

func (m *ClassificationMetric) difference(f func(Confusion) float64) float64 {
	return f(m.Confusion(Unprivileged)) - f(m.Confusion(Privileged))
}

func (m *ClassificationMetric) Accuracy() float64 { return m.Confusion(All).Accuracy() }

func (m *ClassificationMetric) BalancedAccuracy() float64 {
	c := m.Confusion(All)
	return (c.TPR() + c.TNR()) / 2
}

func (m *ClassificationMetric) Precision() float64 { return m.Confusion(All).PPV() }
func (m *ClassificationMetric) Recall() float64    { return m.Confusion(All).TPR() }

func (m *ClassificationMetric) F1() float64 {
	c := m.Confusion(All)
	p, r := c.PPV(), c.TPR()
	return div(2*p*r, p+r)
}

func (m *ClassificationMetric) StatisticalParityDifference() float64 {
	return m.difference(Confusion.SelectionRate)
}

func (m *ClassificationMetric) DisparateImpact() float64 {
	return div(m.Confusion(Unprivileged).SelectionRate(), m.Confusion(Privileged).SelectionRate())
}

func (m *ClassificationMetric) EqualOpportunityDifference() float64 {
	return m.difference(Confusion.TPR)
}

func (m *ClassificationMetric) AverageOddsDifference() float64 {
	return 0.5 * (m.difference(Confusion.FPR) + m.difference(Confusion.TPR))
}

// TheilIndex is the generalized entropy index with alpha = 1 over the
// per-row benefit b = pred - true + 1.
func (m *ClassificationMetric) TheilIndex() float64 {
	n := m.truth.Len()
	if n == 0 {
		return math.NaN()
	}
	b := make([]float64, n)
	mu := 0.0
	for i := range b {
		b[i] = m.pred.Labels[i] - m.truth.Labels[i] + 1
		mu += b[i]
	}
	mu /= float64(n)
	if mu == 0 {
		return math.NaN()
	}
	s := 0.0
	for _, v := range b {
		if v > 0 {
			r := v / mu
			s += r * math.Log(r)
		}
	}
	return s / float64(n)
}
