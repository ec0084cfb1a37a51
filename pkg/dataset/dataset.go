// Package dataset holds the binary-label dataset shared by models, metrics
// and mitigation steps, together with loaders for CSV (COMPAS) and JSON
// sources.
package dataset

import (
	"errors"
	"fmt"
)

// Label values. Loaders map the favorable outcome to Favorable regardless of
// how the source encodes it.
const (
	Favorable   = 1.0
	Unfavorable = 0.0
)

// ErrShape reports inconsistent row or column counts.
var ErrShape = errors.New("dataset: inconsistent shape")

// Dataset is a binary-label dataset with protected attributes, per-instance
// weights and scores. Scores hold P(favorable); for ground truth they equal
// the labels.
type Dataset struct {
	FeatureNames []string
	Features     [][]float64
	Labels       []float64
	Scores       []float64
	Weights      []float64

	ProtectedNames []string
	Protected      [][]float64 // per row, aligned with ProtectedNames
}

// New builds a dataset with unit weights and scores equal to the labels.
func New(featureNames []string, X [][]float64, y []float64, protectedNames []string, protected [][]float64) (*Dataset, error) {
	d := &Dataset{
		FeatureNames:   featureNames,
		Features:       X,
		Labels:         y,
		Scores:         append([]float64(nil), y...),
		Weights:        make([]float64, len(y)),
		ProtectedNames: protectedNames,
		Protected:      protected,
	}
	for i := range d.Weights {
		d.Weights[i] = 1
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Len returns the number of instances.
func (d *Dataset) Len() int { return len(d.Labels) }

// Validate checks that every per-row slice has one entry per instance and
// that labels are binary.
func (d *Dataset) Validate() error {
	n := len(d.Labels)
	if len(d.Features) != n || len(d.Scores) != n || len(d.Weights) != n || len(d.Protected) != n {
		return fmt.Errorf("%w: %d labels, %d feature rows, %d scores, %d weights, %d protected rows",
			ErrShape, n, len(d.Features), len(d.Scores), len(d.Weights), len(d.Protected))
	}
	for i := 0; i < n; i++ {
		if len(d.Features[i]) != len(d.FeatureNames) {
			return fmt.Errorf("%w: row %d has %d features, want %d", ErrShape, i, len(d.Features[i]), len(d.FeatureNames))
		}
		if len(d.Protected[i]) != len(d.ProtectedNames) {
			return fmt.Errorf("%w: row %d has %d protected values, want %d", ErrShape, i, len(d.Protected[i]), len(d.ProtectedNames))
		}
		if d.Labels[i] != Favorable && d.Labels[i] != Unfavorable {
			return fmt.Errorf("dataset: row %d: label %v is not binary", i, d.Labels[i])
		}
		if d.Weights[i] < 0 {
			return fmt.Errorf("dataset: row %d: negative weight %v", i, d.Weights[i])
		}
	}
	return nil
}

// Copy returns a deep copy.
func (d *Dataset) Copy() *Dataset {
	idx := make([]int, d.Len())
	for i := range idx {
		idx[i] = i
	}
	return d.Subset(idx)
}

// Subset returns a deep copy holding the rows in idx, in that order.
func (d *Dataset) Subset(idx []int) *Dataset {
	out := &Dataset{
		FeatureNames:   append([]string(nil), d.FeatureNames...),
		ProtectedNames: append([]string(nil), d.ProtectedNames...),
		Features:       make([][]float64, len(idx)),
		Labels:         make([]float64, len(idx)),
		Scores:         make([]float64, len(idx)),
		Weights:        make([]float64, len(idx)),
		Protected:      make([][]float64, len(idx)),
	}
	for k, i := range idx {
		out.Features[k] = append([]float64(nil), d.Features[i]...)
		out.Protected[k] = append([]float64(nil), d.Protected[i]...)
		out.Labels[k] = d.Labels[i]
		out.Scores[k] = d.Scores[i]
		out.Weights[k] = d.Weights[i]
	}
	return out
}

// WithPredictions returns a copy whose scores are replaced and whose labels
// are the scores thresholded at threshold (score >= threshold is favorable).
func (d *Dataset) WithPredictions(scores []float64, threshold float64) (*Dataset, error) {
	if len(scores) != d.Len() {
		return nil, fmt.Errorf("%w: %d scores for %d rows", ErrShape, len(scores), d.Len())
	}
	out := d.Copy()
	copy(out.Scores, scores)
	for i, s := range scores {
		out.Labels[i] = Unfavorable
		if s >= threshold {
			out.Labels[i] = Favorable
		}
	}
	return out, nil
}

// FeatureIndex returns the column of the named feature or -1.
func (d *Dataset) FeatureIndex(name string) int {
	for i, n := range d.FeatureNames {
		if n == name {
			return i
		}
	}
	return -1
}

// ProtectedIndex returns the position of the named protected attribute or -1.
func (d *Dataset) ProtectedIndex(name string) int {
	for i, n := range d.ProtectedNames {
		if n == name {
			return i
		}
	}
	return -1
}
