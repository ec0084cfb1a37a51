package dataset

import (
	"fmt"
	"math/rand"
)

// Split shuffles d with seed and cuts it into len(fractions)+1 parts: one per
// fraction (rounded down) followed by the remainder. Split(d, seed, 0.7)
// yields train and test.
func Split(d *Dataset, seed int64, fractions ...float64) ([]*Dataset, error) {
	total := 0.0
	for _, f := range fractions {
		if f <= 0 || f >= 1 {
			return nil, fmt.Errorf("dataset: split fraction %v out of (0,1)", f)
		}
		total += f
	}
	if total >= 1 {
		return nil, fmt.Errorf("dataset: split fractions sum to %v, leaving no remainder", total)
	}
	n := d.Len()
	indices := rand.New(rand.NewSource(seed)).Perm(n)
	parts := make([]*Dataset, 0, len(fractions)+1)
	start := 0
	for _, f := range fractions {
		end := start + int(float64(n)*f)
		parts = append(parts, d.Subset(indices[start:end]))
		start = end
	}
	parts = append(parts, d.Subset(indices[start:]))
	return parts, nil
}

// KFold yields k folds of shuffled indices covering 0..n-1.
func KFold(n, k int, seed int64) [][]int {
	if k <= 0 {
		return nil
	}
	indices := rand.New(rand.NewSource(seed)).Perm(n)
	folds := make([][]int, k)
	for i := range n {
		folds[i%k] = append(folds[i%k], indices[i])
	}
	return folds
}
