package model

import (
	"errors"
	"runtime"
	"sort"
	"sync"
)

// KNN is a k-nearest-neighbours classifier. Votes are scaled by instance
// weight and, with Weights == "distance", by inverse distance.
type KNN struct {
	K       int
	Weights string // "uniform" or "distance"

	X [][]float64
	y []float64
	w []float64
}

// NewKNN creates and returns a new KNN model.
func NewKNN(k int) *KNN {
	return &KNN{K: k, Weights: "uniform"}
}

// Fit stores the training data. Rows with zero weight are dropped.
func (m *KNN) Fit(X [][]float64, y, w []float64) error {
	if _, err := checkXY("knn", X, y, w); err != nil {
		return err
	}
	if m.K <= 0 {
		return errors.New("knn: n_neighbors must be positive")
	}
	if m.Weights != "uniform" && m.Weights != "distance" {
		return errors.New("knn: weights must be uniform or distance")
	}
	m.X, m.y, m.w = nil, nil, nil
	for i := range X {
		wi := weightAt(w, i)
		if wi <= 0 {
			continue
		}
		m.X = append(m.X, X[i])
		m.y = append(m.y, y[i])
		m.w = append(m.w, wi)
	}
	if len(m.X) == 0 {
		return errors.New("knn: total sample weight is zero")
	}
	return nil
}

// PredictProba returns the weighted share of label-1 neighbours, splitting
// rows across CPU cores.
func (m *KNN) PredictProba(X [][]float64) []float64 {
	out := make([]float64, len(X))
	if len(X) == 0 || len(m.X) == 0 {
		return out
	}
	var wg sync.WaitGroup
	workers := runtime.GOMAXPROCS(0)
	rowsPerWorker := (len(X) + workers - 1) / workers

	for w := 0; w < workers; w++ {
		start := w * rowsPerWorker
		end := min(start+rowsPerWorker, len(X))
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				out[i] = m.probaSingle(X[i])
			}
		}(start, end)
	}
	wg.Wait()
	return out
}

type neighbour struct {
	d float64 // squared distance
	j int
}

func (m *KNN) probaSingle(xi []float64) float64 {
	k := min(m.K, len(m.X))
	nbrs := make([]neighbour, 0, k+1)
	for j, xj := range m.X {
		d := euclidSquared(xi, xj)
		if len(nbrs) == k && d >= nbrs[k-1].d {
			continue
		}
		pos := sort.Search(len(nbrs), func(a int) bool { return nbrs[a].d > d })
		nbrs = append(nbrs, neighbour{})
		copy(nbrs[pos+1:], nbrs[pos:])
		nbrs[pos] = neighbour{d: d, j: j}
		if len(nbrs) > k {
			nbrs = nbrs[:k]
		}
	}

	if m.Weights == "distance" && nbrs[0].d == 0 {
		// exact matches dominate
		var exact []neighbour
		for _, n := range nbrs {
			if n.d == 0 {
				exact = append(exact, n)
			}
		}
		nbrs = exact
	}

	num, den := 0.0, 0.0
	for _, n := range nbrs {
		v := m.w[n.j]
		if m.Weights == "distance" && n.d > 0 {
			v /= sqrt(n.d)
		}
		num += v * m.y[n.j]
		den += v
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// euclidSquared computes the squared Euclidean distance between two vectors.
func euclidSquared(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
