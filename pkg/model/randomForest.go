package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"
)

// RandomForest averages the probabilities of bootstrapped decision trees.
type RandomForest struct {
	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	Criterion       string
	// MaxFeatures is "sqrt", "log2", "all", an integer count or a fraction
	// in (0,1], resolved against the feature count at fit time.
	MaxFeatures string
	Bootstrap   bool
	RandomState int64

	Trees []*DecisionTreeClassifier
}

// RandomForestOption configures a RandomForest.
type RandomForestOption func(*RandomForest)

func WithNEstimators(n int) RandomForestOption { return func(rf *RandomForest) { rf.NEstimators = n } }
func WithBootstrap(b bool) RandomForestOption  { return func(rf *RandomForest) { rf.Bootstrap = b } }
func WithForestMaxDepth(d int) RandomForestOption {
	return func(rf *RandomForest) { rf.MaxDepth = d }
}
func WithForestMaxFeatures(rule string) RandomForestOption {
	return func(rf *RandomForest) { rf.MaxFeatures = rule }
}
func WithForestRandomState(seed int64) RandomForestOption {
	return func(rf *RandomForest) { rf.RandomState = seed }
}

// LegacyNEstimators is the forest size used when n_estimators is given as
// "warn", the placeholder older scikit-learn releases used for 10 trees.
const LegacyNEstimators = 10

// NewRandomForest initializes the forest with sensible defaults.
func NewRandomForest(opts ...RandomForestOption) *RandomForest {
	rf := &RandomForest{
		NEstimators:     100,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Criterion:       "gini",
		MaxFeatures:     "sqrt",
		Bootstrap:       true,
	}
	for _, o := range opts {
		o(rf)
	}
	return rf
}

func resolveMaxFeatures(rule string, p int) (int, error) {
	switch rule {
	case "", "all", "none":
		return p, nil
	case "sqrt", "auto":
		return max(1, int(math.Sqrt(float64(p)))), nil
	case "log2":
		return max(1, int(math.Log2(float64(p)))), nil
	}
	var n int
	if _, err := fmt.Sscanf(rule, "%d", &n); err == nil && fmt.Sprint(n) == rule {
		if n <= 0 {
			return 0, fmt.Errorf("randomforest: max_features %d must be positive", n)
		}
		return min(n, p), nil
	}
	var f float64
	if _, err := fmt.Sscanf(rule, "%g", &f); err == nil && f > 0 && f <= 1 {
		return max(1, int(f*float64(p))), nil
	}
	return 0, fmt.Errorf("randomforest: invalid max_features %q", rule)
}

// Fit trains the trees concurrently, at most GOMAXPROCS at a time. Each tree
// gets its own random source so results do not depend on scheduling.
// Bootstrap resampling is expressed as integer multiplicities folded into
// the instance weights.
func (rf *RandomForest) Fit(X [][]float64, y, w []float64) error {
	p, err := checkXY("randomforest", X, y, w)
	if err != nil {
		return err
	}
	if rf.NEstimators <= 0 {
		return errors.New("randomforest: n_estimators must be positive")
	}
	maxFeatures, err := resolveMaxFeatures(rf.MaxFeatures, p)
	if err != nil {
		return err
	}
	n := len(X)

	rf.Trees = make([]*DecisionTreeClassifier, rf.NEstimators)
	errCh := make(chan error, rf.NEstimators)
	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	var wg sync.WaitGroup

	for i := 0; i < rf.NEstimators; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			seed := rf.RandomState + int64(idx)
			treeRand := rand.New(rand.NewSource(seed))
			weights := make([]float64, n)
			if rf.Bootstrap {
				for j := 0; j < n; j++ {
					weights[treeRand.Intn(n)]++
				}
			} else {
				for j := range weights {
					weights[j] = 1
				}
			}
			for j := range weights {
				weights[j] *= weightAt(w, j)
			}

			tree := NewDecisionTreeClassifier(
				WithMaxDepth(rf.MaxDepth),
				WithMinSamplesSplit(rf.MinSamplesSplit),
				WithMinSamplesLeaf(rf.MinSamplesLeaf),
				WithCriterion(rf.Criterion),
				WithMaxFeatures(maxFeatures),
				WithRandomState(seed),
			)
			if err := tree.Fit(X, y, weights); err != nil {
				errCh <- fmt.Errorf("randomforest: tree %d: %w", idx, err)
				return
			}
			rf.Trees[idx] = tree
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

// PredictProba averages the tree probabilities, fanning out one goroutine
// per tree.
func (rf *RandomForest) PredictProba(X [][]float64) []float64 {
	out := make([]float64, len(X))
	if len(rf.Trees) == 0 {
		return out
	}
	perTree := make([][]float64, len(rf.Trees))
	var wg sync.WaitGroup
	for k, tree := range rf.Trees {
		wg.Add(1)
		go func(k int, t *DecisionTreeClassifier) {
			defer wg.Done()
			perTree[k] = t.PredictProba(X)
		}(k, tree)
	}
	wg.Wait()

	for _, probs := range perTree {
		for i, p := range probs {
			out[i] += p
		}
	}
	for i := range out {
		out[i] /= float64(len(rf.Trees))
	}
	return out
}
