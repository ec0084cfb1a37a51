package model

import (
	"fmt"
	"sort"
	"sync"
)

// Builder constructs an unfitted classifier from one grid point. seed is the
// fallback random_state when params does not set one.
type Builder func(p Params, seed int64) (Classifier, error)

var (
	regMu    sync.RWMutex
	builders = map[string]Builder{
		"LogisticRegression":     buildLogistic,
		"RandomForestClassifier": buildForest,
		"KNeighborsClassifier":   buildKNN,
		"SVC":                    buildSVC,
		"DecisionTreeClassifier": buildTree,
	}
)

// Register adds or replaces the builder for kind.
func Register(kind string, b Builder) {
	regMu.Lock()
	defer regMu.Unlock()
	builders[kind] = b
}

// Kinds lists the registered model kinds in sorted order.
func Kinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(builders))
	for k := range builders {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Known reports whether kind has a registered builder.
func Known(kind string) bool {
	regMu.RLock()
	defer regMu.RUnlock()
	_, ok := builders[kind]
	return ok
}

// Build returns an unfitted classifier of the given kind.
func Build(kind string, p Params, seed int64) (Classifier, error) {
	regMu.RLock()
	b, ok := builders[kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("model: unknown model kind %q", kind)
	}
	return b(p, seed)
}

func seedOf(p Params, seed int64) (int64, error) {
	n, err := p.Int("random_state", int(seed))
	return int64(n), err
}

func buildLogistic(p Params, seed int64) (Classifier, error) {
	if err := p.Only("model: LogisticRegression", "penalty", "C", "solver", "max_iter", "tol",
		"fit_intercept", "learning_rate", "batch_size", "random_state"); err != nil {
		return nil, err
	}
	m := NewLogisticRegression()
	var err error
	if m.Penalty, err = p.String("penalty", m.Penalty); err != nil {
		return nil, err
	}
	if m.C, err = p.Float("C", m.C); err != nil {
		return nil, err
	}
	if m.Solver, err = p.String("solver", m.Solver); err != nil {
		return nil, err
	}
	if m.MaxIter, err = p.Int("max_iter", m.MaxIter); err != nil {
		return nil, err
	}
	if m.Tol, err = p.Float("tol", m.Tol); err != nil {
		return nil, err
	}
	if m.FitIntercept, err = p.Bool("fit_intercept", m.FitIntercept); err != nil {
		return nil, err
	}
	if m.LearningRate, err = p.Float("learning_rate", m.LearningRate); err != nil {
		return nil, err
	}
	if m.BatchSize, err = p.Int("batch_size", m.BatchSize); err != nil {
		return nil, err
	}
	if m.RandomState, err = seedOf(p, seed); err != nil {
		return nil, err
	}
	return m, m.validate()
}

func buildForest(p Params, seed int64) (Classifier, error) {
	if err := p.Only("model: RandomForestClassifier", "n_estimators", "max_depth", "min_samples_split",
		"min_samples_leaf", "criterion", "max_features", "bootstrap", "random_state"); err != nil {
		return nil, err
	}
	rf := NewRandomForest()
	var err error
	if s, ok := p["n_estimators"].(string); ok && s == "warn" {
		rf.NEstimators = LegacyNEstimators
	} else if rf.NEstimators, err = p.Int("n_estimators", rf.NEstimators); err != nil {
		return nil, err
	}
	if rf.MaxDepth, err = p.Int("max_depth", 0); err != nil {
		return nil, err
	}
	if rf.MinSamplesSplit, err = p.Int("min_samples_split", rf.MinSamplesSplit); err != nil {
		return nil, err
	}
	if rf.MinSamplesLeaf, err = p.Int("min_samples_leaf", rf.MinSamplesLeaf); err != nil {
		return nil, err
	}
	if rf.Criterion, err = p.String("criterion", rf.Criterion); err != nil {
		return nil, err
	}
	if v, ok := p["max_features"]; ok && v != nil {
		rf.MaxFeatures = formatValue(v)
	}
	if rf.Bootstrap, err = p.Bool("bootstrap", rf.Bootstrap); err != nil {
		return nil, err
	}
	if rf.RandomState, err = seedOf(p, seed); err != nil {
		return nil, err
	}
	if rf.NEstimators <= 0 {
		return nil, fmt.Errorf("model: RandomForestClassifier: n_estimators must be positive, got %d", rf.NEstimators)
	}
	return rf, nil
}

func buildTree(p Params, seed int64) (Classifier, error) {
	if err := p.Only("model: DecisionTreeClassifier", "max_depth", "min_samples_split",
		"min_samples_leaf", "criterion", "max_features", "min_impurity_decrease", "random_state"); err != nil {
		return nil, err
	}
	t := NewDecisionTreeClassifier()
	var err error
	if t.MaxDepth, err = p.Int("max_depth", 0); err != nil {
		return nil, err
	}
	if t.MinSamplesSplit, err = p.Int("min_samples_split", t.MinSamplesSplit); err != nil {
		return nil, err
	}
	if t.MinSamplesLeaf, err = p.Int("min_samples_leaf", t.MinSamplesLeaf); err != nil {
		return nil, err
	}
	if t.Criterion, err = p.String("criterion", t.Criterion); err != nil {
		return nil, err
	}
	if t.MaxFeatures, err = p.Int("max_features", 0); err != nil {
		return nil, err
	}
	if t.MinImpurityDecrease, err = p.Float("min_impurity_decrease", 0); err != nil {
		return nil, err
	}
	if t.RandomState, err = seedOf(p, seed); err != nil {
		return nil, err
	}
	return t, nil
}

func buildKNN(p Params, _ int64) (Classifier, error) {
	if err := p.Only("model: KNeighborsClassifier", "n_neighbors", "weights"); err != nil {
		return nil, err
	}
	m := NewKNN(5)
	var err error
	if m.K, err = p.Int("n_neighbors", m.K); err != nil {
		return nil, err
	}
	if m.Weights, err = p.String("weights", m.Weights); err != nil {
		return nil, err
	}
	if m.K <= 0 {
		return nil, fmt.Errorf("model: KNeighborsClassifier: n_neighbors must be positive, got %d", m.K)
	}
	return m, nil
}

func buildSVC(p Params, seed int64) (Classifier, error) {
	if err := p.Only("model: SVC", "C", "kernel", "max_iter", "tol", "random_state"); err != nil {
		return nil, err
	}
	kernel, err := p.String("kernel", "linear")
	if err != nil {
		return nil, err
	}
	if kernel != "linear" {
		return nil, fmt.Errorf("model: SVC: only the linear kernel is supported, got %q", kernel)
	}
	m := NewLinearSVC(1)
	if m.C, err = p.Float("C", m.C); err != nil {
		return nil, err
	}
	if m.MaxIter, err = p.Int("max_iter", m.MaxIter); err != nil {
		return nil, err
	}
	if m.Tol, err = p.Float("tol", m.Tol); err != nil {
		return nil, err
	}
	if m.RandomState, err = seedOf(p, seed); err != nil {
		return nil, err
	}
	if m.C <= 0 {
		return nil, fmt.Errorf("model: SVC: C must be positive, got %v", m.C)
	}
	return m, nil
}
