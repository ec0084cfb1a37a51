package model

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"sync"
)

// DecisionTreeClassifier is a CART-style binary classifier with weighted
// impurity. Missing values (NaN) are routed to whichever side gave the best
// split during training.
type DecisionTreeClassifier struct {
	MaxDepth            int     // maximum depth (root depth = 0). 0 => no limit
	MinSamplesSplit     int     // minimum samples to attempt a split
	MinSamplesLeaf      int     // minimum samples required in each leaf
	Criterion           string  // "gini" (default) or "entropy"
	MaxFeatures         int     // 0 => all features, >0 => features sampled per split
	MinImpurityDecrease float64 // minimal impurity decrease to accept a split
	RandomState         int64

	root *dtNode
}

type dtNode struct {
	leaf      bool
	feature   int
	threshold float64 // x <= threshold => left
	nanLeft   bool
	left      *dtNode
	right     *dtNode

	weight float64
	proba  float64 // weighted share of label 1
}

// Option configures a DecisionTreeClassifier.
type Option func(*DecisionTreeClassifier)

func WithMaxDepth(d int) Option { return func(t *DecisionTreeClassifier) { t.MaxDepth = d } }
func WithMinSamplesSplit(n int) Option {
	return func(t *DecisionTreeClassifier) { t.MinSamplesSplit = n }
}
func WithMinSamplesLeaf(n int) Option {
	return func(t *DecisionTreeClassifier) { t.MinSamplesLeaf = n }
}
func WithCriterion(c string) Option { return func(t *DecisionTreeClassifier) { t.Criterion = c } }
func WithMaxFeatures(k int) Option  { return func(t *DecisionTreeClassifier) { t.MaxFeatures = k } }
func WithMinImpurityDecrease(v float64) Option {
	return func(t *DecisionTreeClassifier) { t.MinImpurityDecrease = v }
}
func WithRandomState(seed int64) Option {
	return func(t *DecisionTreeClassifier) { t.RandomState = seed }
}

// NewDecisionTreeClassifier returns a classifier with sensible defaults.
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	d := &DecisionTreeClassifier{
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Criterion:       "gini",
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// parallelSplitRows is the node size above which candidate features are
// searched concurrently.
const parallelSplitRows = 1024

// Fit grows the tree on rows with positive weight.
func (t *DecisionTreeClassifier) Fit(X [][]float64, y, w []float64) error {
	p, err := checkXY("dtree", X, y, w)
	if err != nil {
		return err
	}
	if t.Criterion != "gini" && t.Criterion != "entropy" {
		return errors.New("dtree: criterion must be gini or entropy")
	}
	idx := make([]int, 0, len(X))
	for i := range X {
		if weightAt(w, i) > 0 {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return errors.New("dtree: total sample weight is zero")
	}
	b := &treeBuilder{
		t:   t,
		X:   X,
		y:   y,
		w:   w,
		p:   p,
		rnd: rand.New(rand.NewSource(t.RandomState)),
	}
	t.root = b.node(idx, 0)
	return nil
}

// PredictProba returns P(y=1) for each row.
func (t *DecisionTreeClassifier) PredictProba(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i := range X {
		out[i] = t.predictOne(X[i])
	}
	return out
}

// Depth returns the depth of the fitted tree (a single leaf has depth 0).
func (t *DecisionTreeClassifier) Depth() int { return depth(t.root) }

func depth(n *dtNode) int {
	if n == nil || n.leaf {
		return 0
	}
	return 1 + max(depth(n.left), depth(n.right))
}

func (t *DecisionTreeClassifier) predictOne(x []float64) float64 {
	node := t.root
	if node == nil {
		return 0.5
	}
	for !node.leaf {
		v := x[node.feature]
		switch {
		case math.IsNaN(v):
			if node.nanLeft {
				node = node.left
			} else {
				node = node.right
			}
		case v <= node.threshold:
			node = node.left
		default:
			node = node.right
		}
	}
	return node.proba
}

type treeBuilder struct {
	t   *DecisionTreeClassifier
	X   [][]float64
	y   []float64
	w   []float64
	p   int
	rnd *rand.Rand
}

type splitResult struct {
	gain      float64
	feature   int
	threshold float64
	nanLeft   bool
}

func (b *treeBuilder) impurity(pos, total float64) float64 {
	if total <= 0 {
		return 0
	}
	q := pos / total
	if b.t.Criterion == "entropy" {
		e := 0.0
		for _, r := range []float64{q, 1 - q} {
			if r > 0 {
				e -= r * math.Log2(r)
			}
		}
		return e
	}
	return 2 * q * (1 - q)
}

func (b *treeBuilder) node(idx []int, d int) *dtNode {
	pos, total := 0.0, 0.0
	for _, i := range idx {
		wi := weightAt(b.w, i)
		total += wi
		pos += wi * b.y[i]
	}
	node := &dtNode{leaf: true, weight: total, proba: pos / total}

	t := b.t
	if pos == 0 || pos == total || len(idx) < t.MinSamplesSplit || len(idx) < 2*t.MinSamplesLeaf {
		return node
	}
	if t.MaxDepth > 0 && d >= t.MaxDepth {
		return node
	}

	features := make([]int, b.p)
	for j := range features {
		features[j] = j
	}
	if t.MaxFeatures > 0 && t.MaxFeatures < b.p {
		b.rnd.Shuffle(len(features), func(i, j int) { features[i], features[j] = features[j], features[i] })
		features = features[:t.MaxFeatures]
	}

	parent := b.impurity(pos, total)
	results := make([]splitResult, len(features))
	if len(idx) >= parallelSplitRows {
		var wg sync.WaitGroup
		for k, f := range features {
			wg.Add(1)
			go func(k, f int) {
				defer wg.Done()
				results[k] = b.bestSplit(idx, f, parent, total)
			}(k, f)
		}
		wg.Wait()
	} else {
		for k, f := range features {
			results[k] = b.bestSplit(idx, f, parent, total)
		}
	}

	best := splitResult{feature: -1}
	for _, r := range results {
		if r.feature >= 0 && r.gain > best.gain {
			best = r
		}
	}
	if best.feature < 0 || best.gain <= t.MinImpurityDecrease {
		return node
	}

	var left, right []int
	for _, i := range idx {
		v := b.X[i][best.feature]
		if (math.IsNaN(v) && best.nanLeft) || v <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	node.leaf = false
	node.feature = best.feature
	node.threshold = best.threshold
	node.nanLeft = best.nanLeft
	node.left = b.node(left, d+1)
	node.right = b.node(right, d+1)
	return node
}

type valued struct {
	v float64
	i int
}

// bestSplit scans the sorted values of feature f once, accumulating
// weighted label counts, and tries every boundary between distinct values
// with the missing rows sent left and then right.
func (b *treeBuilder) bestSplit(idx []int, f int, parent, total float64) splitResult {
	res := splitResult{feature: -1}
	vals := make([]valued, 0, len(idx))
	nanPos, nanW := 0.0, 0.0
	nanN := 0
	for _, i := range idx {
		v := b.X[i][f]
		if math.IsNaN(v) {
			wi := weightAt(b.w, i)
			nanW += wi
			nanPos += wi * b.y[i]
			nanN++
			continue
		}
		vals = append(vals, valued{v, i})
	}
	if len(vals) < 2 {
		return res
	}
	sort.Slice(vals, func(a, c int) bool { return vals[a].v < vals[c].v })

	validPos, validW := 0.0, 0.0
	for _, pv := range vals {
		wi := weightAt(b.w, pv.i)
		validW += wi
		validPos += wi * b.y[pv.i]
	}

	minLeaf := b.t.MinSamplesLeaf
	lPos, lW := 0.0, 0.0
	for s := 1; s < len(vals); s++ {
		prev := vals[s-1]
		wi := weightAt(b.w, prev.i)
		lW += wi
		lPos += wi * b.y[prev.i]
		if vals[s].v == prev.v {
			continue
		}
		thr := (prev.v + vals[s].v) / 2
		nLeft, nRight := s, len(vals)-s
		for _, nanLeft := range []bool{true, false} {
			if nanN == 0 && !nanLeft {
				break
			}
			lp, lw, rp, rw := lPos, lW, validPos-lPos, validW-lW
			nl, nr := nLeft, nRight
			if nanLeft {
				lp, lw, nl = lp+nanPos, lw+nanW, nl+nanN
			} else {
				rp, rw, nr = rp+nanPos, rw+nanW, nr+nanN
			}
			if nl < minLeaf || nr < minLeaf || lw <= 0 || rw <= 0 {
				continue
			}
			gain := parent - (lw/total)*b.impurity(lp, lw) - (rw/total)*b.impurity(rp, rw)
			if gain > res.gain {
				res = splitResult{gain: gain, feature: f, threshold: thr, nanLeft: nanLeft}
			}
		}
	}
	if res.feature >= 0 && nanN == 0 {
		// nothing missing at training time: send NaN to the heavier side
		lw := 0.0
		for _, pv := range vals {
			if pv.v <= res.threshold {
				lw += weightAt(b.w, pv.i)
			}
		}
		res.nanLeft = lw >= validW-lw
	}
	return res
}
