package model

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync"

	"github.com/rngrant/520-DAVAR-Project/pkg/data"
	"github.com/rngrant/520-DAVAR-Project/pkg/nn"
	"github.com/rngrant/520-DAVAR-Project/pkg/optim"
	"github.com/rngrant/520-DAVAR-Project/pkg/stats"
)

// LogisticRegression is a binary logistic model trained by gradient descent
// on standardised features. The objective mirrors the usual
// C * sum(w_i * logloss_i) + penalty(W) form, divided through by C*sum(w)
// so the step size does not depend on the dataset size.
type LogisticRegression struct {
	Penalty      string  // "l1", "l2" or "none"
	C            float64 // inverse regularisation strength
	Solver       string  // "liblinear", "saga" or "sgd"
	MaxIter      int     // epochs
	Tol          float64 // stop once no weight moves more than Tol in an epoch
	LearningRate float64
	BatchSize    int // 0 => full batch
	FitIntercept bool
	RandomState  int64

	W      []float64
	b      float64
	scaler *stats.StandardScaler
}

// LogisticOption configures a LogisticRegression.
type LogisticOption func(*LogisticRegression)

func WithPenalty(p string) LogisticOption { return func(m *LogisticRegression) { m.Penalty = p } }
func WithC(c float64) LogisticOption      { return func(m *LogisticRegression) { m.C = c } }
func WithSolver(s string) LogisticOption  { return func(m *LogisticRegression) { m.Solver = s } }
func WithMaxIter(n int) LogisticOption    { return func(m *LogisticRegression) { m.MaxIter = n } }
func WithTol(t float64) LogisticOption    { return func(m *LogisticRegression) { m.Tol = t } }
func WithBatchSize(n int) LogisticOption  { return func(m *LogisticRegression) { m.BatchSize = n } }
func WithLearningRate(lr float64) LogisticOption {
	return func(m *LogisticRegression) { m.LearningRate = lr }
}
func WithFitIntercept(b bool) LogisticOption {
	return func(m *LogisticRegression) { m.FitIntercept = b }
}
func WithLogisticRandomState(seed int64) LogisticOption {
	return func(m *LogisticRegression) { m.RandomState = seed }
}

// NewLogisticRegression returns a model with sklearn-like defaults.
func NewLogisticRegression(opts ...LogisticOption) *LogisticRegression {
	m := &LogisticRegression{
		Penalty:      "l2",
		C:            1.0,
		Solver:       "liblinear",
		MaxIter:      300,
		Tol:          1e-5,
		LearningRate: 0.1,
		FitIntercept: true,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *LogisticRegression) validate() error {
	switch m.Penalty {
	case "l1", "l2", "none":
	default:
		return fmt.Errorf("logistic: unsupported penalty %q", m.Penalty)
	}
	switch m.Solver {
	case "liblinear", "saga", "sgd":
	default:
		return fmt.Errorf("logistic: unsupported solver %q", m.Solver)
	}
	if m.Penalty != "none" && m.C <= 0 {
		return fmt.Errorf("logistic: C must be positive, got %v", m.C)
	}
	if m.MaxIter <= 0 || m.LearningRate <= 0 {
		return fmt.Errorf("logistic: max_iter and learning rate must be positive")
	}
	return nil
}

// Fit trains the model. Rows with zero weight do not contribute.
func (m *LogisticRegression) Fit(X [][]float64, y, w []float64) error {
	p, err := checkXY("logistic", X, y, w)
	if err != nil {
		return err
	}
	if err := m.validate(); err != nil {
		return err
	}
	m.scaler = stats.NewStandardScaler()
	Xs, err := m.scaler.FitTransform(X)
	if err != nil {
		return err
	}

	totalW := 0.0
	for i := range y {
		totalW += weightAt(w, i)
	}
	if totalW <= 0 {
		return fmt.Errorf("logistic: total sample weight is zero")
	}

	var opts []optim.Option
	if m.Penalty != "none" {
		lambda := 1 / (m.C * totalW)
		if m.Penalty == "l1" {
			opts = append(opts, optim.WithL1(lambda))
		} else {
			opts = append(opts, optim.WithL2(lambda))
		}
	}
	opt := optim.NewSGD(m.LearningRate, opts...)
	m.W = make([]float64, p)
	m.b = 0

	batchSize := m.BatchSize
	if m.Solver == "sgd" && batchSize <= 0 {
		batchSize = 32
	}
	if batchSize <= 0 || batchSize >= len(X) {
		m.fitFullBatch(Xs, y, w, opt)
		return nil
	}
	m.fitMiniBatch(Xs, y, w, opt, batchSize)
	return nil
}

func (m *LogisticRegression) fitFullBatch(X [][]float64, y, w []float64, opt *optim.SGD) {
	for ep := 0; ep < m.MaxIter; ep++ {
		if m.step(X, y, w, opt) < m.Tol {
			return
		}
	}
}

// fitMiniBatch streams shuffled mini-batches through the data batcher each
// epoch.
func (m *LogisticRegression) fitMiniBatch(X [][]float64, y, w []float64, opt *optim.SGD, batchSize int) {
	rnd := rand.New(rand.NewSource(m.RandomState))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for ep := 0; ep < m.MaxIter; ep++ {
		batches := make(chan data.Batch)
		data.Batcher(ctx, data.Emit(ctx, X, y, w, rnd.Perm(len(X))), batchSize, batches)
		maxDelta := 0.0
		for batch := range batches {
			if d := m.step(batch.X, batch.Y, batch.W, opt); d > maxDelta {
				maxDelta = d
			}
		}
		if maxDelta < m.Tol {
			return
		}
	}
}

// step performs one gradient update on (X, y, w) and returns the largest
// parameter change.
func (m *LogisticRegression) step(X [][]float64, y, w []float64, opt *optim.SGD) float64 {
	proba := m.rawProba(X)
	_, dy := nn.WeightedBCE(y, proba, w)
	gW := make([]float64, len(m.W))
	gb := 0.0
	for i, row := range X {
		d := dy[i]
		if d == 0 {
			continue
		}
		for j, xij := range row {
			gW[j] += d * xij
		}
		gb += d
	}
	delta := opt.Step(m.W, gW)
	if m.FitIntercept {
		db := m.LearningRate * gb
		m.b -= db
		if db < 0 {
			db = -db
		}
		if db > delta {
			delta = db
		}
	}
	return delta
}

// PredictProba returns P(y=1) for each row of X.
func (m *LogisticRegression) PredictProba(X [][]float64) []float64 {
	if m.scaler == nil {
		return make([]float64, len(X))
	}
	return m.rawProba(m.scaler.Transform(X))
}

// rawProba scores already-scaled rows, split across CPU cores.
func (m *LogisticRegression) rawProba(X [][]float64) []float64 {
	out := make([]float64, len(X))
	if len(X) == 0 {
		return out
	}
	workers := runtime.GOMAXPROCS(0)
	rowsPerWorker := (len(X) + workers - 1) / workers
	if rowsPerWorker < 256 {
		rowsPerWorker = 256
	}
	var wg sync.WaitGroup
	for start := 0; start < len(X); start += rowsPerWorker {
		end := min(start+rowsPerWorker, len(X))
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				sum := m.b
				for j, v := range X[i] {
					sum += m.W[j] * v
				}
				out[i] = nn.Sigmoid(sum)
			}
		}(start, end)
	}
	wg.Wait()
	return out
}

// Coef returns the weights in the standardised feature space and the bias.
func (m *LogisticRegression) Coef() ([]float64, float64) {
	return append([]float64(nil), m.W...), m.b
}
