package model

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/rngrant/520-DAVAR-Project/pkg/nn"
	"github.com/rngrant/520-DAVAR-Project/pkg/optim"
	"github.com/rngrant/520-DAVAR-Project/pkg/stats"
)

func sqrt(x float64) float64 { return math.Sqrt(x) }

// LinearSVC is a linear support vector classifier trained by subgradient
// descent on the weighted hinge loss with an L2 penalty. Probabilities come
// from a one-feature logistic calibration of the training margins (Platt
// scaling).
type LinearSVC struct {
	C            float64
	MaxIter      int
	Tol          float64
	LearningRate float64
	RandomState  int64

	W      []float64
	b      float64
	scaler *stats.StandardScaler
	platt  *LogisticRegression
}

// NewLinearSVC returns a LinearSVC with the usual C=1 default.
func NewLinearSVC(c float64) *LinearSVC {
	return &LinearSVC{C: c, MaxIter: 300, Tol: 1e-5, LearningRate: 0.05}
}

func (m *LinearSVC) Fit(X [][]float64, y, w []float64) error {
	p, err := checkXY("svc", X, y, w)
	if err != nil {
		return err
	}
	if m.C <= 0 {
		return fmt.Errorf("svc: C must be positive, got %v", m.C)
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
		return fmt.Errorf("svc: total sample weight is zero")
	}

	rnd := rand.New(rand.NewSource(m.RandomState))
	m.W = make([]float64, p)
	for j := range m.W {
		m.W[j] = rnd.NormFloat64() * 0.01
	}
	m.b = 0
	opt := optim.NewSGD(m.LearningRate, optim.WithL2(1/(m.C*totalW)))
	for ep := 0; ep < m.MaxIter; ep++ {
		margins := m.margins(Xs)
		_, dm := nn.Hinge(y, margins, w)
		gW := make([]float64, p)
		gb := 0.0
		for i, row := range Xs {
			if dm[i] == 0 {
				continue
			}
			for j, v := range row {
				gW[j] += dm[i] * v
			}
			gb += dm[i]
		}
		delta := opt.Step(m.W, gW)
		m.b -= m.LearningRate * gb
		if delta < m.Tol && math.Abs(m.LearningRate*gb) < m.Tol {
			break
		}
	}

	margins := m.margins(Xs)
	feature := make([][]float64, len(margins))
	for i, v := range margins {
		feature[i] = []float64{v}
	}
	m.platt = NewLogisticRegression(WithPenalty("none"), WithMaxIter(200))
	return m.platt.Fit(feature, y, w)
}

func (m *LinearSVC) margins(Xs [][]float64) []float64 {
	out := make([]float64, len(Xs))
	for i, row := range Xs {
		s := m.b
		for j, v := range row {
			s += m.W[j] * v
		}
		out[i] = s
	}
	return out
}

// DecisionFunction returns the signed distance to the separating hyperplane.
func (m *LinearSVC) DecisionFunction(X [][]float64) []float64 {
	if m.scaler == nil {
		return make([]float64, len(X))
	}
	return m.margins(m.scaler.Transform(X))
}

func (m *LinearSVC) PredictProba(X [][]float64) []float64 {
	if m.platt == nil {
		return make([]float64, len(X))
	}
	margins := m.DecisionFunction(X)
	feature := make([][]float64, len(margins))
	for i, v := range margins {
		feature[i] = []float64{v}
	}
	return m.platt.PredictProba(feature)
}
