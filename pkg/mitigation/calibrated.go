package mitigation

import (
	"fmt"
	"math/rand"

	"github.com/rngrant/520-DAVAR-Project/pkg/dataset"
	"github.com/rngrant/520-DAVAR-Project/pkg/metrics"
	"github.com/rngrant/520-DAVAR-Project/pkg/model"
)

// CalibratedEqOdds equalizes a generalized error cost across groups by
// replacing a random share of the costlier group's scores with that group's
// base rate. The share (the mix rate) is learned in Fit.
type CalibratedEqOdds struct {
	Unprivileged   dataset.Groups
	Privileged     dataset.Groups
	CostConstraint string // "fpr", "fnr" or "weighted"
	Seed           int64

	fpRate, fnRate       float64
	basePriv, baseUnpriv float64
	mixPriv, mixUnpriv   float64
	fitted               bool
}

// NewCalibratedEqOdds validates the cost constraint and groups.
func NewCalibratedEqOdds(unprivileged, privileged dataset.Groups, costConstraint string, seed int64) (*CalibratedEqOdds, error) {
	c := &CalibratedEqOdds{
		Unprivileged:   unprivileged,
		Privileged:     privileged,
		CostConstraint: costConstraint,
		Seed:           seed,
	}
	switch costConstraint {
	case "fpr":
		c.fpRate, c.fnRate = 1, 0
	case "fnr":
		c.fpRate, c.fnRate = 0, 1
	case "weighted":
		c.fpRate, c.fnRate = 1, 1
	default:
		return nil, fmt.Errorf("mitigation: CalibratedEqOddsPostprocessing: cost_constraint must be fpr, fnr or weighted, got %q", costConstraint)
	}
	if err := checkGroups(Env{Unprivileged: unprivileged, Privileged: privileged}); err != nil {
		return nil, err
	}
	return c, nil
}

func buildCalibratedEqOdds(p model.Params, env Env) (Postprocessor, error) {
	if err := p.Only("mitigation: CalibratedEqOddsPostprocessing", "cost_constraint", "seed"); err != nil {
		return nil, err
	}
	cost, err := p.String("cost_constraint", "weighted")
	if err != nil {
		return nil, err
	}
	seed, err := p.Int("seed", int(env.Seed))
	if err != nil {
		return nil, err
	}
	return NewCalibratedEqOdds(env.Unprivileged, env.Privileged, cost, int64(seed))
}

func (c *CalibratedEqOdds) Name() string { return "CalibratedEqOddsPostprocessing" }

// MixRates returns the fitted privileged and unprivileged mix rates.
func (c *CalibratedEqOdds) MixRates() (priv, unpriv float64) { return c.mixPriv, c.mixUnpriv }

func (c *CalibratedEqOdds) cost(m *metrics.ClassificationMetric, g metrics.Group) float64 {
	switch {
	case c.fnRate == 0:
		return m.GeneralizedFPR(g)
	case c.fpRate == 0:
		return m.GeneralizedFNR(g)
	}
	base := m.Confusion(g).BaseRate()
	norm := c.fpRate + c.fnRate
	return c.fpRate/norm*m.GeneralizedFPR(g)*(1-base) + c.fnRate/norm*m.GeneralizedFNR(g)*base
}

func (c *CalibratedEqOdds) Fit(truth, pred *dataset.Dataset) error {
	m, err := metrics.NewClassificationMetric(truth, pred, c.Unprivileged, c.Privileged)
	if err != nil {
		return fmt.Errorf("mitigation: CalibratedEqOddsPostprocessing: %w", err)
	}
	c.basePriv = m.Confusion(metrics.Privileged).BaseRate()
	c.baseUnpriv = m.Confusion(metrics.Unprivileged).BaseRate()

	trivial := pred.Copy()
	privMask, _ := c.Privileged.Mask(truth)
	unprivMask, _ := c.Unprivileged.Mask(truth)
	for i := range trivial.Scores {
		switch {
		case privMask[i]:
			trivial.Scores[i] = c.basePriv
		case unprivMask[i]:
			trivial.Scores[i] = c.baseUnpriv
		}
	}
	tm, err := metrics.NewClassificationMetric(truth, trivial, c.Unprivileged, c.Privileged)
	if err != nil {
		return fmt.Errorf("mitigation: CalibratedEqOddsPostprocessing: %w", err)
	}

	privCost := c.cost(m, metrics.Privileged)
	unprivCost := c.cost(m, metrics.Unprivileged)
	privTrivial := c.cost(tm, metrics.Privileged)
	unprivTrivial := c.cost(tm, metrics.Unprivileged)

	c.mixPriv, c.mixUnpriv = 0, 0
	if privCost > unprivCost {
		c.mixPriv = mixRate(unprivCost-privCost, privTrivial-privCost)
	} else {
		c.mixUnpriv = mixRate(privCost-unprivCost, unprivTrivial-unprivCost)
	}
	c.fitted = true
	return nil
}

// mixRate is num/den clamped to [0,1]; degenerate ratios mean no mixing.
func mixRate(num, den float64) float64 {
	if num == 0 || den == 0 {
		return 0
	}
	r := num / den
	switch {
	case r != r, r < 0:
		return 0
	case r > 1:
		return 1
	}
	return r
}

// Predict swaps scores for group base rates at the fitted mix rates, then
// thresholds: score >= threshold is favorable. The same seed always swaps
// the same rows.
func (c *CalibratedEqOdds) Predict(pred *dataset.Dataset, threshold float64) (*dataset.Dataset, error) {
	if !c.fitted {
		return nil, ErrNotFitted
	}
	privMask, err := c.Privileged.Mask(pred)
	if err != nil {
		return nil, fmt.Errorf("mitigation: CalibratedEqOddsPostprocessing: %w", err)
	}
	unprivMask, err := c.Unprivileged.Mask(pred)
	if err != nil {
		return nil, fmt.Errorf("mitigation: CalibratedEqOddsPostprocessing: %w", err)
	}
	rnd := rand.New(rand.NewSource(c.Seed))
	scores := append([]float64(nil), pred.Scores...)
	for i := range scores {
		switch {
		case privMask[i]:
			if rnd.Float64() < c.mixPriv {
				scores[i] = c.basePriv
			}
		case unprivMask[i]:
			if rnd.Float64() < c.mixUnpriv {
				scores[i] = c.baseUnpriv
			}
		}
	}
	return pred.WithPredictions(scores, threshold)
}
