package mitigation

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/rngrant/520-DAVAR-Project/pkg/dataset"
	"github.com/rngrant/520-DAVAR-Project/pkg/metrics"
	"github.com/rngrant/520-DAVAR-Project/pkg/model"
)

// RejectOption gives favorable outcomes to unprivileged rows and
// unfavorable outcomes to privileged rows whose score falls in a band of
// half-width Margin around the classification threshold. Fit grid-searches
// the threshold and margin for the best balanced accuracy whose fairness
// metric lies within [MetricLB, MetricUB].
type RejectOption struct {
	Unprivileged    dataset.Groups
	Privileged      dataset.Groups
	LowClassThresh  float64
	HighClassThresh float64
	NumClassThresh  int
	NumROCMargin    int
	MetricName      string
	MetricUB        float64
	MetricLB        float64
	Logger          *slog.Logger

	Threshold float64
	Margin    float64
	fitted    bool
}

// rocMetricAliases accepts the display names used by fairness toolkits.
var rocMetricAliases = map[string]string{
	"Statistical parity difference": "statistical_parity_difference",
	"Average odds difference":       "average_odds_difference",
	"Equal opportunity difference":  "equal_opportunity_difference",
}

// NewRejectOption returns a RejectOption with the conventional defaults:
// thresholds in [0.01, 0.99] (100 steps), 50 margins, statistical parity
// difference bounded by ±0.05.
func NewRejectOption(unprivileged, privileged dataset.Groups) *RejectOption {
	return &RejectOption{
		Unprivileged:    unprivileged,
		Privileged:      privileged,
		LowClassThresh:  0.01,
		HighClassThresh: 0.99,
		NumClassThresh:  100,
		NumROCMargin:    50,
		MetricName:      "statistical_parity_difference",
		MetricUB:        0.05,
		MetricLB:        -0.05,
		Logger:          slog.Default(),
	}
}

func buildRejectOption(p model.Params, env Env) (Postprocessor, error) {
	if err := p.Only("mitigation: RejectOptionClassification", "low_class_thresh", "high_class_thresh",
		"num_class_thresh", "num_ROC_margin", "metric_name", "metric_ub", "metric_lb"); err != nil {
		return nil, err
	}
	if err := checkGroups(env); err != nil {
		return nil, err
	}
	r := NewRejectOption(env.Unprivileged, env.Privileged)
	var err error
	if r.LowClassThresh, err = p.Float("low_class_thresh", r.LowClassThresh); err != nil {
		return nil, err
	}
	if r.HighClassThresh, err = p.Float("high_class_thresh", r.HighClassThresh); err != nil {
		return nil, err
	}
	if r.NumClassThresh, err = p.Int("num_class_thresh", r.NumClassThresh); err != nil {
		return nil, err
	}
	if r.NumROCMargin, err = p.Int("num_ROC_margin", r.NumROCMargin); err != nil {
		return nil, err
	}
	if r.MetricName, err = p.String("metric_name", r.MetricName); err != nil {
		return nil, err
	}
	if r.MetricUB, err = p.Float("metric_ub", r.MetricUB); err != nil {
		return nil, err
	}
	if r.MetricLB, err = p.Float("metric_lb", r.MetricLB); err != nil {
		return nil, err
	}
	return r, r.validate()
}

func (r *RejectOption) validate() error {
	if alias, ok := rocMetricAliases[r.MetricName]; ok {
		r.MetricName = alias
	}
	switch r.MetricName {
	case "statistical_parity_difference", "average_odds_difference", "equal_opportunity_difference":
	default:
		return fmt.Errorf("mitigation: RejectOptionClassification: unsupported metric %q", r.MetricName)
	}
	if r.LowClassThresh < 0 || r.HighClassThresh > 1 || r.LowClassThresh > r.HighClassThresh {
		return fmt.Errorf("mitigation: RejectOptionClassification: class thresholds must satisfy 0 <= low <= high <= 1")
	}
	if r.NumClassThresh < 1 || r.NumROCMargin < 1 {
		return fmt.Errorf("mitigation: RejectOptionClassification: grid sizes must be positive")
	}
	if r.MetricLB > r.MetricUB {
		return fmt.Errorf("mitigation: RejectOptionClassification: metric_lb %v exceeds metric_ub %v", r.MetricLB, r.MetricUB)
	}
	return nil
}

func (r *RejectOption) Name() string { return "RejectOptionClassification" }

func linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = lo
		return out
	}
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	return out
}

func (r *RejectOption) Fit(truth, pred *dataset.Dataset) error {
	if err := r.validate(); err != nil {
		return err
	}
	work := pred.Copy()
	m, err := metrics.NewClassificationMetric(truth, work, r.Unprivileged, r.Privileged)
	if err != nil {
		return fmt.Errorf("mitigation: RejectOptionClassification: %w", err)
	}
	privMask, _ := r.Privileged.Mask(pred)
	unprivMask, _ := r.Unprivileged.Mask(pred)

	bestAcc, bestFair := math.Inf(-1), math.Inf(1)
	var okThr, okMargin, anyThr, anyMargin float64
	feasible := false
	for _, thr := range linspace(r.LowClassThresh, r.HighClassThresh, r.NumClassThresh) {
		high := thr
		if thr > 0.5 {
			high = 1 - thr
		}
		for _, margin := range linspace(0, high, r.NumROCMargin) {
			relabel(work.Labels, pred.Scores, privMask, unprivMask, thr, margin)
			fair, _ := m.Value(r.MetricName)
			acc := m.BalancedAccuracy()
			if fair >= r.MetricLB && fair <= r.MetricUB {
				if !feasible || acc > bestAcc {
					bestAcc, okThr, okMargin = acc, thr, margin
				}
				feasible = true
			}
			if fair < bestFair {
				bestFair, anyThr, anyMargin = fair, thr, margin
			}
		}
	}
	if feasible {
		r.Threshold, r.Margin = okThr, okMargin
	} else {
		r.Logger.Warn("reject option: unable to satisfy fairness constraints",
			"metric", r.MetricName, "lb", r.MetricLB, "ub", r.MetricUB)
		r.Threshold, r.Margin = anyThr, anyMargin
	}
	r.fitted = true
	return nil
}

// relabel writes the reject-option decision for every row into labels.
func relabel(labels, scores []float64, priv, unpriv []bool, thr, margin float64) {
	for i, s := range scores {
		labels[i] = dataset.Unfavorable
		if s > thr {
			labels[i] = dataset.Favorable
		}
		if s <= thr+margin && s > thr-margin {
			switch {
			case priv[i]:
				labels[i] = dataset.Unfavorable
			case unpriv[i]:
				labels[i] = dataset.Favorable
			}
		}
	}
}

// Predict applies the learned threshold and margin. The threshold argument
// is ignored; the learned classification threshold replaces it.
func (r *RejectOption) Predict(pred *dataset.Dataset, _ float64) (*dataset.Dataset, error) {
	if !r.fitted {
		return nil, ErrNotFitted
	}
	privMask, err := r.Privileged.Mask(pred)
	if err != nil {
		return nil, fmt.Errorf("mitigation: RejectOptionClassification: %w", err)
	}
	unprivMask, err := r.Unprivileged.Mask(pred)
	if err != nil {
		return nil, fmt.Errorf("mitigation: RejectOptionClassification: %w", err)
	}
	out := pred.Copy()
	relabel(out.Labels, out.Scores, privMask, unprivMask, r.Threshold, r.Margin)
	return out, nil
}
