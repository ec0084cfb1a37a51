package metrics

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rngrant/520-DAVAR-Project/pkg/dataset"
)

// Func computes one named metric.
type Func func(*ClassificationMetric) float64

// Unified lists every metric UnifiedMetricLibrary knows, keyed by the name
// used in configs and CSV headers.
var Unified = map[string]Func{
	"accuracy_score":    (*ClassificationMetric).Accuracy,
	"balanced_accuracy": (*ClassificationMetric).BalancedAccuracy,
	"error_rate":        func(m *ClassificationMetric) float64 { return m.Confusion(All).ErrorRate() },
	"precision":         (*ClassificationMetric).Precision,
	"recall":            (*ClassificationMetric).Recall,
	"f1_score":          (*ClassificationMetric).F1,

	"statistical_parity_difference": (*ClassificationMetric).StatisticalParityDifference,
	"disparate_impact":              (*ClassificationMetric).DisparateImpact,
	"equal_opportunity_difference":  (*ClassificationMetric).EqualOpportunityDifference,
	"average_odds_difference":       (*ClassificationMetric).AverageOddsDifference,
	"false_positive_rate_difference": func(m *ClassificationMetric) float64 {
		return m.difference(Confusion.FPR)
	},
	"false_negative_rate_difference": func(m *ClassificationMetric) float64 {
		return m.difference(Confusion.FNR)
	},
	"false_discovery_rate_difference": func(m *ClassificationMetric) float64 {
		return m.difference(Confusion.FDR)
	},
	"error_rate_difference": func(m *ClassificationMetric) float64 {
		return m.difference(Confusion.ErrorRate)
	},
	"theil_index": (*ClassificationMetric).TheilIndex,
}

// Ideal is the value a perfectly fair (or perfectly accurate) classifier
// attains for each metric.
var Ideal = map[string]float64{
	"accuracy_score":                  1,
	"balanced_accuracy":               1,
	"error_rate":                      0,
	"precision":                       1,
	"recall":                          1,
	"f1_score":                        1,
	"statistical_parity_difference":   0,
	"disparate_impact":                1,
	"equal_opportunity_difference":    0,
	"average_odds_difference":         0,
	"false_positive_rate_difference":  0,
	"false_negative_rate_difference":  0,
	"false_discovery_rate_difference": 0,
	"error_rate_difference":           0,
	"theil_index":                     0,
}

// ErrUnknownMetric is returned for metric names no library provides.
var ErrUnknownMetric = errors.New("metrics: unknown metric")

// Value computes one metric from the unified table by name.
func (m *ClassificationMetric) Value(name string) (float64, error) {
	f, ok := Unified[name]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownMetric, name)
	}
	return f(m), nil
}

// Library computes a fixed list of metrics for a true/predicted pair.
type Library interface {
	Name() string
	Metrics() []string
	Compute(truth, pred *dataset.Dataset, unprivileged, privileged dataset.Groups) (map[string]float64, error)
}

// UnifiedMetricLibrary computes any subset of the Unified metrics.
type UnifiedMetricLibrary struct {
	names []string
}

// NewUnifiedMetricLibrary returns a library computing names, in order.
// Duplicates and unknown names are rejected.
func NewUnifiedMetricLibrary(names []string) (*UnifiedMetricLibrary, error) {
	if len(names) == 0 {
		return nil, errors.New("metrics: UnifiedMetricLibrary: no metrics requested")
	}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := Unified[n]; !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownMetric, n)
		}
		if seen[n] {
			return nil, fmt.Errorf("metrics: UnifiedMetricLibrary: duplicate metric %q", n)
		}
		seen[n] = true
	}
	return &UnifiedMetricLibrary{names: append([]string(nil), names...)}, nil
}

func (l *UnifiedMetricLibrary) Name() string      { return "UnifiedMetricLibrary" }
func (l *UnifiedMetricLibrary) Metrics() []string { return append([]string(nil), l.names...) }

func (l *UnifiedMetricLibrary) Compute(truth, pred *dataset.Dataset, unprivileged, privileged dataset.Groups) (map[string]float64, error) {
	cm, err := NewClassificationMetric(truth, pred, unprivileged, privileged)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(l.names))
	for _, n := range l.names {
		out[n] = Unified[n](cm)
	}
	return out, nil
}

// Constructor builds a library computing the given metric names.
type Constructor func(names []string) (Library, error)

var (
	libMu     sync.RWMutex
	libraries = map[string]Constructor{
		"UnifiedMetricLibrary": func(names []string) (Library, error) {
			l, err := NewUnifiedMetricLibrary(names)
			if err != nil {
				return nil, err
			}
			return l, nil
		},
	}
)

// RegisterLibrary adds or replaces a named library constructor.
func RegisterLibrary(name string, c Constructor) {
	libMu.Lock()
	defer libMu.Unlock()
	libraries[name] = c
}

// Libraries lists registered library names.
func Libraries() []string {
	libMu.RLock()
	defer libMu.RUnlock()
	out := make([]string, 0, len(libraries))
	for n := range libraries {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// NewLibrary builds the named library.
func NewLibrary(name string, metricNames []string) (Library, error) {
	libMu.RLock()
	c, ok := libraries[name]
	libMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("metrics: unknown metric library %q", name)
	}
	return c(metricNames)
}
