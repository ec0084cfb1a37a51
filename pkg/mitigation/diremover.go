package mitigation

import (
	"fmt"
	"sort"

	"github.com/rngrant/520-DAVAR-Project/pkg/dataset"
	"github.com/rngrant/520-DAVAR-Project/pkg/model"
	"github.com/rngrant/520-DAVAR-Project/pkg/stats"
)

// DisparateImpactRemover edits feature values so that the per-group
// distributions of each feature move toward a common median distribution,
// keeping the within-group rank of every value. Groups are the distinct
// values of one protected attribute. The feature column carrying that
// attribute, if any, is left alone; other protected columns are repaired
// like any feature.
type DisparateImpactRemover struct {
	RepairLevel        float64
	SensitiveAttribute string

	col      int
	repair   []bool
	groups   []float64     // sorted group values
	quantile [][][]float64 // [feature][group] sorted training values
}

// NewDisparateImpactRemover returns a remover. An empty attribute selects
// the first protected attribute of the data it is fitted on.
func NewDisparateImpactRemover(repairLevel float64, sensitiveAttribute string) (*DisparateImpactRemover, error) {
	if repairLevel < 0 || repairLevel > 1 {
		return nil, fmt.Errorf("mitigation: repair_level must be in [0,1], got %v", repairLevel)
	}
	return &DisparateImpactRemover{RepairLevel: repairLevel, SensitiveAttribute: sensitiveAttribute}, nil
}

func buildDIRemover(p model.Params, _ Env) (Preprocessor, error) {
	if err := p.Only("mitigation: DisparateImpactRemover", "repair_level", "sensitive_attribute"); err != nil {
		return nil, err
	}
	level, err := p.Float("repair_level", 1)
	if err != nil {
		return nil, err
	}
	attr, err := p.String("sensitive_attribute", "")
	if err != nil {
		return nil, err
	}
	return NewDisparateImpactRemover(level, attr)
}

func (r *DisparateImpactRemover) Name() string { return "DisparateImpactRemover" }

func (r *DisparateImpactRemover) Fit(d *dataset.Dataset) error {
	if d.Len() == 0 {
		return fmt.Errorf("mitigation: DisparateImpactRemover: empty dataset")
	}
	if len(d.ProtectedNames) == 0 {
		return fmt.Errorf("mitigation: DisparateImpactRemover: dataset has no protected attributes")
	}
	if r.SensitiveAttribute == "" {
		r.SensitiveAttribute = d.ProtectedNames[0]
	}
	r.col = d.ProtectedIndex(r.SensitiveAttribute)
	if r.col < 0 {
		return fmt.Errorf("mitigation: DisparateImpactRemover: unknown sensitive attribute %q", r.SensitiveAttribute)
	}

	groupOf := make(map[float64]int)
	r.groups = r.groups[:0]
	for _, row := range d.Protected {
		if _, ok := groupOf[row[r.col]]; !ok {
			groupOf[row[r.col]] = 0
			r.groups = append(r.groups, row[r.col])
		}
	}
	sort.Float64s(r.groups)
	for i, g := range r.groups {
		groupOf[g] = i
	}

	p := len(d.FeatureNames)
	r.repair = make([]bool, p)
	r.quantile = make([][][]float64, p)
	for j, name := range d.FeatureNames {
		if name == r.SensitiveAttribute {
			continue
		}
		r.repair[j] = true
		cols := make([][]float64, len(r.groups))
		for i, row := range d.Features {
			g := groupOf[d.Protected[i][r.col]]
			cols[g] = append(cols[g], row[j])
		}
		for _, c := range cols {
			sort.Float64s(c)
		}
		r.quantile[j] = cols
	}
	return nil
}

// Transform repairs a copy of d. Rows whose group was not seen during Fit
// are repaired toward the common distribution using the pooled ranks of the
// seen groups.
func (r *DisparateImpactRemover) Transform(d *dataset.Dataset) (*dataset.Dataset, error) {
	if r.quantile == nil {
		return nil, ErrNotFitted
	}
	if len(d.FeatureNames) != len(r.repair) {
		return nil, fmt.Errorf("mitigation: DisparateImpactRemover: fitted on %d features, got %d",
			len(r.repair), len(d.FeatureNames))
	}
	col := d.ProtectedIndex(r.SensitiveAttribute)
	if col < 0 {
		return nil, fmt.Errorf("mitigation: DisparateImpactRemover: unknown sensitive attribute %q", r.SensitiveAttribute)
	}
	out := d.Copy()
	if r.RepairLevel == 0 {
		return out, nil
	}
	targets := make([]float64, len(r.groups))
	for i, row := range out.Features {
		g := sort.SearchFloat64s(r.groups, d.Protected[i][col])
		known := g < len(r.groups) && r.groups[g] == d.Protected[i][col]
		for j := range row {
			if !r.repair[j] {
				continue
			}
			cols := r.quantile[j]
			var q float64
			if known {
				q = rankOf(cols[g], row[j])
			} else {
				q = meanRank(cols, row[j])
			}
			for k, c := range cols {
				targets[k] = stats.QuantileSorted(c, q)
			}
			target := stats.Median(targets)
			row[j] += r.RepairLevel * (target - row[j])
		}
	}
	return out, nil
}

// rankOf inverts QuantileSorted: it returns q such that
// QuantileSorted(sorted, q) == x for x inside the range, averaging over ties.
func rankOf(sorted []float64, x float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0.5
	}
	if n == 1 {
		return 0.5
	}
	lo := sort.SearchFloat64s(sorted, x)
	hi := sort.Search(n, func(i int) bool { return sorted[i] > x })
	var pos float64
	switch {
	case hi > lo:
		pos = float64(lo+hi-1) / 2
	case lo == 0:
		pos = 0
	case lo == n:
		pos = float64(n - 1)
	default:
		a, b := sorted[lo-1], sorted[lo]
		pos = float64(lo-1) + (x-a)/(b-a)
	}
	return pos / float64(n-1)
}

func meanRank(cols [][]float64, x float64) float64 {
	s := 0.0
	for _, c := range cols {
		s += rankOf(c, x)
	}
	return s / float64(len(cols))
}
