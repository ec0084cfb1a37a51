package search

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/rngrant/520-DAVAR-Project/pkg/metrics"
	"github.com/rngrant/520-DAVAR-Project/pkg/model"
)

// Result is one evaluated combination.
type Result struct {
	Index         int
	Preprocessor  string
	Model         string
	Kind          string
	Params        model.Params
	Threshold     float64
	Postprocessor string
	Metrics       map[string]float64
	FitDuration   time.Duration
}

// Hyperparameters renders the grid point as "k=v;k=v".
func (r Result) Hyperparameters() string { return r.Params.Canonical() }

// ErrNoResults is returned when there is nothing to rank.
var ErrNoResults = errors.New("search: no results")

// Header returns the CSV columns for the configured metrics.
func (s *ModelSearch) Header() []string {
	h := []string{"index", "preprocessor", "model", "hyperparameters", "threshold", "postprocessor"}
	h = append(h, s.metricNames...)
	return append(h, "fit_seconds")
}

// FormatFloat renders metric values; NaN is "NaN" and infinities "+Inf"/"-Inf".
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteCSV writes the header and one line per result.
func (s *ModelSearch) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(s.Header()); err != nil {
		return fmt.Errorf("search: write csv: %w", err)
	}
	for _, r := range s.Results() {
		rec := []string{
			strconv.Itoa(r.Index),
			r.Preprocessor,
			r.Model,
			r.Hyperparameters(),
			FormatFloat(r.Threshold),
			r.Postprocessor,
		}
		for _, m := range s.metricNames {
			v, ok := r.Metrics[m]
			if !ok {
				v = math.NaN()
			}
			rec = append(rec, FormatFloat(v))
		}
		rec = append(rec, strconv.FormatFloat(r.FitDuration.Seconds(), 'f', 6, 64))
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("search: write csv: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("search: write csv: %w", err)
	}
	return nil
}

// ToCSV writes the results to path, replacing any existing file.
func (s *ModelSearch) ToCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if err := s.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *ModelSearch) checkMetric(name string) error {
	for _, m := range s.metricNames {
		if m == name {
			return nil
		}
	}
	return fmt.Errorf("search: metric %q was not computed", name)
}

// Rank orders the results by metric, best first. NaN values sort last and
// ties keep row order.
func (s *ModelSearch) Rank(metric string, maximize bool) ([]Result, error) {
	if err := s.checkMetric(metric); err != nil {
		return nil, err
	}
	out := s.Results()
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Metrics[metric], out[j].Metrics[metric]
		switch {
		case math.IsNaN(a):
			return false
		case math.IsNaN(b):
			return true
		case maximize:
			return a > b
		default:
			return a < b
		}
	})
	return out, nil
}

// Best returns the top-ranked result with a non-NaN metric value.
func (s *ModelSearch) Best(metric string, maximize bool) (Result, error) {
	ranked, err := s.Rank(metric, maximize)
	if err != nil {
		return Result{}, err
	}
	if len(ranked) == 0 || math.IsNaN(ranked[0].Metrics[metric]) {
		return Result{}, ErrNoResults
	}
	return ranked[0], nil
}

// Closest returns the result whose metric lies nearest its ideal value:
// the most accurate row for accuracy-like metrics, the smallest absolute
// difference for group differences and the ratio nearest 1 for disparate
// impact. NaN values are skipped and ties keep row order.
func (s *ModelSearch) Closest(metric string) (Result, error) {
	if err := s.checkMetric(metric); err != nil {
		return Result{}, err
	}
	ideal, ok := metrics.Ideal[metric]
	if !ok {
		return Result{}, fmt.Errorf("search: metric %q has no ideal value", metric)
	}
	var (
		best  Result
		dist  float64
		found bool
	)
	for _, r := range s.Results() {
		v := r.Metrics[metric]
		if math.IsNaN(v) {
			continue
		}
		if d := math.Abs(v - ideal); !found || d < dist {
			best, dist, found = r, d, true
		}
	}
	if !found {
		return Result{}, ErrNoResults
	}
	return best, nil
}

// Frontier returns the results not dominated on (higher accuracy metric,
// smaller distance of the fairness metric from its ideal value), in row
// order. Rows with NaN in either metric are skipped.
func (s *ModelSearch) Frontier(accuracyMetric, fairnessMetric string) ([]Result, error) {
	if err := s.checkMetric(accuracyMetric); err != nil {
		return nil, err
	}
	if err := s.checkMetric(fairnessMetric); err != nil {
		return nil, err
	}
	ideal := metrics.Ideal[fairnessMetric]

	type point struct {
		r         Result
		acc, bias float64
	}
	var pts []point
	for _, r := range s.Results() {
		a, f := r.Metrics[accuracyMetric], r.Metrics[fairnessMetric]
		if math.IsNaN(a) || math.IsNaN(f) {
			continue
		}
		pts = append(pts, point{r: r, acc: a, bias: math.Abs(f - ideal)})
	}
	dominates := func(a, b point) bool {
		if a.acc < b.acc || a.bias > b.bias {
			return false
		}
		return a.acc > b.acc || a.bias < b.bias
	}
	var frontier []Result
	for i := range pts {
		dominated := false
		for j := range pts {
			if i != j && dominates(pts[j], pts[i]) {
				dominated = true
				break
			}
		}
		if !dominated {
			frontier = append(frontier, pts[i].r)
		}
	}
	return frontier, nil
}
