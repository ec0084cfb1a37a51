// Package report renders search results as charts.
package report

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/rngrant/520-DAVAR-Project/pkg/search"
)

// ErrNoPoints is returned when no result has finite values for both metrics.
var ErrNoPoints = errors.New("report: no finite points to plot")

// PlotTradeoff saves a scatter chart of yMetric against xMetric with one
// series per model. When frontier is non-empty its points are joined by a
// line and marked with crosses. The format follows the extension of path
// (.png, .svg, .pdf, ...).
func PlotTradeoff(results, frontier []search.Result, xMetric, yMetric, path string) error {
	byModel := make(map[string]plotter.XYs)
	for _, r := range results {
		if pt, ok := point(r, xMetric, yMetric); ok {
			byModel[r.Model] = append(byModel[r.Model], pt)
		}
	}
	if len(byModel) == 0 {
		return ErrNoPoints
	}
	models := make([]string, 0, len(byModel))
	for m := range byModel {
		models = append(models, m)
	}
	sort.Strings(models)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s vs %s", yMetric, xMetric)
	p.X.Label.Text = xMetric
	p.Y.Label.Text = yMetric
	p.Add(plotter.NewGrid())

	for i, m := range models {
		s, err := plotter.NewScatter(byModel[m])
		if err != nil {
			return fmt.Errorf("report: %w", err)
		}
		s.Color = plotutil.Color(i)
		s.Shape = plotutil.Shape(i)
		p.Add(s)
		p.Legend.Add(m, s)
	}

	var front plotter.XYs
	for _, r := range frontier {
		if pt, ok := point(r, xMetric, yMetric); ok {
			front = append(front, pt)
		}
	}
	if len(front) > 0 {
		sort.Slice(front, func(i, j int) bool { return front[i].X < front[j].X })
		l, s, err := plotter.NewLinePoints(front)
		if err != nil {
			return fmt.Errorf("report: %w", err)
		}
		l.LineStyle.Width = vg.Points(1.5)
		l.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		s.Color = color.RGBA{A: 255}
		s.Shape = draw.CrossGlyph{}
		s.Radius = vg.Points(5)
		p.Add(l, s)
		p.Legend.Add("frontier", l, s)
	}

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("report: save %s: %w", path, err)
	}
	return nil
}

func point(r search.Result, xMetric, yMetric string) (plotter.XY, bool) {
	x, okx := r.Metrics[xMetric]
	y, oky := r.Metrics[yMetric]
	if !okx || !oky || !finite(x) || !finite(y) {
		return plotter.XY{}, false
	}
	return plotter.XY{X: x, Y: y}, true
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
