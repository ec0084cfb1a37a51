package mitigation

import (
	"fmt"

	"github.com/rngrant/520-DAVAR-Project/pkg/dataset"
	"github.com/rngrant/520-DAVAR-Project/pkg/model"
)

// Reweighing rescales instance weights so that, under the new weights, the
// label is statistically independent of privileged/unprivileged membership:
// W(g, y) = P(g) P(y) / P(g, y). Rows in neither group keep their weight.
type Reweighing struct {
	Unprivileged dataset.Groups
	Privileged   dataset.Groups

	// [0] unprivileged, [1] privileged; inner index is the label.
	w      [2][2]float64
	fitted bool
}

func NewReweighing(unprivileged, privileged dataset.Groups) *Reweighing {
	return &Reweighing{Unprivileged: unprivileged, Privileged: privileged}
}

func buildReweighing(p model.Params, env Env) (Preprocessor, error) {
	if err := p.Only("mitigation: Reweighing"); err != nil {
		return nil, err
	}
	if err := checkGroups(env); err != nil {
		return nil, err
	}
	return NewReweighing(env.Unprivileged, env.Privileged), nil
}

func (r *Reweighing) Name() string { return "Reweighing" }

func (r *Reweighing) masks(d *dataset.Dataset) ([2][]bool, error) {
	var m [2][]bool
	var err error
	if m[0], err = r.Unprivileged.Mask(d); err != nil {
		return m, fmt.Errorf("mitigation: Reweighing: %w", err)
	}
	if m[1], err = r.Privileged.Mask(d); err != nil {
		return m, fmt.Errorf("mitigation: Reweighing: %w", err)
	}
	return m, nil
}

func (r *Reweighing) Fit(d *dataset.Dataset) error {
	m, err := r.masks(d)
	if err != nil {
		return err
	}
	var n float64
	var nLabel [2]float64
	var nGroup [2]float64
	var nCell [2][2]float64
	for i, y := range d.Labels {
		w := d.Weights[i]
		l := int(y)
		n += w
		nLabel[l] += w
		for g := 0; g < 2; g++ {
			if m[g][i] {
				nGroup[g] += w
				nCell[g][l] += w
			}
		}
	}
	if n == 0 {
		return fmt.Errorf("mitigation: Reweighing: total weight is zero")
	}
	for g := 0; g < 2; g++ {
		for l := 0; l < 2; l++ {
			r.w[g][l] = 1
			if nCell[g][l] > 0 {
				r.w[g][l] = nLabel[l] * nGroup[g] / (n * nCell[g][l])
			}
		}
	}
	r.fitted = true
	return nil
}

// Weights returns the fitted factor for a group (privileged or not) and label.
func (r *Reweighing) Weights(privileged bool, label float64) float64 {
	g := 0
	if privileged {
		g = 1
	}
	return r.w[g][int(label)]
}

func (r *Reweighing) Transform(d *dataset.Dataset) (*dataset.Dataset, error) {
	if !r.fitted {
		return nil, ErrNotFitted
	}
	m, err := r.masks(d)
	if err != nil {
		return nil, err
	}
	out := d.Copy()
	for i, y := range out.Labels {
		for g := 0; g < 2; g++ {
			if m[g][i] {
				out.Weights[i] *= r.w[g][int(y)]
				break
			}
		}
	}
	return out, nil
}
