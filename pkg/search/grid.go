package search

import (
	"fmt"
	"sort"

	"github.com/rngrant/520-DAVAR-Project/pkg/model"
)

// expand returns the cartesian product of g with keys in sorted order; the
// last key varies fastest. An empty grid yields one empty point.
func expand(g Grid) ([]model.Params, error) {
	keys := make([]string, 0, len(g))
	for k, vals := range g {
		if len(vals) == 0 {
			return nil, fmt.Errorf("hyperparameter %q has no values", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	points := []model.Params{{}}
	for _, k := range keys {
		next := make([]model.Params, 0, len(points)*len(g[k]))
		for _, p := range points {
			for _, v := range g[k] {
				q := make(model.Params, len(p)+1)
				for pk, pv := range p {
					q[pk] = pv
				}
				q[k] = v
				next = append(next, q)
			}
		}
		points = next
	}
	return points, nil
}
