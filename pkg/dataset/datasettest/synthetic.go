// Package datasettest generates small synthetic datasets for tests.
package datasettest

import (
	"math/rand"

	"github.com/rngrant/520-DAVAR-Project/pkg/dataset"
)

// Biased returns n rows with protected attributes sex and race and two
// numeric features. The favorable rate depends on the features, and the
// privileged group (race=1, sex=1) is shifted toward the favorable side, so
// an unmitigated classifier shows a measurable disparity.
func Biased(n int, seed int64) *dataset.Dataset {
	rnd := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]float64, n)
	protected := make([][]float64, n)
	for i := 0; i < n; i++ {
		sex := float64(rnd.Intn(2))
		race := float64(rnd.Intn(2))
		shift := 0.0
		if sex == 1 && race == 1 {
			shift = 1.0
		}
		x1 := rnd.NormFloat64() + shift
		x2 := rnd.NormFloat64()
		X[i] = []float64{sex, race, x1, x2}
		if x1+0.5*x2+0.3*rnd.NormFloat64() > 0.3 {
			y[i] = dataset.Favorable
		}
		protected[i] = []float64{sex, race}
	}
	d, err := dataset.New([]string{"sex", "race", "x1", "x2"}, X, y, []string{"sex", "race"}, protected)
	if err != nil {
		panic(err)
	}
	return d
}

// Privileged and Unprivileged are the group sets used with Biased.
var (
	Privileged   = dataset.Groups{{"race": 1, "sex": 1}}
	Unprivileged = dataset.Groups{{"race": 0, "sex": 0}}
)

// FromRows builds a dataset with a single protected attribute "g" from
// parallel slices of labels, scores and group flags. Features are the
// scores themselves.
func FromRows(labels, scores, group []float64) *dataset.Dataset {
	n := len(labels)
	X := make([][]float64, n)
	protected := make([][]float64, n)
	for i := 0; i < n; i++ {
		X[i] = []float64{scores[i]}
		protected[i] = []float64{group[i]}
	}
	d, err := dataset.New([]string{"s"}, X, append([]float64(nil), labels...), []string{"g"}, protected)
	if err != nil {
		panic(err)
	}
	copy(d.Scores, scores)
	return d
}
