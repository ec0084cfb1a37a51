package dataprep

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOneHotSortedCategories(t *testing.T) {
	rows, cats := OneHot([]string{"M", "F", "M"})
	assert.Equal(t, []string{"F", "M"}, cats)
	assert.Equal(t, [][]float64{{0, 1}, {1, 0}, {0, 1}}, rows)
	assert.Equal(t, []string{"c=F", "c=M"}, OneHotNames("c", cats))
}

func TestBinarize(t *testing.T) {
	assert.Equal(t, []float64{1, 0, 1}, Binarize([]string{"Female", "Male", "Other"}, "Female", "Other"))
}

func TestParseNumeric(t *testing.T) {
	v, ok := ParseNumeric("3.5")
	assert.True(t, ok)
	assert.Equal(t, 3.5, v)
	for _, in := range []string{"", "NA", "N/A", "x"} {
		_, ok := ParseNumeric(in)
		assert.False(t, ok, in)
	}
}
