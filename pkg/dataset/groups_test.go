package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupsMask(t *testing.T) {
	d, err := New(
		[]string{"x"},
		[][]float64{{0}, {0}, {0}, {0}},
		[]float64{1, 0, 1, 0},
		[]string{"race", "sex"},
		[][]float64{{0, 0}, {1, 1}, {1, 0}, {0, 1}},
	)
	require.NoError(t, err)

	mask, err := Groups{{"race": 1, "sex": 1}}.Mask(d)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, false, false}, mask)

	mask, err = Groups{{"race": 0, "sex": 0}, {"race": 1, "sex": 0}}.Mask(d)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true, false}, mask)

	_, err = Groups{{"age": 1}}.Mask(d)
	assert.ErrorContains(t, err, "unknown protected attribute")

	_, err = Groups{}.Mask(d)
	assert.ErrorIs(t, err, ErrEmptyGroups)
	assert.ErrorIs(t, Groups{{}}.Validate(), ErrEmptyGroups)
}

func TestGroupsString(t *testing.T) {
	g := Groups{{"sex": 0, "race": 0}, {"race": 1}}
	assert.Equal(t, "race=0,sex=0|race=1", g.String())
}
