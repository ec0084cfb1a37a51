package dataset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rngrant/520-DAVAR-Project/pkg/data"
)

var jsonSchema = Schema{
	Label:       "approved",
	Favorable:   []string{"true"},
	Protected:   []Protected{{Name: "gender", Privileged: []string{"m"}}},
	Numeric:     []string{"income", "gender"},
	Categorical: []string{"region"},
}

func TestLoadJSON(t *testing.T) {
	in := `[
		{"income": 10, "gender": "f", "region": "north", "approved": false},
		{"income": "20.5", "gender": "m", "region": "south", "approved": true},
		{"income": null, "gender": "m", "region": "south", "approved": true},
		{"income": 5, "gender": "f", "region": "south", "approved": true, "extra": [1,2]}
	]`
	d, err := LoadJSON(strings.NewReader(in), jsonSchema)
	require.NoError(t, err)
	require.Equal(t, 3, d.Len(), "null income dropped")
	assert.Equal(t, []string{"income", "gender", "region=north", "region=south"}, d.FeatureNames)
	assert.Equal(t, []float64{20.5, 1, 0, 1}, d.Features[1])
	assert.Equal(t, []float64{0, 1, 1}, d.Labels)
	assert.Equal(t, [][]float64{{0}, {1}, {0}}, d.Protected)
}

func TestLoadJSONFilter(t *testing.T) {
	in := `[{"income": 1, "gender": "f", "region": "n", "approved": true},
		{"income": 2, "gender": "m", "region": "n", "approved": false}]`
	d, err := LoadJSON(strings.NewReader(in), jsonSchema, WithFilter(func(r data.Record) bool {
		return r["gender"] == "m"
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, d.Len())
}

func TestLoadJSONErrors(t *testing.T) {
	_, err := LoadJSON(strings.NewReader(`{"a":1}`), jsonSchema)
	assert.ErrorContains(t, err, "array")

	_, err = LoadJSON(strings.NewReader(`[1,2]`), jsonSchema)
	assert.ErrorContains(t, err, "record 0 is not an object")

	_, err = LoadJSON(strings.NewReader(`[{`), jsonSchema)
	assert.ErrorContains(t, err, "invalid json")

	_, err = LoadJSON(strings.NewReader(`[]`), jsonSchema)
	assert.ErrorContains(t, err, "no usable rows")
}
