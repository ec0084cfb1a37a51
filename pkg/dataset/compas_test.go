package dataset

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const compasSample = `id,sex,age,age_cat,race,juv_fel_count,juv_misd_count,juv_other_count,priors_count,days_b_screening_arrest,c_charge_degree,c_charge_desc,is_recid,score_text,two_year_recid
1,Male,69,Greater than 45,Other,0,0,0,0,-1,F,Aggravated Assault w/Firearm,0,Low,0
2,Male,34,25 - 45,African-American,0,0,0,0,-1,F,Felony Battery w/Prior Convict,1,Low,1
3,Female,24,Less than 25,Caucasian,0,0,1,4,-1,M,Battery,1,Low,1
4,Male,23,Less than 25,African-American,0,1,0,1,,F,Possession of Cocaine,0,High,0
5,Male,43,25 - 45,Caucasian,0,0,0,2,45,F,Battery,0,Low,0
6,Female,44,25 - 45,Caucasian,0,0,0,0,0,O,Driving Under Influence,0,Low,0
7,Male,41,25 - 45,Caucasian,0,0,0,14,-1,F,Possession Burglary Tools,1,Medium,1
8,Female,39,25 - 45,Caucasian,0,0,0,0,-1,M,Battery,-1,Low,0
9,Female,27,25 - 45,Caucasian,0,0,0,0,-1,M,,0,Low,0
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "compas-scores-two-years.csv")
	require.NoError(t, os.WriteFile(path, []byte(compasSample), 0o600))
	return path
}

func TestLoadCompasFiltersAndEncodes(t *testing.T) {
	d, err := LoadCompas(context.Background(), writeSample(t))
	require.NoError(t, err)

	// rows 4 (no screening gap), 5 (gap > 30), 6 (ordinary charge),
	// 8 (unknown recidivism) and 9 (missing charge) are dropped
	require.Equal(t, 4, d.Len())

	assert.Equal(t, []string{"sex", "race"}, d.ProtectedNames)
	assert.Equal(t, []float64{0, 0}, d.Protected[0], "male, other")
	assert.Equal(t, []float64{1, 1}, d.Protected[2], "female, caucasian")

	// favorable is "no recidivism"
	assert.Equal(t, []float64{1, 0, 0, 0}, d.Labels)

	assert.Equal(t, []string{
		"sex", "age", "race", "juv_fel_count", "juv_misd_count", "juv_other_count", "priors_count",
		"age_cat=25 - 45", "age_cat=Greater than 45", "age_cat=Less than 25",
		"c_charge_degree=F", "c_charge_degree=M",
		"c_charge_desc=Aggravated Assault w/Firearm", "c_charge_desc=Battery",
		"c_charge_desc=Felony Battery w/Prior Convict", "c_charge_desc=Possession Burglary Tools",
	}, d.FeatureNames)
	assert.Equal(t, []float64{1, 24, 1, 0, 0, 1, 4, 0, 0, 1, 0, 1, 0, 1, 0, 0}, d.Features[2])
}

func TestLoadCompasWithoutChargeDesc(t *testing.T) {
	d, err := LoadCompas(context.Background(), writeSample(t), WithoutChargeDesc())
	require.NoError(t, err)
	assert.Equal(t, 4, d.Len())
	for _, n := range d.FeatureNames {
		assert.False(t, strings.HasPrefix(n, "c_charge_desc"), n)
	}
}

func TestLoadCompasMissingFile(t *testing.T) {
	_, err := LoadCompas(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	assert.ErrorContains(t, err, "open compas")
}

func TestLoadCSVRejectsNonNumeric(t *testing.T) {
	schema := Schema{
		Label:     "y",
		Favorable: []string{"1"},
		Protected: []Protected{{Name: "g", Privileged: []string{"a"}}},
		Numeric:   []string{"x"},
	}
	_, err := LoadCSV(context.Background(), strings.NewReader("x,g,y\nfoo,a,1\n"), schema)
	assert.ErrorContains(t, err, "not numeric")
}

func TestSchemaValidate(t *testing.T) {
	assert.NoError(t, CompasSchema.Validate())
	bad := CompasSchema
	bad.Label = ""
	assert.Error(t, bad.Validate())
	bad = CompasSchema
	bad.Categorical = []string{"age"}
	assert.ErrorContains(t, bad.Validate(), "listed twice")
}
