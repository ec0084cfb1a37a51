package dataset

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rngrant/520-DAVAR-Project/pkg/data"
	"github.com/rngrant/520-DAVAR-Project/pkg/dataprep"
)

// CompasSchema is the standard encoding of compas-scores-two-years.csv:
// label two_year_recid with "no recidivism" favorable, sex (Female
// privileged) and race (Caucasian privileged) protected.
var CompasSchema = Schema{
	Label:     "two_year_recid",
	Favorable: []string{"0"},
	Protected: []Protected{
		{Name: "sex", Privileged: []string{"Female"}},
		{Name: "race", Privileged: []string{"Caucasian"}},
	},
	Numeric: []string{
		"sex", "age", "race",
		"juv_fel_count", "juv_misd_count", "juv_other_count", "priors_count",
	},
	Categorical: []string{"age_cat", "c_charge_degree", "c_charge_desc"},
}

// CompasFilter keeps screenings within 30 days of arrest with a known
// recidivism flag, a non-ordinary charge and a COMPAS score.
func CompasFilter(rec data.Record) bool {
	days, ok := dataprep.ParseNumeric(rec["days_b_screening_arrest"])
	if !ok || days < -30 || days > 30 {
		return false
	}
	if rec["is_recid"] == "-1" {
		return false
	}
	if rec["c_charge_degree"] == "O" {
		return false
	}
	return rec["score_text"] != "N/A"
}

// WithoutChargeDesc drops the high-cardinality charge description columns.
func WithoutChargeDesc() LoadOption { return WithoutColumns("c_charge_desc") }

// LoadCompas reads the COMPAS two-year recidivism file at path.
func LoadCompas(ctx context.Context, path string, opts ...LoadOption) (*Dataset, error) {
	f, err := os.Open(path) //nolint:gosec // dataset path is operator configuration
	if err != nil {
		return nil, fmt.Errorf("dataset: open compas: %w", err)
	}
	defer f.Close()
	opts = append([]LoadOption{WithFilter(CompasFilter)}, opts...)
	return LoadCSV(ctx, f, CompasSchema, opts...)
}

// LoadCSV streams r and builds a Dataset following schema.
func LoadCSV(ctx context.Context, r io.Reader, schema Schema, opts ...LoadOption) (*Dataset, error) {
	cfg := newLoadConfig(opts)
	schema = cfg.apply(schema)
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	records := make(chan data.Record, 64)
	errc, err := data.StreamCSV(ctx, r, records, cfg.log)
	if err != nil {
		return nil, err
	}
	b := newBuilder(schema)
	filtered := 0
	for rec := range records {
		if cfg.filter != nil && !cfg.filter(rec) {
			filtered++
			continue
		}
		b.add(rec)
	}
	if err := <-errc; err != nil {
		return nil, err
	}
	cfg.log.Info("dataset loaded", "rows", b.rows, "filtered", filtered, "missing", b.dropped)
	return b.build()
}
