package dataset

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/rngrant/520-DAVAR-Project/pkg/data"
	"github.com/rngrant/520-DAVAR-Project/pkg/dataprep"
)

// Protected names a protected attribute and the raw values that make a row
// privileged (encoded 1; everything else is 0).
type Protected struct {
	Name       string   `yaml:"name"`
	Privileged []string `yaml:"privileged"`
}

// Schema describes how raw records become a Dataset.
type Schema struct {
	Label     string      `yaml:"label"`
	Favorable []string    `yaml:"favorable"`
	Protected []Protected `yaml:"protected"`
	// Numeric columns keep their order. Protected attributes listed here are
	// kept as binarized feature columns.
	Numeric []string `yaml:"numeric"`
	// Categorical columns are one-hot encoded after the numeric ones.
	Categorical []string `yaml:"categorical"`
}

// Validate checks the schema is usable.
func (s Schema) Validate() error {
	if s.Label == "" {
		return errors.New("dataset: schema: label is required")
	}
	if len(s.Favorable) == 0 {
		return errors.New("dataset: schema: at least one favorable label value is required")
	}
	if len(s.Protected) == 0 {
		return errors.New("dataset: schema: at least one protected attribute is required")
	}
	if len(s.Numeric)+len(s.Categorical) == 0 {
		return errors.New("dataset: schema: no feature columns")
	}
	seen := map[string]struct{}{s.Label: {}}
	for _, c := range append(append([]string(nil), s.Numeric...), s.Categorical...) {
		if _, dup := seen[c]; dup {
			return fmt.Errorf("dataset: schema: column %q listed twice", c)
		}
		seen[c] = struct{}{}
	}
	for _, p := range s.Protected {
		if p.Name == "" || len(p.Privileged) == 0 {
			return fmt.Errorf("dataset: schema: protected attribute %q needs a name and privileged values", p.Name)
		}
	}
	return nil
}

func (s Schema) protected(name string) (Protected, bool) {
	for _, p := range s.Protected {
		if p.Name == name {
			return p, true
		}
	}
	return Protected{}, false
}

// LoadOption configures a loader.
type LoadOption func(*loadConfig)

type loadConfig struct {
	log     *slog.Logger
	filter  func(data.Record) bool
	without map[string]struct{}
}

// WithLogger sets the logger used for skipped rows and load summaries.
func WithLogger(l *slog.Logger) LoadOption { return func(c *loadConfig) { c.log = l } }

// WithFilter keeps only raw records for which keep returns true.
func WithFilter(keep func(data.Record) bool) LoadOption {
	return func(c *loadConfig) { c.filter = keep }
}

// WithoutColumns drops feature columns from the schema before loading.
func WithoutColumns(names ...string) LoadOption {
	return func(c *loadConfig) {
		for _, n := range names {
			c.without[n] = struct{}{}
		}
	}
}

func newLoadConfig(opts []LoadOption) *loadConfig {
	c := &loadConfig{without: map[string]struct{}{}}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = slog.New(slog.DiscardHandler)
	}
	return c
}

func (c *loadConfig) apply(s Schema) Schema {
	keep := func(cols []string) []string {
		var out []string
		for _, col := range cols {
			if _, drop := c.without[col]; !drop {
				out = append(out, col)
			}
		}
		return out
	}
	s.Numeric = keep(s.Numeric)
	s.Categorical = keep(s.Categorical)
	return s
}

// builder accumulates raw column values for rows that pass filtering and
// have no missing fields.
type builder struct {
	schema  Schema
	columns []string
	raw     map[string][]string
	rows    int
	dropped int
}

func newBuilder(s Schema) *builder {
	cols := []string{s.Label}
	seen := map[string]struct{}{s.Label: {}}
	add := func(c string) {
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			cols = append(cols, c)
		}
	}
	for _, c := range s.Numeric {
		add(c)
	}
	for _, c := range s.Categorical {
		add(c)
	}
	for _, p := range s.Protected {
		add(p.Name)
	}
	return &builder{schema: s, columns: cols, raw: make(map[string][]string, len(cols))}
}

func (b *builder) add(rec data.Record) {
	for _, c := range b.columns {
		if v, ok := rec[c]; !ok || dataprep.IsMissing(v) {
			b.dropped++
			return
		}
	}
	for _, c := range b.columns {
		b.raw[c] = append(b.raw[c], rec[c])
	}
	b.rows++
}

func (b *builder) build() (*Dataset, error) {
	if b.rows == 0 {
		return nil, errors.New("dataset: no usable rows")
	}
	s := b.schema
	var names []string
	columns := [][]float64{}
	for _, c := range s.Numeric {
		names = append(names, c)
		if p, ok := s.protected(c); ok {
			columns = append(columns, dataprep.Binarize(b.raw[c], p.Privileged...))
			continue
		}
		col := make([]float64, b.rows)
		for i, v := range b.raw[c] {
			f, ok := dataprep.ParseNumeric(v)
			if !ok {
				return nil, fmt.Errorf("dataset: column %q row %d: %q is not numeric", c, i, v)
			}
			col[i] = f
		}
		columns = append(columns, col)
	}
	for _, c := range s.Categorical {
		encoded, cats := dataprep.OneHot(b.raw[c])
		names = append(names, dataprep.OneHotNames(c, cats)...)
		for k := range cats {
			col := make([]float64, b.rows)
			for i := range encoded {
				col[i] = encoded[i][k]
			}
			columns = append(columns, col)
		}
	}

	X := make([][]float64, b.rows)
	for i := range X {
		row := make([]float64, len(columns))
		for j, col := range columns {
			row[j] = col[i]
		}
		X[i] = row
	}

	protectedNames := make([]string, len(s.Protected))
	protectedCols := make([][]float64, len(s.Protected))
	for k, p := range s.Protected {
		protectedNames[k] = p.Name
		protectedCols[k] = dataprep.Binarize(b.raw[p.Name], p.Privileged...)
	}
	protected := make([][]float64, b.rows)
	for i := range protected {
		row := make([]float64, len(protectedCols))
		for k, col := range protectedCols {
			row[k] = col[i]
		}
		protected[i] = row
	}

	labels := dataprep.Binarize(b.raw[s.Label], s.Favorable...)
	return New(names, X, labels, protectedNames, protected)
}
