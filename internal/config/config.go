// Package config loads the search configuration from YAML and applies
// environment overrides.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rngrant/520-DAVAR-Project/pkg/dataset"
	"github.com/rngrant/520-DAVAR-Project/pkg/metrics"
	"github.com/rngrant/520-DAVAR-Project/pkg/mitigation"
	"github.com/rngrant/520-DAVAR-Project/pkg/model"
	"github.com/rngrant/520-DAVAR-Project/pkg/search"
)

// Config is the top-level search configuration.
type Config struct {
	Dataset         DatasetConfig          `yaml:"dataset"`
	Models          map[string]string      `yaml:"models"` // name -> kind
	Metrics         map[string][]string    `yaml:"metrics"`
	Hyperparameters map[string]search.Grid `yaml:"hyperparameters"`
	Thresholds      []float64              `yaml:"thresholds"`
	Privileged      dataset.Groups         `yaml:"privileged"`
	Unprivileged    dataset.Groups         `yaml:"unprivileged"`
	Preprocessors   []PreprocessorConfig   `yaml:"preprocessors"`
	Postprocessors  []mitigation.Step      `yaml:"postprocessors"`
	Split           SplitConfig            `yaml:"split"`
	Run             RunConfig              `yaml:"run"`
	Output          OutputConfig           `yaml:"output"`
	Telemetry       TelemetryConfig        `yaml:"telemetry"`
}

// DatasetConfig selects and locates the input data.
type DatasetConfig struct {
	Kind           string          `yaml:"kind"` // compas, csv or json
	Path           string          `yaml:"path"`
	DropChargeDesc bool            `yaml:"drop_charge_desc"`
	Schema         *dataset.Schema `yaml:"schema"` // required for csv and json
}

// PreprocessorConfig is one preprocessing branch: a single step, or a chain
// of steps applied in order.
type PreprocessorConfig struct {
	mitigation.Step `yaml:",inline"`
	Chain           []mitigation.Step `yaml:"chain"`
}

// Branch returns the steps of the branch in order.
func (p PreprocessorConfig) Branch() search.Branch {
	if len(p.Chain) > 0 {
		return search.Branch(p.Chain)
	}
	return search.Branch{p.Step}
}

// SplitConfig holds the held-out fractions.
type SplitConfig struct {
	Test       float64 `yaml:"test"`
	Validation float64 `yaml:"validation"`
}

type RunConfig struct {
	Workers int   `yaml:"workers"` // 0 = GOMAXPROCS
	Seed    int64 `yaml:"seed"`
}

// OutputConfig names the result sinks. Empty Plot or Store disables them.
type OutputConfig struct {
	CSV   string `yaml:"csv"`
	Plot  string `yaml:"plot"`
	PlotX string `yaml:"plot_x"`
	PlotY string `yaml:"plot_y"`
	Store string `yaml:"store"`
}

type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint"`
	Enabled  bool   `yaml:"-"` // set from the environment
}

// Default returns the COMPAS search: logistic regression and random forest
// grids, five thresholds, the disparate impact remover and calibrated
// equalized odds, scored on accuracy and four fairness metrics.
func Default() Config {
	return Config{
		Dataset: DatasetConfig{Kind: "compas", Path: "compas-scores-two-years.csv"},
		Models: map[string]string{
			"LogisticRegression":     "LogisticRegression",
			"RandomForestClassifier": "RandomForestClassifier",
		},
		Metrics: defaultMetrics(),
		Hyperparameters: map[string]search.Grid{
			"LogisticRegression": {
				"penalty": {"l1", "l2"},
				"C":       {0.1, 0.5, 1, 1.5},
				"solver":  {"liblinear"},
			},
			"RandomForestClassifier": {
				"n_estimators": {"warn", 10, 20, 30, 40, 50, 100},
			},
		},
		Thresholds:     append([]float64(nil), search.DefaultThresholds...),
		Privileged:     dataset.Groups{{"race": 1, "sex": 1}},
		Unprivileged:   dataset.Groups{{"race": 0, "sex": 0}},
		Preprocessors:  []PreprocessorConfig{{Step: mitigation.Step{Name: "DisparateImpactRemover"}}},
		Postprocessors: []mitigation.Step{{Name: "CalibratedEqOddsPostprocessing"}},
		Split:          SplitConfig{Test: 0.3},
		Output: OutputConfig{
			CSV:   "search_output.csv",
			PlotX: "average_odds_difference",
			PlotY: "accuracy_score",
		},
	}
}

func defaultMetrics() map[string][]string {
	return map[string][]string{
		"UnifiedMetricLibrary": {
			"accuracy_score",
			"average_odds_difference",
			"statistical_parity_difference",
			"equal_opportunity_difference",
			"disparate_impact",
		},
	}
}

// LoadConfig reads a YAML file and returns a Config.
// Environment variables referenced as ${VAR} or $VAR in the YAML are expanded
// before parsing. Sections left out of the file (dataset, metrics,
// thresholds, groups, split, output) take their Default values; models,
// hyperparameters and mitigation steps are taken only from the file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration
	if err != nil {
		return Config{}, fmt.Errorf("config: load: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.fillDefaults()
	return cfg, nil
}

func (c *Config) fillDefaults() {
	def := Default()
	if c.Dataset.Kind == "" {
		c.Dataset.Kind = def.Dataset.Kind
	}
	if c.Dataset.Path == "" && c.Dataset.Kind == "compas" {
		c.Dataset.Path = def.Dataset.Path
	}
	if len(c.Metrics) == 0 {
		c.Metrics = def.Metrics
	}
	if len(c.Thresholds) == 0 {
		c.Thresholds = def.Thresholds
	}
	if len(c.Privileged) == 0 && len(c.Unprivileged) == 0 {
		c.Privileged, c.Unprivileged = def.Privileged, def.Unprivileged
	}
	if c.Split.Test == 0 {
		c.Split.Test = def.Split.Test
	}
	if c.Output.CSV == "" {
		c.Output.CSV = def.Output.CSV
	}
	if c.Output.PlotX == "" {
		c.Output.PlotX = def.Output.PlotX
	}
	if c.Output.PlotY == "" {
		c.Output.PlotY = def.Output.PlotY
	}
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	switch c.Dataset.Kind {
	case "compas":
	case "csv", "json":
		if c.Dataset.Schema == nil {
			return fmt.Errorf("config: dataset kind %q requires a schema", c.Dataset.Kind)
		}
		if err := c.Dataset.Schema.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	default:
		return fmt.Errorf("config: unknown dataset kind %q", c.Dataset.Kind)
	}
	if c.Dataset.Path == "" {
		return fmt.Errorf("config: dataset path is required")
	}

	if len(c.Models) == 0 {
		return fmt.Errorf("config: at least one model is required")
	}
	for name, kind := range c.Models {
		if !model.Known(kind) {
			return fmt.Errorf("config: model %q: unknown kind %q", name, kind)
		}
	}
	for name := range c.Hyperparameters {
		if _, ok := c.Models[name]; !ok {
			return fmt.Errorf("config: hyperparameters for unknown model %q", name)
		}
	}

	if len(c.Metrics) == 0 {
		return fmt.Errorf("config: at least one metric library is required")
	}
	for lib, names := range c.Metrics {
		if _, err := metrics.NewLibrary(lib, names); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}

	if len(c.Thresholds) == 0 {
		return fmt.Errorf("config: at least one threshold is required")
	}
	for _, t := range c.Thresholds {
		if t < 0 || t > 1 {
			return fmt.Errorf("config: threshold %v outside [0,1]", t)
		}
	}

	if err := c.Privileged.Validate(); err != nil {
		return fmt.Errorf("config: privileged: %w", err)
	}
	if err := c.Unprivileged.Validate(); err != nil {
		return fmt.Errorf("config: unprivileged: %w", err)
	}

	env := mitigation.Env{Unprivileged: c.Unprivileged, Privileged: c.Privileged, Seed: c.Run.Seed}
	for _, p := range c.Preprocessors {
		branch := p.Branch()
		for _, s := range branch {
			if _, err := mitigation.NewPreprocessor(s, env); err != nil {
				return fmt.Errorf("config: preprocessor %s: %w", branch.Label(), err)
			}
		}
	}
	for _, s := range c.Postprocessors {
		if _, err := mitigation.NewPostprocessor(s, env); err != nil {
			return fmt.Errorf("config: postprocessor %s: %w", s.Label(), err)
		}
	}

	if c.Split.Test <= 0 || c.Split.Validation < 0 || c.Split.Test+c.Split.Validation >= 1 {
		return fmt.Errorf("config: split fractions test=%v validation=%v must be positive and sum below 1",
			c.Split.Test, c.Split.Validation)
	}
	if c.Run.Workers < 0 {
		return fmt.Errorf("config: workers must not be negative")
	}
	if c.Output.CSV == "" {
		return fmt.Errorf("config: output csv path is required")
	}
	return nil
}

// Branches returns the preprocessing branches in configured order.
func (c Config) Branches() []search.Branch {
	out := make([]search.Branch, len(c.Preprocessors))
	for i, p := range c.Preprocessors {
		out[i] = p.Branch()
	}
	return out
}

// LoadDataset reads the configured dataset.
func (c Config) LoadDataset(ctx context.Context, log *slog.Logger) (*dataset.Dataset, error) {
	opts := []dataset.LoadOption{dataset.WithLogger(log)}
	if c.Dataset.DropChargeDesc {
		opts = append(opts, dataset.WithoutChargeDesc())
	}
	switch c.Dataset.Kind {
	case "compas":
		return dataset.LoadCompas(ctx, c.Dataset.Path, opts...)
	}
	f, err := os.Open(c.Dataset.Path)
	if err != nil {
		return nil, fmt.Errorf("config: open dataset: %w", err)
	}
	defer f.Close()
	if c.Dataset.Kind == "json" {
		return dataset.LoadJSON(f, *c.Dataset.Schema, opts...)
	}
	return dataset.LoadCSV(ctx, f, *c.Dataset.Schema, opts...)
}
