// Package search runs an exhaustive grid search over fairness-aware model
// configurations: preprocessing branches, model kinds with their
// hyperparameter grids, decision thresholds and postprocessing branches.
// Every combination is scored with the configured metric libraries.
package search

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/rngrant/520-DAVAR-Project/pkg/metrics"
	"github.com/rngrant/520-DAVAR-Project/pkg/model"
)

// Validation errors returned by New.
var (
	ErrNoModels     = errors.New("search: no models")
	ErrNoMetrics    = errors.New("search: no metrics")
	ErrNoThresholds = errors.New("search: no thresholds")
	ErrThreshold    = errors.New("search: threshold outside [0,1]")
)

// DefaultThresholds are the decision thresholds 0, 0.1, ..., 0.4.
var DefaultThresholds = []float64{0, 0.1, 0.2, 0.3, 0.4}

// Grid maps hyperparameter names to the values to sweep.
type Grid map[string][]any

// ModelSearch holds a validated search configuration and, after GridSearch,
// its results.
type ModelSearch struct {
	models      map[string]string // model name -> registered kind
	names       []string          // sorted model names
	grids       map[string][]model.Params
	thresholds  []float64
	libraries   []metrics.Library
	metricNames []string

	workers       int
	seed          int64
	testFraction  float64
	validFraction float64
	logger        *slog.Logger
	tracer        trace.Tracer

	mu      sync.Mutex
	results []Result
}

// Option configures a ModelSearch.
type Option func(*ModelSearch)

// WithWorkers bounds the number of concurrent fits. Values < 1 mean
// GOMAXPROCS.
func WithWorkers(n int) Option { return func(s *ModelSearch) { s.workers = n } }

// WithSeed seeds the data split and every model's random state.
func WithSeed(seed int64) Option { return func(s *ModelSearch) { s.seed = seed } }

// WithTestFraction sets the share of rows held out for scoring (default 0.3).
func WithTestFraction(f float64) Option { return func(s *ModelSearch) { s.testFraction = f } }

// WithValidationFraction holds out a further share of rows on which
// postprocessors are fitted. With 0 (the default) they fit on the training
// rows.
func WithValidationFraction(f float64) Option {
	return func(s *ModelSearch) { s.validFraction = f }
}

func WithLogger(l *slog.Logger) Option { return func(s *ModelSearch) { s.logger = l } }

func WithTracer(t trace.Tracer) Option { return func(s *ModelSearch) { s.tracer = t } }

// New validates the search configuration.
//
// models maps a model name to a registered kind (see model.Kinds). metricCfg
// maps a metric library name to the metric names it should compute; metric
// names become CSV columns and must be unique across libraries.
// hyperparameters maps a model name to its grid; models without an entry use
// their defaults.
func New(models map[string]string, metricCfg map[string][]string, hyperparameters map[string]Grid, thresholds []float64, opts ...Option) (*ModelSearch, error) {
	s := &ModelSearch{
		models:       make(map[string]string, len(models)),
		grids:        make(map[string][]model.Params, len(models)),
		workers:      runtime.GOMAXPROCS(0),
		testFraction: 0.3,
		logger:       slog.Default(),
		tracer:       otel.Tracer("github.com/rngrant/520-DAVAR-Project/pkg/search"),
	}
	for _, o := range opts {
		o(s)
	}
	if s.workers < 1 {
		s.workers = runtime.GOMAXPROCS(0)
	}
	if s.testFraction <= 0 || s.validFraction < 0 || s.testFraction+s.validFraction >= 1 {
		return nil, fmt.Errorf("search: invalid split: test %v, validation %v", s.testFraction, s.validFraction)
	}

	if len(models) == 0 {
		return nil, ErrNoModels
	}
	for name, kind := range models {
		if !model.Known(kind) {
			return nil, fmt.Errorf("search: model %q: unknown kind %q (known: %v)", name, kind, model.Kinds())
		}
		s.models[name] = kind
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)

	for name := range hyperparameters {
		if _, ok := models[name]; !ok {
			return nil, fmt.Errorf("search: hyperparameters for unknown model %q", name)
		}
	}
	for _, name := range s.names {
		points, err := expand(hyperparameters[name])
		if err != nil {
			return nil, fmt.Errorf("search: model %q: %w", name, err)
		}
		// Every grid point must build.
		for _, p := range points {
			if _, err := model.Build(s.models[name], p, s.seed); err != nil {
				return nil, fmt.Errorf("search: model %q: %w", name, err)
			}
		}
		s.grids[name] = points
	}

	if len(thresholds) == 0 {
		return nil, ErrNoThresholds
	}
	for _, t := range thresholds {
		if t < 0 || t > 1 || t != t {
			return nil, fmt.Errorf("%w: %v", ErrThreshold, t)
		}
	}
	s.thresholds = append([]float64(nil), thresholds...)

	if len(metricCfg) == 0 {
		return nil, ErrNoMetrics
	}
	libNames := make([]string, 0, len(metricCfg))
	for name := range metricCfg {
		libNames = append(libNames, name)
	}
	sort.Strings(libNames)
	seen := make(map[string]string)
	for _, name := range libNames {
		lib, err := metrics.NewLibrary(name, metricCfg[name])
		if err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
		for _, m := range lib.Metrics() {
			if other, dup := seen[m]; dup {
				return nil, fmt.Errorf("search: metric %q requested by both %s and %s", m, other, name)
			}
			seen[m] = name
			s.metricNames = append(s.metricNames, m)
		}
		s.libraries = append(s.libraries, lib)
	}
	return s, nil
}

// MetricNames returns the metric columns in output order.
func (s *ModelSearch) MetricNames() []string { return append([]string(nil), s.metricNames...) }

// GridSize returns the number of model configurations (models times their
// grid points).
func (s *ModelSearch) GridSize() int {
	n := 0
	for _, name := range s.names {
		n += len(s.grids[name])
	}
	return n
}

// Results returns a copy of the rows produced by the last GridSearch.
func (s *ModelSearch) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Result(nil), s.results...)
}
