// Package mitigation implements bias mitigation steps that run before
// training (preprocessors rewrite features or instance weights) or after
// prediction (postprocessors rewrite scores and labels).
package mitigation

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rngrant/520-DAVAR-Project/pkg/dataset"
	"github.com/rngrant/520-DAVAR-Project/pkg/model"
)

// Preprocessor learns a transform on training data and applies it to any
// dataset with the same columns. Transform never modifies its input.
type Preprocessor interface {
	Name() string
	Fit(d *dataset.Dataset) error
	Transform(d *dataset.Dataset) (*dataset.Dataset, error)
}

// Postprocessor learns from true labels and model scores, then rewrites
// predictions. pred carries model scores in Scores.
type Postprocessor interface {
	Name() string
	Fit(truth, pred *dataset.Dataset) error
	Predict(pred *dataset.Dataset, threshold float64) (*dataset.Dataset, error)
}

// ErrNotFitted is returned by Transform or Predict before Fit.
var ErrNotFitted = errors.New("mitigation: not fitted")

// Step names a mitigation step and its parameters, as written in configs.
type Step struct {
	Name   string       `yaml:"name"`
	Params model.Params `yaml:"params"`
}

// Label renders the step for result rows: the bare name, or
// Name(k=v;k=v) when parameters are set.
func (s Step) Label() string {
	if len(s.Params) == 0 {
		return s.Name
	}
	return s.Name + "(" + s.Params.Canonical() + ")"
}

// Env carries what step constructors need beyond their own parameters.
type Env struct {
	Unprivileged dataset.Groups
	Privileged   dataset.Groups
	Seed         int64
}

type (
	PreBuilder  func(p model.Params, env Env) (Preprocessor, error)
	PostBuilder func(p model.Params, env Env) (Postprocessor, error)
)

var (
	regMu = sync.RWMutex{}
	pre   = map[string]PreBuilder{
		"DisparateImpactRemover": buildDIRemover,
		"Reweighing":             buildReweighing,
	}
	post = map[string]PostBuilder{
		"CalibratedEqOddsPostprocessing": buildCalibratedEqOdds,
		"RejectOptionClassification":     buildRejectOption,
	}
)

// RegisterPreprocessor adds or replaces a preprocessor constructor.
func RegisterPreprocessor(name string, b PreBuilder) {
	regMu.Lock()
	defer regMu.Unlock()
	pre[name] = b
}

// RegisterPostprocessor adds or replaces a postprocessor constructor.
func RegisterPostprocessor(name string, b PostBuilder) {
	regMu.Lock()
	defer regMu.Unlock()
	post[name] = b
}

// Preprocessors lists registered preprocessor names.
func Preprocessors() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	return sortedKeys(pre)
}

// Postprocessors lists registered postprocessor names.
func Postprocessors() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	return sortedKeys(post)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NewPreprocessor builds a fresh, unfitted preprocessor for s.
func NewPreprocessor(s Step, env Env) (Preprocessor, error) {
	regMu.RLock()
	b, ok := pre[s.Name]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("mitigation: unknown preprocessor %q", s.Name)
	}
	return b(s.Params, env)
}

// NewPostprocessor builds a fresh, unfitted postprocessor for s.
func NewPostprocessor(s Step, env Env) (Postprocessor, error) {
	regMu.RLock()
	b, ok := post[s.Name]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("mitigation: unknown postprocessor %q", s.Name)
	}
	return b(s.Params, env)
}

func checkGroups(env Env) error {
	if err := env.Unprivileged.Validate(); err != nil {
		return fmt.Errorf("mitigation: unprivileged groups: %w", err)
	}
	if err := env.Privileged.Validate(); err != nil {
		return fmt.Errorf("mitigation: privileged groups: %w", err)
	}
	return nil
}
