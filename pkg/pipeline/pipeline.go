// Package pipeline chains dataset preprocessing steps.
package pipeline

import (
	"fmt"

	"github.com/rngrant/520-DAVAR-Project/pkg/dataset"
	"github.com/rngrant/520-DAVAR-Project/pkg/mitigation"
)

// Pipeline chains multiple preprocessors. An empty pipeline is the identity.
type Pipeline struct {
	steps []mitigation.Preprocessor
}

func New(steps ...mitigation.Preprocessor) *Pipeline {
	return &Pipeline{steps: steps}
}

// Build constructs fresh preprocessors for steps.
func Build(steps []mitigation.Step, env mitigation.Env) (*Pipeline, error) {
	pres := make([]mitigation.Preprocessor, 0, len(steps))
	for _, s := range steps {
		pre, err := mitigation.NewPreprocessor(s, env)
		if err != nil {
			return nil, err
		}
		pres = append(pres, pre)
	}
	return New(pres...), nil
}

// FitTransform fits every step and returns the fully transformed data.
func (p *Pipeline) FitTransform(d *dataset.Dataset) (*dataset.Dataset, error) {
	for i, step := range p.steps {
		if err := step.Fit(d); err != nil {
			return nil, fmt.Errorf("pipeline: step %d (%s): %w", i, step.Name(), err)
		}
		var err error
		if d, err = step.Transform(d); err != nil {
			return nil, fmt.Errorf("pipeline: step %d (%s): %w", i, step.Name(), err)
		}
	}
	return d, nil
}

// Transform applies the fitted steps in order.
func (p *Pipeline) Transform(d *dataset.Dataset) (*dataset.Dataset, error) {
	for i, step := range p.steps {
		var err error
		if d, err = step.Transform(d); err != nil {
			return nil, fmt.Errorf("pipeline: step %d (%s): %w", i, step.Name(), err)
		}
	}
	return d, nil
}
