package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/rngrant/520-DAVAR-Project/pkg/dataset"
	"github.com/rngrant/520-DAVAR-Project/pkg/mitigation"
	"github.com/rngrant/520-DAVAR-Project/pkg/model"
	"github.com/rngrant/520-DAVAR-Project/pkg/pipeline"
)

// Branch is a chain of preprocessing steps searched as one alternative.
type Branch []mitigation.Step

// Label joins the step labels with "+"; the empty branch is "none".
func (b Branch) Label() string {
	if len(b) == 0 {
		return "none"
	}
	parts := make([]string, len(b))
	for i, s := range b {
		parts[i] = s.Label()
	}
	return strings.Join(parts, "+")
}

type parts struct {
	train, valid, test *dataset.Dataset
}

type task struct {
	branch Branch
	name   string
	params model.Params
}

// GridSearch evaluates every configuration on ds and stores the rows,
// which it also returns. The baseline (no preprocessing, no
// postprocessing) is always included, so the row count is
// (1+len(preprocessors)) * GridSize() * len(thresholds) * (1+len(postprocessors)).
//
// Metrics are computed against the untransformed test rows. Rows are ordered
// by preprocessor branch, model name, grid point, threshold and
// postprocessor regardless of worker scheduling. The first failing fit
// cancels the search.
func (s *ModelSearch) GridSearch(ctx context.Context, ds *dataset.Dataset, privileged, unprivileged dataset.Groups, preprocessors []Branch, postprocessors []mitigation.Step) ([]Result, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, fmt.Errorf("search: empty dataset")
	}
	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if _, err := privileged.Mask(ds); err != nil {
		return nil, fmt.Errorf("search: privileged groups: %w", err)
	}
	if _, err := unprivileged.Mask(ds); err != nil {
		return nil, fmt.Errorf("search: unprivileged groups: %w", err)
	}
	env := mitigation.Env{Unprivileged: unprivileged, Privileged: privileged, Seed: s.seed}
	for _, b := range preprocessors {
		if _, err := pipeline.Build(b, env); err != nil {
			return nil, fmt.Errorf("search: preprocessor %s: %w", b.Label(), err)
		}
	}
	for _, st := range postprocessors {
		if _, err := mitigation.NewPostprocessor(st, env); err != nil {
			return nil, fmt.Errorf("search: postprocessor %s: %w", st.Label(), err)
		}
	}

	sp, err := s.split(ds)
	if err != nil {
		return nil, err
	}

	branches := append([]Branch{nil}, preprocessors...)
	var tasks []task
	for _, b := range branches {
		for _, name := range s.names {
			for _, p := range s.grids[name] {
				tasks = append(tasks, task{branch: b, name: name, params: p})
			}
		}
	}

	log := s.logger.With("dataset_rows", ds.Len())
	log.Info("grid search started",
		"configurations", len(tasks),
		"rows", len(tasks)*len(s.thresholds)*(1+len(postprocessors)),
		"workers", s.workers,
		"train", sp.train.Len(), "test", sp.test.Len())
	started := time.Now()

	slots := make([][]Result, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, t := range tasks {
		g.Go(func() error {
			rows, err := s.evaluate(gctx, sp, t, env, postprocessors)
			if err != nil {
				return err
			}
			slots[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("grid search failed", "err", err)
		return nil, err
	}

	var results []Result
	for _, rows := range slots {
		for _, r := range rows {
			r.Index = len(results)
			results = append(results, r)
		}
	}
	s.mu.Lock()
	s.results = results
	s.mu.Unlock()

	log.Info("grid search finished", "rows", len(results), "elapsed", time.Since(started))
	return append([]Result(nil), results...), nil
}

func (s *ModelSearch) split(ds *dataset.Dataset) (parts, error) {
	train := 1 - s.testFraction - s.validFraction
	if s.validFraction > 0 {
		p, err := dataset.Split(ds, s.seed, train, s.validFraction)
		if err != nil {
			return parts{}, fmt.Errorf("search: %w", err)
		}
		return parts{train: p[0], valid: p[1], test: p[2]}, nil
	}
	p, err := dataset.Split(ds, s.seed, train)
	if err != nil {
		return parts{}, fmt.Errorf("search: %w", err)
	}
	return parts{train: p[0], test: p[1]}, nil
}

func (s *ModelSearch) evaluate(ctx context.Context, sp parts, t task, env mitigation.Env, posts []mitigation.Step) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "search.evaluate", trace.WithAttributes(
		attribute.String("search.preprocessor", t.branch.Label()),
		attribute.String("search.model", t.name),
		attribute.String("search.hyperparameters", t.params.Canonical()),
	))
	defer span.End()

	rows, err := s.run(ctx, sp, t, env, posts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("search.rows", len(rows)))
	return rows, nil
}

type fittedPost struct {
	label string
	post  mitigation.Postprocessor
}

func (s *ModelSearch) run(ctx context.Context, sp parts, t task, env mitigation.Env, posts []mitigation.Step) ([]Result, error) {
	label := t.branch.Label()
	pre, err := pipeline.Build(t.branch, env)
	if err != nil {
		return nil, err
	}
	train, err := pre.FitTransform(sp.train)
	if err != nil {
		return nil, fmt.Errorf("search: preprocessor %s: %w", label, err)
	}
	test, err := pre.Transform(sp.test)
	if err != nil {
		return nil, fmt.Errorf("search: preprocessor %s: %w", label, err)
	}

	kind := s.models[t.name]
	clf, err := model.Build(kind, t.params, s.seed)
	if err != nil {
		return nil, fmt.Errorf("search: model %s: %w", t.name, err)
	}
	fitStart := time.Now()
	if err := clf.Fit(train.Features, train.Labels, train.Weights); err != nil {
		return nil, fmt.Errorf("search: fit %s (%s) after %s: %w", t.name, t.params.Canonical(), label, err)
	}
	fitDur := time.Since(fitStart)
	trace.SpanFromContext(ctx).AddEvent("fitted", trace.WithAttributes(attribute.Int64("fit_ms", fitDur.Milliseconds())))

	scores := clf.PredictProba(test.Features)
	scored, err := sp.test.WithPredictions(scores, 0.5)
	if err != nil {
		return nil, err
	}

	fits := []fittedPost{{label: "none"}}
	if len(posts) > 0 {
		truth, data := sp.train, train
		if sp.valid != nil {
			valid, err := pre.Transform(sp.valid)
			if err != nil {
				return nil, fmt.Errorf("search: preprocessor %s: %w", label, err)
			}
			truth, data = sp.valid, valid
		}
		fitPred, err := truth.WithPredictions(clf.PredictProba(data.Features), 0.5)
		if err != nil {
			return nil, err
		}
		for _, st := range posts {
			p, err := mitigation.NewPostprocessor(st, env)
			if err != nil {
				return nil, err
			}
			if err := p.Fit(truth, fitPred); err != nil {
				return nil, fmt.Errorf("search: postprocessor %s: %w", st.Label(), err)
			}
			fits = append(fits, fittedPost{label: st.Label(), post: p})
		}
	}

	rows := make([]Result, 0, len(s.thresholds)*len(fits))
	for _, thr := range s.thresholds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, f := range fits {
			var pred *dataset.Dataset
			if f.post == nil {
				pred, err = scored.WithPredictions(scores, thr)
			} else {
				pred, err = f.post.Predict(scored, thr)
			}
			if err != nil {
				return nil, fmt.Errorf("search: predict %s at %v: %w", f.label, thr, err)
			}
			values := make(map[string]float64, len(s.metricNames))
			for _, lib := range s.libraries {
				m, err := lib.Compute(sp.test, pred, env.Unprivileged, env.Privileged)
				if err != nil {
					return nil, fmt.Errorf("search: %s: %w", lib.Name(), err)
				}
				for k, v := range m {
					values[k] = v
				}
			}
			rows = append(rows, Result{
				Preprocessor:  label,
				Model:         t.name,
				Kind:          kind,
				Params:        t.params,
				Threshold:     thr,
				Postprocessor: f.label,
				Metrics:       values,
				FitDuration:   fitDur,
			})
		}
	}
	s.logger.Debug("configuration evaluated",
		"preprocessor", label, "model", t.name, "hyperparameters", t.params.Canonical(),
		"fit", fitDur, "rows", len(rows))
	return rows, nil
}
