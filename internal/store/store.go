// Package store persists grid-search runs and their result rows in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	_ "modernc.org/sqlite"

	"github.com/rngrant/520-DAVAR-Project/internal/store/migrations"
	"github.com/rngrant/520-DAVAR-Project/pkg/model"
	"github.com/rngrant/520-DAVAR-Project/pkg/search"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("store: run not found")

// Run describes one grid search.
type Run struct {
	ID          string
	Dataset     string
	StartedAt   time.Time
	FinishedAt  time.Time
	Config      string
	MetricNames []string
	Rows        int
}

// Store is a SQLite-backed results store.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite results store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=foreign_keys(ON)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite store: %w", err)
	}

	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveRun stores a run and its rows in one transaction and returns the run
// id. An empty run.ID is replaced by a fresh UUID.
func (s *Store) SaveRun(ctx context.Context, run Run, results []search.Result) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s == nil || s.sqlDB == nil {
		return "", fmt.Errorf("storage is not configured")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	names, err := json.Marshal(run.MetricNames)
	if err != nil {
		return "", fmt.Errorf("encode metric names: %w", err)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, dataset, started_at, finished_at, config, metric_names) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Dataset, run.StartedAt.UTC().UnixMilli(), run.FinishedAt.UTC().UnixMilli(), run.Config, string(names),
	); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO results
		(run_id, row_index, preprocessor, model, kind, hyperparameters, params, threshold, postprocessor, metrics, fit_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare result insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		params, err := json.Marshal(r.Params)
		if err != nil {
			return "", fmt.Errorf("encode params of row %d: %w", r.Index, err)
		}
		metrics, err := encodeMetrics(r.Metrics)
		if err != nil {
			return "", fmt.Errorf("encode metrics of row %d: %w", r.Index, err)
		}
		if _, err := stmt.ExecContext(ctx,
			run.ID, r.Index, r.Preprocessor, r.Model, r.Kind, r.Hyperparameters(), string(params),
			r.Threshold, r.Postprocessor, metrics, r.FitDuration.Milliseconds(),
		); err != nil {
			return "", fmt.Errorf("insert row %d: %w", r.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit run: %w", err)
	}
	return run.ID, nil
}

// ListRuns returns every stored run, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT r.id, r.dataset, r.started_at, r.finished_at, r.config, r.metric_names,
       (SELECT COUNT(*) FROM results WHERE run_id = r.id)
FROM runs r
ORDER BY r.started_at DESC, r.id`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run             Run
			started, ended  int64
			metricNamesJSON string
		)
		if err := rows.Scan(&run.ID, &run.Dataset, &started, &ended, &run.Config, &metricNamesJSON, &run.Rows); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt = time.UnixMilli(started).UTC()
		run.FinishedAt = time.UnixMilli(ended).UTC()
		for _, name := range gjson.Parse(metricNamesJSON).Array() {
			run.MetricNames = append(run.MetricNames, name.String())
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Results returns the rows of a run in their original order.
func (s *Store) Results(ctx context.Context, runID string) ([]search.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	var exists int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, runID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT row_index, preprocessor, model, kind, params, threshold, postprocessor, metrics, fit_ms
FROM results WHERE run_id = ? ORDER BY row_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []search.Result
	for rows.Next() {
		var (
			r               search.Result
			params, metrics string
			fitMS           int64
		)
		if err := rows.Scan(&r.Index, &r.Preprocessor, &r.Model, &r.Kind, &params, &r.Threshold, &r.Postprocessor, &metrics, &fitMS); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if r.Params, err = decodeParams(params); err != nil {
			return nil, fmt.Errorf("decode params of row %d: %w", r.Index, err)
		}
		if r.Metrics, err = decodeMetrics(metrics); err != nil {
			return nil, fmt.Errorf("decode metrics of row %d: %w", r.Index, err)
		}
		r.FitDuration = time.Duration(fitMS) * time.Millisecond
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return out, nil
}

// encodeMetrics writes non-finite values as strings since JSON has no NaN.
func encodeMetrics(m map[string]float64) (string, error) {
	enc := make(map[string]any, len(m))
	for k, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			enc[k] = search.FormatFloat(v)
			continue
		}
		enc[k] = v
	}
	b, err := json.Marshal(enc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeMetrics(raw string) (map[string]float64, error) {
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("invalid json")
	}
	out := make(map[string]float64)
	var err error
	gjson.Parse(raw).ForEach(func(key, value gjson.Result) bool {
		switch value.Type {
		case gjson.Number:
			out[key.String()] = value.Float()
		case gjson.String:
			v, perr := strconv.ParseFloat(value.Str, 64)
			if perr != nil {
				err = fmt.Errorf("metric %s: %w", key.String(), perr)
				return false
			}
			out[key.String()] = v
		case gjson.Null:
			out[key.String()] = math.NaN()
		default:
			err = fmt.Errorf("metric %s: unexpected %s", key.String(), value.Type)
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// decodeParams restores grid values; whole numbers written without a
// fraction come back as int.
func decodeParams(raw string) (model.Params, error) {
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("invalid json")
	}
	parsed := gjson.Parse(raw)
	if parsed.Type == gjson.Null {
		return nil, nil
	}
	out := model.Params{}
	var err error
	parsed.ForEach(func(key, value gjson.Result) bool {
		switch value.Type {
		case gjson.Null:
			out[key.String()] = nil
		case gjson.True, gjson.False:
			out[key.String()] = value.Bool()
		case gjson.String:
			out[key.String()] = value.Str
		case gjson.Number:
			if !strings.ContainsAny(value.Raw, ".eE") {
				out[key.String()] = int(value.Int())
			} else {
				out[key.String()] = value.Float()
			}
		default:
			err = fmt.Errorf("param %s: unexpected %s", key.String(), value.Type)
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
