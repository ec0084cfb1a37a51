// Command fairsearch runs a fairness-aware grid search over model,
// mitigation and threshold combinations and writes the scored rows to CSV.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rngrant/520-DAVAR-Project/internal/config"
	"github.com/rngrant/520-DAVAR-Project/internal/store"
	"github.com/rngrant/520-DAVAR-Project/internal/telemetry"
	"github.com/rngrant/520-DAVAR-Project/pkg/report"
	"github.com/rngrant/520-DAVAR-Project/pkg/search"
)

const serviceName = "fairsearch"

type options struct {
	configPath string
	dataset    string
	output     string
	plot       string
	storePath  string
	workers    int
	seed       int64
	seedSet    bool
	verbose    bool
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "runs" {
		runsCmd := flag.NewFlagSet("runs", flag.ExitOnError)
		runsCmd.Usage = func() {
			fmt.Fprintf(os.Stderr, "Usage: fairsearch runs [flags]\n\nList searches saved in a results store.\n\nFlags:\n")
			runsCmd.PrintDefaults()
		}
		storePath := runsCmd.String("store", "fairsearch.db", "path to the SQLite results store")
		_ = runsCmd.Parse(os.Args[2:])

		if err := listRuns(*storePath); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: fairsearch [flags]\n       fairsearch runs [flags]\n\nFlags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nCommands:\n  runs    List searches saved in a results store\n")
	}

	var o options
	flag.StringVar(&o.configPath, "config", "", "path to YAML search configuration (default: built-in COMPAS search)")
	envFile := flag.String("env", ".env", "path to .env file (ignored if missing)")
	flag.StringVar(&o.dataset, "dataset", "", "dataset path (overrides config)")
	flag.StringVar(&o.output, "output", "", "CSV output path (overrides config)")
	flag.StringVar(&o.plot, "plot", "", "trade-off plot path, .png/.svg/.pdf (overrides config)")
	flag.StringVar(&o.storePath, "store", "", "SQLite results store path (overrides config)")
	flag.IntVar(&o.workers, "workers", 0, "concurrent fits (default: GOMAXPROCS)")
	seed := flag.Int64("seed", 0, "random seed for splits, models and postprocessors")
	flag.BoolVar(&o.verbose, "verbose", false, "log every evaluated configuration")
	flag.Parse()
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			o.seedSet = true
		}
	})
	o.seed = *seed

	if err := loadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := run(o); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func run(o options) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := resolveConfig(o)
	if err != nil {
		return err
	}

	shutdown, err := telemetry.Setup(ctx, serviceName, cfg.Telemetry.Endpoint, cfg.Telemetry.Enabled)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Warn("telemetry shutdown", "err", err)
		}
	}()

	started := time.Now()
	ds, err := cfg.LoadDataset(ctx, log)
	if err != nil {
		return err
	}
	log.Info("dataset loaded", "path", cfg.Dataset.Path, "rows", ds.Len(), "features", len(ds.FeatureNames))

	opts := []search.Option{
		search.WithWorkers(cfg.Run.Workers),
		search.WithSeed(cfg.Run.Seed),
		search.WithTestFraction(cfg.Split.Test),
		search.WithLogger(log),
	}
	if cfg.Split.Validation > 0 {
		opts = append(opts, search.WithValidationFraction(cfg.Split.Validation))
	}
	s, err := search.New(cfg.Models, cfg.Metrics, cfg.Hyperparameters, cfg.Thresholds, opts...)
	if err != nil {
		return err
	}

	results, err := s.GridSearch(ctx, ds, cfg.Privileged, cfg.Unprivileged, cfg.Branches(), cfg.Postprocessors)
	if err != nil {
		return err
	}
	finished := time.Now()
	log.Info("search finished", "rows", len(results), "elapsed", finished.Sub(started).Round(time.Millisecond))

	if err := s.ToCSV(cfg.Output.CSV); err != nil {
		return err
	}
	log.Info("results written", "path", cfg.Output.CSV)

	if cfg.Output.Plot != "" {
		frontier, err := s.Frontier(cfg.Output.PlotY, cfg.Output.PlotX)
		if err != nil {
			return err
		}
		if err := report.PlotTradeoff(results, frontier, cfg.Output.PlotX, cfg.Output.PlotY, cfg.Output.Plot); err != nil {
			return err
		}
		log.Info("plot written", "path", cfg.Output.Plot, "frontier", len(frontier))
	}

	if cfg.Output.Store != "" {
		if err := saveRun(ctx, cfg, s, results, started, finished, log); err != nil {
			return err
		}
	}

	if best, err := s.Closest(cfg.Output.PlotY); err == nil {
		log.Info("best configuration",
			"preprocessor", best.Preprocessor,
			"model", best.Model,
			"hyperparameters", best.Hyperparameters(),
			"threshold", best.Threshold,
			"postprocessor", best.Postprocessor,
			cfg.Output.PlotY, best.Metrics[cfg.Output.PlotY],
		)
	}
	return nil
}

// resolveConfig layers the file (or the defaults), the environment and the
// flags, in that order.
func resolveConfig(o options) (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(o.configPath); err != nil {
			return config.Config{}, err
		}
	}

	envCfg, err := config.ParseEnv()
	if err != nil {
		return config.Config{}, err
	}
	envCfg.Apply(&cfg)

	if o.dataset != "" {
		cfg.Dataset.Path = o.dataset
	}
	if o.output != "" {
		cfg.Output.CSV = o.output
	}
	if o.plot != "" {
		cfg.Output.Plot = o.plot
	}
	if o.storePath != "" {
		cfg.Output.Store = o.storePath
	}
	if o.workers > 0 {
		cfg.Run.Workers = o.workers
	}
	if o.seedSet {
		cfg.Run.Seed = o.seed
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func saveRun(ctx context.Context, cfg config.Config, s *search.ModelSearch, results []search.Result, started, finished time.Time, log *slog.Logger) error {
	st, err := store.Open(cfg.Output.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	id, err := st.SaveRun(ctx, store.Run{
		Dataset:     cfg.Dataset.Path,
		StartedAt:   started,
		FinishedAt:  finished,
		Config:      string(raw),
		MetricNames: s.MetricNames(),
	}, results)
	if err != nil {
		return err
	}
	log.Info("run stored", "path", cfg.Output.Store, "run", id)
	return nil
}

func listRuns(path string) error {
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(context.Background())
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATASET\tSTARTED\tDURATION\tROWS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
			r.ID, r.Dataset, r.StartedAt.Local().Format(time.DateTime), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond), r.Rows)
	}
	return tw.Flush()
}
