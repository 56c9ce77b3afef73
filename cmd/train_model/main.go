// Command train_model induces the activity classifier from an ARFF dataset,
// cross-validates it and writes the model file.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"fitlife/config"
	"fitlife/db"
	"fitlife/logging"
	"fitlife/ml"
	"fitlife/pipeline"
)

type trainOptions struct {
	DatasetPath  string
	ModelPath    string
	Charset      string
	DBPath       string
	Folds        int
	Seed         int64
	MinInstances int
	MaxDepth     int
	Smoothing    float64
	Parallel     bool
	Clean        bool
}

func main() {
	app := &cli.App{
		Name:  "train_model",
		Usage: "train and cross-validate the workout activity classifier",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to the YAML configuration"},
			&cli.StringFlag{Name: "dataset", Aliases: []string{"d"}, Usage: "ARFF training data"},
			&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Usage: "model output path"},
			&cli.StringFlag{Name: "charset", Usage: "dataset character encoding"},
			&cli.StringFlag{Name: "db", Usage: "SQLite database for the training log, empty disables"},
			&cli.IntFlag{Name: "folds", Usage: "cross-validation folds"},
			&cli.Int64Flag{Name: "seed", Usage: "fold shuffling seed"},
			&cli.IntFlag{Name: "min-instances", Usage: "minimum examples per split branch"},
			&cli.IntFlag{Name: "max-depth", Usage: "maximum tree depth, 0 for unlimited"},
			&cli.Float64Flag{Name: "smoothing", Usage: "Laplace smoothing of leaf distributions"},
			&cli.BoolFlag{Name: "parallel", Usage: "evaluate folds concurrently"},
			&cli.BoolFlag{Name: "clean", Value: true, Usage: "drop non-finite and negative examples before training"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return train(ctx, optionsFrom(c, cfg), logger, os.Stdout)
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// optionsFrom overlays the flags that were set on the configuration.
func optionsFrom(c *cli.Context, cfg config.Config) trainOptions {
	opts := trainOptions{
		DatasetPath:  cfg.ML.DatasetPath,
		ModelPath:    cfg.ML.ModelPath,
		Charset:      cfg.ML.Charset,
		DBPath:       cfg.Database.Path,
		Folds:        cfg.Training.Folds,
		Seed:         cfg.Training.Seed,
		MinInstances: cfg.Training.MinInstances,
		MaxDepth:     cfg.Training.MaxDepth,
		Smoothing:    cfg.Training.Smoothing,
		Parallel:     cfg.Training.Parallel,
		Clean:        c.Bool("clean"),
	}
	if c.IsSet("dataset") {
		opts.DatasetPath = c.String("dataset")
	}
	if c.IsSet("model") {
		opts.ModelPath = c.String("model")
	}
	if c.IsSet("charset") {
		opts.Charset = c.String("charset")
	}
	if c.IsSet("db") {
		opts.DBPath = c.String("db")
	}
	if c.IsSet("folds") {
		opts.Folds = c.Int("folds")
	}
	if c.IsSet("seed") {
		opts.Seed = c.Int64("seed")
	}
	if c.IsSet("min-instances") {
		opts.MinInstances = c.Int("min-instances")
	}
	if c.IsSet("max-depth") {
		opts.MaxDepth = c.Int("max-depth")
	}
	if c.IsSet("smoothing") {
		opts.Smoothing = c.Float64("smoothing")
	}
	if c.IsSet("parallel") {
		opts.Parallel = c.Bool("parallel")
	}
	return opts
}

// train runs the whole pipeline. Any failure returns before the model file is written.
func train(ctx context.Context, opts trainOptions, logger *zap.Logger, out io.Writer) error {
	ds, err := pipeline.ReadFile(opts.DatasetPath, opts.Charset)
	if err != nil {
		return errors.Wrap(err, "read dataset")
	}
	logger.Info("dataset loaded",
		zap.String("path", opts.DatasetPath),
		zap.Int("examples", ds.Len()),
		zap.Strings("labels", ds.Schema.Labels()))

	if opts.Clean {
		cleaner := pipeline.NewDataCleaner(logger)
		var issues []pipeline.QualityIssue
		ds, issues = cleaner.Clean(ds)
		if len(issues) > 0 {
			logger.Warn("dropped examples", zap.Int("count", len(issues)))
		}
	}

	inducer := ml.NewInducer(
		ml.WithMinInstances(opts.MinInstances),
		ml.WithMaxDepth(opts.MaxDepth),
		ml.WithSmoothing(opts.Smoothing),
	)
	report, err := ml.NewEvaluator(inducer, ml.WithParallelFolds(opts.Parallel)).
		CrossValidate(ctx, ds, opts.Folds, opts.Seed)
	if err != nil {
		return errors.Wrap(err, "cross-validate")
	}
	model, err := inducer.Induce(ds)
	if err != nil {
		return errors.Wrap(err, "induce")
	}

	renderSummary(out, ds, model, report)
	renderPerClass(out, report)
	renderConfusion(out, report)
	if err := renderSamples(out, model); err != nil {
		return errors.Wrap(err, "score samples")
	}

	if err := ml.SaveFile(opts.ModelPath, model); err != nil {
		return errors.Wrap(err, "save model")
	}
	logger.Info("model saved", zap.String("path", opts.ModelPath), zap.Float64("accuracy", report.Accuracy))

	if opts.DBPath == "" {
		return nil
	}
	store, err := db.Open(opts.DBPath, nil)
	if err != nil {
		return err
	}
	defer store.Close()
	id, err := store.RecordTraining(ctx, db.TrainingRun{
		ModelPath:   opts.ModelPath,
		DatasetPath: opts.DatasetPath,
		Examples:    ds.Len(),
		Folds:       report.Folds,
		Seed:        report.Seed,
		Accuracy:    report.Accuracy,
		Kappa:       report.Kappa,
		Nodes:       model.Size(),
		Leaves:      model.LeafCount(),
		Depth:       model.Depth(),
	})
	if err != nil {
		return err
	}
	logger.Debug("training run recorded", zap.Int64("id", id))
	return nil
}
