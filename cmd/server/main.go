// Command server serves activity predictions from a trained model.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"fitlife/config"
	"fitlife/db"
	fhttp "fitlife/http"
	"fitlife/logging"
	"fitlife/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := &cli.App{
		Name:  "server",
		Usage: "serve workout activity predictions over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to the YAML configuration"},
			&cli.BoolFlag{Name: "wait-for-model", Usage: "start without a model and load it once the file appears"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(configPath(c.String("config")))
			if err != nil {
				return err
			}
			if c.IsSet("wait-for-model") {
				cfg.ML.WaitForModel = c.Bool("wait-for-model")
			}
			logger, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, logger)
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// configPath falls back to config.yaml in the working directory or its parent.
func configPath(flag string) string {
	if flag != "" {
		return flag
	}
	for _, p := range []string{"config.yaml", filepath.Join("..", "config.yaml")} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	var store *db.Store
	if cfg.Database.Path != "" {
		var err error
		if store, err = db.Open(cfg.Database.Path, nil); err != nil {
			return err
		}
		defer store.Close()
		logger.Info("database opened", zap.String("path", cfg.Database.Path))
	}

	svc := service.New(logger,
		service.WithCacheSize(cfg.ML.CacheSize),
		service.WithCharset(cfg.ML.Charset))
	schemaSource := cfg.ML.DatasetPath
	if _, err := os.Stat(schemaSource); err != nil {
		logger.Warn("dataset header not found, using the schema stored in the model", zap.String("path", schemaSource))
		schemaSource = ""
	}

	if cfg.ML.WaitForModel {
		// the watcher needs the directory even before the trainer creates it
		if err := os.MkdirAll(filepath.Dir(cfg.ML.ModelPath), 0o755); err != nil {
			return err
		}
		go func() {
			if err := svc.WatchModel(ctx, cfg.ML.ModelPath, schemaSource); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("model watcher stopped", zap.Error(err))
			}
		}()
	} else if err := svc.Initialize(ctx, cfg.ML.ModelPath, schemaSource); err != nil {
		return errors.Wrap(err, "initialize prediction service")
	}

	// a nil *db.Store in the interface would defeat the handler's nil check
	var history fhttp.PredictionStore
	if store != nil {
		history = store
	}
	api := fhttp.NewAPI(cfg.ServiceName, svc, history, logger)
	server := fhttp.NewServer(fhttp.ServerConfigFrom(cfg.HTTP), api, logger)

	errc := make(chan error, 1)
	go func() { errc <- server.Start() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errc
}
