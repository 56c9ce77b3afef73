// Package config loads the YAML configuration shared by the trainer and the server.
package config

import (
	"time"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"
)

// Config is the root configuration document.
type Config struct {
	ServiceName string         `yaml:"service_name"`
	HTTP        HTTPConfig     `yaml:"http"`
	Log         LogConfig      `yaml:"log"`
	Database    DatabaseConfig `yaml:"database"`
	ML          MLConfig       `yaml:"ml"`
	Training    TrainingConfig `yaml:"training"`
}

// HTTPConfig controls the API server.
type HTTPConfig struct {
	Port           int           `yaml:"port"`
	Timeout        time.Duration `yaml:"timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RateLimit      float64       `yaml:"rate_limit"` // requests per second, 0 disables
	Burst          int           `yaml:"burst"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
}

// LogConfig controls the zap logger and its optional rotated file.
type LogConfig struct {
	Level      string `yaml:"level"`
	Encoding   string `yaml:"encoding"` // console or json
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// DatabaseConfig locates the SQLite store. An empty path disables it.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// MLConfig locates the model and dataset.
type MLConfig struct {
	ModelPath    string `yaml:"model_path"`
	DatasetPath  string `yaml:"dataset_path"`
	Charset      string `yaml:"charset"`
	WaitForModel bool   `yaml:"wait_for_model"`
	CacheSize    int    `yaml:"cache_size"`
}

// TrainingConfig holds the tree and cross-validation parameters.
type TrainingConfig struct {
	Folds        int     `yaml:"folds"`
	Seed         int64   `yaml:"seed"`
	MinInstances int     `yaml:"min_instances"`
	MaxDepth     int     `yaml:"max_depth"`
	Smoothing    float64 `yaml:"smoothing"`
	Parallel     bool    `yaml:"parallel"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		ServiceName: "FitLife ML Service",
		HTTP: HTTPConfig{
			Port:           8081,
			Timeout:        10 * time.Second,
			AllowedOrigins: []string{"*"},
			RateLimit:      50,
			Burst:          100,
			MaxBodyBytes:   1 << 16,
		},
		Log: LogConfig{
			Level:      "info",
			Encoding:   "console",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Database: DatabaseConfig{Path: "data/fitlife.db"},
		ML: MLConfig{
			ModelPath:   "models/activity_classifier.model",
			DatasetPath: "data/workout_activities.arff",
			Charset:     "utf-8",
			CacheSize:   1024,
		},
		Training: TrainingConfig{
			Folds:        10,
			Seed:         1,
			MinInstances: 2,
		},
	}
}

// Load reads path, substitutes ${VAR} references and overlays the result on Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	buf, err := envsubst.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.UnmarshalStrict(buf, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, cfg.Validate()
}

// Validate reports every out-of-range setting.
func (c Config) Validate() error {
	var err error
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		err = multierr.Append(err, errors.Errorf("http.port %d out of range", c.HTTP.Port))
	}
	if c.HTTP.Timeout <= 0 {
		err = multierr.Append(err, errors.New("http.timeout must be positive"))
	}
	if c.HTTP.RateLimit < 0 {
		err = multierr.Append(err, errors.New("http.rate_limit must not be negative"))
	}
	if c.HTTP.RateLimit > 0 && c.HTTP.Burst < 1 {
		err = multierr.Append(err, errors.New("http.burst must be at least 1 when rate limiting"))
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		err = multierr.Append(err, errors.New("http.max_body_bytes must be positive"))
	}
	switch c.Log.Encoding {
	case "console", "json":
	default:
		err = multierr.Append(err, errors.Errorf("log.encoding %q must be console or json", c.Log.Encoding))
	}
	if c.ML.ModelPath == "" {
		err = multierr.Append(err, errors.New("ml.model_path is required"))
	}
	if c.ML.CacheSize < 0 {
		err = multierr.Append(err, errors.New("ml.cache_size must not be negative"))
	}
	if c.Training.Folds < 2 {
		err = multierr.Append(err, errors.Errorf("training.folds %d must be at least 2", c.Training.Folds))
	}
	if c.Training.MinInstances < 1 {
		err = multierr.Append(err, errors.New("training.min_instances must be at least 1"))
	}
	if c.Training.MaxDepth < 0 {
		err = multierr.Append(err, errors.New("training.max_depth must not be negative"))
	}
	if c.Training.Smoothing < 0 {
		err = multierr.Append(err, errors.New("training.smoothing must not be negative"))
	}
	return err
}
