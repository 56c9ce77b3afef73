package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.viam.com/test"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fitlife.yaml")
	test.That(t, os.WriteFile(path, []byte(body), 0o644), test.ShouldBeNil)
	return path
}

func TestDefaultIsValid(t *testing.T) {
	test.That(t, Default().Validate(), test.ShouldBeNil)

	cfg, err := Load("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg, test.ShouldResemble, Default())
}

func TestLoadOverlaysDefaults(t *testing.T) {
	t.Setenv("FITLIFE_MODEL_DIR", "/srv/models")
	path := writeConfig(t, `
service_name: FitLife ML Service
http:
  port: 9090
  timeout: 3s
  allowed_origins: ["http://localhost:3000"]
ml:
  model_path: ${FITLIFE_MODEL_DIR}/activity.model
  wait_for_model: true
training:
  folds: 5
  parallel: true
`)
	cfg, err := Load(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.HTTP.Port, test.ShouldEqual, 9090)
	test.That(t, cfg.HTTP.Timeout, test.ShouldEqual, 3*time.Second)
	test.That(t, cfg.HTTP.AllowedOrigins, test.ShouldResemble, []string{"http://localhost:3000"})
	test.That(t, cfg.HTTP.Burst, test.ShouldEqual, Default().HTTP.Burst)
	test.That(t, cfg.ML.ModelPath, test.ShouldEqual, "/srv/models/activity.model")
	test.That(t, cfg.ML.WaitForModel, test.ShouldBeTrue)
	test.That(t, cfg.ML.DatasetPath, test.ShouldEqual, Default().ML.DatasetPath)
	test.That(t, cfg.Training.Folds, test.ShouldEqual, 5)
	test.That(t, cfg.Training.MinInstances, test.ShouldEqual, 2)
	test.That(t, cfg.Training.Parallel, test.ShouldBeTrue)
}

func TestLoadRejects(t *testing.T) {
	_, err := Load(writeConfig(t, "http:\n  port: 70000\ntraining:\n  folds: 1\nlog:\n  encoding: xml\n"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "http.port")
	test.That(t, err.Error(), test.ShouldContainSubstring, "training.folds")
	test.That(t, err.Error(), test.ShouldContainSubstring, "log.encoding")

	_, err = Load(writeConfig(t, "htp:\n  port: 1\n"))
	test.That(t, err, test.ShouldNotBeNil)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	test.That(t, err, test.ShouldNotBeNil)
}
