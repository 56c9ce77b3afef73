package main

import (
	"bytes"
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"
	"go.viam.com/test"

	"fitlife/db"
	"fitlife/ml"
	"fitlife/pipeline"
)

func writeDataset(t *testing.T, ds *ml.Dataset) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workouts.arff")
	f, err := os.Create(path)
	test.That(t, err, test.ShouldBeNil)
	defer f.Close()
	test.That(t, pipeline.WriteARFF(f, ds), test.ShouldBeNil)
	return path
}

func testOptions(t *testing.T, dataset string) trainOptions {
	dir := t.TempDir()
	return trainOptions{
		DatasetPath:  dataset,
		ModelPath:    filepath.Join(dir, "models", "activity.model"),
		Charset:      "utf-8",
		DBPath:       filepath.Join(dir, "fitlife.db"),
		Folds:        10,
		Seed:         1,
		MinInstances: 2,
		Clean:        true,
	}
}

func TestTrain(t *testing.T) {
	dataset := writeDataset(t, pipeline.GenerateWorkouts(rand.New(rand.NewSource(123)), 100))
	opts := testOptions(t, dataset)

	var out bytes.Buffer
	test.That(t, train(context.Background(), opts, zaptest.NewLogger(t), &out), test.ShouldBeNil)
	test.That(t, out.String(), test.ShouldContainSubstring, "Correctly classified")
	test.That(t, out.String(), test.ShouldContainSubstring, "Confusion matrix")
	test.That(t, out.String(), test.ShouldContainSubstring, "Gym_Workout")

	model, err := ml.LoadFile(opts.ModelPath)
	test.That(t, err, test.ShouldBeNil)
	label, err := model.Classify(ml.FeatureVector{45, 15, 450})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, label, test.ShouldEqual, pipeline.Cycling)

	store, err := db.Open(opts.DBPath, nil)
	test.That(t, err, test.ShouldBeNil)
	defer store.Close()
	run, err := store.LatestTraining(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, run.Examples, test.ShouldEqual, 400)
	test.That(t, run.Folds, test.ShouldEqual, 10)
	test.That(t, run.Nodes, test.ShouldEqual, model.Size())
}

func TestTrainAbortsBeforeSaving(t *testing.T) {
	// two examples per class cannot fill ten folds
	dataset := writeDataset(t, pipeline.GenerateWorkouts(rand.New(rand.NewSource(1)), 2))
	opts := testOptions(t, dataset)

	err := train(context.Background(), opts, zaptest.NewLogger(t), &bytes.Buffer{})
	test.That(t, err, test.ShouldNotBeNil)
	_, statErr := os.Stat(opts.ModelPath)
	test.That(t, os.IsNotExist(statErr), test.ShouldBeTrue)
}

func TestTrainMissingDataset(t *testing.T) {
	opts := testOptions(t, filepath.Join(t.TempDir(), "missing.arff"))
	err := train(context.Background(), opts, zaptest.NewLogger(t), &bytes.Buffer{})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "read dataset")
}
