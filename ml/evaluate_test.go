package ml

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestCrossValidate(t *testing.T) {
	ds := syntheticWorkouts(t, 30, 42)
	report, err := NewEvaluator(NewInducer()).CrossValidate(context.Background(), ds, 10, 1)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, report.Total, test.ShouldEqual, ds.Len())
	var total int
	for _, row := range report.Confusion {
		for _, c := range row {
			total += c
		}
	}
	test.That(t, total, test.ShouldEqual, ds.Len())
	test.That(t, report.FoldAccuracy, test.ShouldHaveLength, 10)
	test.That(t, report.Accuracy, test.ShouldBeGreaterThan, 0.5)
	test.That(t, report.Kappa, test.ShouldBeLessThanOrEqualTo, 1.0)

	for _, label := range ds.Schema.Labels() {
		m, ok := report.PerClass[label]
		test.That(t, ok, test.ShouldBeTrue)
		for _, v := range []float64{m.Precision, m.Recall, m.F1} {
			test.That(t, v, test.ShouldBeGreaterThanOrEqualTo, 0.0)
			test.That(t, v, test.ShouldBeLessThanOrEqualTo, 1.0)
		}
	}
}

func TestCrossValidateStratifiesFolds(t *testing.T) {
	ds := syntheticWorkouts(t, 10, 2)
	assignment := stratify(ds, 5, 9)
	perFold := make([]map[string]int, 5)
	for i := range perFold {
		perFold[i] = map[string]int{}
	}
	for i, f := range assignment {
		perFold[f][ds.Examples[i].Label]++
	}
	for _, counts := range perFold {
		for _, label := range ds.Schema.Labels() {
			test.That(t, counts[label], test.ShouldEqual, 2)
		}
	}
}

func TestCrossValidateReproducible(t *testing.T) {
	ds := syntheticWorkouts(t, 12, 8)
	ctx := context.Background()
	a, err := NewEvaluator(NewInducer()).CrossValidate(ctx, ds, 4, 1)
	test.That(t, err, test.ShouldBeNil)
	b, err := NewEvaluator(NewInducer()).CrossValidate(ctx, ds, 4, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cmp.Diff(a, b), test.ShouldBeEmpty)

	parallel, err := NewEvaluator(NewInducer(), WithParallelFolds(true)).CrossValidate(ctx, ds, 4, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cmp.Diff(a, parallel), test.ShouldBeEmpty)
}

func TestCrossValidateInsufficientData(t *testing.T) {
	ds := mustDataset(t,
		Example{FeatureVector{30, 5.2, 320}, "Running"},
		Example{FeatureVector{45, 15.0, 450}, "Cycling"},
		Example{FeatureVector{50, 0, 380}, "Running"},
	)
	_, err := NewEvaluator(nil).CrossValidate(context.Background(), ds, 2, 1)
	test.That(t, errors.Is(err, ErrInsufficientData), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "Cycling")
}

func TestCrossValidateSkipsEmptyDeclaredLabels(t *testing.T) {
	ds := mustDataset(t,
		Example{FeatureVector{30, 5.2, 320}, "Running"},
		Example{FeatureVector{35, 6.0, 360}, "Running"},
		Example{FeatureVector{45, 15.0, 450}, "Cycling"},
		Example{FeatureVector{60, 20.0, 520}, "Cycling"},
	)
	report, err := NewEvaluator(nil).CrossValidate(context.Background(), ds, 2, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, report.Total, test.ShouldEqual, 4)
	test.That(t, report.Labels, test.ShouldResemble, []string{"Running", "Cycling", "Walking", "Gym_Workout"})
	test.That(t, report.Confusion[2], test.ShouldResemble, []int{0, 0, 0, 0})
	test.That(t, report.Confusion[3], test.ShouldResemble, []int{0, 0, 0, 0})
}

func TestCrossValidateInvalidInput(t *testing.T) {
	ds := syntheticWorkouts(t, 4, 1)
	_, err := NewEvaluator(nil).CrossValidate(context.Background(), ds, 1, 1)
	test.That(t, errors.Is(err, ErrInvalidFolds), test.ShouldBeTrue)

	_, err = NewEvaluator(nil).CrossValidate(context.Background(), &Dataset{Schema: workoutSchema()}, 2, 1)
	test.That(t, errors.Is(err, ErrInvalidDataset), test.ShouldBeTrue)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewEvaluator(nil).CrossValidate(ctx, ds, 2, 1)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}

func TestBuildReportUndefinedRatios(t *testing.T) {
	// Cycling is never predicted and never occurs.
	matrix := [][]int{{3, 0}, {0, 0}}
	r := buildReport([]string{"Running", "Cycling"}, [][][]int{matrix}, 2, 1)
	test.That(t, r.Accuracy, test.ShouldEqual, 1.0)
	test.That(t, r.PerClass["Cycling"], test.ShouldResemble, ClassMetrics{})
	test.That(t, r.PerClass["Running"].F1, test.ShouldEqual, 1.0)
	test.That(t, r.Kappa, test.ShouldEqual, 0.0)
}

func TestBuildReportMetrics(t *testing.T) {
	// actual Running: 8 right, 2 as Cycling; actual Cycling: 1 as Running, 9 right.
	matrix := [][]int{{8, 2}, {1, 9}}
	r := buildReport([]string{"Running", "Cycling"}, [][][]int{matrix}, 2, 1)
	test.That(t, r.Total, test.ShouldEqual, 20)
	test.That(t, r.Accuracy, test.ShouldAlmostEqual, 0.85, 1e-9)
	test.That(t, r.PerClass["Running"].Precision, test.ShouldAlmostEqual, 8.0/9.0, 1e-9)
	test.That(t, r.PerClass["Running"].Recall, test.ShouldAlmostEqual, 0.8, 1e-9)
	test.That(t, r.PerClass["Cycling"].Precision, test.ShouldAlmostEqual, 9.0/11.0, 1e-9)
	test.That(t, r.Kappa, test.ShouldAlmostEqual, 0.7, 1e-9)
}
