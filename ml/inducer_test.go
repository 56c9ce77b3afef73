package ml

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

func workoutSchema() Schema {
	return NewSchema("workout_activities",
		[]string{"duration", "distance", "calories"},
		"activityType",
		[]string{"Running", "Cycling", "Walking", "Gym_Workout"})
}

func mustDataset(t *testing.T, examples ...Example) *Dataset {
	t.Helper()
	ds, err := NewDataset(workoutSchema(), examples)
	test.That(t, err, test.ShouldBeNil)
	return ds
}

// syntheticWorkouts mirrors the speed bands of the generator without importing it.
func syntheticWorkouts(t *testing.T, perClass int, seed int64) *Dataset {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	var examples []Example
	for i := 0; i < perClass; i++ {
		d := float64(15 + rng.Intn(60))
		examples = append(examples, Example{FeatureVector{d, d / 60 * (8 + 4*rng.Float64()), d * 11}, "Running"})
		d = float64(20 + rng.Intn(100))
		examples = append(examples, Example{FeatureVector{d, d / 60 * (15 + 10*rng.Float64()), d * 7}, "Cycling"})
		d = float64(20 + rng.Intn(70))
		examples = append(examples, Example{FeatureVector{d, d / 60 * (4 + 2*rng.Float64()), d * 3}, "Walking"})
		d = float64(30 + rng.Intn(90))
		examples = append(examples, Example{FeatureVector{d, 0, d * (5 + 5*rng.Float64())}, "Gym_Workout"})
	}
	return mustDataset(t, examples...)
}

func TestInduceThreeWorkouts(t *testing.T) {
	ds := mustDataset(t,
		Example{FeatureVector{30, 5.2, 320}, "Running"},
		Example{FeatureVector{45, 15.0, 450}, "Cycling"},
		Example{FeatureVector{50, 0, 380}, "Running"},
	)
	model, err := NewInducer().Induce(ds)
	test.That(t, err, test.ShouldBeNil)

	label, err := model.Classify(FeatureVector{30, 5.2, 320})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, label, test.ShouldEqual, "Running")

	label, err = model.Classify(FeatureVector{45, 15.0, 450})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, label, test.ShouldEqual, "Cycling")

	// distance and calories separate equally well; the lower attribute index wins.
	root := model.Nodes()[model.Root()]
	test.That(t, root.Leaf, test.ShouldBeFalse)
	test.That(t, root.Feature, test.ShouldEqual, 1)
	test.That(t, root.Threshold, test.ShouldAlmostEqual, 10.1, 1e-9)
}

func TestInduceSingleLabel(t *testing.T) {
	ds := mustDataset(t,
		Example{FeatureVector{30, 5, 300}, "Walking"},
		Example{FeatureVector{60, 6, 400}, "Walking"},
		Example{FeatureVector{90, 7, 500}, "Walking"},
	)
	model, err := NewInducer().Induce(ds)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, model.Size(), test.ShouldEqual, 1)
	test.That(t, model.Depth(), test.ShouldEqual, 0)

	result, err := model.Predict(FeatureVector{1, 1, 1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.Label, test.ShouldEqual, "Walking")
	test.That(t, result.Confidence, test.ShouldEqual, 1.0)
}

func TestInduceDeterministic(t *testing.T) {
	ds := syntheticWorkouts(t, 40, 7)
	a, err := NewInducer().Induce(ds)
	test.That(t, err, test.ShouldBeNil)
	b, err := NewInducer().Induce(ds)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cmp.Diff(a.Nodes(), b.Nodes()), test.ShouldBeEmpty)
	test.That(t, a.Root(), test.ShouldEqual, b.Root())
}

func TestLeafInvariants(t *testing.T) {
	for _, alpha := range []float64{0, 1} {
		model, err := NewInducer(WithSmoothing(alpha)).Induce(syntheticWorkouts(t, 30, 3))
		test.That(t, err, test.ShouldBeNil)
		for i, n := range model.Nodes() {
			var sum float64
			for _, p := range n.Distribution {
				sum += p
				test.That(t, n.Distribution[n.Label], test.ShouldBeGreaterThanOrEqualTo, p)
			}
			test.That(t, sum, test.ShouldAlmostEqual, 1.0, 1e-9)
			if !n.Leaf {
				test.That(t, n.Left, test.ShouldBeLessThan, i)
				test.That(t, n.Right, test.ShouldBeLessThan, i)
			}
		}
		test.That(t, model.Root(), test.ShouldEqual, model.Size()-1)
	}
}

func TestInduceFitsSeparableData(t *testing.T) {
	ds := syntheticWorkouts(t, 25, 11)
	model, err := NewInducer(WithMinInstances(1)).Induce(ds)
	test.That(t, err, test.ShouldBeNil)
	for _, ex := range ds.Examples {
		label, err := model.Classify(ex.Features)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, label, test.ShouldEqual, ex.Label)
	}
}

func TestInduceMinInstances(t *testing.T) {
	ds := mustDataset(t,
		Example{FeatureVector{30, 5.2, 320}, "Running"},
		Example{FeatureVector{45, 15.0, 450}, "Cycling"},
		Example{FeatureVector{50, 0, 380}, "Running"},
	)
	model, err := NewInducer(WithMinInstances(4)).Induce(ds)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, model.Size(), test.ShouldEqual, 1)

	result, err := model.Predict(FeatureVector{45, 15.0, 450})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.Label, test.ShouldEqual, "Running")
	test.That(t, result.Confidence, test.ShouldAlmostEqual, 2.0/3.0, 1e-9)
	test.That(t, result.Distribution["Cycling"], test.ShouldAlmostEqual, 1.0/3.0, 1e-9)
	test.That(t, result.Distribution["Walking"], test.ShouldEqual, 0.0)
}

func TestInduceMaxDepth(t *testing.T) {
	model, err := NewInducer(WithMaxDepth(1)).Induce(syntheticWorkouts(t, 20, 5))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, model.Depth(), test.ShouldEqual, 1)
	test.That(t, model.LeafCount(), test.ShouldEqual, 2)
}

func TestInduceSmoothing(t *testing.T) {
	ds := mustDataset(t,
		Example{FeatureVector{30, 5, 300}, "Walking"},
		Example{FeatureVector{60, 6, 400}, "Walking"},
	)
	model, err := NewInducer(WithSmoothing(1)).Induce(ds)
	test.That(t, err, test.ShouldBeNil)
	dist, err := model.Distribution(FeatureVector{30, 5, 300})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dist["Walking"], test.ShouldAlmostEqual, 3.0/6.0, 1e-9)
	test.That(t, dist["Running"], test.ShouldAlmostEqual, 1.0/6.0, 1e-9)
}

func TestInduceErrors(t *testing.T) {
	_, err := NewInducer().Induce(&Dataset{Schema: workoutSchema()})
	test.That(t, errors.Is(err, ErrInvalidDataset), test.ShouldBeTrue)

	_, err = NewInducer().Induce(nil)
	test.That(t, errors.Is(err, ErrInvalidDataset), test.ShouldBeTrue)

	schema := workoutSchema()
	schema.Attributes[3].Kind = Numeric
	_, err = NewInducer().Induce(&Dataset{Schema: schema, Examples: []Example{{FeatureVector{1, 2, 3}, "Running"}}})
	test.That(t, errors.Is(err, ErrInvalidDataset), test.ShouldBeTrue)
}

func TestClassifySchemaMismatch(t *testing.T) {
	model, err := NewInducer().Induce(syntheticWorkouts(t, 5, 1))
	test.That(t, err, test.ShouldBeNil)
	_, err = model.Classify(FeatureVector{1, 2})
	test.That(t, errors.Is(err, ErrSchemaMismatch), test.ShouldBeTrue)
	_, err = model.Predict(FeatureVector{1, 2, 3, 4})
	test.That(t, errors.Is(err, ErrSchemaMismatch), test.ShouldBeTrue)
}

func TestMidpoint(t *testing.T) {
	test.That(t, midpoint(1, 3), test.ShouldEqual, 2.0)
	test.That(t, midpoint(-1, 0), test.ShouldEqual, -0.5)
}
