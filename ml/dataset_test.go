package ml

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestNewDatasetValidates(t *testing.T) {
	_, err := NewDataset(workoutSchema(), []Example{
		{FeatureVector{30, 5.2, 320}, "Running"},
		{FeatureVector{30, 5.2}, "Running"},
		{FeatureVector{30, 5.2, 320}, "Swimming"},
	})
	test.That(t, errors.Is(err, ErrInvalidDataset), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "example 1 has 2 features")
	test.That(t, err.Error(), test.ShouldContainSubstring, `undeclared label "Swimming"`)
}

func TestSchemaValidate(t *testing.T) {
	test.That(t, workoutSchema().Validate(), test.ShouldBeNil)

	bad := workoutSchema()
	bad.Attributes[0].Kind = Categorical
	test.That(t, errors.Is(bad.Validate(), ErrInvalidDataset), test.ShouldBeTrue)

	bad = workoutSchema()
	bad.Attributes[3].Values = nil
	test.That(t, bad.Validate(), test.ShouldNotBeNil)

	bad = workoutSchema()
	bad.Attributes[1].Name = "duration"
	test.That(t, bad.Validate().Error(), test.ShouldContainSubstring, "duplicate")

	test.That(t, Schema{}.Validate(), test.ShouldNotBeNil)
}

func TestSchemaAccessors(t *testing.T) {
	s := workoutSchema()
	test.That(t, s.FeatureCount(), test.ShouldEqual, 3)
	test.That(t, s.FeatureNames(), test.ShouldResemble, []string{"duration", "distance", "calories"})
	test.That(t, s.ClassAttribute().Name, test.ShouldEqual, "activityType")
	test.That(t, s.LabelIndex("Walking"), test.ShouldEqual, 2)
	test.That(t, s.LabelIndex("Rowing"), test.ShouldEqual, -1)

	other := workoutSchema()
	other.Relation = "renamed"
	test.That(t, s.Equal(other), test.ShouldBeTrue)
	other.Attributes[3].Values = []string{"Cycling", "Running", "Walking", "Gym_Workout"}
	test.That(t, s.Equal(other), test.ShouldBeFalse)
}

func TestDatasetSubsetAndCounts(t *testing.T) {
	ds := mustDataset(t,
		Example{FeatureVector{30, 5.2, 320}, "Running"},
		Example{FeatureVector{45, 15.0, 450}, "Cycling"},
		Example{FeatureVector{50, 0, 380}, "Running"},
	)
	test.That(t, ds.ClassCounts(), test.ShouldResemble, []int{2, 1, 0, 0})
	sub := ds.Subset([]int{2, 1})
	test.That(t, sub.Len(), test.ShouldEqual, 2)
	test.That(t, sub.Examples[0].Features, test.ShouldResemble, FeatureVector{50, 0, 380})
}
