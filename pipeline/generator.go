package pipeline

import (
	"math"
	"math/rand"

	"fitlife/ml"
)

const (
	Running    = "Running"
	Cycling    = "Cycling"
	Walking    = "Walking"
	GymWorkout = "Gym_Workout"
)

// WorkoutSchema is the schema of the workout activity dataset.
func WorkoutSchema() ml.Schema {
	return ml.NewSchema("workout_activities",
		[]string{"duration", "distance", "calories"},
		"activityType",
		[]string{Running, Cycling, Walking, GymWorkout})
}

// activity draws one workout of a fixed type; duration is in minutes, distance in km.
type activity struct {
	label                        string
	minDuration, maxDuration     int
	minSpeed, maxSpeed           float64
	minKcalPerKm, maxKcalPerKm   float64
	minKcalPerMin, maxKcalPerMin float64
}

var activities = []activity{
	{Running, 15, 75, 8, 12, 60, 100, 2, 5},
	{Cycling, 20, 120, 15, 25, 20, 40, 1, 3},
	{Walking, 20, 90, 4, 6.5, 30, 50, 1, 2},
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func (a activity) sample(rng *rand.Rand) ml.Example {
	duration := a.minDuration + rng.Intn(a.maxDuration-a.minDuration+1)
	speed := uniform(rng, a.minSpeed, a.maxSpeed)
	distance := math.Round(float64(duration)/60*speed*10) / 10
	calories := math.Trunc(distance*uniform(rng, a.minKcalPerKm, a.maxKcalPerKm) +
		float64(duration)*uniform(rng, a.minKcalPerMin, a.maxKcalPerMin))
	return ml.Example{Features: ml.FeatureVector{float64(duration), distance, calories}, Label: a.label}
}

// gymSample covers no distance and burns 5 to 10 kcal per minute, clamped to [200, 800].
func gymSample(rng *rand.Rand) ml.Example {
	duration := 30 + rng.Intn(91)
	calories := math.Trunc(float64(duration) * uniform(rng, 5, 10))
	calories = math.Max(200, math.Min(800, calories))
	return ml.Example{Features: ml.FeatureVector{float64(duration), 0, calories}, Label: GymWorkout}
}

// GenerateWorkouts returns perActivity shuffled examples of each activity type.
func GenerateWorkouts(rng *rand.Rand, perActivity int) *ml.Dataset {
	examples := make([]ml.Example, 0, 4*perActivity)
	for _, a := range activities {
		for i := 0; i < perActivity; i++ {
			examples = append(examples, a.sample(rng))
		}
	}
	for i := 0; i < perActivity; i++ {
		examples = append(examples, gymSample(rng))
	}
	rng.Shuffle(len(examples), func(i, j int) {
		examples[i], examples[j] = examples[j], examples[i]
	})
	return &ml.Dataset{Schema: WorkoutSchema(), Examples: examples}
}
