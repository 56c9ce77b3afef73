package monitoring

import (
	"bytes"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"
)

func TestMetricsSnapshot(t *testing.T) {
	clk := clock.NewMock()
	m := NewMetrics(clk)

	for i := 1; i <= 100; i++ {
		m.RecordPrediction("Cycling", time.Duration(i)*time.Millisecond)
	}
	m.RecordPrediction("Running", 0)
	m.RecordFailure(400)
	m.RecordFailure(400)
	m.RecordFailure(503)
	clk.Add(90 * time.Second)

	s := m.Snapshot()
	test.That(t, s.Predictions, test.ShouldEqual, int64(101))
	test.That(t, s.Labels, test.ShouldResemble, map[string]int64{"Cycling": 100, "Running": 1})
	test.That(t, s.Failures, test.ShouldResemble, map[string]int64{"400": 2, "503": 1})
	test.That(t, s.Uptime, test.ShouldEqual, "1m30s")
	test.That(t, s.LatencyMS.Count, test.ShouldEqual, 101)
	test.That(t, s.LatencyMS.Max, test.ShouldEqual, 100.0)
	test.That(t, s.LatencyMS.P50, test.ShouldBeBetween, 45.0, 55.0)

	s.Labels["Cycling"] = 0
	test.That(t, m.Snapshot().Labels["Cycling"], test.ShouldEqual, int64(100))
}

func TestMetricsWindowBounded(t *testing.T) {
	m := NewMetrics(clock.NewMock())
	for i := 0; i < 3*maxSamples; i++ {
		m.RecordPrediction("Walking", time.Millisecond)
	}
	s := m.Snapshot()
	test.That(t, s.Predictions, test.ShouldEqual, int64(3*maxSamples))
	test.That(t, s.LatencyMS.Count, test.ShouldBeLessThanOrEqualTo, maxSamples)
}

func TestEmptySummary(t *testing.T) {
	test.That(t, NewMetrics(nil).Snapshot().LatencyMS, test.ShouldResemble, LatencySummary{})
}

func TestWritePrometheus(t *testing.T) {
	m := NewMetrics(clock.NewMock())
	m.RecordPrediction("Gym_Workout", 2*time.Millisecond)
	m.RecordFailure(422)

	var buf bytes.Buffer
	test.That(t, m.WritePrometheus(&buf), test.ShouldBeNil)
	out := buf.String()
	test.That(t, out, test.ShouldContainSubstring, `fitlife_predictions_total{activity="Gym_Workout"} 1`)
	test.That(t, out, test.ShouldContainSubstring, `fitlife_prediction_failures_total{status="422"} 1`)
	test.That(t, out, test.ShouldContainSubstring, "# TYPE fitlife_prediction_latency_ms summary")
	test.That(t, out, test.ShouldContainSubstring, "fitlife_prediction_latency_ms_count 1")
}
