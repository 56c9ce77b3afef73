// Package monitoring keeps in-process counters and latency samples for the prediction API.
package monitoring

import (
	"fmt"
	"io"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/montanaflynn/stats"
	"github.com/samber/lo"
)

// maxSamples bounds the latency window; the oldest tenth is dropped when it fills.
const maxSamples = 1000

// Metrics counts served predictions per label, failures per status code
// and the latency of recent predictions.
type Metrics struct {
	mu        sync.RWMutex
	clock     clock.Clock
	startTime time.Time

	predictions int64
	labels      map[string]int64
	failures    map[string]int64
	latencies   []float64 // milliseconds
}

// LatencySummary describes the latency window in milliseconds.
type LatencySummary struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Max   float64 `json:"max"`
}

// Snapshot is a copy of the counters at one instant.
type Snapshot struct {
	Uptime      string           `json:"uptime"`
	Predictions int64            `json:"predictions"`
	Labels      map[string]int64 `json:"labels"`
	Failures    map[string]int64 `json:"failures"`
	LatencyMS   LatencySummary   `json:"latency_ms"`
	Goroutines  int              `json:"goroutines"`
	HeapAlloc   uint64           `json:"heap_alloc"`
}

// NewMetrics returns empty metrics. A nil clk uses the wall clock.
func NewMetrics(clk clock.Clock) *Metrics {
	if clk == nil {
		clk = clock.New()
	}
	return &Metrics{
		clock:     clk,
		startTime: clk.Now(),
		labels:    make(map[string]int64),
		failures:  make(map[string]int64),
	}
}

// RecordPrediction counts one successful prediction.
func (m *Metrics) RecordPrediction(label string, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.predictions++
	m.labels[label]++
	m.latencies = append(m.latencies, float64(latency)/float64(time.Millisecond))
	if len(m.latencies) > maxSamples {
		m.latencies = append(m.latencies[:0:0], m.latencies[maxSamples/10:]...)
	}
}

// RecordFailure counts one rejected prediction request.
func (m *Metrics) RecordFailure(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[strconv.Itoa(status)]++
}

// Uptime returns the time since the metrics were created.
func (m *Metrics) Uptime() time.Duration {
	return m.clock.Since(m.startTime)
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return Snapshot{
		Uptime:      m.Uptime().String(),
		Predictions: m.predictions,
		Labels:      copyCounts(m.labels),
		Failures:    copyCounts(m.failures),
		LatencyMS:   summarize(m.latencies),
		Goroutines:  runtime.NumGoroutine(),
		HeapAlloc:   mem.HeapAlloc,
	}
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func summarize(samples []float64) LatencySummary {
	if len(samples) == 0 {
		return LatencySummary{}
	}
	data := stats.Float64Data(samples)
	s := LatencySummary{Count: len(samples)}
	// errors only occur on empty input
	s.Mean, _ = stats.Mean(data)
	s.P50, _ = stats.Percentile(data, 50)
	s.P95, _ = stats.Percentile(data, 95)
	s.P99, _ = stats.Percentile(data, 99)
	s.Max, _ = stats.Max(data)
	return s
}

// WritePrometheus writes the snapshot in the Prometheus text exposition format.
func (m *Metrics) WritePrometheus(w io.Writer) error {
	s := m.Snapshot()
	var err error
	printf := func(format string, args ...interface{}) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}

	printf("# HELP fitlife_uptime_seconds Time since the service started.\n")
	printf("# TYPE fitlife_uptime_seconds gauge\n")
	printf("fitlife_uptime_seconds %g\n", m.Uptime().Seconds())

	printf("# HELP fitlife_predictions_total Predictions served by activity.\n")
	printf("# TYPE fitlife_predictions_total counter\n")
	for _, label := range sortedKeys(s.Labels) {
		printf("fitlife_predictions_total{activity=%q} %d\n", label, s.Labels[label])
	}

	printf("# HELP fitlife_prediction_failures_total Rejected prediction requests by status code.\n")
	printf("# TYPE fitlife_prediction_failures_total counter\n")
	for _, status := range sortedKeys(s.Failures) {
		printf("fitlife_prediction_failures_total{status=%q} %d\n", status, s.Failures[status])
	}

	printf("# HELP fitlife_prediction_latency_ms Latency of recent predictions.\n")
	printf("# TYPE fitlife_prediction_latency_ms summary\n")
	printf("fitlife_prediction_latency_ms{quantile=\"0.5\"} %g\n", s.LatencyMS.P50)
	printf("fitlife_prediction_latency_ms{quantile=\"0.95\"} %g\n", s.LatencyMS.P95)
	printf("fitlife_prediction_latency_ms{quantile=\"0.99\"} %g\n", s.LatencyMS.P99)
	printf("fitlife_prediction_latency_ms_count %d\n", s.LatencyMS.Count)

	printf("# HELP fitlife_goroutines Number of goroutines.\n")
	printf("# TYPE fitlife_goroutines gauge\n")
	printf("fitlife_goroutines %d\n", s.Goroutines)
	return err
}

func sortedKeys(m map[string]int64) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}
