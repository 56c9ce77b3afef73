package pipeline

import (
	"math"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"fitlife/ml"
)

// CleaningRule checks one example. A non-nil error rejects it.
type CleaningRule interface {
	Apply(ml.Schema, ml.Example) error
	Name() string
}

// QualityIssue describes one rejected example.
type QualityIssue struct {
	Rule    string `json:"rule"`
	Index   int    `json:"index"`
	Message string `json:"message"`
}

// CleaningStats counts what a cleaner has seen.
type CleaningStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Passed         int64            `json:"passed"`
	Rejected       int64            `json:"rejected"`
	Issues         map[string]int64 `json:"issues"`
}

// DataCleaner drops examples that fail any of its rules.
type DataCleaner struct {
	logger *zap.Logger
	rules  []CleaningRule

	statsLock sync.RWMutex
	stats     CleaningStats
}

// NewDataCleaner returns a cleaner with the finite and non-negative rules installed.
func NewDataCleaner(logger *zap.Logger) *DataCleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	dc := &DataCleaner{
		logger: logger,
		stats:  CleaningStats{Issues: make(map[string]int64)},
	}
	dc.AddRule(FiniteRule{})
	dc.AddRule(NonNegativeRule{})
	return dc
}

// AddRule appends a rule.
func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
	dc.logger.Debug("added cleaning rule", zap.String("rule", rule.Name()))
}

// Clean returns a dataset holding only the examples every rule accepts.
func (dc *DataCleaner) Clean(ds *ml.Dataset) (*ml.Dataset, []QualityIssue) {
	dc.statsLock.Lock()
	defer dc.statsLock.Unlock()

	var (
		kept   []int
		issues []QualityIssue
	)
	for i, ex := range ds.Examples {
		dc.stats.TotalProcessed++
		rejected := false
		for _, rule := range dc.rules {
			if err := rule.Apply(ds.Schema, ex); err != nil {
				issues = append(issues, QualityIssue{Rule: rule.Name(), Index: i, Message: err.Error()})
				dc.stats.Issues[rule.Name()]++
				rejected = true
			}
		}
		if rejected {
			dc.stats.Rejected++
			continue
		}
		dc.stats.Passed++
		kept = append(kept, i)
	}
	if len(issues) > 0 {
		dc.logger.Warn("rejected examples", zap.Int("rejected", ds.Len()-len(kept)), zap.Int("kept", len(kept)))
	}
	return ds.Subset(kept), issues
}

// Stats returns a snapshot of the counters.
func (dc *DataCleaner) Stats() CleaningStats {
	dc.statsLock.RLock()
	defer dc.statsLock.RUnlock()

	out := dc.stats
	out.Issues = make(map[string]int64, len(dc.stats.Issues))
	for k, v := range dc.stats.Issues {
		out.Issues[k] = v
	}
	return out
}

// FiniteRule rejects NaN and infinite feature values.
type FiniteRule struct{}

func (FiniteRule) Name() string { return "finite" }

func (FiniteRule) Apply(schema ml.Schema, ex ml.Example) error {
	for i, v := range ex.Features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Errorf("%s is %v", schema.Attributes[i].Name, v)
		}
	}
	return nil
}

// NonNegativeRule rejects negative durations, distances and calories.
type NonNegativeRule struct{}

func (NonNegativeRule) Name() string { return "non_negative" }

func (NonNegativeRule) Apply(schema ml.Schema, ex ml.Example) error {
	for i, v := range ex.Features {
		if v < 0 {
			return errors.Errorf("%s %.2f is negative", schema.Attributes[i].Name, v)
		}
	}
	return nil
}

// RangeRule bounds one named feature to [Min, Max].
type RangeRule struct {
	Feature  string
	Min, Max float64
}

func (r RangeRule) Name() string { return "range_" + r.Feature }

func (r RangeRule) Apply(schema ml.Schema, ex ml.Example) error {
	idx := -1
	for i, name := range schema.FeatureNames() {
		if name == r.Feature {
			idx = i
		}
	}
	if idx < 0 {
		return nil
	}
	if v := ex.Features[idx]; v < r.Min || v > r.Max {
		return errors.Errorf("%s %.2f out of range [%.2f, %.2f]", r.Feature, v, r.Min, r.Max)
	}
	return nil
}
