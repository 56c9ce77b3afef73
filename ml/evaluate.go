package ml

import (
	"context"
	"math/rand"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ClassMetrics holds the per-label scores of a cross-validation run.
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// EvaluationReport aggregates the held-out predictions of every fold.
// Confusion is indexed [actual][predicted] in Labels order.
type EvaluationReport struct {
	Labels             []string                `json:"labels"`
	Confusion          [][]int                 `json:"confusion"`
	Total              int                     `json:"total"`
	Correct            int                     `json:"correct"`
	Accuracy           float64                 `json:"accuracy"`
	Kappa              float64                 `json:"kappa"`
	PerClass           map[string]ClassMetrics `json:"per_class"`
	Folds              int                     `json:"folds"`
	Seed               int64                   `json:"seed"`
	FoldAccuracy       []float64               `json:"fold_accuracy"`
	MeanFoldAccuracy   float64                 `json:"mean_fold_accuracy"`
	StdDevFoldAccuracy float64                 `json:"stddev_fold_accuracy"`
}

// Evaluator runs stratified k-fold cross-validation.
type Evaluator struct {
	inducer  *Inducer
	parallel bool
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithParallelFolds trains and scores folds concurrently. Results are identical to the
// sequential run.
func WithParallelFolds(parallel bool) EvaluatorOption {
	return func(e *Evaluator) {
		e.parallel = parallel
	}
}

// NewEvaluator returns an evaluator that trains every fold with inducer.
func NewEvaluator(inducer *Inducer, opts ...EvaluatorOption) *Evaluator {
	if inducer == nil {
		inducer = NewInducer()
	}
	e := &Evaluator{inducer: inducer}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CrossValidate partitions ds into folds stratified by label and shuffled with seed, trains
// one model per fold on the remaining examples and scores the held-out ones.
// Every label present in ds needs at least folds examples; declared labels with no
// examples are exempt and simply never appear as an actual class.
func (e *Evaluator) CrossValidate(ctx context.Context, ds *Dataset, folds int, seed int64) (*EvaluationReport, error) {
	if folds < 2 {
		return nil, errors.Wrapf(ErrInvalidFolds, "got %d", folds)
	}
	if ds == nil || len(ds.Examples) == 0 {
		return nil, errors.Wrap(ErrInvalidDataset, "no examples")
	}
	labels := ds.Schema.Labels()
	for i, c := range ds.ClassCounts() {
		if c > 0 && c < folds {
			return nil, errors.Wrapf(ErrInsufficientData, "class %q has %d examples, need at least %d", labels[i], c, folds)
		}
	}

	assignment := stratify(ds, folds, seed)
	matrices := make([][][]int, folds)
	run := func(fold int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		m, err := e.evaluateFold(ds, assignment, fold)
		if err != nil {
			return errors.Wrapf(err, "fold %d", fold)
		}
		matrices[fold] = m
		return nil
	}

	if e.parallel {
		g, gctx := errgroup.WithContext(ctx)
		ctx = gctx
		for fold := 0; fold < folds; fold++ {
			g.Go(func() error { return run(fold) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for fold := 0; fold < folds; fold++ {
			if err := run(fold); err != nil {
				return nil, err
			}
		}
	}
	return buildReport(labels, matrices, folds, seed), nil
}

// stratify returns the fold of every example. Examples are grouped by label in label order,
// each group is shuffled from one seeded source and dealt round-robin, with the deal
// continuing across groups so fold sizes stay balanced.
func stratify(ds *Dataset, folds int, seed int64) []int {
	groups := make([][]int, len(ds.Schema.Labels()))
	for i, ex := range ds.Examples {
		label := ds.Schema.LabelIndex(ex.Label)
		groups[label] = append(groups[label], i)
	}
	rng := rand.New(rand.NewSource(seed))
	assignment := make([]int, len(ds.Examples))
	var next int
	for _, group := range groups {
		rng.Shuffle(len(group), func(i, j int) { group[i], group[j] = group[j], group[i] })
		for _, idx := range group {
			assignment[idx] = next % folds
			next++
		}
	}
	return assignment
}

func (e *Evaluator) evaluateFold(ds *Dataset, assignment []int, fold int) ([][]int, error) {
	var train, test []int
	for i, f := range assignment {
		if f == fold {
			test = append(test, i)
		} else {
			train = append(train, i)
		}
	}
	model, err := e.inducer.Induce(ds.Subset(train))
	if err != nil {
		return nil, err
	}
	k := len(ds.Schema.Labels())
	matrix := newMatrix(k)
	for _, i := range test {
		ex := ds.Examples[i]
		predicted, err := model.Classify(ex.Features)
		if err != nil {
			return nil, err
		}
		matrix[ds.Schema.LabelIndex(ex.Label)][ds.Schema.LabelIndex(predicted)]++
	}
	return matrix, nil
}

func newMatrix(k int) [][]int {
	m := make([][]int, k)
	for i := range m {
		m[i] = make([]int, k)
	}
	return m
}

func buildReport(labels []string, matrices [][][]int, folds int, seed int64) *EvaluationReport {
	k := len(labels)
	r := &EvaluationReport{
		Labels:       labels,
		Confusion:    newMatrix(k),
		PerClass:     make(map[string]ClassMetrics, k),
		Folds:        folds,
		Seed:         seed,
		FoldAccuracy: make([]float64, 0, folds),
	}
	for _, m := range matrices {
		var total, correct int
		for a := range m {
			for p := range m[a] {
				r.Confusion[a][p] += m[a][p]
				total += m[a][p]
				if a == p {
					correct += m[a][p]
				}
			}
		}
		r.FoldAccuracy = append(r.FoldAccuracy, ratio(correct, total))
	}

	actual := make([]int, k)
	predicted := make([]int, k)
	for a := 0; a < k; a++ {
		for p := 0; p < k; p++ {
			c := r.Confusion[a][p]
			r.Total += c
			actual[a] += c
			predicted[p] += c
		}
		r.Correct += r.Confusion[a][a]
	}
	r.Accuracy = ratio(r.Correct, r.Total)

	for i, label := range labels {
		tp := r.Confusion[i][i]
		precision := ratio(tp, predicted[i])
		recall := ratio(tp, actual[i])
		var f1 float64
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}
		r.PerClass[label] = ClassMetrics{Precision: precision, Recall: recall, F1: f1}
	}

	if r.Total > 0 {
		var chance float64
		for i := 0; i < k; i++ {
			chance += float64(actual[i]) * float64(predicted[i])
		}
		chance /= float64(r.Total) * float64(r.Total)
		if chance < 1 {
			r.Kappa = (r.Accuracy - chance) / (1 - chance)
		}
	}

	r.MeanFoldAccuracy, _ = stats.Mean(r.FoldAccuracy)
	r.StdDevFoldAccuracy, _ = stats.StandardDeviation(r.FoldAccuracy)
	return r
}

// ratio returns num/den, or 0 when den is 0.
func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
