package ml

import (
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultMinInstances is the smallest node that is still considered for a split.
const DefaultMinInstances = 2

// gains closer than this are treated as ties.
const gainEpsilon = 1e-12

// Inducer grows decision trees with gain-ratio numeric splits.
type Inducer struct {
	minInstances int
	maxDepth     int
	smoothing    float64
}

// InducerOption configures an Inducer.
type InducerOption func(*Inducer)

// WithMinInstances sets the minimum number of examples a node needs to be split.
func WithMinInstances(n int) InducerOption {
	return func(in *Inducer) {
		if n > 0 {
			in.minInstances = n
		}
	}
}

// WithMaxDepth limits the number of split levels. Zero means unlimited.
func WithMaxDepth(d int) InducerOption {
	return func(in *Inducer) {
		if d >= 0 {
			in.maxDepth = d
		}
	}
}

// WithSmoothing applies additive (Laplace) smoothing with the given pseudo-count to leaf
// distributions. Zero, the default, keeps the raw frequency histogram.
func WithSmoothing(alpha float64) InducerOption {
	return func(in *Inducer) {
		if alpha >= 0 {
			in.smoothing = alpha
		}
	}
}

// NewInducer returns an inducer with the given options applied over the defaults.
func NewInducer(opts ...InducerOption) *Inducer {
	in := &Inducer{minInstances: DefaultMinInstances}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Induce builds a tree from ds. The result depends only on ds and the inducer options.
func (in *Inducer) Induce(ds *Dataset) (*Model, error) {
	if ds == nil || len(ds.Examples) == 0 {
		return nil, errors.Wrap(ErrInvalidDataset, "no examples")
	}
	if ds.Schema.ClassAttribute().Kind != Categorical {
		return nil, errors.Wrap(ErrInvalidDataset, "class attribute is not categorical")
	}
	if err := ds.Schema.Validate(); err != nil {
		return nil, err
	}

	b := &builder{
		Inducer:  in,
		features: ds.Schema.FeatureCount(),
		classes:  len(ds.Schema.Labels()),
		x:        make([]FeatureVector, len(ds.Examples)),
		y:        make([]int, len(ds.Examples)),
	}
	idx := make([]int, len(ds.Examples))
	for i, ex := range ds.Examples {
		if len(ex.Features) != b.features {
			return nil, errors.Wrapf(ErrInvalidDataset, "example %d has %d features, want %d", i, len(ex.Features), b.features)
		}
		label := ds.Schema.LabelIndex(ex.Label)
		if label < 0 {
			return nil, errors.Wrapf(ErrInvalidDataset, "example %d has undeclared label %q", i, ex.Label)
		}
		b.x[i] = ex.Features
		b.y[i] = label
		idx[i] = i
	}
	b.scratch = make([]float64, b.classes)

	root := b.grow(idx, 0, nil)
	return &Model{schema: ds.Schema, nodes: b.nodes, root: root}, nil
}

type builder struct {
	*Inducer
	features int
	classes  int
	x        []FeatureVector
	y        []int
	nodes    []Node
	scratch  []float64
}

type split struct {
	feature   int
	threshold float64
	ratio     float64
}

// grow appends the subtree for idx to the arena and returns the index of its root.
// Children are appended before their parent.
func (b *builder) grow(idx []int, depth int, parent *Node) int {
	if len(idx) == 0 {
		return b.push(Node{Leaf: true, Label: parent.Label, Distribution: parent.Distribution})
	}
	counts := b.counts(idx)
	dist := b.distribution(counts)
	node := Node{Leaf: true, Label: floats.MaxIdx(dist), Distribution: dist, Samples: len(idx)}

	if isPure(counts) || len(idx) < b.minInstances || (b.maxDepth > 0 && depth >= b.maxDepth) {
		return b.push(node)
	}
	s, ok := b.bestSplit(idx, counts)
	if !ok {
		return b.push(node)
	}

	var left, right []int
	for _, i := range idx {
		if b.x[i][s.feature] <= s.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	node.Left = b.grow(left, depth+1, &node)
	node.Right = b.grow(right, depth+1, &node)
	node.Leaf = false
	node.Feature = s.feature
	node.Threshold = s.threshold
	return b.push(node)
}

func (b *builder) push(n Node) int {
	b.nodes = append(b.nodes, n)
	return len(b.nodes) - 1
}

// bestSplit scans every midpoint between consecutive distinct values of every feature.
// Features are scanned in index order and thresholds in ascending order, and a candidate
// only replaces the best one when strictly better, which gives the tie-break order.
func (b *builder) bestSplit(idx []int, counts []int) (split, bool) {
	n := len(idx)
	parentEntropy := b.entropy(counts, n)
	if parentEntropy <= 0 {
		return split{}, false
	}

	var best split
	found := false
	sorted := make([]int, n)
	left := make([]int, b.classes)
	right := make([]int, b.classes)
	for f := 0; f < b.features; f++ {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(i, j int) bool {
			return b.x[sorted[i]][f] < b.x[sorted[j]][f]
		})
		clear(left)
		copy(right, counts)
		for i := 0; i < n-1; i++ {
			label := b.y[sorted[i]]
			left[label]++
			right[label]--
			lo, hi := b.x[sorted[i]][f], b.x[sorted[i+1]][f]
			if lo == hi {
				continue
			}
			nl, nr := i+1, n-i-1
			pl, pr := float64(nl)/float64(n), float64(nr)/float64(n)
			splitInfo := stat.Entropy([]float64{pl, pr})
			if splitInfo <= 0 {
				continue
			}
			gain := parentEntropy - pl*b.entropy(left, nl) - pr*b.entropy(right, nr)
			if gain <= gainEpsilon {
				continue
			}
			ratio := gain / splitInfo
			if !found || ratio > best.ratio+gainEpsilon {
				best = split{feature: f, threshold: midpoint(lo, hi), ratio: ratio}
				found = true
			}
		}
	}
	return best, found
}

func (b *builder) counts(idx []int) []int {
	counts := make([]int, b.classes)
	for _, i := range idx {
		counts[b.y[i]]++
	}
	return counts
}

func (b *builder) entropy(counts []int, total int) float64 {
	if total == 0 {
		return 0
	}
	for i, c := range counts {
		b.scratch[i] = float64(c) / float64(total)
	}
	return stat.Entropy(b.scratch)
}

func (b *builder) distribution(counts []int) []float64 {
	dist := make([]float64, len(counts))
	for i, c := range counts {
		dist[i] = float64(c) + b.smoothing
	}
	floats.Scale(1/floats.Sum(dist), dist)
	return dist
}

func isPure(counts []int) bool {
	var nonZero int
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

// midpoint returns a threshold t with lo <= t < hi.
func midpoint(lo, hi float64) float64 {
	mid := lo + (hi-lo)/2
	if mid >= hi {
		return lo
	}
	return mid
}
