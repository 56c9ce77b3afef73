package ml

import (
	"slices"

	"github.com/pkg/errors"
)

// Predictor is anything that can score a feature vector.
type Predictor interface {
	Predict(v FeatureVector) (PredictionResult, error)
}

// PredictionResult is a predicted label with its probability mass.
type PredictionResult struct {
	Label        string             `json:"label"`
	Confidence   float64            `json:"confidence"`
	Distribution map[string]float64 `json:"distribution"`
}

// Node is one entry of the tree arena. Split nodes route v[Feature] <= Threshold to Left.
// Child indices are always smaller than the index of their parent.
type Node struct {
	Leaf         bool      `json:"leaf"`
	Feature      int       `json:"feature,omitempty"`
	Threshold    float64   `json:"threshold,omitempty"`
	Left         int       `json:"left,omitempty"`
	Right        int       `json:"right,omitempty"`
	Label        int       `json:"label"`
	Distribution []float64 `json:"distribution,omitempty"`
	Samples      int       `json:"samples"`
}

// Model is a trained decision tree. It is never mutated after construction.
type Model struct {
	schema Schema
	nodes  []Node
	root   int
}

// Schema returns the schema the model was trained on.
func (m *Model) Schema() Schema {
	return m.schema
}

// Nodes returns a copy of the node arena.
func (m *Model) Nodes() []Node {
	out := make([]Node, len(m.nodes))
	for i, n := range m.nodes {
		n.Distribution = slices.Clone(n.Distribution)
		out[i] = n
	}
	return out
}

// Root returns the arena index of the root node.
func (m *Model) Root() int {
	return m.root
}

// Size returns the number of nodes.
func (m *Model) Size() int {
	return len(m.nodes)
}

// LeafCount returns the number of leaves.
func (m *Model) LeafCount() int {
	var leaves int
	for _, n := range m.nodes {
		if n.Leaf {
			leaves++
		}
	}
	return leaves
}

// Depth returns the number of split levels on the longest root-to-leaf path.
func (m *Model) Depth() int {
	depths := make([]int, len(m.nodes))
	for i, n := range m.nodes {
		if !n.Leaf {
			depths[i] = 1 + max(depths[n.Left], depths[n.Right])
		}
	}
	return depths[m.root]
}

func (m *Model) leaf(v FeatureVector) (*Node, error) {
	if len(v) != m.schema.FeatureCount() {
		return nil, errors.Wrapf(ErrSchemaMismatch, "got %d features, want %d", len(v), m.schema.FeatureCount())
	}
	n := &m.nodes[m.root]
	for !n.Leaf {
		if v[n.Feature] <= n.Threshold {
			n = &m.nodes[n.Left]
		} else {
			n = &m.nodes[n.Right]
		}
	}
	return n, nil
}

// Classify returns the predicted label for v.
func (m *Model) Classify(v FeatureVector) (string, error) {
	n, err := m.leaf(v)
	if err != nil {
		return "", err
	}
	return m.schema.Labels()[n.Label], nil
}

// Distribution returns the class probabilities of the leaf v reaches.
func (m *Model) Distribution(v FeatureVector) (map[string]float64, error) {
	n, err := m.leaf(v)
	if err != nil {
		return nil, err
	}
	return m.distributionMap(n), nil
}

// Predict returns the label, its confidence and the full distribution for v.
func (m *Model) Predict(v FeatureVector) (PredictionResult, error) {
	n, err := m.leaf(v)
	if err != nil {
		return PredictionResult{}, err
	}
	return PredictionResult{
		Label:        m.schema.Labels()[n.Label],
		Confidence:   n.Distribution[n.Label],
		Distribution: m.distributionMap(n),
	}, nil
}

func (m *Model) distributionMap(n *Node) map[string]float64 {
	labels := m.schema.Labels()
	out := make(map[string]float64, len(labels))
	for i, p := range n.Distribution {
		out[labels[i]] = p
	}
	return out
}
