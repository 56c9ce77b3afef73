package ml

import (
	"slices"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
)

// AttributeKind is the value type of an attribute.
type AttributeKind string

const (
	Numeric     AttributeKind = "numeric"
	Categorical AttributeKind = "categorical"
)

// Attribute describes one column of a dataset.
type Attribute struct {
	Name   string        `json:"name"`
	Kind   AttributeKind `json:"kind"`
	Values []string      `json:"values,omitempty"`
}

// Schema is an ordered attribute list. The last attribute is the class attribute.
type Schema struct {
	Relation   string      `json:"relation,omitempty"`
	Attributes []Attribute `json:"attributes"`
}

// NewSchema builds a schema of numeric features followed by a categorical class attribute.
func NewSchema(relation string, features []string, class string, labels []string) Schema {
	attrs := lo.Map(features, func(name string, _ int) Attribute {
		return Attribute{Name: name, Kind: Numeric}
	})
	attrs = append(attrs, Attribute{Name: class, Kind: Categorical, Values: slices.Clone(labels)})
	return Schema{Relation: relation, Attributes: attrs}
}

// FeatureCount is the number of non-class attributes.
func (s Schema) FeatureCount() int {
	if len(s.Attributes) == 0 {
		return 0
	}
	return len(s.Attributes) - 1
}

// Features returns the non-class attributes.
func (s Schema) Features() []Attribute {
	if len(s.Attributes) == 0 {
		return nil
	}
	return s.Attributes[:len(s.Attributes)-1]
}

// FeatureNames returns the names of the non-class attributes in order.
func (s Schema) FeatureNames() []string {
	return lo.Map(s.Features(), func(a Attribute, _ int) string { return a.Name })
}

// ClassAttribute returns the last attribute.
func (s Schema) ClassAttribute() Attribute {
	if len(s.Attributes) == 0 {
		return Attribute{}
	}
	return s.Attributes[len(s.Attributes)-1]
}

// Labels returns the declared class values.
func (s Schema) Labels() []string {
	return s.ClassAttribute().Values
}

// LabelIndex returns the position of label in the class values, or -1.
func (s Schema) LabelIndex(label string) int {
	return lo.IndexOf(s.Labels(), label)
}

// Validate checks the structural rules the tree relies on.
func (s Schema) Validate() error {
	if len(s.Attributes) < 2 {
		return errors.Wrap(ErrInvalidDataset, "schema needs at least one feature and a class attribute")
	}
	var err error
	seen := make(map[string]struct{}, len(s.Attributes))
	for i, a := range s.Attributes {
		if a.Name == "" {
			err = multierr.Append(err, errors.Errorf("attribute %d has no name", i))
		}
		if _, ok := seen[a.Name]; ok {
			err = multierr.Append(err, errors.Errorf("duplicate attribute %q", a.Name))
		}
		seen[a.Name] = struct{}{}
		if i < len(s.Attributes)-1 && a.Kind != Numeric {
			err = multierr.Append(err, errors.Errorf("feature %q must be numeric, got %s", a.Name, a.Kind))
		}
	}
	class := s.ClassAttribute()
	if class.Kind != Categorical {
		err = multierr.Append(err, errors.Errorf("class attribute %q must be categorical", class.Name))
	} else if len(class.Values) == 0 {
		err = multierr.Append(err, errors.Errorf("class attribute %q declares no values", class.Name))
	} else if len(lo.Uniq(class.Values)) != len(class.Values) {
		err = multierr.Append(err, errors.Errorf("class attribute %q declares duplicate values", class.Name))
	}
	if err != nil {
		return errors.Wrap(ErrInvalidDataset, err.Error())
	}
	return nil
}

// Equal reports whether two schemas describe the same attributes in the same order.
// The relation name is not compared.
func (s Schema) Equal(o Schema) bool {
	return slices.EqualFunc(s.Attributes, o.Attributes, func(a, b Attribute) bool {
		return a.Name == b.Name && a.Kind == b.Kind && slices.Equal(a.Values, b.Values)
	})
}

// FeatureVector holds one value per non-class attribute, in schema order.
type FeatureVector []float64

// Example is a labeled feature vector.
type Example struct {
	Features FeatureVector
	Label    string
}

// Dataset is a schema and its ordered examples.
type Dataset struct {
	Schema   Schema
	Examples []Example
}

// NewDataset validates examples against schema and returns the dataset.
func NewDataset(schema Schema, examples []Example) (*Dataset, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	var err error
	features := schema.FeatureCount()
	for i, ex := range examples {
		if len(ex.Features) != features {
			err = multierr.Append(err, errors.Errorf("example %d has %d features, want %d", i, len(ex.Features), features))
		}
		if schema.LabelIndex(ex.Label) < 0 {
			err = multierr.Append(err, errors.Errorf("example %d has undeclared label %q", i, ex.Label))
		}
	}
	if err != nil {
		return nil, errors.Wrap(ErrInvalidDataset, err.Error())
	}
	return &Dataset{Schema: schema, Examples: examples}, nil
}

// Len returns the number of examples.
func (d *Dataset) Len() int {
	return len(d.Examples)
}

// ClassCounts returns example counts indexed like Schema.Labels.
func (d *Dataset) ClassCounts() []int {
	counts := make([]int, len(d.Schema.Labels()))
	for _, ex := range d.Examples {
		if idx := d.Schema.LabelIndex(ex.Label); idx >= 0 {
			counts[idx]++
		}
	}
	return counts
}

// Subset returns a dataset sharing the schema with the examples at the given indices.
func (d *Dataset) Subset(indices []int) *Dataset {
	examples := make([]Example, len(indices))
	for i, idx := range indices {
		examples[i] = d.Examples[idx]
	}
	return &Dataset{Schema: d.Schema, Examples: examples}
}
