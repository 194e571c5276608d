package models

import (
	"fmt"
	"slices"
	"strings"
)

// FeatureSchema is the ordered list of feature names a model or dataset is built on.
// Continuous features always precede indicator features in vector layout.
type FeatureSchema struct {
	continuous []string
	indicators []string
	index      map[string]int
}

// NewFeatureSchema builds a schema and its name lookup. Names must be unique and non-empty.
func NewFeatureSchema(continuous, indicators []string) (*FeatureSchema, error) {
	s := &FeatureSchema{
		continuous: slices.Clone(continuous),
		indicators: slices.Clone(indicators),
		index:      make(map[string]int, len(continuous)+len(indicators)),
	}
	for i, name := range s.Names() {
		if strings.TrimSpace(name) == "" {
			return nil, NewConfigurationError("feature schema", fmt.Sprintf("empty feature name at position %d", i))
		}
		if _, dup := s.index[name]; dup {
			return nil, NewConfigurationError("feature schema", fmt.Sprintf("duplicate feature %q", name))
		}
		s.index[name] = i
	}
	return s, nil
}

// Continuous returns the continuous feature names in order.
func (s *FeatureSchema) Continuous() []string { return slices.Clone(s.continuous) }

// Indicators returns the indicator feature names in order.
func (s *FeatureSchema) Indicators() []string { return slices.Clone(s.indicators) }

// Names returns every feature name in vector order.
func (s *FeatureSchema) Names() []string {
	out := make([]string, 0, len(s.continuous)+len(s.indicators))
	out = append(out, s.continuous...)
	return append(out, s.indicators...)
}

// NumContinuous is the count of continuous features.
func (s *FeatureSchema) NumContinuous() int { return len(s.continuous) }

// NumIndicators is the count of indicator features.
func (s *FeatureSchema) NumIndicators() int { return len(s.indicators) }

// Len is the total vector length.
func (s *FeatureSchema) Len() int { return len(s.continuous) + len(s.indicators) }

// Index returns the vector position of a feature.
func (s *FeatureSchema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Name returns the feature at vector position i.
func (s *FeatureSchema) Name(i int) string {
	if i < len(s.continuous) {
		return s.continuous[i]
	}
	return s.indicators[i-len(s.continuous)]
}

// IsContinuous reports whether vector position i holds a continuous feature.
func (s *FeatureSchema) IsContinuous(i int) bool { return i < len(s.continuous) }

// Equal reports whether both schemas list the same features in the same order.
func (s *FeatureSchema) Equal(o *FeatureSchema) bool {
	if s == nil || o == nil {
		return s == o
	}
	return slices.Equal(s.continuous, o.continuous) && slices.Equal(s.indicators, o.indicators)
}

// FeatureVector is a canonical condition vector laid out by its schema.
type FeatureVector struct {
	Schema *FeatureSchema
	Values []float64
}

// NewFeatureVector returns a zeroed vector for the schema.
func NewFeatureVector(schema *FeatureSchema) FeatureVector {
	return FeatureVector{Schema: schema, Values: make([]float64, schema.Len())}
}

// Get looks up a feature value by name.
func (v FeatureVector) Get(name string) (float64, bool) {
	if v.Schema == nil {
		return 0, false
	}
	i, ok := v.Schema.Index(name)
	if !ok || i >= len(v.Values) {
		return 0, false
	}
	return v.Values[i], true
}

// Set assigns a feature value by name and reports whether the feature exists.
func (v FeatureVector) Set(name string, value float64) bool {
	i, ok := v.Schema.Index(name)
	if !ok {
		return false
	}
	v.Values[i] = value
	return true
}

// Continuous returns the continuous segment of the vector.
func (v FeatureVector) Continuous() []float64 {
	return v.Values[:v.Schema.NumContinuous()]
}

// Indicators returns the indicator segment of the vector.
func (v FeatureVector) Indicators() []float64 {
	return v.Values[v.Schema.NumContinuous():]
}

// Clone returns a deep copy sharing the schema.
func (v FeatureVector) Clone() FeatureVector {
	return FeatureVector{Schema: v.Schema, Values: slices.Clone(v.Values)}
}
