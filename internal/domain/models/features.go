package models

// FeatureVector is an ordered name -> value mapping derived from a candle window.
// Order is part of the contract: models consume Values() positionally.
type FeatureVector struct {
	SchemaID string
	names    []string
	values   []float64
	index    map[string]int
}

// NewFeatureVector builds a vector from parallel name/value slices. Both are copied.
func NewFeatureVector(schemaID string, names []string, values []float64) FeatureVector {
	n := make([]string, len(names))
	copy(n, names)
	v := make([]float64, len(values))
	copy(v, values)
	idx := make(map[string]int, len(n))
	for i, name := range n {
		idx[name] = i
	}
	return FeatureVector{SchemaID: schemaID, names: n, values: v, index: idx}
}

func (f FeatureVector) Len() int { return len(f.names) }

// Names returns a copy of the ordered feature names.
func (f FeatureVector) Names() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

// Values returns a copy of the ordered feature values.
func (f FeatureVector) Values() []float64 {
	out := make([]float64, len(f.values))
	copy(out, f.values)
	return out
}

func (f FeatureVector) Get(name string) (float64, bool) {
	i, ok := f.index[name]
	if !ok {
		return 0, false
	}
	return f.values[i], true
}

// Value returns the named feature or 0 when absent.
func (f FeatureVector) Value(name string) float64 {
	v, _ := f.Get(name)
	return v
}

func (f FeatureVector) Map() map[string]float64 {
	out := make(map[string]float64, len(f.names))
	for i, name := range f.names {
		out[name] = f.values[i]
	}
	return out
}
