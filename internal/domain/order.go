// Package domain contains the core data types shared across modules.
package domain

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// CanonicalOrder is a fixed sequence of labels (tickers or factors) that every
// matrix and vector built for one optimization run is aligned to positionally.
// It is immutable after construction and carries its own label->position index,
// so alignment is established by construction rather than checked after the
// fact.
type CanonicalOrder struct {
	labels []string
	index  map[string]int
}

// NewCanonicalOrder creates a canonical order from the given labels.
// Duplicate labels are rejected: a duplicate would make positional lookups
// ambiguous.
func NewCanonicalOrder(labels []string) (*CanonicalOrder, error) {
	index := make(map[string]int, len(labels))
	for i, label := range labels {
		if _, exists := index[label]; exists {
			return nil, fmt.Errorf("duplicate label %q in canonical order", label)
		}
		index[label] = i
	}
	ordered := make([]string, len(labels))
	copy(ordered, labels)
	return &CanonicalOrder{labels: ordered, index: index}, nil
}

// Len returns the number of labels.
func (o *CanonicalOrder) Len() int {
	return len(o.labels)
}

// At returns the label at position i.
func (o *CanonicalOrder) At(i int) string {
	return o.labels[i]
}

// Labels returns a copy of the ordered labels.
func (o *CanonicalOrder) Labels() []string {
	out := make([]string, len(o.labels))
	copy(out, o.labels)
	return out
}

// IndexOf returns the position of label, and whether it is present.
func (o *CanonicalOrder) IndexOf(label string) (int, bool) {
	i, ok := o.index[label]
	return i, ok
}

// Contains reports whether label is part of the order.
func (o *CanonicalOrder) Contains(label string) bool {
	_, ok := o.index[label]
	return ok
}

// Vector builds a dense vector aligned to the order from a label-keyed map.
// Labels absent from the map are zero-filled. The order must be non-empty.
func (o *CanonicalOrder) Vector(values map[string]float64) *mat.VecDense {
	data := make([]float64, len(o.labels))
	for i, label := range o.labels {
		data[i] = values[label]
	}
	return mat.NewVecDense(len(data), data)
}
