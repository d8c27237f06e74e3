package sbloom

import (
	"encoding"
	"fmt"
	"io"
	"iter"
)

// Approximate is the read side shared by every filter variant in this
// package: membership queries, a coarse element count and serialization.
type Approximate[T any] interface {
	// MayContain reports whether v might be a member. False is definitive.
	MayContain(v T) bool
	// ApproximateElementCount estimates the number of elements added.
	ApproximateElementCount() uint64

	io.WriterTo
	encoding.BinaryMarshaler
}

var (
	_ Approximate[string] = (*Scalable[string])(nil)
	_ Approximate[string] = (*Bounded[string])(nil)
)

// Bounded is a fixed-capacity filter bound to an element type. Unlike
// Scalable it never grows: adding more than its capacity raises the false
// positive rate above the configured one. It is immutable once built.
type Bounded[T any] struct {
	filter *Filter
	hasher Hasher[T]
}

// BuildBounded returns a Bounded filter sized for capacity elements at
// fpRate, containing every element of seq. The error wraps ErrInvalidParams.
func BuildBounded[T any](capacity uint64, fpRate float64, h Hasher[T], seq iter.Seq[T]) (*Bounded[T], error) {
	if capacity == 0 || capacity > MaxSubFilterCapacity {
		return nil, fmt.Errorf("%w: capacity %d not in [1, %d]", ErrInvalidParams, capacity, MaxSubFilterCapacity)
	}
	if !(fpRate > 0 && fpRate < 1) {
		return nil, fmt.Errorf("%w: false positive rate %v not in (0, 1)", ErrInvalidParams, fpRate)
	}
	if h == nil {
		return nil, fmt.Errorf("%w: nil hasher", ErrInvalidParams)
	}

	f := New(capacity, fpRate)
	for v := range seq {
		f.AddHash(h.Hash(v))
	}
	return &Bounded[T]{filter: f, hasher: h}, nil
}

// DecodeBounded reads a Bounded filter written by WriteTo from r.
func DecodeBounded[T any](r io.Reader, h Hasher[T]) (*Bounded[T], error) {
	f, err := ReadFilter(r)
	if err != nil {
		return nil, err
	}
	return &Bounded[T]{filter: f, hasher: h}, nil
}

// MayContain reports whether v might have been added.
func (b *Bounded[T]) MayContain(v T) bool {
	return b.filter.TestHash(b.hasher.Hash(v))
}

// ApproximateElementCount returns the number of elements added.
func (b *Bounded[T]) ApproximateElementCount() uint64 {
	return b.filter.Count()
}

// EstimatedFalsePositiveRate estimates the current false positive rate.
func (b *Bounded[T]) EstimatedFalsePositiveRate() float64 {
	return b.filter.EstimatedFalsePositiveRate()
}

// WriteTo writes the underlying Filter encoding to w.
func (b *Bounded[T]) WriteTo(w io.Writer) (int64, error) {
	return b.filter.WriteTo(w)
}

// MarshalBinary returns the underlying Filter encoding.
func (b *Bounded[T]) MarshalBinary() ([]byte, error) {
	return b.filter.MarshalBinary()
}
