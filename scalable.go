package sbloom

import (
	"iter"
	"slices"
)

// Scalable is a bloom filter that grows as elements are added instead of
// requiring its final size up front.
//
// It is a chain of fixed Filters ordered most recent first. Only the head
// receives insertions; once it reaches its generation's capacity a larger
// filter with a tighter false positive rate is prepended and becomes the new
// head. Older generations are frozen and only answer queries.
//
// A Scalable value is immutable: AddAll returns a new value and leaves the
// receiver untouched, so a Scalable may be read from any number of
// goroutines without synchronization.
type Scalable[T any] struct {
	params  FilterParams
	hasher  Hasher[T]
	filters []*Filter // most recent first, never empty
}

// Params returns the parameters the filter was built with.
func (s *Scalable[T]) Params() FilterParams {
	return s.params
}

// SubFilterCount returns the number of generations in the chain.
func (s *Scalable[T]) SubFilterCount() int {
	return len(s.filters)
}

// SubFilters returns the generations most recent first. The filters are
// shared with s and must not be modified.
func (s *Scalable[T]) SubFilters() []*Filter {
	return slices.Clone(s.filters)
}

// MayContain reports whether v might have been added. A false result means
// v was definitely never added.
func (s *Scalable[T]) MayContain(v T) bool {
	h := s.hasher.Hash(v)
	for _, f := range s.filters {
		if f.TestHash(h) {
			return true
		}
	}
	return false
}

// ApproximateElementCount sums the element counts of every generation.
// Elements added more than once are counted more than once.
func (s *Scalable[T]) ApproximateElementCount() uint64 {
	var total uint64
	for _, f := range s.filters {
		total += f.Count()
	}
	return total
}

// EstimatedFalsePositiveRate estimates the false positive rate of the whole
// chain from each generation's current estimate.
func (s *Scalable[T]) EstimatedFalsePositiveRate() float64 {
	rates := make([]float64, len(s.filters))
	for i, f := range s.filters {
		rates[i] = f.EstimatedFalsePositiveRate()
	}
	return CompoundFalsePositiveRate(rates...)
}

// Add is AddAll over vs.
func (s *Scalable[T]) Add(vs ...T) *Scalable[T] {
	return s.AddAll(slices.Values(vs))
}

// AddAll returns a filter containing every element of s and of seq.
//
// Elements go into the head generation g until it holds Capacity(g)
// elements. The next element then opens generation g+1, sized
// Capacity(g+1) at Probability(g+1). The head is copied before its first
// insertion and frozen generations are shared with s, so s is never
// modified. If seq is empty, s itself is returned.
func (s *Scalable[T]) AddAll(seq iter.Seq[T]) *Scalable[T] {
	var (
		g         = len(s.filters) - 1
		head      = s.filters[0]
		inserted  = head.Count()
		threshold = s.params.Capacity(g)

		copied *Filter   // private copy of the original head, if written to
		fresh  []*Filter // generations opened by this call, oldest first
	)

	for v := range seq {
		h := s.hasher.Hash(v)

		if inserted >= threshold {
			g++
			threshold = s.params.Capacity(g)
			head = s.params.newGeneration(g)
			fresh = append(fresh, head)
			inserted = 0
		} else if copied == nil && len(fresh) == 0 {
			copied = head.Clone()
			head = copied
		}

		head.AddHash(h)
		inserted++
	}

	if copied == nil && len(fresh) == 0 {
		return s
	}

	filters := make([]*Filter, 0, len(fresh)+len(s.filters))
	for i := len(fresh) - 1; i >= 0; i-- {
		filters = append(filters, fresh[i])
	}
	if copied != nil {
		filters = append(filters, copied)
	} else {
		filters = append(filters, s.filters[0])
	}
	filters = append(filters, s.filters[1:]...)

	return &Scalable[T]{
		params:  s.params,
		hasher:  s.hasher,
		filters: filters,
	}
}
