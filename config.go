package sbloom

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"math/bits"
	"slices"
)

const (
	// MaxSubFilterCapacity caps the nominal capacity of any one generation.
	// Later generations stay at this size instead of overflowing.
	MaxSubFilterCapacity = uint64(1) << 40

	// MinFalsePositiveRate floors the tightened per-generation rate so deep
	// chains never reach zero.
	MinFalsePositiveRate = 1e-15
)

// ErrInvalidParams is returned when FilterParams are out of range.
var ErrInvalidParams = errors.New("sbloom: invalid filter parameters")

// FilterParams configures a Scalable filter. The values are fixed for the
// filter's lifetime and are written to its serialized header.
type FilterParams struct {
	// FalsePositiveRate is the target rate of the first generation, in (0, 1).
	FalsePositiveRate float64
	// InitialCapacity is the number of elements the first generation holds.
	InitialCapacity int32
	// GrowthRate multiplies the capacity of each new generation. Must be >= 1.
	GrowthRate int32
	// TighteningRatio multiplies the false positive rate of each new
	// generation, in (0, 1).
	TighteningRatio float64
}

// DefaultParams returns parameters suitable for streams of unknown size:
// 1% false positives, 4096 initial elements, doubling capacity and an 0.85
// tightening ratio.
func DefaultParams() FilterParams {
	return FilterParams{
		FalsePositiveRate: 0.01,
		InitialCapacity:   4096,
		GrowthRate:        2,
		TighteningRatio:   0.85,
	}
}

// Validate reports an error wrapping ErrInvalidParams if any field is out
// of range.
func (p FilterParams) Validate() error {
	if !(p.FalsePositiveRate > 0 && p.FalsePositiveRate < 1) {
		return fmt.Errorf("%w: false positive rate %v not in (0, 1)", ErrInvalidParams, p.FalsePositiveRate)
	}
	if p.InitialCapacity < 1 {
		return fmt.Errorf("%w: initial capacity %d must be positive", ErrInvalidParams, p.InitialCapacity)
	}
	if p.GrowthRate < 1 {
		return fmt.Errorf("%w: growth rate %d must be at least 1", ErrInvalidParams, p.GrowthRate)
	}
	if !(p.TighteningRatio > 0 && p.TighteningRatio < 1) {
		return fmt.Errorf("%w: tightening ratio %v not in (0, 1)", ErrInvalidParams, p.TighteningRatio)
	}
	return nil
}

// Capacity returns the nominal capacity of generation g:
// InitialCapacity * GrowthRate^g, saturating at MaxSubFilterCapacity.
func (p FilterParams) Capacity(g int) uint64 {
	c := min(uint64(p.InitialCapacity), MaxSubFilterCapacity)
	growth := uint64(p.GrowthRate)
	for range g {
		hi, lo := bits.Mul64(c, growth)
		if hi != 0 || lo >= MaxSubFilterCapacity {
			return MaxSubFilterCapacity
		}
		c = lo
	}
	return c
}

// Probability returns the nominal false positive rate of generation g:
// FalsePositiveRate * TighteningRatio^g, floored at MinFalsePositiveRate.
func (p FilterParams) Probability(g int) float64 {
	return max(p.FalsePositiveRate*math.Pow(p.TighteningRatio, float64(g)), MinFalsePositiveRate)
}

// newGeneration allocates the empty sub-filter for generation g.
func (p FilterParams) newGeneration(g int) *Filter {
	return New(p.Capacity(g), p.Probability(g))
}

// Builder binds FilterParams and a Hasher to an element type and builds
// Scalable filters from them.
type Builder[T any] struct {
	params FilterParams
	hasher Hasher[T]
}

// NewBuilder validates params and returns a Builder. The error wraps
// ErrInvalidParams.
func NewBuilder[T any](params FilterParams, h Hasher[T]) (*Builder[T], error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("%w: nil hasher", ErrInvalidParams)
	}
	return &Builder[T]{params: params, hasher: h}, nil
}

// Params returns the builder's parameters.
func (b *Builder[T]) Params() FilterParams {
	return b.params
}

// Empty returns a Scalable filter holding a single empty generation.
func (b *Builder[T]) Empty() *Scalable[T] {
	return &Scalable[T]{
		params:  b.params,
		hasher:  b.hasher,
		filters: []*Filter{b.params.newGeneration(0)},
	}
}

// Build returns a Scalable filter containing every element of seq.
func (b *Builder[T]) Build(seq iter.Seq[T]) *Scalable[T] {
	return b.Empty().AddAll(seq)
}

// BuildSlice is Build over a slice.
func (b *Builder[T]) BuildSlice(vs []T) *Scalable[T] {
	return b.Build(slices.Values(vs))
}
