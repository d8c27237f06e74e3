package sbloom

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// scalableHeaderSize is the size of the Scalable header in bytes.
// FalsePositiveRate (8) + InitialCapacity (4) + GrowthRate (4) +
// TighteningRatio (8) + SubFilterCount (4) = 28 bytes
const scalableHeaderSize = 28

// ErrInvalidSubFilterCount is returned when a serialized Scalable header
// declares fewer than one sub-filter. It wraps ErrInvalidData.
var ErrInvalidSubFilterCount = fmt.Errorf("%w: sub-filter count must be at least 1", ErrInvalidData)

func (s *Scalable[T]) putHeader(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], math.Float64bits(s.params.FalsePositiveRate))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(s.params.InitialCapacity))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(s.params.GrowthRate))
	binary.LittleEndian.PutUint64(buf[16:24], math.Float64bits(s.params.TighteningRatio))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(len(s.filters)))
}

// WriteTo writes the binary encoding of s to w. The format is:
//   - FalsePositiveRate (8 bytes): little-endian IEEE-754 float64
//   - InitialCapacity (4 bytes): little-endian int32
//   - GrowthRate (4 bytes): little-endian int32
//   - TighteningRatio (8 bytes): little-endian IEEE-754 float64
//   - SubFilterCount (4 bytes): little-endian int32, at least 1
//   - SubFilterCount Filter encodings, most recent first
//
// Errors from w are returned unchanged.
func (s *Scalable[T]) WriteTo(w io.Writer) (int64, error) {
	var header [scalableHeaderSize]byte
	s.putHeader(header[:])

	n, err := w.Write(header[:])
	written := int64(n)
	if err != nil {
		return written, err
	}

	for _, f := range s.filters {
		n, err := f.WriteTo(w)
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// MarshalBinary returns the WriteTo encoding of s.
func (s *Scalable[T]) MarshalBinary() ([]byte, error) {
	size := uint64(scalableHeaderSize)
	for _, f := range s.filters {
		size += f.encodedSize()
	}

	var buf bytes.Buffer
	buf.Grow(int(size))
	if _, err := s.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decoder reads Scalable filters of element type T. The Hasher must match
// the one the filters were built with.
type Decoder[T any] struct {
	hasher Hasher[T]
}

// NewDecoder returns a Decoder that binds decoded filters to h, which must
// not be nil.
func NewDecoder[T any](h Hasher[T]) *Decoder[T] {
	return &Decoder[T]{hasher: h}
}

// Decode reads one Scalable filter from r, consuming exactly its encoding.
//
// The header's parameters are taken as-is for future growth; they are not
// re-derived from the sub-filters, but they must pass FilterParams.Validate.
// A stream that ends early yields an error wrapping ErrInvalidData and
// io.ErrUnexpectedEOF. Other reader errors are returned unchanged.
func (d *Decoder[T]) Decode(r io.Reader) (*Scalable[T], error) {
	var header [scalableHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, truncated(err, "scalable header")
	}

	params := FilterParams{
		FalsePositiveRate: math.Float64frombits(binary.LittleEndian.Uint64(header[0:8])),
		InitialCapacity:   int32(binary.LittleEndian.Uint32(header[8:12])),
		GrowthRate:        int32(binary.LittleEndian.Uint32(header[12:16])),
		TighteningRatio:   math.Float64frombits(binary.LittleEndian.Uint64(header[16:24])),
	}
	count := int32(binary.LittleEndian.Uint32(header[24:28]))

	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrInvalidData, err)
	}
	if count < 1 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidSubFilterCount, count)
	}

	// Cap the preallocation; a corrupt count must not drive allocation.
	filters := make([]*Filter, 0, min(int(count), 64))
	for i := range int(count) {
		f, err := ReadFilter(r)
		if err != nil {
			return nil, fmt.Errorf("sbloom: sub-filter %d of %d: %w", i, count, err)
		}
		filters = append(filters, f)
	}

	return &Scalable[T]{
		params:  params,
		hasher:  d.hasher,
		filters: filters,
	}, nil
}

// UnmarshalBinary decodes a Scalable filter from data, which must hold
// exactly one encoding.
func (d *Decoder[T]) UnmarshalBinary(data []byte) (*Scalable[T], error) {
	r := bytes.NewReader(data)
	s, err := d.Decode(r)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidData, r.Len())
	}
	return s, nil
}
