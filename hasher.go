package sbloom

// Hasher maps an element to the 64-bit hash a Filter indexes by. It is the
// only thing that binds a Scalable or Bounded filter to its element type, so
// the same Hasher must be supplied when decoding a filter as was used to
// build it.
//
// Implementations must be deterministic across processes: a serialized
// filter is only meaningful if Hash returns the same value on both ends.
type Hasher[T any] interface {
	Hash(v T) uint64
}

// HasherFunc adapts an ordinary function to the Hasher interface.
type HasherFunc[T any] func(v T) uint64

// Hash calls fn(v).
func (fn HasherFunc[T]) Hash(v T) uint64 {
	return fn(v)
}

// BytesHasher hashes byte slices with xxh3.
type BytesHasher struct{}

func (BytesHasher) Hash(v []byte) uint64 { return hashBytes(v) }

// StringHasher hashes strings with xxh3. It produces the same hash as
// BytesHasher does for []byte(s).
type StringHasher struct{}

func (StringHasher) Hash(v string) uint64 { return hashString(v) }

// Uint64Hasher hashes the little-endian encoding of an integer key.
type Uint64Hasher struct{}

func (Uint64Hasher) Hash(v uint64) uint64 { return hashUint64(v) }

var (
	_ Hasher[[]byte] = BytesHasher{}
	_ Hasher[string] = StringHasher{}
	_ Hasher[uint64] = Uint64Hasher{}
)
