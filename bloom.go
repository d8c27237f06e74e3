package sbloom

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
	"unsafe"
)

// cacheLineSize is the size of a CPU cache line in bytes.
const cacheLineSize = 64

// Filter is a fixed-capacity bloom filter using cache-line blocked
// one-hashing. It is the building block every Scalable filter is made of.
//
// The filter divides memory into 512-bit (64-byte) blocks that fit in a
// single CPU cache line. Each block is partitioned into k segments using
// distinct prime sizes, so a single hash value yields k independent bit
// positions via modulo operations.
//
// Filter is not safe for concurrent mutation.
type Filter struct {
	raw       []byte   // Raw allocation to keep aligned memory alive for GC
	blocks    []uint64 // 8 uint64s per block = 512 bits (cache-line aligned)
	numBlocks uint64   // Total number of 512-bit blocks
	k         uint32   // Number of hash functions (partitions)
	primes    []uint32 // Prime partition sizes
	offsets   []uint32 // Cumulative offsets within block
	count     uint64   // Number of items added (approximate)
}

// New creates a bloom filter sized for capacity items at the given false
// positive rate.
func New(capacity uint64, fpRate float64) *Filter {
	numBlocks, k, _ := OptimalParams(capacity, fpRate)
	return NewWithParams(numBlocks, k)
}

// NewWithParams creates a bloom filter with explicit parameters.
// numBlocks is the number of 512-bit blocks, k is the number of hash functions.
func NewWithParams(numBlocks uint64, k uint32) *Filter {
	if numBlocks == 0 {
		numBlocks = 1
	}

	primes := GetPrimePartition(k)
	if primes == nil {
		// Default to k=7 if unsupported
		k = 7
		primes = GetPrimePartition(k)
	}

	raw, blocks := makeAlignedUint64Slice(int(numBlocks * BlockWords))

	return &Filter{
		raw:       raw,
		blocks:    blocks,
		numBlocks: numBlocks,
		k:         k,
		primes:    primes,
		offsets:   ComputeOffsets(primes),
	}
}

// makeAlignedUint64Slice allocates a cache-line aligned slice of uint64.
// Returns the raw byte slice (to keep alive for GC) and the aligned uint64 slice.
func makeAlignedUint64Slice(n int) ([]byte, []uint64) {
	raw := make([]byte, n*8+cacheLineSize-1)
	addr := uintptr(unsafe.Pointer(&raw[0]))
	offset := (cacheLineSize - int(addr%cacheLineSize)) % cacheLineSize
	aligned := unsafe.Slice((*uint64)(unsafe.Pointer(&raw[offset])), n)
	return raw, aligned
}

// Clone returns a deep copy of f. The copy shares no memory with f.
func (f *Filter) Clone() *Filter {
	raw, blocks := makeAlignedUint64Slice(len(f.blocks))
	copy(blocks, f.blocks)
	return &Filter{
		raw:       raw,
		blocks:    blocks,
		numBlocks: f.numBlocks,
		k:         f.k,
		primes:    f.primes,
		offsets:   f.offsets,
		count:     f.count,
	}
}

// Add adds data to the bloom filter.
func (f *Filter) Add(data []byte) {
	f.AddHash(hashBytes(data))
}

// AddString adds a string to the bloom filter without allocating.
func (f *Filter) AddString(s string) {
	f.AddHash(hashString(s))
}

// AddHash adds an element by its pre-computed 64-bit hash. Elements hashed
// by a Hasher go through this path.
func (f *Filter) AddHash(h uint64) {
	blockIdx, intraHash := hashSplit(h, f.numBlocks)
	blockBase := blockIdx * BlockWords

	// One-hashing: same hash value mod different primes gives independent positions
	for i := uint32(0); i < f.k; i++ {
		bitPos := f.offsets[i] + (intraHash % f.primes[i])
		f.blocks[blockBase+uint64(bitPos/64)] |= 1 << (bitPos % 64)
	}

	f.count++
}

// Test reports whether data might be in the bloom filter. A false result
// means data was definitely never added.
func (f *Filter) Test(data []byte) bool {
	return f.TestHash(hashBytes(data))
}

// TestString checks if a string might be in the bloom filter without allocating.
func (f *Filter) TestString(s string) bool {
	return f.TestHash(hashString(s))
}

// TestHash checks a pre-computed 64-bit hash against the filter.
func (f *Filter) TestHash(h uint64) bool {
	blockIdx, intraHash := hashSplit(h, f.numBlocks)
	blockBase := blockIdx * BlockWords

	for i := uint32(0); i < f.k; i++ {
		bitPos := f.offsets[i] + (intraHash % f.primes[i])
		if f.blocks[blockBase+uint64(bitPos/64)]&(1<<(bitPos%64)) == 0 {
			return false
		}
	}

	return true
}

// Cap returns the capacity of the filter in bits.
func (f *Filter) Cap() uint64 {
	return f.numBlocks * BlockBits
}

// K returns the number of hash functions (partitions) used.
func (f *Filter) K() uint32 {
	return f.k
}

// Count returns the approximate number of items added to the filter.
// Adding the same item twice counts it twice.
func (f *Filter) Count() uint64 {
	return f.count
}

// NumBlocks returns the number of 512-bit blocks in the filter.
func (f *Filter) NumBlocks() uint64 {
	return f.numBlocks
}

// EstimatedFillRatio estimates the proportion of bits that are set.
func (f *Filter) EstimatedFillRatio() float64 {
	var setBits uint64
	for _, word := range f.blocks {
		setBits += uint64(bits.OnesCount64(word))
	}
	return float64(setBits) / float64(f.numBlocks*BlockBits)
}

// EstimatedFalsePositiveRate estimates the current false positive rate
// based on the number of items added.
func (f *Filter) EstimatedFalsePositiveRate() float64 {
	return EstimateFalsePositiveRate(f.numBlocks, f.k, f.count)
}

const (
	// serializeVersion is the current filter serialization format version.
	serializeVersion byte = 1

	// headerSize is the size of the filter header in bytes.
	// Version (1) + K (4) + NumBlocks (8) + Count (8) = 21 bytes
	headerSize = 21

	// maxNumBlocks bounds numBlocks so size arithmetic cannot overflow.
	maxNumBlocks = uint64(1) << 50
)

var (
	// ErrInvalidData is returned when serialized data is invalid or corrupted.
	ErrInvalidData = errors.New("sbloom: invalid serialized data")

	// ErrUnsupportedVersion is returned when the serialization version is not supported.
	ErrUnsupportedVersion = errors.New("sbloom: unsupported serialization version")

	// ErrInvalidK is returned when k value in serialized data is not supported.
	ErrInvalidK = errors.New("sbloom: invalid k value in serialized data")
)

// encodedSize is the number of bytes MarshalBinary produces.
func (f *Filter) encodedSize() uint64 {
	return headerSize + f.numBlocks*BlockWords*8
}

// MarshalBinary serializes the bloom filter to a byte slice.
// The serialized format is:
//   - Version (1 byte): serialization format version
//   - K (4 bytes): number of hash functions (little-endian uint32)
//   - NumBlocks (8 bytes): number of 512-bit blocks (little-endian uint64)
//   - Count (8 bytes): number of items added (little-endian uint64)
//   - Blocks (numBlocks * 64 bytes): the bit array data (little-endian uint64s)
//
// The primes and offsets are not serialized as they can be derived from k.
func (f *Filter) MarshalBinary() ([]byte, error) {
	buf := make([]byte, f.encodedSize())
	f.putHeader(buf)

	offset := headerSize
	for _, word := range f.blocks {
		binary.LittleEndian.PutUint64(buf[offset:offset+8], word)
		offset += 8
	}

	return buf, nil
}

func (f *Filter) putHeader(buf []byte) {
	buf[0] = serializeVersion
	binary.LittleEndian.PutUint32(buf[1:5], f.k)
	binary.LittleEndian.PutUint64(buf[5:13], f.numBlocks)
	binary.LittleEndian.PutUint64(buf[13:21], f.count)
}

// filterHeader is the decoded fixed-size prefix of a serialized Filter.
type filterHeader struct {
	k         uint32
	numBlocks uint64
	count     uint64
	primes    []uint32
}

// payloadSize is the number of block bytes following the header.
func (h filterHeader) payloadSize() uint64 {
	return h.numBlocks * BlockWords * 8
}

// parseHeader validates the first headerSize bytes of an encoded filter.
func parseHeader(data []byte) (filterHeader, error) {
	if len(data) < headerSize {
		return filterHeader{}, fmt.Errorf("%w: data too short (got %d bytes, need at least %d)", ErrInvalidData, len(data), headerSize)
	}

	if version := data[0]; version != serializeVersion {
		return filterHeader{}, fmt.Errorf("%w: got version %d, expected %d", ErrUnsupportedVersion, version, serializeVersion)
	}

	h := filterHeader{
		k:         binary.LittleEndian.Uint32(data[1:5]),
		numBlocks: binary.LittleEndian.Uint64(data[5:13]),
		count:     binary.LittleEndian.Uint64(data[13:21]),
	}

	h.primes = GetPrimePartition(h.k)
	if h.primes == nil {
		return filterHeader{}, fmt.Errorf("%w: k=%d is not supported (valid range: 3-14)", ErrInvalidK, h.k)
	}

	if h.numBlocks == 0 {
		return filterHeader{}, fmt.Errorf("%w: numBlocks cannot be zero", ErrInvalidData)
	}
	if h.numBlocks > maxNumBlocks {
		return filterHeader{}, fmt.Errorf("%w: numBlocks too large (%d)", ErrInvalidData, h.numBlocks)
	}

	return h, nil
}

// UnmarshalBinary deserializes a bloom filter from a byte slice.
// Returns an error if the data is invalid or corrupted.
func UnmarshalBinary(data []byte) (*Filter, error) {
	h, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	expectedTotalLen := headerSize + h.payloadSize()
	if uint64(len(data)) != expectedTotalLen {
		return nil, fmt.Errorf("%w: data length mismatch (got %d bytes, expected %d)", ErrInvalidData, len(data), expectedTotalLen)
	}

	return h.build(data[headerSize:]), nil
}

// build allocates the filter described by h and fills it from payload,
// which must be exactly h.payloadSize() bytes.
func (h filterHeader) build(payload []byte) *Filter {
	raw, blocks := makeAlignedUint64Slice(int(h.numBlocks * BlockWords))
	for i := range blocks {
		blocks[i] = binary.LittleEndian.Uint64(payload[i*8 : i*8+8])
	}

	return &Filter{
		raw:       raw,
		blocks:    blocks,
		numBlocks: h.numBlocks,
		k:         h.k,
		primes:    h.primes,
		offsets:   ComputeOffsets(h.primes),
		count:     h.count,
	}
}
