// Package sbloom provides scalable bloom filters for Go: probabilistic
// set-membership filters that grow with their input instead of requiring
// the final element count up front.
//
// A bloom filter answers "possibly present" or "definitely absent". False
// positives are possible, false negatives are not. That makes it a cheap
// pre-filter in front of an expensive exact lookup such as a disk read or a
// remote call.
//
// # Scalable filters
//
// A [Scalable] filter is a chain of fixed-size [Filter] generations. New
// elements always go into the most recent generation. When that generation
// has taken its nominal capacity, a new one is opened with
//
//	capacity(g)    = InitialCapacity * GrowthRate^g
//	probability(g) = FalsePositiveRate * TighteningRatio^g
//
// and insertion continues there. Queries test every generation. Because
// each generation's rate shrinks geometrically, the compound false positive
// rate stays bounded by roughly
//
//	FalsePositiveRate / (1 - TighteningRatio)
//
// however many elements are added.
//
// Scalable values are immutable. [Scalable.AddAll] returns a new value that
// shares every frozen generation with the old one and copies only the
// generation it writes to:
//
//	b, err := sbloom.NewBuilder[string](sbloom.DefaultParams(), sbloom.StringHasher{})
//	if err != nil {
//		return err
//	}
//	seen := b.BuildSlice([]string{"a", "b"})
//	seen = seen.Add("c")
//	seen.MayContain("c") // true
//
// # Element types
//
// Filters index 64-bit hashes. A [Hasher] binds an element type to that
// hash; [BytesHasher], [StringHasher] and [Uint64Hasher] cover the common
// cases using xxh3. The same Hasher must be supplied to [NewDecoder] when a
// filter is read back.
//
// # Fixed filters
//
// [Filter] is the building block: a cache-line blocked bloom filter. Each
// filter is divided into 512-bit (64-byte) blocks that match the CPU cache
// line size, and all k probes for a key land in one block. A single xxh3
// hash is split into a block index and an intra-block hash, and the k bit
// positions are derived from the intra-block hash modulo k distinct primes
// ("one-hashing").
//
// [Bounded] wraps a single Filter with a Hasher for callers that do know
// their element count. Both variants satisfy [Approximate].
//
// # Serialization
//
// [Scalable.WriteTo] and [Scalable.MarshalBinary] write a fixed 28-byte
// little-endian header (false positive rate, initial capacity, growth rate,
// tightening ratio, sub-filter count) followed by each generation's
// [Filter.MarshalBinary] encoding, most recent first. [Decoder.Decode]
// reads it back.
//
// # Thread Safety
//
// [Scalable] and [Bounded] are safe for concurrent reads. Concurrent calls
// to AddAll on the same value are also safe; each returns its own
// independent filter, and it is up to the caller which one to keep.
//
// [Filter] is NOT thread-safe for mutation.
//
// # References
//
//   - Scalable Bloom Filters: https://gsd.di.uminho.pt/members/cbm/ps/dbloom.pdf
//   - One-Hashing Bloom Filter: https://yangtonghome.github.io/uploads/One_Hashing.pdf
//   - Cache-line blocking (RocksDB): https://github.com/facebook/rocksdb/wiki/RocksDB-Bloom-Filter
package sbloom
