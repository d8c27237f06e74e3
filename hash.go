package sbloom

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"
)

// hashBytes returns the xxh3 hash of data.
func hashBytes(data []byte) uint64 {
	return xxh3.Hash(data)
}

// hashString returns the xxh3 hash of s without converting it to []byte.
func hashString(s string) uint64 {
	return xxh3.HashString(s)
}

// hashUint64 hashes the little-endian encoding of v.
func hashUint64(v uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return xxh3.Hash(buf[:])
}

// hashSplit splits a 64-bit hash into block index and intra-block hash.
func hashSplit(h uint64, numBlocks uint64) (blockIdx uint64, intraHash uint32) {
	// Upper 32 bits select the block, lower 32 bits drive the probes.
	blockIdx = (h >> 32) % numBlocks
	intraHash = uint32(h)
	return
}
