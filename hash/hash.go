// Package hash implements the 32-bit MurmurHash3 hash function and a
// seeded helper for hashing fixed-width keys to a bounded index.
package hash

import (
	"encoding/binary"
	"math/bits"
)

// Function is a hash function carrying a fixed seed, used to derive an
// independent member of a hash family (e.g. for the bloom filter or the
// page hash table).
type Function struct {
	Seed uint32
}

// New returns a Function seeded with the given value. Unlike the
// original's HashFunction::new, which draws a random seed, callers here
// are expected to supply deterministic seeds (0, 1, 2, ...) so that
// serialized bloom filters can be reconstructed byte-for-byte.
func New(seed uint32) Function {
	return Function{Seed: seed}
}

// HashToIndex hashes key (interpreted as its little-endian byte
// representation) to an index in [0, length).
func (f Function) HashToIndex(key uint64, length int) int {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], key)
	return int(Murmur3_32(buf[:], f.Seed)) % length
}

const (
	c1 uint32 = 0xcc9e2d51
	c2 uint32 = 0x1b873593
	r1        = 15
	r2        = 13
	m  uint32 = 5
	n  uint32 = 0xe6546b64
)

// Murmur3_32 computes the 32-bit MurmurHash3 digest of key with the
// given seed. The implementation follows
// _examples/original_source/src/hash.rs::murmur3_32 bit for bit,
// including its little-endian chunking and zero-padded tail handling.
func Murmur3_32(key []byte, seed uint32) uint32 {
	length := len(key)
	hash := seed

	nChunks := length / 4
	for i := 0; i < nChunks; i++ {
		k := binary.LittleEndian.Uint32(key[i*4 : i*4+4])

		k *= c1
		k = bits.RotateLeft32(k, r1)
		k *= c2

		hash ^= k
		hash = bits.RotateLeft32(hash, r2)
		hash = hash*m + n
	}

	var tail [4]byte
	copy(tail[:], key[nChunks*4:])
	remainder := binary.LittleEndian.Uint32(tail[:])

	remainder *= c1
	remainder = bits.RotateLeft32(remainder, r1)
	remainder *= c2

	hash ^= remainder

	hash ^= uint32(length)

	hash ^= hash >> 16
	hash *= 0x85ebca6b
	hash ^= hash >> 13
	hash *= 0xc2b2ae35
	hash ^= hash >> 16

	return hash
}
