// Package bloom_filter implements the seeded bloom filter used by each
// SST to short-circuit point lookups for absent keys.
package bloom_filter

import (
	"encoding/binary"
	"math"

	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"

	"bearkv/dberror"
	"bearkv/hash"
)

// Filter is a bloom filter over fixed-width uint64 keys, backed by a
// github.com/bits-and-blooms/bitset bit array and a family of seeded
// MurmurHash3 functions. It mirrors
// _examples/original_source/src/bloom_filter.rs::BloomFilter.
type Filter struct {
	hashFns []hash.Function
	bits    *bitset.BitSet
	numBits uint
}

// Empty creates a bloom filter sized for nEntries entries at
// bitsPerEntry bits each, with the number of hash functions chosen by
// the standard k = ceil(bitsPerEntry * ln2) rule.
func Empty(nEntries int, bitsPerEntry float64) *Filter {
	numBits := uint(math.Ceil(float64(nEntries)*bitsPerEntry/8)) * 8
	if numBits == 0 {
		numBits = 8
	}
	numHashes := int(math.Ceil(bitsPerEntry * math.Ln2))
	if numHashes < 1 {
		numHashes = 1
	}

	fns := make([]hash.Function, numHashes)
	for i := range fns {
		fns[i] = hash.New(uint32(i))
	}

	return &Filter{
		hashFns: fns,
		bits:    bitset.New(numBits),
		numBits: numBits,
	}
}

// Insert adds key to the filter.
func (f *Filter) Insert(key uint64) {
	for _, fn := range f.hashFns {
		f.bits.Set(uint(fn.HashToIndex(key, int(f.numBits))))
	}
}

// Query reports whether key may be present. A false result is
// definitive; a true result may be a false positive.
func (f *Filter) Query(key uint64) bool {
	for _, fn := range f.hashFns {
		if !f.bits.Test(uint(fn.HashToIndex(key, int(f.numBits)))) {
			return false
		}
	}
	return true
}

// NumHashes returns the number of hash functions in the filter, needed
// by callers that persist it alongside an externally-stored bit count
// (see sstable's metadata page).
func (f *Filter) NumHashes() int {
	return len(f.hashFns)
}

// NumBits returns the size of the underlying bit array.
func (f *Filter) NumBits() uint {
	return f.numBits
}

// Bytes serializes the filter as: one little-endian uint32 seed per
// hash function, followed by the packed bit array, matching the layout
// of bloom_filter.rs::turn_to_bytes (hash function bytes, then bit
// bytes).
func (f *Filter) Bytes() []byte {
	out := make([]byte, 4*len(f.hashFns))
	for i, fn := range f.hashFns {
		binary.LittleEndian.PutUint32(out[i*4:], fn.Seed)
	}

	numBitBytes := int(math.Ceil(float64(f.numBits) / 8))
	bitBytes := make([]byte, numBitBytes)
	for i := uint(0); i < f.numBits; i++ {
		if f.bits.Test(i) {
			bitBytes[i/8] |= 1 << (i % 8)
		}
	}
	return append(out, bitBytes...)
}

// FromBytes reconstructs a filter from data (as produced by Bytes),
// given the number of hash functions and bits it was built with. This
// mirrors bloom_filter.rs::from_bytes, which also takes num_hashes out
// of band (it is stored in the SST metadata page, not in the filter
// payload itself).
func FromBytes(data []byte, numHashes int, numBits uint) (*Filter, error) {
	seedBytes := numHashes * 4
	if len(data) < seedBytes {
		return nil, errors.Wrap(dberror.ErrCorruptSst, "bloom filter payload too short for seeds")
	}

	fns := make([]hash.Function, numHashes)
	for i := 0; i < numHashes; i++ {
		fns[i] = hash.New(binary.LittleEndian.Uint32(data[i*4:]))
	}

	bitBytes := data[seedBytes:]
	bits := bitset.New(numBits)
	for i := uint(0); i < numBits; i++ {
		byteIdx := i / 8
		if int(byteIdx) >= len(bitBytes) {
			break
		}
		if bitBytes[byteIdx]&(1<<(i%8)) != 0 {
			bits.Set(i)
		}
	}

	return &Filter{hashFns: fns, bits: bits, numBits: numBits}, nil
}
