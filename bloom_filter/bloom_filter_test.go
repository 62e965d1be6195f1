package bloom_filter

import (
	"math/rand"
	"testing"
)

func TestFilterNoFalseNegatives(t *testing.T) {
	const nEntries = 10
	const bitsPerEntry = 20
	const numElements = 100

	r := rand.New(rand.NewSource(1))
	entries := make([]uint64, numElements)
	for i := range entries {
		entries[i] = r.Uint64()
	}

	f := Empty(nEntries, bitsPerEntry)
	for _, e := range entries {
		f.Insert(e)
	}
	for _, e := range entries {
		if !f.Query(e) {
			t.Fatalf("false negative for key %d", e)
		}
	}
}

func TestFilterRoundTrip(t *testing.T) {
	f := Empty(50, 10)
	for i := uint64(0); i < 50; i++ {
		f.Insert(i * 7)
	}

	data := f.Bytes()
	restored, err := FromBytes(data, f.NumHashes(), f.NumBits())
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}

	for i := uint64(0); i < 50; i++ {
		if !restored.Query(i * 7) {
			t.Fatalf("restored filter missing key %d", i*7)
		}
	}
}

func TestFromBytesTooShort(t *testing.T) {
	if _, err := FromBytes([]byte{0, 1}, 3, 64); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}
