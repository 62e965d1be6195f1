package hash

import "testing"

func TestMurmur3_32(t *testing.T) {
	cases := []struct {
		seed     uint32
		expected uint32
		key      string
	}{
		{0x00000000, 0x00000000, ""},
		{0x00000001, 0x514e28b7, ""},
		{0xffffffff, 0x81f16f39, ""},
		{0x00000000, 0xba6bd213, "test"},
		{0x9747b28c, 0x704b81dc, "test"},
		{0x00000000, 0xc0363e43, "Hello, world!"},
		{0x9747b28c, 0x24884cba, "Hello, world!"},
		{0x00000000, 0x2e4ff723, "The quick brown fox jumps over the lazy dog"},
		{0x9747b28c, 0x2fa826cd, "The quick brown fox jumps over the lazy dog"},
	}

	for _, c := range cases {
		got := Murmur3_32([]byte(c.key), c.seed)
		if got != c.expected {
			t.Errorf("Murmur3_32(%q, %#x) = %#x, want %#x", c.key, c.seed, got, c.expected)
		}
	}
}

func TestHashToIndexBounded(t *testing.T) {
	f := New(0x9747b28c)
	for key := uint64(0); key < 1000; key++ {
		idx := f.HashToIndex(key, 97)
		if idx < 0 || idx >= 97 {
			t.Fatalf("HashToIndex(%d) = %d, out of [0,97)", key, idx)
		}
	}
}

func TestHashToIndexDeterministic(t *testing.T) {
	f := New(42)
	a := f.HashToIndex(123456789, 1000)
	b := f.HashToIndex(123456789, 1000)
	if a != b {
		t.Fatalf("HashToIndex not deterministic: %d != %d", a, b)
	}
}
