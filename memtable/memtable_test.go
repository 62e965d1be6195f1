package memtable

import (
	"errors"
	"testing"

	"bearkv/dberror"
)

// validateRedBlack checks that the tree rooted at root is a valid
// binary search tree satisfying the red-black invariants, returning
// its black height. Ported from memtable.rs's validate_red_black test
// helper.
func validateRedBlack(t *testing.T, m *MemTable, root uint32) int {
	t.Helper()
	if root == null {
		return 1
	}
	n := m.nodes[root]
	l, r := n.link[left], n.link[right]

	if n.red && (m.isRed(l) || m.isRed(r)) {
		t.Fatalf("red violation at node %d", root)
	}

	leftBH := validateRedBlack(t, m, l)
	rightBH := validateRedBlack(t, m, r)

	if l != null && m.nodes[l].key >= n.key {
		t.Fatalf("binary tree violation: left child %d >= parent %d", m.nodes[l].key, n.key)
	}
	if r != null && m.nodes[r].key <= n.key {
		t.Fatalf("binary tree violation: right child %d <= parent %d", m.nodes[r].key, n.key)
	}
	if leftBH != rightBH {
		t.Fatalf("black violation at node %d: %d != %d", root, leftBH, rightBH)
	}

	if n.red {
		return leftBH
	}
	return leftBH + 1
}

func TestSmall(t *testing.T) {
	m := New(5)

	must(t, m.Put(0, 0))
	must(t, m.Put(0, 1))
	for i := uint64(0); i < 3; i++ {
		must(t, m.Put(5+i, 10+i))
	}

	if m.Size() != 4 {
		t.Fatalf("expected size 4, got %d", m.Size())
	}
	validateRedBlack(t, m, m.root)
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestInsertInOrder(t *testing.T) {
	m := New(100)
	for i := uint64(0); i < 100; i++ {
		if m.Size() != int(i) {
			t.Fatalf("size mismatch before put %d: got %d", i, m.Size())
		}
		must(t, m.Put(i, i*10))
		if m.Size() != int(i)+1 {
			t.Fatalf("size mismatch after put %d: got %d", i, m.Size())
		}
		validateRedBlack(t, m, m.root)
	}

	for i := uint64(0); i < 100; i++ {
		v, ok := m.Get(i)
		if !ok || v != i*10 {
			t.Fatalf("Get(%d) = %v,%v, want %v", i, v, ok, i*10)
		}
	}
	for i := uint64(200); i < 300; i++ {
		if _, ok := m.Get(i); ok {
			t.Fatalf("Get(%d) unexpectedly present", i)
		}
	}
}

func TestInsertInReverse(t *testing.T) {
	m := New(100)
	for i := int64(99); i >= 0; i-- {
		must(t, m.Put(uint64(i), uint64(i)*10))
		validateRedBlack(t, m, m.root)
	}
	for i := uint64(0); i < 100; i++ {
		v, ok := m.Get(i)
		if !ok || v != i*10 {
			t.Fatalf("Get(%d) = %v,%v, want %v", i, v, ok, i*10)
		}
	}
}

func TestUpdate(t *testing.T) {
	m := New(100)
	for i := uint64(0); i < 100; i++ {
		must(t, m.Put(i, i*10))
	}
	if m.Size() != 100 {
		t.Fatalf("expected size 100, got %d", m.Size())
	}

	for i := uint64(0); i < 100; i += 2 {
		must(t, m.Put(i, i*20))
		validateRedBlack(t, m, m.root)
	}

	for i := uint64(0); i < 100; i++ {
		v, _ := m.Get(i)
		if i%2 == 0 {
			if v != i*20 {
				t.Fatalf("Get(%d) = %d, want %d", i, v, i*20)
			}
		} else if v != i*10 {
			t.Fatalf("Get(%d) = %d, want %d", i, v, i*10)
		}
	}
}

func TestFullCapacity(t *testing.T) {
	m := New(100)
	for i := uint64(0); i < 100; i++ {
		must(t, m.Put(i, i*10))
	}
	if m.Size() != 100 {
		t.Fatalf("expected size 100, got %d", m.Size())
	}

	if err := m.Put(20, 200); err != nil {
		t.Fatalf("expected update of existing key to succeed, got %v", err)
	}

	if err := m.Put(150, 200); !errors.Is(err, dberror.ErrMemTableFull) {
		t.Fatalf("expected MemTableFull inserting past capacity, got %v", err)
	}

	for i := uint64(0); i < 100; i++ {
		v, _ := m.Get(i)
		if i == 20 {
			if v != 200 {
				t.Fatalf("Get(20) = %d, want 200", v)
			}
			continue
		}
		if v != i*10 {
			t.Fatalf("Get(%d) = %d, want %d", i, v, i*10)
		}
	}

	validateRedBlack(t, m, m.root)
}

func TestScanValidRanges(t *testing.T) {
	m := New(100)
	for i := uint64(0); i < 100; i++ {
		must(t, m.Put(i, i*10))
	}

	for lower := uint64(0); lower < 105; lower++ {
		for upper := lower; upper < 105; upper++ {
			it, err := m.Scan(lower, upper)
			must(t, err)

			if lower >= 100 {
				if _, _, ok := it.Next(); ok {
					t.Fatalf("expected empty scan for lower=%d", lower)
				}
				continue
			}

			stop := upper
			if stop > 99 {
				stop = 99
			}
			for i := lower; i <= stop; i++ {
				k, v, ok := it.Next()
				if !ok {
					t.Fatalf("scan(%d,%d): expected key %d", lower, upper, i)
				}
				if k != i || v != i*10 {
					t.Fatalf("scan(%d,%d): got (%d,%d), want (%d,%d)", lower, upper, k, v, i, i*10)
				}
			}
			if _, _, ok := it.Next(); ok {
				t.Fatalf("scan(%d,%d): expected exhausted iterator", lower, upper)
			}
		}
	}
}

func TestScanFromAbsentLowerBound(t *testing.T) {
	m := New(3)
	must(t, m.Put(1, 1))
	must(t, m.Put(2, 2))
	must(t, m.Put(3, 3))
	must(t, m.Put(1, 10))

	if err := m.Put(4, 4); !errors.Is(err, dberror.ErrMemTableFull) {
		t.Fatalf("expected MemTableFull, got %v", err)
	}

	it, err := m.Scan(0, 9)
	must(t, err)
	want := [][2]uint64{{1, 10}, {2, 2}, {3, 3}}
	for _, w := range want {
		k, v, ok := it.Next()
		if !ok || k != w[0] || v != w[1] {
			t.Fatalf("got (%d,%d,%v), want (%d,%d)", k, v, ok, w[0], w[1])
		}
	}
	if _, _, ok := it.Next(); ok {
		t.Fatal("expected exhausted iterator")
	}

	// Sparse keys: a lower bound falling in a gap starts at its
	// in-order successor.
	sparse := New(10)
	for _, k := range []uint64{10, 20, 30, 40, 50} {
		must(t, sparse.Put(k, k))
	}
	it, err = sparse.Scan(25, 45)
	must(t, err)
	for _, w := range []uint64{30, 40} {
		k, v, ok := it.Next()
		if !ok || k != w || v != w {
			t.Fatalf("sparse scan: got (%d,%d,%v), want (%d,%d)", k, v, ok, w, w)
		}
	}
	if _, _, ok := it.Next(); ok {
		t.Fatal("expected exhausted sparse iterator")
	}
}

func TestScanInvalidRanges(t *testing.T) {
	m := New(100)
	for i := uint64(0); i < 100; i++ {
		must(t, m.Put(i, i*10))
	}

	cases := [][2]uint64{{20, 10}, {10, 0}, {100, 99}, {99, 98}}
	for _, c := range cases {
		if _, err := m.Scan(c[0], c[1]); err == nil {
			t.Fatalf("scan(%d,%d): expected InvalidScanRange error", c[0], c[1])
		}
	}
}
