package hash_table

import (
	"testing"
)

type pageKey struct {
	level  int
	number int
}

func hashOf(k pageKey) int {
	return k.level*1000003 + k.number
}

func TestInsertGet(t *testing.T) {
	tbl := New[pageKey, string](8, hashOf)
	tbl.Insert(pageKey{0, 1}, "a")
	tbl.Insert(pageKey{0, 2}, "b")
	tbl.Insert(pageKey{1, 1}, "c")

	if v, ok := tbl.Get(pageKey{0, 1}); !ok || v != "a" {
		t.Fatalf("Get(0,1) = %v,%v", v, ok)
	}
	if v, ok := tbl.Get(pageKey{1, 1}); !ok || v != "c" {
		t.Fatalf("Get(1,1) = %v,%v", v, ok)
	}
	if _, ok := tbl.Get(pageKey{9, 9}); ok {
		t.Fatal("expected miss for absent key")
	}
}

func TestInsertOverwrite(t *testing.T) {
	tbl := New[pageKey, string](4, hashOf)
	tbl.Insert(pageKey{0, 1}, "a")
	tbl.Insert(pageKey{0, 1}, "z")
	if v, _ := tbl.Get(pageKey{0, 1}); v != "z" {
		t.Fatalf("expected overwrite, got %v", v)
	}
	if tbl.Len() != 1 {
		t.Fatalf("expected len 1, got %d", tbl.Len())
	}
}

func TestRemoveAndReinsert(t *testing.T) {
	tbl := New[pageKey, string](8, hashOf)
	keys := []pageKey{{0, 1}, {0, 2}, {0, 3}, {0, 4}, {0, 5}}
	for i, k := range keys {
		tbl.Insert(k, string(rune('a'+i)))
	}
	tbl.Remove(pageKey{0, 3})
	if _, ok := tbl.Get(pageKey{0, 3}); ok {
		t.Fatal("removed key still present")
	}
	for i, k := range keys {
		if k == (pageKey{0, 3}) {
			continue
		}
		if v, ok := tbl.Get(k); !ok || v != string(rune('a'+i)) {
			t.Fatalf("key %v lost after unrelated removal: %v %v", k, v, ok)
		}
	}
}

func TestInsertAtCapacityPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic inserting past capacity")
		}
	}()
	tbl := New[pageKey, string](2, hashOf)
	tbl.Insert(pageKey{0, 1}, "a")
	tbl.Insert(pageKey{0, 2}, "b")
	tbl.Insert(pageKey{0, 3}, "c")
}

func TestRemoveAbsentPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic removing absent key")
		}
	}()
	tbl := New[pageKey, string](2, hashOf)
	tbl.Remove(pageKey{0, 1})
}

func TestManyCollisions(t *testing.T) {
	// Force every key into the same bucket to exercise the probing and
	// backward-shift deletion logic thoroughly.
	constHash := func(pageKey) int { return 0 }
	tbl := New[pageKey, int](50, constHash)
	for i := 0; i < 50; i++ {
		tbl.Insert(pageKey{0, i}, i)
	}
	for i := 0; i < 50; i += 2 {
		tbl.Remove(pageKey{0, i})
	}
	for i := 0; i < 50; i++ {
		v, ok := tbl.Get(pageKey{0, i})
		if i%2 == 0 {
			if ok {
				t.Fatalf("key %d should have been removed", i)
			}
		} else if !ok || v != i {
			t.Fatalf("key %d lost: %v %v", i, v, ok)
		}
	}
}
