package list

import "testing"

func TestPushInOrder(t *testing.T) {
	l := New[int](10)
	l.PushBack(1)
	l.PushBack(2)
	l.PushBack(3)

	want := []int{1, 2, 3}
	for _, w := range want {
		v, ok := l.PopFront()
		if !ok || v != w {
			t.Fatalf("PopFront() = %v,%v, want %v", v, ok, w)
		}
	}
	if _, ok := l.PopFront(); ok {
		t.Fatal("expected empty list")
	}

	l.PushBack(4)
	l.PushBack(5)
	for _, w := range []int{4, 5} {
		v, ok := l.PopFront()
		if !ok || v != w {
			t.Fatalf("PopFront() = %v,%v, want %v", v, ok, w)
		}
	}
}

func TestReordering(t *testing.T) {
	l := New[int](10)
	one := l.PushBack(1)
	two := l.PushBack(2)
	three := l.PushBack(3)

	l.MoveToBack(three)
	l.MoveToBack(two)
	l.MoveToBack(one)

	for _, w := range []int{3, 2, 1} {
		v, ok := l.PopFront()
		if !ok || v != w {
			t.Fatalf("PopFront() = %v,%v, want %v", v, ok, w)
		}
	}
	if _, ok := l.PopFront(); ok {
		t.Fatal("expected empty list")
	}
}

func TestDeletion(t *testing.T) {
	l := New[int](10)
	one := l.PushBack(1)
	two := l.PushBack(2)
	three := l.PushBack(3)

	l.Delete(two)
	l.Delete(three)
	l.Delete(one)

	if !l.IsEmpty() {
		t.Fatal("expected empty list after deleting all entries")
	}

	l.PushBack(1)
	two = l.PushBack(2)
	l.PushBack(3)

	l.Delete(two)

	for _, w := range []int{1, 3} {
		v, ok := l.PopFront()
		if !ok || v != w {
			t.Fatalf("PopFront() = %v,%v, want %v", v, ok, w)
		}
	}
	if _, ok := l.PopFront(); ok {
		t.Fatal("expected empty list")
	}
}

func TestGetNext(t *testing.T) {
	l := New[int](10)
	l.PushBack(1)
	l.PushBack(2)
	l.PushBack(3)

	id, v, ok := l.Front()
	if !ok || v != 1 {
		t.Fatalf("Front() = %v,%v,%v", id, v, ok)
	}

	id, v, ok = l.GetNext(id)
	if !ok || v != 2 {
		t.Fatalf("GetNext() = %v,%v,%v", id, v, ok)
	}

	id, v, ok = l.GetNext(id)
	if !ok || v != 3 {
		t.Fatalf("GetNext() = %v,%v,%v", id, v, ok)
	}

	if _, _, ok = l.GetNext(id); ok {
		t.Fatal("expected no next after the last entry")
	}
}

func TestCapacityPanics(t *testing.T) {
	l := New[int](3)
	l.PushBack(1)
	l.PushBack(2)
	l.PushBack(3)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic pushing past capacity")
			}
		}()
		l.PushBack(4)
	}()

	empty := New[int](0)
	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic pushing into a zero-capacity list")
			}
		}()
		empty.PushBack(1)
	}()
}
