// Package list implements a fixed-capacity intrusive doubly-linked
// list backed by a contiguous arena, addressed by stable EntryId
// handles rather than pointers. This is the data structure 2Q's three
// queues (A_in, A_out, A_m) are built on.
package list

// Null is the sentinel EntryId value meaning "no entry", analogous to
// usize::MAX in the original.
const Null = ^uint32(0)

// EntryId identifies a node within a List. It stays valid for as long
// as the node it names hasn't been deleted, even as the node moves
// within the list (MoveToBack preserves it).
type EntryId uint32

type node[T any] struct {
	prev, next uint32
	occupied   bool
	entry      T
}

// List is a generic fixed-capacity doubly-linked list, grounded on
// _examples/original_source/src/list.rs::List. Go generics usage
// follows the teacher's lsm/lru_cache/lru_cache.go, its one use of type
// parameters.
type List[T any] struct {
	buffer   []node[T]
	freeList []uint32
	front    uint32
	back     uint32
	size     int
}

// New creates an empty list with the given capacity.
func New[T any](capacity int) *List[T] {
	buffer := make([]node[T], capacity)
	freeList := make([]uint32, capacity)
	for i := range freeList {
		freeList[i] = uint32(capacity - 1 - i)
	}
	return &List[T]{
		buffer:   buffer,
		freeList: freeList,
		front:    Null,
		back:     Null,
	}
}

// Len returns the number of entries currently stored.
func (l *List[T]) Len() int {
	return l.size
}

// IsEmpty reports whether the list has no entries.
func (l *List[T]) IsEmpty() bool {
	return l.size == 0
}

// Front returns the id and value at the front of the list.
func (l *List[T]) Front() (EntryId, T, bool) {
	return l.Get(EntryId(l.front))
}

// Back returns the id and value at the back of the list.
func (l *List[T]) Back() (EntryId, T, bool) {
	return l.Get(EntryId(l.back))
}

// Get returns the value stored at id, if id names an occupied node.
func (l *List[T]) Get(id EntryId) (EntryId, T, bool) {
	idx := uint32(id)
	if int(idx) >= len(l.buffer) || !l.buffer[idx].occupied {
		var zero T
		return 0, zero, false
	}
	return id, l.buffer[idx].entry, true
}

// GetNext returns the id and value following id, if one exists. It
// panics if id does not name an occupied node.
func (l *List[T]) GetNext(id EntryId) (EntryId, T, bool) {
	idx := uint32(id)
	if !l.buffer[idx].occupied {
		panic("list: GetNext called with an invalid id")
	}
	return l.Get(EntryId(l.buffer[idx].next))
}

// PushBack inserts entry at the back of the list and returns its id.
// It panics if the list is at capacity.
func (l *List[T]) PushBack(entry T) EntryId {
	if len(l.freeList) == 0 {
		panic("list: cannot push past capacity")
	}
	idx := l.freeList[len(l.freeList)-1]
	l.freeList = l.freeList[:len(l.freeList)-1]

	l.buffer[idx] = node[T]{prev: l.back, next: Null, occupied: true, entry: entry}

	if l.back != Null {
		l.buffer[l.back].next = idx
	}
	l.back = idx

	l.size++
	if l.size == 1 {
		l.front = idx
	}

	return EntryId(idx)
}

// Delete removes the entry named by id and returns its value. It
// panics if id does not name an occupied node.
func (l *List[T]) Delete(id EntryId) T {
	idx := uint32(id)
	n := l.buffer[idx]
	if !n.occupied {
		panic("list: Delete called with an invalid id")
	}
	l.buffer[idx] = node[T]{}

	l.size--
	l.freeList = append(l.freeList, idx)

	if l.front == idx {
		l.front = n.next
	}
	if l.back == idx {
		l.back = n.prev
	}

	if n.prev != Null {
		l.buffer[n.prev].next = n.next
	}
	if n.next != Null {
		l.buffer[n.next].prev = n.prev
	}

	return n.entry
}

// PopFront removes and returns the entry at the front of the list, if
// any.
func (l *List[T]) PopFront() (T, bool) {
	if l.IsEmpty() {
		var zero T
		return zero, false
	}
	return l.Delete(EntryId(l.front)), true
}

// MoveToBack moves the entry named by id to the back of the list
// without invalidating its id.
func (l *List[T]) MoveToBack(id EntryId) {
	entry := l.Delete(id)
	newID := l.PushBack(entry)
	if newID != id {
		panic("list: MoveToBack changed the entry's id")
	}
}
