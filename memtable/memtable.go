// Package memtable implements the in-memory ordered map that absorbs
// writes before they are flushed to an SST: a top-down red-black tree
// over (uint64,uint64), with nodes packed into a fixed-capacity array
// addressed by index rather than pointer. Ported from
// _examples/original_source/src/memtable.rs, including its top-down
// jsw_insert-style rebalancing and stack-based in-order scan iterator.
package memtable

import (
	"github.com/pkg/errors"

	"bearkv/dberror"
)

// null is the sentinel index meaning "no child", matching the
// original's NULL = usize::MAX scaled to our uint32 index width.
const null = ^uint32(0)

const (
	left  = 0
	right = 1
)

type node struct {
	key   uint64
	value uint64
	link  [2]uint32
	red   bool
}

// MemTable is a fixed-capacity red-black tree over (uint64,uint64).
type MemTable struct {
	root     uint32
	nodes    []node
	capacity int
}

// New creates an empty MemTable with room for capacity entries.
func New(capacity int) *MemTable {
	return &MemTable{
		root:     null,
		nodes:    make([]node, 0, capacity),
		capacity: capacity,
	}
}

// Size returns the number of live entries.
func (m *MemTable) Size() int {
	return len(m.nodes)
}

// Get looks up key, returning its value and true if present.
func (m *MemTable) Get(key uint64) (uint64, bool) {
	curr := m.root
	for curr != null {
		n := &m.nodes[curr]
		switch {
		case key < n.key:
			curr = n.link[left]
		case key > n.key:
			curr = n.link[right]
		default:
			return n.value, true
		}
	}
	return 0, false
}

func (m *MemTable) isRed(idx uint32) bool {
	return idx != null && m.nodes[idx].red
}

func (m *MemTable) makeNode(key, value uint64) (uint32, error) {
	if len(m.nodes) >= m.capacity {
		return 0, dberror.ErrMemTableFull
	}
	m.nodes = append(m.nodes, node{key: key, value: value, link: [2]uint32{null, null}, red: true})
	return uint32(len(m.nodes) - 1), nil
}

// Put inserts or updates key with value. If key is new and the
// memtable is at capacity, returns ErrMemTableFull and leaves the
// stored entries unchanged (rebalancing done on the way down is kept).
func (m *MemTable) Put(key, value uint64) error {
	if m.root == null {
		idx, err := m.makeNode(key, value)
		if err != nil {
			return err
		}
		m.root = idx
		m.nodes[m.root].red = false
		return nil
	}

	// Dummy head node; its right child is the real root.
	head := node{link: [2]uint32{null, m.root}}

	// q is the cursor, p/g/t its parent/grandparent/great-grandparent.
	q := m.root
	p := null
	g := null
	t := null

	dir := 0
	last := 0

	nodeOrHead := func(idx uint32) *node {
		if idx == null {
			return &head
		}
		return &m.nodes[idx]
	}

	for {
		if q == null {
			newIdx, err := m.makeNode(key, value)
			if err != nil {
				// Rotations on the way down may have replaced the root.
				m.root = head.link[right]
				m.nodes[m.root].red = false
				return err
			}
			q = newIdx
			nodeOrHead(p).link[dir] = q
		} else {
			qNode := &m.nodes[q]
			l := qNode.link[left]
			r := qNode.link[right]
			if m.isRed(l) && m.isRed(r) {
				m.nodes[q].red = true
				m.nodes[l].red = false
				m.nodes[r].red = false
			}
		}

		if m.isRed(q) && m.isRed(p) {
			dir2 := 0
			if nodeOrHead(t).link[right] == g {
				dir2 = 1
			}

			if q == m.nodes[p].link[last] {
				nodeOrHead(t).link[dir2] = m.singleRotation(g, 1-last)
			} else {
				nodeOrHead(t).link[dir2] = m.doubleRotation(g, 1-last)
			}
		}

		if m.nodes[q].key == key {
			m.nodes[q].value = value
			break
		}

		last = dir
		if m.nodes[q].key < key {
			dir = right
		} else {
			dir = left
		}

		t = g
		g = p
		p = q
		q = m.nodes[q].link[dir]
	}

	m.root = head.link[right]
	m.nodes[m.root].red = false
	return nil
}

func (m *MemTable) singleRotation(idx uint32, dir int) uint32 {
	save := m.nodes[idx].link[1-dir]

	m.nodes[idx].link[1-dir] = m.nodes[save].link[dir]
	m.nodes[save].link[dir] = idx

	m.nodes[idx].red = true
	m.nodes[save].red = false

	return save
}

func (m *MemTable) doubleRotation(idx uint32, dir int) uint32 {
	m.nodes[idx].link[1-dir] = m.singleRotation(m.nodes[idx].link[1-dir], 1-dir)
	return m.singleRotation(idx, dir)
}

// Iterator walks (key,value) pairs in a closed [lo,hi] key range in
// ascending order, matching MemTableIter's stack-based in-order walk.
type Iterator struct {
	m     *MemTable
	stack []uint32
	end   uint64
}

// Scan returns an Iterator over keys in [lo, hi]. Returns
// ErrInvalidScanRange if lo > hi.
func (m *MemTable) Scan(lo, hi uint64) (*Iterator, error) {
	if lo > hi {
		return nil, errors.Wrap(dberror.ErrInvalidScanRange, "memtable scan: lo > hi")
	}

	it := &Iterator{m: m, end: hi}

	curr := m.root
	for curr != null {
		it.stack = append(it.stack, curr)
		n := &m.nodes[curr]
		switch {
		case lo < n.key:
			curr = n.link[left]
		case lo > n.key:
			curr = n.link[right]
		default:
			return it, nil
		}
	}

	// lo itself is not in the tree. Every trailing node on the path
	// where the descent went right has a key below lo; popping them
	// leaves lo's in-order successor on top of the stack.
	for len(it.stack) > 0 && m.nodes[it.stack[len(it.stack)-1]].key < lo {
		it.stack = it.stack[:len(it.stack)-1]
	}
	return it, nil
}

// Next returns the next (key,value) pair in range, or ok=false once the
// range is exhausted.
func (it *Iterator) Next() (key, value uint64, ok bool) {
	if len(it.stack) == 0 {
		return 0, 0, false
	}

	curr := it.stack[len(it.stack)-1]
	n := &it.m.nodes[curr]

	if n.key > it.end {
		it.stack = nil
		return 0, 0, false
	}

	key, value = n.key, n.value

	if n.link[right] == null {
		it.goToRightwardsAncestor()
	} else {
		it.goToLeftmostChild(n.link[right])
	}

	return key, value, true
}

func (it *Iterator) goToLeftmostChild(idx uint32) {
	curr := idx
	for {
		it.stack = append(it.stack, curr)
		curr = it.m.nodes[curr].link[left]
		if curr == null {
			return
		}
	}
}

func (it *Iterator) goToRightwardsAncestor() {
	for {
		curr := it.stack[len(it.stack)-1]
		it.stack = it.stack[:len(it.stack)-1]

		if len(it.stack) == 0 {
			return
		}
		parent := it.stack[len(it.stack)-1]
		if it.m.nodes[parent].link[left] == curr {
			return
		}
	}
}
