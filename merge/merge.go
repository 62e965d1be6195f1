// Package merge implements the k-way merging iterator that combines
// the memtable and every SST level into a single ascending key stream
// during scans and compaction. Ported from
// _examples/original_source/src/merge.rs::MergedIterator.
package merge

import (
	"container/heap"

	"bearkv/memtable"
	"bearkv/sstable"
)

// Tombstone marks a deleted key. It lives here, rather than in the lsm
// package that defines the rest of the engine's write path, because
// both lsm and merge need it and merge must not import lsm.
const Tombstone uint64 = ^uint64(0)

// Source yields sorted (key,value) pairs, the shared shape of a
// memtable scan and an SST scan.
type Source interface {
	Next() (key, value uint64, ok bool, err error)
}

type memtableSource struct{ it *memtable.Iterator }

func (s memtableSource) Next() (uint64, uint64, bool, error) {
	k, v, ok := s.it.Next()
	return k, v, ok, nil
}

// MemtableSource adapts a memtable.Iterator to Source.
func MemtableSource(it *memtable.Iterator) Source {
	return memtableSource{it}
}

type sstableSource struct{ it *sstable.Iterator }

func (s sstableSource) Next() (uint64, uint64, bool, error) {
	return s.it.Next()
}

// SstableSource adapts an sstable.Iterator to Source.
func SstableSource(it *sstable.Iterator) Source {
	return sstableSource{it}
}

type entry struct {
	key   uint64
	value uint64
	level int
}

// entryHeap orders by ascending key, then ascending level, so that
// among duplicate keys the entry from the newest (lowest-numbered)
// level surfaces first.
type entryHeap []entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].key != h[j].key {
		return h[i].key < h[j].key
	}
	return h[i].level < h[j].level
}
func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)   { *h = append(*h, x.(entry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// MergedIterator merges levels (ordered newest-first, levels[0] is
// newest) into one ascending stream, keeping only the newest value for
// each key and optionally eliding tombstones.
type MergedIterator struct {
	levels []Source
	heap   entryHeap

	lastKey   uint64
	haveLast  bool
	elideTomb bool
	ended     bool
}

// NewMergedIterator creates a MergedIterator over levels. If
// elideTombstones is set, keys whose newest value is Tombstone are
// skipped entirely rather than surfaced.
func NewMergedIterator(levels []Source, elideTombstones bool) (*MergedIterator, error) {
	h := make(entryHeap, 0, len(levels))
	for lvl, src := range levels {
		k, v, ok, err := src.Next()
		if err != nil {
			return nil, err
		}
		if ok {
			h = append(h, entry{key: k, value: v, level: lvl})
		}
	}
	heap.Init(&h)

	return &MergedIterator{
		levels:    levels,
		heap:      h,
		elideTomb: elideTombstones,
		ended:     len(h) == 0,
	}, nil
}

// popAndReplace removes the minimum entry and immediately refills the
// heap slot from that entry's source level, mirroring the original's
// use of BinaryHeap::peek_mut to avoid sifting twice.
func (m *MergedIterator) popAndReplace() (entry, bool, error) {
	if len(m.heap) == 0 {
		return entry{}, false, nil
	}
	min := m.heap[0]

	k, v, ok, err := m.levels[min.level].Next()
	if err != nil {
		return entry{}, false, err
	}
	if ok {
		m.heap[0] = entry{key: k, value: v, level: min.level}
		heap.Fix(&m.heap, 0)
	} else {
		heap.Pop(&m.heap)
	}
	return min, true, nil
}

// Next returns the next (key,value) pair in ascending key order, or
// ok=false once every level is exhausted.
func (m *MergedIterator) Next() (key, value uint64, ok bool, err error) {
	if m.ended {
		return 0, 0, false, nil
	}

	for {
		min, found, err := m.popAndReplace()
		if err != nil {
			m.ended = true
			return 0, 0, false, err
		}
		if !found {
			m.ended = true
			return 0, 0, false, nil
		}

		if m.haveLast && min.key <= m.lastKey {
			continue
		}
		if m.elideTomb && min.value == Tombstone {
			m.lastKey = min.key
			m.haveLast = true
			continue
		}

		m.lastKey = min.key
		m.haveLast = true
		return min.key, min.value, true, nil
	}
}
