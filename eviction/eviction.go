// Package eviction implements the 2Q page-replacement policy used by
// the buffer pool: a FIFO queue (A_in) for freshly-accessed pages, a
// ghost FIFO (A_out) recording recently-evicted identities, and an LRU
// queue (A_m) for pages that proved hot enough to be re-accessed while
// in A_out. Ported from
// _examples/original_source/src/eviction.rs.
package eviction

import (
	"bearkv/hash_table"
	"bearkv/list"
)

// Queue names a page's current home.
type Queue int

const (
	// QueueAIn identifies a page living in the A_in FIFO.
	QueueAIn Queue = iota
	// QueueAM identifies a page living in the A_m LRU.
	QueueAM
)

// ID identifies a resident page's entry within the eviction policy's
// internal queues. It is the Go counterpart of EvictionId.
type ID struct {
	Queue Queue
	Entry list.EntryId
}

// Eviction implements the 2Q policy over identities of type K (in
// practice file_system.PageID). hashOf must hash K deterministically;
// it is supplied by the caller since Go, unlike the original's ad hoc
// murmur3-over-path-string, has no single canonical way to hash an
// arbitrary identity type.
type Eviction[K comparable] struct {
	aIn    *list.List[K]
	aM     *list.List[K]
	aOut   *list.List[K]
	mapOut *hash_table.Table[K, list.EntryId]
	kIn    int
	kOut   int
}

// New creates a 2Q handler sized for capacity resident pages.
func New[K comparable](capacity int, hashOf func(K) int) *Eviction[K] {
	kIn := capacity/4 + 1
	kOut := capacity/2 + 1

	return &Eviction[K]{
		aIn:    list.New[K](capacity),
		aM:     list.New[K](capacity),
		aOut:   list.New[K](kOut),
		mapOut: hash_table.New[K, list.EntryId](kOut, hashOf),
		kIn:    kIn,
		kOut:   kOut,
	}
}

// InsertNew registers a page identity that has never been tracked
// before (or was tracked and has since been evicted to A_out). It
// panics if inserting past capacity.
func (e *Eviction[K]) InsertNew(key K) ID {
	if idOut, ok := e.mapOut.Get(key); ok {
		e.aOut.Delete(idOut)
		e.mapOut.Remove(key)
		id := e.aM.PushBack(key)
		return ID{Queue: QueueAM, Entry: id}
	}
	id := e.aIn.PushBack(key)
	return ID{Queue: QueueAIn, Entry: id}
}

// Touch marks a resident page as having been accessed again. A_in
// entries are left alone (2Q evicts A_in strictly FIFO); A_m entries
// move to the back of the LRU.
func (e *Eviction[K]) Touch(id ID) {
	if id.Queue == QueueAM {
		e.aM.MoveToBack(id.Entry)
	}
}

// Evict removes victim from residency. If it was in A_in, its identity
// is recorded in A_out (evicting A_out's own oldest entry first if
// A_out is already at capacity).
func (e *Eviction[K]) Evict(victim ID) {
	switch victim.Queue {
	case QueueAIn:
		if e.aOut.Len() >= e.kOut {
			evicted, ok := e.aOut.PopFront()
			if !ok {
				panic("eviction: a_out unexpectedly empty at capacity")
			}
			e.mapOut.Remove(evicted)
		}
		key := e.aIn.Delete(victim.Entry)
		outID := e.aOut.PushBack(key)
		e.mapOut.Insert(key, outID)
	case QueueAM:
		e.aM.Delete(victim.Entry)
	}
}

// Remove forgets a resident page entirely, without recording its
// identity in A_out. Used when the page's file is deleted or renamed,
// so that the same identity under a recycled file id is treated as
// brand new rather than recently hot.
func (e *Eviction[K]) Remove(id ID) {
	switch id.Queue {
	case QueueAIn:
		e.aIn.Delete(id.Entry)
	case QueueAM:
		e.aM.Delete(id.Entry)
	}
}

// Chooser walks candidate victims in 2Q eviction order: if A_in holds
// more than k_in entries or A_m is empty, all of A_in (oldest first)
// followed by A_m in LRU order; otherwise A_m in LRU order only. It never mutates the underlying queues, so Evict must be
// called separately once the caller picks a victim from it. This is a
// resumable iterator rather than a plain slice because the buffer pool
// needs to skip candidates that are currently pinned.
type Chooser[K comparable] struct {
	e      *Eviction[K]
	lastID *ID
	ended  bool
}

// ChooseVictim returns a fresh Chooser over e's current state.
func (e *Eviction[K]) ChooseVictim() *Chooser[K] {
	return &Chooser[K]{e: e}
}

// Next returns the next candidate victim in eviction order, or
// ok=false once every candidate has been exhausted.
func (c *Chooser[K]) Next() (id ID, key K, ok bool) {
	if c.ended {
		return ID{}, key, false
	}

	e := c.e
	if c.lastID == nil {
		if e.aIn.Len() > e.kIn || (!e.aIn.IsEmpty() && e.aM.IsEmpty()) {
			entry, k, front := e.aIn.Front()
			if !front {
				panic("eviction: a_in unexpectedly empty")
			}
			newID := ID{Queue: QueueAIn, Entry: entry}
			c.lastID = &newID
			return newID, k, true
		}
		if entry, k, has := e.aM.Front(); has {
			newID := ID{Queue: QueueAM, Entry: entry}
			c.lastID = &newID
			return newID, k, true
		}
		c.ended = true
		return ID{}, key, false
	}

	switch c.lastID.Queue {
	case QueueAIn:
		if nextEntry, k, has := e.aIn.GetNext(c.lastID.Entry); has {
			newID := ID{Queue: QueueAIn, Entry: nextEntry}
			c.lastID = &newID
			return newID, k, true
		}
		if entry, k, has := e.aM.Front(); has {
			newID := ID{Queue: QueueAM, Entry: entry}
			c.lastID = &newID
			return newID, k, true
		}
		c.ended = true
		c.lastID = nil
		return ID{}, key, false
	case QueueAM:
		if nextEntry, k, has := e.aM.GetNext(c.lastID.Entry); has {
			newID := ID{Queue: QueueAM, Entry: nextEntry}
			c.lastID = &newID
			return newID, k, true
		}
		c.ended = true
		c.lastID = nil
		return ID{}, key, false
	}
	panic("eviction: unreachable queue kind")
}
