// Package lsm implements the storage engine's orchestrator: it owns
// the memtable and every level's SSTs, and drives flushing and
// compaction. Ported end to end from
// _examples/original_source/src/lsm.rs::LsmTree, including Monkey
// per-level bloom bit allocation and Dostoevsky tiered-then-leveled
// bottom compaction.
package lsm

import (
	"log"
	"math"

	"bearkv/dbconfig"
	"bearkv/file_system"
	"bearkv/memtable"
	"bearkv/merge"
)

// Metadata is the small amount of LSM tree shape that must be
// persisted separately from the data itself so the tree can be
// reopened: how many SSTs live at each level, and how many original
// flushes the current bottom-level SST represents.
type Metadata struct {
	SstsPerLevel   []uint64 `json:"ssts_per_level"`
	BottomLeveling uint64   `json:"bottom_leveling"`
}

// EmptyMetadata is the metadata of a freshly created, empty LSM tree.
func EmptyMetadata() Metadata {
	return Metadata{}
}

// Tree is an LSM tree: a memtable plus however many levels of SSTs,
// all backed by one file_system.FileSystem.
type Tree struct {
	memtable *memtable.MemTable
	// levels[0] is the top (newest, smallest) level; within a level,
	// index 0 is the oldest SST.
	levels         [][]*sst
	bottomLeveling uint64
	configuration  dbconfig.Configuration
	fs             *file_system.FileSystem
	logger         *log.Logger
}

// SetLogger replaces the logger used for flush/compaction diagnostics.
func (t *Tree) SetLogger(logger *log.Logger) {
	t.logger = logger
}

// Open reconstructs a Tree from persisted metadata, opening every
// component SST.
func Open(metadata Metadata, configuration dbconfig.Configuration, fs *file_system.FileSystem) (*Tree, error) {
	levels := make([][]*sst, len(metadata.SstsPerLevel))
	for lvl, numSsts := range metadata.SstsPerLevel {
		level := make([]*sst, numSsts)
		for sstNumber := uint64(0); sstNumber < numSsts; sstNumber++ {
			s, err := openSST(fs, file_system.FileID{LSMLevel: uint64(lvl), SSTNumber: sstNumber})
			if err != nil {
				return nil, err
			}
			level[sstNumber] = s
		}
		levels[lvl] = level
	}

	return &Tree{
		memtable:       memtable.New(int(configuration.MemtableCapacity)),
		levels:         levels,
		bottomLeveling: metadata.BottomLeveling,
		configuration:  configuration,
		fs:             fs,
		logger:         log.Default(),
	}, nil
}

// Get returns the value stored for key, if any and not deleted.
func (t *Tree) Get(key uint64) (uint64, bool, error) {
	if v, ok := t.memtable.Get(key); ok {
		if v == merge.Tombstone {
			return 0, false, nil
		}
		return v, true, nil
	}

	for _, level := range t.levels {
		for i := len(level) - 1; i >= 0; i-- {
			v, ok, err := level[i].get(t.fs, key)
			if err != nil {
				return 0, false, err
			}
			if ok {
				if v == merge.Tombstone {
					return 0, false, nil
				}
				return v, true, nil
			}
		}
	}

	return 0, false, nil
}

// Put writes key/value, flushing the memtable to a new SST (and
// running any compaction that triggers) if this put fills it. Returns
// whether a flush happened.
//
// A value of math.MaxUint64 is the delete marker; storing it as a
// legitimate value is indistinguishable from a Delete of the same key.
func (t *Tree) Put(key, value uint64) (bool, error) {
	if err := t.memtable.Put(key, value); err != nil {
		return false, err
	}

	if uint64(t.memtable.Size()) >= t.configuration.MemtableCapacity {
		if err := t.flushMemtable(); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Delete marks key as deleted. Returns whether a flush happened.
func (t *Tree) Delete(key uint64) (bool, error) {
	return t.Put(key, merge.Tombstone)
}

// Scan returns a merged iterator over every key in [lo,hi] across the
// memtable and every level, newest first, with tombstones elided.
func (t *Tree) Scan(lo, hi uint64) (*merge.MergedIterator, error) {
	var sources []merge.Source

	memtableScan, err := t.memtable.Scan(lo, hi)
	if err != nil {
		return nil, err
	}
	sources = append(sources, merge.MemtableSource(memtableScan))

	for _, level := range t.levels {
		for i := len(level) - 1; i >= 0; i-- {
			it, err := level[i].scan(t.fs, lo, hi)
			if err != nil {
				return nil, err
			}
			sources = append(sources, merge.SstableSource(it))
		}
	}

	return merge.NewMergedIterator(sources, true)
}

// bottomLevelNumber returns the index of the bottom level, or false if
// the tree has no levels yet.
func (t *Tree) bottomLevelNumber() (int, bool) {
	if len(t.levels) == 0 {
		return 0, false
	}
	return len(t.levels) - 1, true
}

// monkey returns the number of bloom filter bits per entry for level,
// per Monkey's bit allocation: deeper levels get fewer bits because
// their SSTs are queried less often relative to their size. Disabled
// by Configuration.UniformBloomBits, in which case every level gets
// the same budget.
func (t *Tree) monkey(level int) float64 {
	if t.configuration.UniformBloomBits {
		return t.configuration.BloomFilterBits
	}

	sizeRatio := float64(t.configuration.SizeRatio)
	m0 := t.configuration.BloomFilterBits
	bits := m0 - float64(level)*math.Log2(sizeRatio)/math.Ln2
	return math.Ceil(math.Max(bits, 0))
}

// flushMemtable writes the memtable's contents to a new level-0 SST
// and runs compaction.
func (t *Tree) flushMemtable() error {
	if t.memtable.Size() == 0 {
		return nil
	}

	if len(t.levels) == 0 {
		t.levels = append(t.levels, nil)
		t.bottomLeveling = 1
	}

	memtableSize := t.memtable.Size()
	scan, err := t.memtable.Scan(0, math.MaxUint64)
	if err != nil {
		return err
	}

	fileID := file_system.FileID{LSMLevel: 0, SSTNumber: uint64(len(t.levels[0]))}
	newSST, err := createSST(t.fs, fileID, merge.MemtableSource(scan), memtableSize, t.monkey(0))
	if err != nil {
		return err
	}
	t.levels[0] = append(t.levels[0], newSST)

	t.memtable = memtable.New(int(t.configuration.MemtableCapacity))

	t.logger.Printf("lsm: flushed %d entries to %s", memtableSize, fileID.Name())
	return t.mergeLevels()
}

// mergeLevels ensures every level holds fewer than SizeRatio SSTs,
// cascading one level downward, then separately reconciles the bottom
// level under Dostoevsky: merged tieredly (repeatedly, in place) until
// bottomLeveling crosses SizeRatio, at which point the whole bottom
// level is promoted one level deeper and levels once more.
func (t *Tree) mergeLevels() error {
	bottomLevelNumber, ok := t.bottomLevelNumber()
	if !ok {
		return nil
	}

	sizeRatio := t.configuration.SizeRatio

	for i := 0; i < bottomLevelNumber; i++ {
		bitsPerEntry := t.monkey(i + 1)
		level := t.levels[i]

		if uint64(len(level)) < sizeRatio {
			continue
		}

		var sources []merge.Source
		var nEntriesHint uint64
		for j := len(level) - 1; j >= 0; j-- {
			it, err := level[j].scan(t.fs, 0, math.MaxUint64)
			if err != nil {
				return err
			}
			sources = append(sources, merge.SstableSource(it))
			nEntriesHint += level[j].numEntries()
		}
		merged, err := merge.NewMergedIterator(sources, false)
		if err != nil {
			return err
		}

		fileID := file_system.FileID{LSMLevel: uint64(i + 1), SSTNumber: uint64(len(t.levels[i+1]))}
		mergedSST, err := createSST(t.fs, fileID, merged, int(nEntriesHint), bitsPerEntry)
		if err != nil {
			return err
		}
		t.levels[i+1] = append(t.levels[i+1], mergedSST)

		for _, old := range level {
			if err := old.destroy(t.fs); err != nil {
				return err
			}
		}
		t.levels[i] = nil

		t.logger.Printf("lsm: merged %d ssts from level %d into %s (%d entries)", len(level), i, fileID.Name(), mergedSST.numEntries())
	}

	if err := t.mergeBottomLevel(bottomLevelNumber); err != nil {
		return err
	}

	if t.bottomLeveling >= sizeRatio {
		if err := t.pushNewBottomLevel(bottomLevelNumber); err != nil {
			return err
		}
	}

	return nil
}

func (t *Tree) mergeBottomLevel(bottomLevelNumber int) error {
	bitsPerEntry := t.monkey(bottomLevelNumber)
	bottomLevel := t.levels[bottomLevelNumber]
	if len(bottomLevel) <= 1 {
		return nil
	}

	t.bottomLeveling += uint64(len(bottomLevel) - 1)

	var sources []merge.Source
	var nEntriesHint uint64
	for j := len(bottomLevel) - 1; j >= 0; j-- {
		it, err := bottomLevel[j].scan(t.fs, 0, math.MaxUint64)
		if err != nil {
			return err
		}
		sources = append(sources, merge.SstableSource(it))
		nEntriesHint += bottomLevel[j].numEntries()
	}
	merged, err := merge.NewMergedIterator(sources, true)
	if err != nil {
		return err
	}

	// Write the compacted bottom level under a scratch identity one
	// level below, so it never collides with the files being read from
	// above. It is renamed into its final position only once complete.
	scratchID := file_system.FileID{LSMLevel: uint64(bottomLevelNumber + 1), SSTNumber: 0}
	newSST, err := createSST(t.fs, scratchID, merged, int(nEntriesHint), bitsPerEntry)
	if err != nil {
		return err
	}

	// Tombstone elision can leave nothing behind if the bottom level was
	// entirely deleted keys; an SST must always hold at least one entry,
	// so fall back to a single tombstone.
	if newSST.numEntries() == 0 {
		if err := newSST.destroy(t.fs); err != nil {
			return err
		}
		newSST, err = createSST(t.fs, scratchID, &singlePairSource{key: 0, value: merge.Tombstone}, 1, bitsPerEntry)
		if err != nil {
			return err
		}
	}

	for _, old := range bottomLevel {
		if err := old.destroy(t.fs); err != nil {
			return err
		}
	}

	finalID := file_system.FileID{LSMLevel: uint64(bottomLevelNumber), SSTNumber: 0}
	if err := newSST.rename(t.fs, finalID); err != nil {
		return err
	}
	t.levels[bottomLevelNumber] = []*sst{newSST}

	t.logger.Printf("lsm: compacted bottom level %d into %s (%d entries, leveling %d)", bottomLevelNumber, finalID.Name(), newSST.numEntries(), t.bottomLeveling)
	return nil
}

// pushNewBottomLevel promotes the (now fully-tiered) bottom level one
// level deeper once it represents enough original flushes, giving the
// tree a new, empty bottom level.
func (t *Tree) pushNewBottomLevel(bottomLevelNumber int) error {
	t.levels = append(t.levels, nil)

	single := t.levels[bottomLevelNumber][0]
	t.levels[bottomLevelNumber] = nil

	newID := file_system.FileID{LSMLevel: uint64(bottomLevelNumber + 1), SSTNumber: 0}
	if err := single.rename(t.fs, newID); err != nil {
		return err
	}
	t.levels[bottomLevelNumber+1] = append(t.levels[bottomLevelNumber+1], single)

	t.bottomLeveling = 1

	t.logger.Printf("lsm: pushed bottom level down to level %d", bottomLevelNumber+1)
	return nil
}

// Metadata returns the tree's current persistable shape.
func (t *Tree) Metadata() Metadata {
	ssts := make([]uint64, len(t.levels))
	for i, level := range t.levels {
		ssts[i] = uint64(len(level))
	}
	return Metadata{SstsPerLevel: ssts, BottomLeveling: t.bottomLeveling}
}
