package lsm

import (
	"bearkv/bloom_filter"
	"bearkv/file_system"
	"bearkv/sstable"
)

// sst is a handle to one on-disk SST: its file identity, its metadata
// page, and its reconstructed bloom filter. It wraps the sstable
// package's free functions with the lifecycle operations the
// orchestrator needs (rename during compaction, destroy once
// superseded). Ported from original_source/src/sst.rs::Sst, adapted to
// operate on file_system.FileID instead of a path and to expose the
// rename/destroy/num_entries operations original_source/src/lsm.rs
// calls on it.
type sst struct {
	fileID   file_system.FileID
	metadata sstable.Metadata
	filter   *bloom_filter.Filter
}

func createSST(fs *file_system.FileSystem, fileID file_system.FileID, pairs sstable.PairSource, nEntriesHint int, bitsPerEntry float64) (*sst, error) {
	metadata, filter, err := sstable.Write(fs, fileID, pairs, nEntriesHint, bitsPerEntry)
	if err != nil {
		return nil, err
	}
	return &sst{fileID: fileID, metadata: metadata, filter: filter}, nil
}

func openSST(fs *file_system.FileSystem, fileID file_system.FileID) (*sst, error) {
	metadata, filter, err := sstable.Open(fs, fileID)
	if err != nil {
		return nil, err
	}
	return &sst{fileID: fileID, metadata: metadata, filter: filter}, nil
}

func (s *sst) numEntries() uint64 {
	return s.metadata.NEntries
}

// get returns the value for key, short-circuiting on the bloom filter
// before touching disk.
func (s *sst) get(fs *file_system.FileSystem, key uint64) (uint64, bool, error) {
	if !s.filter.Query(key) {
		return 0, false, nil
	}
	return sstable.Get(fs, s.fileID, s.metadata, key)
}

func (s *sst) scan(fs *file_system.FileSystem, lo, hi uint64) (*sstable.Iterator, error) {
	return sstable.NewIterator(fs, s.fileID, s.metadata, lo, hi, sstable.SearchByDescent)
}

// destroy removes the SST's backing file entirely.
func (s *sst) destroy(fs *file_system.FileSystem) error {
	return fs.DeleteFile(s.fileID)
}

// rename moves the SST to a new file identity, e.g. landing a
// compacted bottom-level SST at its final (level, 0) position only
// after it has been fully written under a scratch identity.
func (s *sst) rename(fs *file_system.FileSystem, newID file_system.FileID) error {
	if err := fs.RenameFile(s.fileID, newID); err != nil {
		return err
	}
	s.fileID = newID
	return nil
}

// singlePairSource yields exactly one (key,value) pair, used to
// substitute a single tombstone entry for an SST that would otherwise
// end up with zero entries after tombstone elision during bottom-level
// compaction (see mergeBottomLevel).
type singlePairSource struct {
	key, value uint64
	done       bool
}

func (s *singlePairSource) Next() (key, value uint64, ok bool, err error) {
	if s.done {
		return 0, 0, false, nil
	}
	s.done = true
	return s.key, s.value, true, nil
}
