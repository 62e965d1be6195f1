// Package dbconfig holds the tunables for an LSM tree: memtable sizing,
// level fan-out, bloom filter bits, and the owning buffer pool's shape.
package dbconfig

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"bearkv/dberror"
)

// Configuration describes a single LSM tree and the buffer pool backing
// its file system.
type Configuration struct {
	// SizeRatio is the Dostoevsky/leveled fan-out T: a non-bottom level
	// is merged into the level below once it holds SizeRatio SSTs.
	SizeRatio uint64 `json:"size_ratio"`

	// MemtableCapacity is the number of entries the memtable may hold
	// before a flush is triggered.
	MemtableCapacity uint64 `json:"memtable_capacity"`

	// BloomFilterBits is the baseline bits-per-entry budget handed to
	// level 0; Monkey allocation decays it for deeper levels unless
	// UniformBloomBits is set.
	BloomFilterBits float64 `json:"bloom_filter_bits"`

	// BufferPoolCapacity is the number of pages the file system's
	// buffer pool may hold resident at once.
	BufferPoolCapacity uint64 `json:"buffer_pool_capacity"`

	// WriteBuffering is the number of pages FileSystem.WriteFile
	// accumulates into a staging buffer before issuing one positioned
	// write. Must be at least 1.
	WriteBuffering uint64 `json:"write_buffering"`

	// UniformBloomBits disables Monkey's per-level bit decay, handing
	// every level the same BloomFilterBits budget. See SPEC_FULL.md §5.
	UniformBloomBits bool `json:"uniform_bloom_bits"`
}

// Validate checks that every field is in a usable range, mirroring
// original_source/src/lsm.rs's LsmConfiguration::validate.
func (c Configuration) Validate() error {
	if c.SizeRatio < 2 {
		return errors.Wrap(dberror.ErrInvalidConfiguration, "size_ratio must be at least 2")
	}
	if c.MemtableCapacity == 0 {
		return errors.Wrap(dberror.ErrInvalidConfiguration, "memtable_capacity must be positive")
	}
	if c.BloomFilterBits < 0 {
		return errors.Wrap(dberror.ErrInvalidConfiguration, "bloom_filter_bits must not be negative")
	}
	if c.BufferPoolCapacity == 0 {
		return errors.Wrap(dberror.ErrInvalidConfiguration, "buffer_pool_capacity must be positive")
	}
	if c.WriteBuffering < 1 {
		return errors.Wrap(dberror.ErrInvalidConfiguration, "write_buffering must be at least 1")
	}
	return nil
}

// Default returns a small but workable configuration, useful for tests.
func Default() Configuration {
	return Configuration{
		SizeRatio:          4,
		MemtableCapacity:   1024,
		BloomFilterBits:    10,
		BufferPoolCapacity: 256,
		WriteBuffering:     4,
		UniformBloomBits:   false,
	}
}

// Load reads a Configuration from a JSON file, falling back to Default
// when the file does not exist.
func Load(path string) (Configuration, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Configuration{}, errors.Wrapf(dberror.ErrIoError, "reading configuration: %v", err)
	}
	var cfg Configuration
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Configuration{}, errors.Wrapf(dberror.ErrInvalidConfiguration, "parsing configuration: %v", err)
	}
	return cfg, nil
}

// Save writes cfg to path as indented JSON.
func Save(path string, cfg Configuration) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling configuration")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(dberror.ErrIoError, err.Error())
	}
	return nil
}
