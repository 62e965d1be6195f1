// Package dberror defines the sentinel error taxonomy shared by every
// component of the storage engine.
package dberror

import "errors"

var (
	// ErrOom is returned when the buffer pool needs room for a page but
	// every resident page is pinned. The intrusive list and the hash
	// table panic instead when pushed past their fixed capacity.
	ErrOom = errors.New("dberror: out of memory")

	// ErrIoError wraps failures from the underlying file system.
	ErrIoError = errors.New("dberror: io error")

	// ErrCorruptSst is returned when an SST's metadata page fails its
	// magic-number or offset sanity checks.
	ErrCorruptSst = errors.New("dberror: corrupt sst")

	// ErrInvalidScanRange is returned when a scan's lower bound is
	// strictly greater than its upper bound.
	ErrInvalidScanRange = errors.New("dberror: invalid scan range")

	// ErrInvalidConfiguration is returned by Configuration.Validate.
	ErrInvalidConfiguration = errors.New("dberror: invalid configuration")

	// ErrMemTableFull is returned when a put would exceed the
	// memtable's configured capacity; callers are expected to flush
	// and retry.
	ErrMemTableFull = errors.New("dberror: memtable full")
)
