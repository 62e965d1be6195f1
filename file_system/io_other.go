//go:build !linux

package file_system

import "os"

// directIOSupported is false on platforms without O_DIRECT; the
// fallback below uses buffered I/O with an explicit Sync per write,
// per spec.md §9's documented fallback.
const directIOSupported = false

func openForRead(path string, directIO bool) (*os.File, error) {
	return os.OpenFile(path, os.O_RDONLY, 0)
}

func openForWrite(path string, directIO bool) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
}

func syncAfterWrite(file *os.File, directIO bool) error {
	return file.Sync()
}
