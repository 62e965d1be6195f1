//go:build linux

package file_system

import (
	"os"

	"golang.org/x/sys/unix"
)

// directIOSupported is true on platforms where O_DIRECT is available.
const directIOSupported = true

func openForRead(path string, directIO bool) (*os.File, error) {
	flags := os.O_RDONLY
	if directIO {
		flags |= unix.O_DIRECT | unix.O_SYNC
	}
	return os.OpenFile(path, flags, 0)
}

func openForWrite(path string, directIO bool) (*os.File, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if directIO {
		flags |= unix.O_DIRECT | unix.O_SYNC
	}
	return os.OpenFile(path, flags, 0o644)
}

// syncAfterWrite is a no-op when O_DIRECT|O_SYNC already guarantees
// durability of the write that just completed.
func syncAfterWrite(file *os.File, directIO bool) error {
	if directIO {
		return nil
	}
	return file.Sync()
}
