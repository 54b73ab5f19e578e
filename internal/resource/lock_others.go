//go:build !unix

package resource

import "os"

// lockExclusive, unlock, and fallocate have no portable implementation
// outside unix.Flock/unix.Fallocate; on other platforms locking and
// preallocation are no-ops and NO_SPACE is only detected on the first
// short write.
func lockExclusive(f *os.File) error { return nil }

func unlock(f *os.File) error { return nil }

func fallocate(f *os.File, length int64) error { return os.ErrInvalid }
