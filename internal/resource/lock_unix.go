//go:build unix

package resource

import (
	"os"

	"golang.org/x/sys/unix"
)

func lockExclusive(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

func unlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}

func fallocate(f *os.File, length int64) error {
	return unix.Fallocate(int(f.Fd()), 0, 0, length)
}
