//go:build unix

package digest

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

type mapping struct {
	f    *os.File
	data []byte
}

func (m mapping) bytes() []byte { return m.data }

func (m mapping) close() error {
	if m.data != nil {
		if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
			m.f.Close()
			return err
		}
		if err := unix.Munmap(m.data); err != nil {
			m.f.Close()
			return err
		}
	}
	return m.f.Close()
}

// Open memory-maps an existing digest sidecar of exactly count*Size
// bytes for read-write access.
func Open(path string, count int) (*Table, error) {
	return mapFile(path, count, false)
}

// Create truncates (or extends) the sidecar at path to count*Size bytes
// and memory-maps it for read-write access.
func Create(path string, count int) (*Table, error) {
	return mapFile(path, count, true)
}

func mapFile(path string, count int, create bool) (*Table, error) {
	size := int64(count) * Size
	flag := os.O_RDWR
	if create {
		flag |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, err
	}
	if create {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, err
		}
	} else {
		fi, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, err
		}
		if fi.Size() != size {
			f.Close()
			return nil, fmt.Errorf("digest: sidecar %s has %d bytes, want %d for %d slots", path, fi.Size(), size, count)
		}
	}

	var data []byte
	if size > 0 {
		data, err = unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			f.Close()
			return nil, err
		}
	}
	return &Table{mapping: mapping{f: f, data: data}, count: count}, nil
}
