//go:build !unix

package digest

import (
	"fmt"
	"os"
)

// mapping on non-unix platforms falls back to a plain in-memory buffer
// flushed on close; there is no portable memory-map primitive in the
// standard library alone.
type mapping struct {
	f    *os.File
	data []byte
}

func (m mapping) bytes() []byte { return m.data }

func (m mapping) close() error {
	if m.data != nil {
		if _, err := m.f.WriteAt(m.data, 0); err != nil {
			m.f.Close()
			return err
		}
	}
	return m.f.Close()
}

func Open(path string, count int) (*Table, error) {
	return mapFile(path, count, false)
}

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

	data := make([]byte, size)
	if !create {
		if _, err := f.ReadAt(data, 0); err != nil && size > 0 {
			f.Close()
			return nil, err
		}
	}
	return &Table{mapping: mapping{f: f, data: data}, count: count}, nil
}
