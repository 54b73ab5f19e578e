//go:build unix && !linux && !darwin

package fileid

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"syscall"

	"github.com/cespare/xxhash/v2"
)

// Get returns a native identity for the volume or copy file at path. This
// platform's syscall.Stat_t carries no birth time, so the identity is
// inode number plus a hash of the filename alone.
func Get(path string) (ID, error) {
	inf, err := os.Stat(path)
	if err != nil {
		return ID{}, err
	}
	stat, ok := inf.Sys().(*syscall.Stat_t)
	if !ok {
		return ID{}, ErrNotOS
	}

	var id ID

	// ID = (64 bits of inode number) + (32 bits of hash of filename)
	binary.BigEndian.PutUint64(id[:], stat.Ino)
	var h xxhash.Digest
	h.WriteString(filepath.Base(path))
	binary.BigEndian.PutUint32(id[8:], uint32(h.Sum64()))

	return id, nil
}
