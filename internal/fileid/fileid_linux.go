// Copyright (c) Elliot Nunn
// Licensed under the MIT license

//go:build linux

package fileid

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"syscall"
	"unsafe"

	"github.com/cespare/xxhash/v2"
)

// Get returns a native identity for the volume or copy file at path. It
// prefers statx's birth time, falling back to the inode+name hash alone
// if the kernel or filesystem doesn't report one.
func Get(path string) (ID, error) {
	f, err := os.Open(path)
	if err != nil {
		return ID{}, err
	}
	defer f.Close()

	conn, err := f.SyscallConn()
	if err != nil {
		return ID{}, err
	}

	var stat statx_t
	var inerr error
	err = conn.Control(func(fd uintptr) {
		inerr = statx(fd, "",
			at_empty_path|at_statx_force_sync,
			statx_btime|statx_mtime|statx_ino,
			&stat)
	})
	if err != nil {
		return ID{}, err
	} else if inerr != nil || stat.Mask&statx_btime == 0 {
		return idFromStat(f, path)
	}

	var id ID
	binary.BigEndian.PutUint64(id[:], stat.Ino)
	var h xxhash.Digest
	binary.Write(&h, binary.BigEndian, stat.Btime.Sec)
	binary.Write(&h, binary.BigEndian, uint32(stat.Btime.Nsec))
	h.WriteString(filepath.Base(path))
	binary.BigEndian.PutUint32(id[8:], uint32(h.Sum64()))
	return id, nil
}

func idFromStat(f *os.File, path string) (ID, error) {
	inf, err := f.Stat()
	if err != nil {
		return ID{}, err
	}
	stat, ok := inf.Sys().(*syscall.Stat_t)
	if !ok {
		return ID{}, ErrNotOS
	}
	var id ID
	binary.BigEndian.PutUint64(id[:], stat.Ino)
	var h xxhash.Digest
	h.WriteString(filepath.Base(path))
	binary.BigEndian.PutUint32(id[8:], uint32(h.Sum64()))
	return id, nil
}

const (
	at_empty_path       = 0x1000
	at_statx_force_sync = 0x2000
	statx_btime         = 0x00000800
	statx_mtime         = 0x00000040
	statx_ino           = 0x00000100
)

func statx(dirfd uintptr, path string, flags uintptr, mask uintptr, stat *statx_t) (err error) {
	var p0 *byte
	p0, err = syscall.BytePtrFromString(path)
	if err != nil {
		return
	}
	_, _, e1 := syscall.Syscall6(332,
		dirfd,
		uintptr(unsafe.Pointer(p0)),
		flags,
		mask,
		uintptr(unsafe.Pointer(stat)),
		0)
	if e1 != 0 {
		return e1
	}
	return nil
}

type statx_t struct {
	Mask       uint32
	Blksize    uint32
	Attributes uint64
	Nlink      uint32
	Uid        uint32
	Gid        uint32
	Mode       uint16

	Ino                       uint64
	Size                      uint64
	Blocks                    uint64
	Attributes_mask           uint64
	Atime                     statx_timestamp
	Btime                     statx_timestamp
	Ctime                     statx_timestamp
	Mtime                     statx_timestamp
	Rdev_major                uint32
	Rdev_minor                uint32
	Dev_major                 uint32
	Dev_minor                 uint32
	Mnt_id                    uint64
	Dio_mem_align             uint32
	Dio_offset_align          uint32
	Subvol                    uint64
	Atomic_write_unit_min     uint32
	Atomic_write_unit_max     uint32
	Atomic_write_segments_max uint32
	Dio_read_offset_align     uint32
	Atomic_write_unit_max_opt uint32
}

type statx_timestamp struct {
	Sec  int64
	Nsec uint32
}
