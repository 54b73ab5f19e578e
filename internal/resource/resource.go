// Package resource implements the Resource Manager: scoped acquisition
// and guaranteed release of the on-disk storage backing a copy, plus
// advisory locking of the volume a task is working against.
package resource

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/xuranus/volumebackup/internal/fileid"
)

// Format mirrors the Copy's copy_format attribute.
type Format int

const (
	FormatBin Format = iota
	FormatBinFragmented
	FormatImage
	FormatVHDFixed
	FormatVHDDynamic
	FormatVHDXFixed
	FormatVHDXDynamic
)

// SegmentPlan describes one data file to create or verify: its path and
// the byte length it must hold.
type SegmentPlan struct {
	Path   string
	Length int64
}

// lockedVolumes tracks the native identity of every volume currently
// locked by this process, catching a second task started against the
// same underlying device or file, including through a different
// directory path with the same base name (a bind mount or a symlinked
// parent directory), before it ever reaches the OS-level flock below.
// fileid hashes the base name into the identity, so a path with a
// different base name is not caught here and is left to the flock.
var (
	lockedVolumesMu sync.Mutex
	lockedVolumes   = map[fileid.ID]string{}
)

// Manager creates, attaches, and detaches the storage a task needs, and
// guarantees release of anything it acquired regardless of how the task
// exits. Attach/detach here is limited to what is addressable in pure
// Go: preallocating and GPT-framing container files. Exposing them as OS
// block devices (loopback, device-mapper, VHD attach) is a mount
// provider's job and out of scope.
type Manager struct {
	volumeLockFile *os.File
	lockedID       *fileid.ID
	attached       []string // paths whose GPT/container state was initialized, for logging on detach
}

// New creates an unattached Manager.
func New() *Manager {
	return &Manager{}
}

// LockVolume takes an advisory exclusive lock on volumePath for the
// lifetime of the task, preventing two tasks from backing up or
// restoring the same volume concurrently. The lock is released by
// Close.
func (m *Manager) LockVolume(volumePath string) error {
	id, err := fileid.Get(volumePath)
	if err != nil && !errors.Is(err, fileid.ErrNotOS) {
		return fmt.Errorf("resource: identify volume %s: %w", volumePath, err)
	}
	if err == nil {
		lockedVolumesMu.Lock()
		if other, locked := lockedVolumes[id]; locked {
			lockedVolumesMu.Unlock()
			return fmt.Errorf("resource: volume %s is already locked by this process as %s", volumePath, other)
		}
		lockedVolumes[id] = volumePath
		lockedVolumesMu.Unlock()
	}

	f, openErr := os.OpenFile(volumePath, os.O_RDWR, 0)
	if openErr != nil {
		m.forgetLockedID(id, err == nil)
		return fmt.Errorf("resource: open volume for locking: %w", openErr)
	}
	if lockErr := lockExclusive(f); lockErr != nil {
		f.Close()
		m.forgetLockedID(id, err == nil)
		return fmt.Errorf("resource: volume %s is locked by another task: %w", volumePath, lockErr)
	}
	m.volumeLockFile = f
	if err == nil {
		m.lockedID = &id
	}
	return nil
}

func (m *Manager) forgetLockedID(id fileid.ID, haveID bool) {
	if !haveID {
		return
	}
	lockedVolumesMu.Lock()
	delete(lockedVolumes, id)
	lockedVolumesMu.Unlock()
}

// CreateBackupStorage creates the on-disk container(s) for a backup
// according to format: for fragmented bin, one truncated file per
// segment; for image and vhd/vhdx formats, a single file sized to the
// whole volume (vhd/vhdx additionally get a GPT partition table written
// covering the volume). Preallocation via fallocate surfaces NO_SPACE at
// creation time rather than mid-write.
func (m *Manager) CreateBackupStorage(format Format, segments []SegmentPlan, volumeSize int64) error {
	switch format {
	case FormatBinFragmented, FormatBin:
		for _, seg := range segments {
			if err := createAndPreallocate(seg.Path, seg.Length); err != nil {
				return err
			}
		}
	case FormatImage:
		if len(segments) != 1 {
			return errors.New("resource: image format requires exactly one segment")
		}
		if err := createAndPreallocate(segments[0].Path, segments[0].Length); err != nil {
			return err
		}
	case FormatVHDFixed, FormatVHDDynamic, FormatVHDXFixed, FormatVHDXDynamic:
		if len(segments) != 1 {
			return errors.New("resource: virtual disk formats require exactly one segment")
		}
		path := segments[0].Path
		if err := createAndPreallocate(path, segments[0].Length); err != nil {
			return err
		}
		if err := writeGPT(path, uint64(volumeSize)); err != nil {
			return fmt.Errorf("resource: initialize GPT on %s: %w", path, err)
		}
		m.attached = append(m.attached, path)
		slog.Info("resource manager initialized virtual disk container", "path", path, "format", format)
	default:
		return fmt.Errorf("resource: unknown copy format %d", format)
	}
	return nil
}

// VerifyRestoreStorage asserts that every segment file exists and has at
// least the expected length, failing fast before a restore task starts
// its pipeline.
func (m *Manager) VerifyRestoreStorage(segments []SegmentPlan) error {
	for _, seg := range segments {
		fi, err := os.Stat(seg.Path)
		if err != nil {
			return fmt.Errorf("resource: restore segment %s: %w", seg.Path, err)
		}
		if fi.Size() < seg.Length {
			return fmt.Errorf("resource: restore segment %s is %d bytes, want at least %d", seg.Path, fi.Size(), seg.Length)
		}
	}
	return nil
}

// Close detaches anything this Manager attached and releases the volume
// lock. It is safe to call multiple times and is always called on every
// task exit path, success or failure.
func (m *Manager) Close() error {
	var firstErr error
	for _, path := range m.attached {
		slog.Info("resource manager releasing virtual disk container", "path", path)
	}
	m.attached = nil
	if m.volumeLockFile != nil {
		if err := unlock(m.volumeLockFile); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := m.volumeLockFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.volumeLockFile = nil
	}
	if m.lockedID != nil {
		m.forgetLockedID(*m.lockedID, true)
		m.lockedID = nil
	}
	return firstErr
}

func createAndPreallocate(path string, length int64) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("resource: create %s: %w", path, err)
	}
	defer f.Close()

	if err := fallocate(f, length); err != nil {
		// Fallocate is a best-effort early NO_SPACE detector; some
		// filesystems (overlayfs, tmpfs on older kernels) reject it
		// outright, so fall back to a plain truncate instead of
		// failing the whole task over an optimization.
		if err := f.Truncate(length); err != nil {
			return fmt.Errorf("resource: size %s to %d bytes: %w", path, length, err)
		}
	}
	return nil
}
