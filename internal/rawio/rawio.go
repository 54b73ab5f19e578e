// Package rawio implements the Raw Data Reader/Writer capability set:
// byte-addressable random-access I/O against a volume device, an image
// file, a fragment file, or a reconstructed multi-segment copy.
package rawio

import (
	"fmt"
	"os"
)

// ReaderWriter is the common capability set every variant exposes: offset
// reads and writes, a flush, a liveness check, and the underlying handle
// for callers (e.g. the resource manager) that need OS-level access.
type ReaderWriter interface {
	ReadAt(buf []byte, off int64) (n int, err error)
	WriteAt(buf []byte, off int64) (n int, err error)
	Flush() error
	Ok() bool
	Handle() *os.File
	Close() error
}

// File is a direct positional reader/writer over a volume device or a
// plain image file: offsets map straight through to pread/pwrite.
type File struct {
	f *os.File
}

// OpenFile opens path for reading and writing, used for volumes and
// single-segment image copies.
func OpenFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	return &File{f: f}, nil
}

// CreateFile truncates (or creates) path to size bytes and opens it for
// reading and writing.
func CreateFile(path string, size int64) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, err
	}
	return &File{f: f}, nil
}

func (r *File) ReadAt(buf []byte, off int64) (int, error)  { return r.f.ReadAt(buf, off) }
func (r *File) WriteAt(buf []byte, off int64) (int, error) { return r.f.WriteAt(buf, off) }
func (r *File) Flush() error                                { return r.f.Sync() }
func (r *File) Ok() bool                                    { return r.f != nil }
func (r *File) Handle() *os.File                            { return r.f }
func (r *File) Close() error                                { return r.f.Close() }

// Fragment presents an underlying ReaderWriter as if it began at
// volumeOffset: callers address it in the volume's coordinate system and
// Fragment subtracts the shift before touching the file. It is how a
// bin_fragmented copy's per-segment files stay addressable by absolute
// volume offset without the session pipeline knowing about segmentation.
type Fragment struct {
	inner        ReaderWriter
	volumeOffset int64
	length       int64
}

// NewFragment wraps inner so offsets in [volumeOffset, volumeOffset+length)
// map to inner offsets [0, length).
func NewFragment(inner ReaderWriter, volumeOffset, length int64) *Fragment {
	return &Fragment{inner: inner, volumeOffset: volumeOffset, length: length}
}

func (r *Fragment) translate(off int64) (int64, error) {
	shifted := off - r.volumeOffset
	if shifted < 0 || shifted >= r.length {
		return 0, fmt.Errorf("rawio: offset %d outside fragment [%d,%d)", off, r.volumeOffset, r.volumeOffset+r.length)
	}
	return shifted, nil
}

func (r *Fragment) ReadAt(buf []byte, off int64) (int, error) {
	shifted, err := r.translate(off)
	if err != nil {
		return 0, err
	}
	return r.inner.ReadAt(buf, shifted)
}

func (r *Fragment) WriteAt(buf []byte, off int64) (int, error) {
	shifted, err := r.translate(off)
	if err != nil {
		return 0, err
	}
	return r.inner.WriteAt(buf, shifted)
}

func (r *Fragment) Flush() error     { return r.inner.Flush() }
func (r *Fragment) Ok() bool         { return r.inner.Ok() }
func (r *Fragment) Handle() *os.File { return r.inner.Handle() }
func (r *Fragment) Close() error     { return r.inner.Close() }
