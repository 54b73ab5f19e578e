// Package mount exposes a finished copy's reconstructed bytes as a
// read-only WebDAV share, for inspection without a full restore. It
// wires copymeta (segment layout), rawio (segment files and their
// concatenation), singlefilefs (one-entry filesystem), and
// webdavadapter (the read-only fs.FS-to-WebDAV bridge) into a single
// servable handler.
package mount

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/xuranus/volumebackup/internal/copymeta"
	"github.com/xuranus/volumebackup/internal/rawio"
	"github.com/xuranus/volumebackup/internal/sectionreader"
	"github.com/xuranus/volumebackup/internal/singlefilefs"
	"github.com/xuranus/volumebackup/internal/webdavadapter"
	"golang.org/x/net/webdav"
)

// EntryName is the single filename a mounted copy appears under.
const EntryName = "volume.img"

// handleCacheCapacity bounds how many segment file descriptors a mount
// keeps open at once; a copy's part* files can badly outnumber this on
// a heavily fragmented bin copy, so the mount opens them lazily through
// the same bounded rawio.HandleCache the backup and restore tasks use.
const handleCacheCapacity = 16

// Mount serves one copy's reconstructed volume bytes read-only over
// WebDAV. Callers never see the copy's individual segment files; they
// see one flat byte stream of VolumeSize, seekable like a regular file.
type Mount struct {
	cache  *rawio.HandleCache
	server *http.Server
	addr   string
}

// Open builds a Mount for the copy named copyName within metaDir, whose
// segment data files live in dataDir.
func Open(metaDir, dataDir, copyName string) (*Mount, error) {
	meta, err := copymeta.Load(metaDir, dataDir, copyName)
	if err != nil {
		return nil, fmt.Errorf("mount: load copy %s: %w", copyName, err)
	}

	cache := rawio.NewHandleCache(handleCacheCapacity, func(path string) (*os.File, error) {
		return os.Open(path)
	})

	segs := make([]struct {
		Offset int64
		Length int64
		Reader io.ReaderAt
	}, len(meta.Segments))

	for i, seg := range meta.Segments {
		path := copymeta.DataPath(dataDir, seg)
		if _, err := os.Stat(path); err != nil {
			cache.Close()
			return nil, fmt.Errorf("mount: open segment %d: %w", seg.Index, err)
		}
		handle := rawio.NewCachedHandle(cache, path)
		// Section flattens away any nested io.SectionReader a caller's
		// reader might already be wrapped in (e.g. a segment handle
		// reused from another view), so the mount's own bounds are the
		// only ones ever re-checked on each read.
		segs[i] = struct {
			Offset int64
			Length int64
			Reader io.ReaderAt
		}{int64(seg.Offset), int64(seg.Length), sectionreader.Section(handle, 0, int64(seg.Length))}
	}

	multi, err := rawio.NewMultiReaderAt(segs)
	if err != nil {
		cache.Close()
		return nil, fmt.Errorf("mount: assemble segments for %s: %w", copyName, err)
	}

	fsys := &singlefilefs.FS{
		Name:    EntryName,
		Data:    multi,
		Size:    multi.Size(),
		ModTime: time.Now(),
	}

	davFS := &webdavadapter.FileSystem{Inner: fsys}
	handler := &webdav.Handler{
		FileSystem: davFS,
		LockSystem: webdav.NewMemLS(),
	}

	return &Mount{
		cache:  cache,
		server: &http.Server{Handler: handler},
	}, nil
}

// Serve starts listening on addr (e.g. "127.0.0.1:0") and blocks until
// the mount is closed or the listener fails.
func (m *Mount) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("mount: listen: %w", err)
	}
	m.addr = ln.Addr().String()
	err = m.server.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Addr returns the address Serve bound to, valid only once Serve has
// started listening.
func (m *Mount) Addr() string {
	return m.addr
}

// Close shuts down the HTTP server and releases every open segment
// handle.
func (m *Mount) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := m.server.Shutdown(ctx)
	m.cache.Close()
	return err
}
