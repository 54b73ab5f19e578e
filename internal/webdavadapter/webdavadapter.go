// Package webdavadapter adapts a read-only fs.FS into a webdav.FileSystem,
// so it can be served over WebDAV for inspection without handing out any
// write access. It backs the copy inspection mount.
package webdavadapter

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/webdav"
)

type FileSystem struct {
	Inner fs.FS
}

// The three create/update/delete calls are stubbed out: this adapter only
// ever serves a read-only inspection view.

func (*FileSystem) Mkdir(ctx context.Context, name string, perm os.FileMode) error {
	return fs.ErrPermission
}

func (*FileSystem) RemoveAll(ctx context.Context, name string) error {
	return fs.ErrPermission
}

func (*FileSystem) Rename(ctx context.Context, oldName, newName string) error {
	return fs.ErrPermission
}

func (fsys *FileSystem) OpenFile(_ context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE) != 0 {
		return nil, fs.ErrPermission
	}
	f, err := fsys.Inner.Open(pathCvt(name))
	if errors.Is(err, fs.ErrInvalid) {
		return nil, fs.ErrNotExist
	} else if err != nil {
		slog.Error("inspection mount open failed", "name", name, "err", err)
		return nil, err
	}
	return &File{Inner: f}, nil
}

func (fsys *FileSystem) Stat(_ context.Context, name string) (os.FileInfo, error) {
	s, err := fs.Stat(fsys.Inner, pathCvt(name))
	if errors.Is(err, fs.ErrInvalid) {
		err = fs.ErrNotExist
	}
	return s, err
}

// File is guaranteed to be returned by [FileSystem.OpenFile].
type File struct {
	Inner fs.File
}

func (f *File) Close() error {
	return f.Inner.Close()
}

func (f *File) Read(p []byte) (n int, err error) {
	return f.Inner.Read(p)
}

func (f *File) Readdir(count int) ([]fs.FileInfo, error) {
	if rdf, ok := f.Inner.(fs.ReadDirFile); ok {
		dirEntrySlice, err := rdf.ReadDir(count)
		fileInfoSlice := make([]fs.FileInfo, 0, len(dirEntrySlice))
		for _, de := range dirEntrySlice {
			fileInfoSlice = append(fileInfoSlice, &FileInfo{Inner: de})
		}
		return fileInfoSlice, err
	}
	return nil, io.EOF
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	if s, ok := f.Inner.(io.Seeker); ok {
		return s.Seek(offset, whence)
	}
	panic("webdavadapter: inner file does not support Seek")
}

func (f *File) Stat() (fs.FileInfo, error) {
	return f.Inner.Stat()
}

func (f *File) Write(p []byte) (n int, err error) {
	return 0, fs.ErrPermission
}

type FileInfo struct {
	Inner  fs.DirEntry
	once   sync.Once
	inner2 fs.FileInfo
}

func (i *FileInfo) expensive() {
	i.once.Do(func() {
		i.inner2, _ = i.Inner.Info()
	})
}

func (i *FileInfo) Name() string {
	return i.Inner.Name()
}

func (i *FileInfo) Size() int64 {
	i.expensive()
	if i.inner2 == nil {
		return 0
	}
	return i.inner2.Size()
}

func (i *FileInfo) Mode() fs.FileMode {
	if i.Inner.Type() == fs.ModeDir {
		return fs.ModeDir | 0o555
	}
	return 0o444
}

func (i *FileInfo) ModTime() time.Time {
	i.expensive()
	if i.inner2 == nil {
		return time.Unix(0, 0)
	}
	return i.inner2.ModTime()
}

func (i *FileInfo) IsDir() bool {
	return i.Inner.IsDir()
}

func (i *FileInfo) Sys() any {
	return nil
}

func pathCvt(p string) string {
	if p == "/" {
		return "."
	}
	return strings.Trim(p, "/")
}
