// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package singlefilefs presents a single io.ReaderAt, with a known size, as
// a one-entry read-only fs.FS. It backs the copy inspection mount: the
// reconstructed bytes of a finished copy, exposed under one name so a
// WebDAV client can open and seek within it.
package singlefilefs

import (
	"io"
	"io/fs"
	"time"
)

// FS is a read-only, single-entry filesystem. Name is the sole file it
// serves; Data supplies its bytes and Size its length.
type FS struct {
	Name    string
	Data    io.ReaderAt
	Size    int64
	ModTime time.Time
}

type dir struct {
	fsys     *FS
	listDone bool
}

// File is an open handle on the FS's single entry. It supports Seek and
// ReadAt, unlike a plain sequential reader, so it can back random-access
// clients such as webdav.File.
type File struct {
	fsys *FS
	off  int64
}

func (fsys *FS) Open(name string) (fs.File, error) {
	switch name {
	default:
		return nil, fs.ErrNotExist
	case ".":
		return &dir{fsys: fsys}, nil
	case fsys.Name:
		return &File{fsys: fsys}, nil
	}
}

func (d *dir) Read(p []byte) (n int, err error) {
	return 0, fs.ErrInvalid
}

func (d *dir) Stat() (fs.FileInfo, error) {
	return d, nil
}

func (d *dir) Close() error {
	return nil
}

func (d *dir) ReadDir(count int) ([]fs.DirEntry, error) {
	if d.listDone {
		return nil, io.EOF
	}
	d.listDone = true
	return []fs.DirEntry{&File{fsys: d.fsys}}, nil
}

func (f *File) Read(p []byte) (n int, err error) {
	n, err = f.fsys.Data.ReadAt(p, f.off)
	f.off += int64(n)
	return n, err
}

func (f *File) ReadAt(p []byte, off int64) (n int, err error) {
	return f.fsys.Data.ReadAt(p, off)
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	var newOff int64
	switch whence {
	case io.SeekStart:
		newOff = offset
	case io.SeekCurrent:
		newOff = f.off + offset
	case io.SeekEnd:
		newOff = f.fsys.Size + offset
	default:
		return 0, fs.ErrInvalid
	}
	if newOff < 0 {
		return 0, fs.ErrInvalid
	}
	f.off = newOff
	return f.off, nil
}

func (f *File) Stat() (fs.FileInfo, error) {
	return f, nil
}

func (f *File) Close() error {
	return nil
}

func (f *File) Size() int64 {
	return f.fsys.Size
}

func (f *File) Name() string {
	return f.fsys.Name
}
func (f *File) Mode() fs.FileMode {
	return 0o444
}
func (f *File) Type() fs.FileMode {
	return 0
}
func (f *File) Info() (fs.FileInfo, error) {
	return f, nil
}
func (f *File) ModTime() time.Time {
	return f.fsys.ModTime
}
func (f *File) IsDir() bool {
	return false
}
func (f *File) Sys() any {
	return nil
}

func (d *dir) Name() string {
	return "."
}
func (d *dir) Size() int64 {
	return 0
}
func (d *dir) Mode() fs.FileMode {
	return 0o555 | fs.ModeDir
}
func (d *dir) ModTime() time.Time {
	return d.fsys.ModTime
}
func (d *dir) IsDir() bool {
	return true
}
func (d *dir) Sys() any {
	return nil
}
