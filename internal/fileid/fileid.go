// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package fileid computes a short, OS-native identity for a regular file or
// block device, used to detect that two volume paths refer to the same
// underlying storage. The identity includes the file's base name, so a
// path that reaches the same file under another base name (after a
// rename, or through a symlink with a different name) gets a different
// identity.
package fileid

import "errors"

// ID is an opaque per-OS file identity: inode number plus a hash of the
// filename and (where available) a creation timestamp, so that two
// different files that happen to reuse an inode number after deletion
// are still told apart.
type ID [12]byte

// ErrNotOS is returned when the platform or filesystem cannot supply a
// stable identity (e.g. not backed by a syscall.Stat_t).
var ErrNotOS = errors.New("fileid: no native identity available on this platform")
