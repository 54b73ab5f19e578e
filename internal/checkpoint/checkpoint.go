// Package checkpoint persists and restores per-session bitmaps so a task
// can resume a backup or restore from the first unprocessed block after
// a crash, instead of starting over.
package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/xuranus/volumebackup/internal/bitmap"
)

// Store manages checkpoint sidecars under one directory.
type Store struct {
	Dir string
}

// New creates a Store rooted at dir. dir must already exist.
func New(dir string) *Store {
	return &Store{Dir: dir}
}

func (s *Store) path(copyName string, index int) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%s.%d.checkpoint.bin", copyName, index))
}

// SaveBitmap atomically writes bm's bytes to the checkpoint sidecar for
// (copyName, index).
func (s *Store) SaveBitmap(copyName string, index int, bm *bitmap.Bitmap) error {
	return bm.WriteFile(s.path(copyName, index))
}

// LoadBitmap reads the checkpoint sidecar for (copyName, index), sized
// for blockCount bits. It returns an error satisfying IsNotExist if no
// checkpoint has been written yet.
func (s *Store) LoadBitmap(copyName string, index int, blockCount int) (*bitmap.Bitmap, error) {
	return bitmap.LoadFile(blockCount, s.path(copyName, index))
}

// IsNotExist reports whether err indicates no checkpoint file exists
// yet — a normal first run, not a failure.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

// Clear removes every checkpoint and digest sidecar belonging to
// copyName, called when a task finishes successfully with
// clear_checkpoints_on_succeed set. Matching is done with doublestar so
// a single glob covers every segment index without the caller having to
// enumerate them.
func (s *Store) Clear(copyName string) error {
	patterns := []string{
		fmt.Sprintf("%s.*.checkpoint.bin", copyName),
		fmt.Sprintf("%s.*.sha256.meta.bin", copyName),
	}
	fsys := os.DirFS(s.Dir)
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return fmt.Errorf("checkpoint: glob %s: %w", pattern, err)
		}
		for _, m := range matches {
			if err := os.Remove(filepath.Join(s.Dir, m)); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("checkpoint: remove %s: %w", m, err)
			}
		}
	}
	return nil
}
