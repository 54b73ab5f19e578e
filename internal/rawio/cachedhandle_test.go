package rawio

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCachedHandleReadWriteThroughEviction(t *testing.T) {
	dir := t.TempDir()
	opener := func(path string) (*os.File, error) {
		return os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	}
	cache := NewHandleCache(1, opener)
	defer cache.Close()

	pathA := filepath.Join(dir, "a.part0")
	pathB := filepath.Join(dir, "a.part1")

	a := NewCachedHandle(cache, pathA)
	b := NewCachedHandle(cache, pathB)

	if _, err := a.WriteAt([]byte("hello"), 0); err != nil {
		t.Fatalf("WriteAt a: %v", err)
	}
	// Capacity is 1: touching b evicts (and closes) a's underlying handle.
	if _, err := b.WriteAt([]byte("world"), 0); err != nil {
		t.Fatalf("WriteAt b: %v", err)
	}

	buf := make([]byte, 5)
	if _, err := a.ReadAt(buf, 0); err != nil {
		t.Fatalf("ReadAt a after eviction: %v", err)
	}
	if string(buf) != "hello" {
		t.Fatalf("ReadAt a = %q, want %q", buf, "hello")
	}
}
