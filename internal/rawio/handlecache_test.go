package rawio

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHandleCacheOpensAndReuses(t *testing.T) {
	dir := t.TempDir()
	opens := 0
	opener := func(path string) (*os.File, error) {
		opens++
		return os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	}
	c := NewHandleCache(2, opener)
	defer c.CloseAll()

	p1 := filepath.Join(dir, "a.part1")
	f1, err := c.Get(p1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	f1b, err := c.Get(p1)
	if err != nil {
		t.Fatalf("Get again: %v", err)
	}
	if f1 != f1b {
		t.Fatal("Get for the same path returned different handles")
	}
	if opens != 1 {
		t.Fatalf("opener called %d times, want 1", opens)
	}
}

func TestHandleCacheCloseAll(t *testing.T) {
	dir := t.TempDir()
	opener := func(path string) (*os.File, error) {
		return os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	}
	c := NewHandleCache(2, opener)
	f, err := c.Get(filepath.Join(dir, "a.part1"))
	if err != nil {
		t.Fatal(err)
	}
	c.CloseAll()
	if err := f.Close(); err == nil {
		t.Fatal("handle was not closed by CloseAll")
	}
}
