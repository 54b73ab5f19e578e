package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xuranus/volumebackup/internal/bitmap"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	bm := bitmap.New(20)
	bm.Set(3)
	bm.Set(19)

	if err := s.SaveBitmap("vol1", 0, bm); err != nil {
		t.Fatalf("SaveBitmap: %v", err)
	}
	loaded, err := s.LoadBitmap("vol1", 0, 20)
	if err != nil {
		t.Fatalf("LoadBitmap: %v", err)
	}
	if !loaded.Test(3) || !loaded.Test(19) {
		t.Fatal("loaded checkpoint missing expected bits")
	}
}

func TestLoadMissingIsNotExist(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.LoadBitmap("vol1", 0, 20)
	if err == nil || !IsNotExist(err) {
		t.Fatalf("LoadBitmap on missing checkpoint = %v, want an IsNotExist error", err)
	}
}

func TestClearRemovesMatchingSidecars(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	bm := bitmap.New(8)
	for _, idx := range []int{0, 1, 2} {
		if err := s.SaveBitmap("vol1", idx, bm); err != nil {
			t.Fatal(err)
		}
	}
	digestPath := filepath.Join(dir, "vol1.0.sha256.meta.bin")
	if err := os.WriteFile(digestPath, []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatal(err)
	}
	otherCopy := filepath.Join(dir, "vol2.0.checkpoint.bin")
	if err := os.WriteFile(otherCopy, []byte{1}, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := s.Clear("vol1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	for _, idx := range []int{0, 1, 2} {
		if _, err := os.Stat(s.path("vol1", idx)); !os.IsNotExist(err) {
			t.Fatalf("checkpoint for segment %d still exists after Clear", idx)
		}
	}
	if _, err := os.Stat(digestPath); !os.IsNotExist(err) {
		t.Fatal("digest sidecar still exists after Clear")
	}
	if _, err := os.Stat(otherCopy); err != nil {
		t.Fatal("Clear removed a different copy's checkpoint")
	}
}
