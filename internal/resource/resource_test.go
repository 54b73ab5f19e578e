package resource

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCreateBackupStorageBinFragmented(t *testing.T) {
	dir := t.TempDir()
	segs := []SegmentPlan{
		{Path: filepath.Join(dir, "c.copydata.bin"), Length: 1024},
		{Path: filepath.Join(dir, "c.copydata.bin.part1"), Length: 512},
	}
	m := New()
	defer m.Close()
	if err := m.CreateBackupStorage(FormatBinFragmented, segs, 1536); err != nil {
		t.Fatalf("CreateBackupStorage: %v", err)
	}
	for _, s := range segs {
		fi, err := os.Stat(s.Path)
		if err != nil {
			t.Fatalf("Stat(%s): %v", s.Path, err)
		}
		if fi.Size() != s.Length {
			t.Fatalf("%s size = %d, want %d", s.Path, fi.Size(), s.Length)
		}
	}
}

func TestLockVolumeRejectsSameFileTwice(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "volume.img")
	if err := os.WriteFile(path, make([]byte, 4096), 0o644); err != nil {
		t.Fatal(err)
	}

	first := New()
	if err := first.LockVolume(path); err != nil {
		t.Fatalf("first LockVolume: %v", err)
	}
	defer first.Close()

	second := New()
	if err := second.LockVolume(path); err == nil {
		t.Fatal("second LockVolume on the same volume succeeded")
	}

	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	third := New()
	if err := third.LockVolume(path); err != nil {
		t.Fatalf("LockVolume after release: %v", err)
	}
	defer third.Close()
}

func TestVerifyRestoreStorage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.copydata.img")
	if err := os.WriteFile(path, make([]byte, 2048), 0o644); err != nil {
		t.Fatal(err)
	}
	m := New()
	if err := m.VerifyRestoreStorage([]SegmentPlan{{Path: path, Length: 2048}}); err != nil {
		t.Fatalf("VerifyRestoreStorage: %v", err)
	}
	if err := m.VerifyRestoreStorage([]SegmentPlan{{Path: path, Length: 4096}}); err == nil {
		t.Fatal("VerifyRestoreStorage accepted an undersized file")
	}
	if err := m.VerifyRestoreStorage([]SegmentPlan{{Path: filepath.Join(dir, "missing"), Length: 1}}); err == nil {
		t.Fatal("VerifyRestoreStorage accepted a missing file")
	}
}
