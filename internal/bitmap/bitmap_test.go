package bitmap

import (
	"path/filepath"
	"testing"
)

func TestSetTestFirst(t *testing.T) {
	b := New(10)
	if got := b.First(); got != 0 {
		t.Fatalf("First() on empty bitmap = %d, want 0", got)
	}
	b.Set(0)
	b.Set(1)
	b.Set(3)
	if got := b.First(); got != 2 {
		t.Fatalf("First() = %d, want 2", got)
	}
	if !b.Test(3) {
		t.Fatal("Test(3) = false, want true")
	}
	if b.Test(2) {
		t.Fatal("Test(2) = true, want false")
	}
}

func TestAllSet(t *testing.T) {
	b := New(13) // spans two bytes, 5 bits in the second
	if b.AllSet() {
		t.Fatal("AllSet() true on empty bitmap")
	}
	for i := 0; i < 13; i++ {
		b.Set(i)
	}
	if !b.AllSet() {
		t.Fatal("AllSet() false after setting every bit")
	}
	if got := b.First(); got != 13 {
		t.Fatalf("First() = %d, want 13 (Len)", got)
	}
}

func TestPersistRoundTrip(t *testing.T) {
	b := New(17)
	b.Set(0)
	b.Set(16)
	path := filepath.Join(t.TempDir(), "session0.checkpoint.bin")
	if err := b.WriteFile(path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	loaded, err := LoadFile(17, path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !loaded.Test(0) || !loaded.Test(16) {
		t.Fatal("loaded bitmap missing expected set bits")
	}
	if loaded.Test(1) {
		t.Fatal("loaded bitmap has unexpected set bit")
	}
}

func TestLoadSizeMismatch(t *testing.T) {
	b := New(64)
	raw := b.Bytes()
	if _, err := Load(65, raw); err == nil {
		t.Fatal("Load with mismatched bit count did not error")
	}
}

func TestSetOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Set out of range did not panic")
		}
	}()
	New(4).Set(4)
}
