package blockpool

import "testing"

func TestAllocateFreeRoundTrip(t *testing.T) {
	p := New(4096, 4)
	if p.FreeCount() != 4 {
		t.Fatalf("FreeCount = %d, want 4", p.FreeCount())
	}

	bufs := make([][]byte, 4)
	for i := range bufs {
		b := p.Allocate()
		if b == nil {
			t.Fatalf("Allocate() returned nil before pool exhausted (i=%d)", i)
		}
		if len(b) != 4096 {
			t.Fatalf("Allocate() returned %d bytes, want 4096", len(b))
		}
		bufs[i] = b
	}
	if p.Allocate() != nil {
		t.Fatal("Allocate() on exhausted pool did not return nil")
	}

	for _, b := range bufs {
		p.Free(b)
	}
	if p.FreeCount() != p.Capacity() {
		t.Fatalf("FreeCount = %d after freeing all, want %d", p.FreeCount(), p.Capacity())
	}
}

func TestFreeUnalignedPanics(t *testing.T) {
	p := New(16, 2)
	buf := p.Allocate()
	defer func() {
		if recover() == nil {
			t.Fatal("Free of misaligned slice did not panic")
		}
	}()
	p.Free(buf[1:9])
}

func TestDoubleFreePanics(t *testing.T) {
	p := New(16, 2)
	buf := p.Allocate()
	p.Free(buf)
	defer func() {
		if recover() == nil {
			t.Fatal("double Free did not panic")
		}
	}()
	p.Free(buf)
}
