package blockqueue

import (
	"sync"
	"testing"
	"time"
)

func TestPushPopFIFO(t *testing.T) {
	q := New(4)
	for i := 0; i < 3; i++ {
		if !q.BlockingPush(Block{Index: i}) {
			t.Fatalf("BlockingPush(%d) = false", i)
		}
	}
	for i := 0; i < 3; i++ {
		v, ok := q.BlockingPop()
		if !ok {
			t.Fatalf("BlockingPop() ok = false at i=%d", i)
		}
		if v.Index != i {
			t.Fatalf("BlockingPop() = %d, want %d (FIFO order)", v.Index, i)
		}
	}
}

func TestFinishDrainsRemainingThenFalse(t *testing.T) {
	q := New(4)
	q.BlockingPush(Block{Index: 1})
	q.BlockingPush(Block{Index: 2})
	q.Finish()

	v, ok := q.BlockingPop()
	if !ok || v.Index != 1 {
		t.Fatalf("first pop after Finish = (%v, %v), want (1, true)", v, ok)
	}
	v, ok = q.BlockingPop()
	if !ok || v.Index != 2 {
		t.Fatalf("second pop after Finish = (%v, %v), want (2, true)", v, ok)
	}
	_, ok = q.BlockingPop()
	if ok {
		t.Fatal("pop on drained, finished queue returned ok=true")
	}
}

func TestFinishWakesBlockedPop(t *testing.T) {
	q := New(1)
	done := make(chan bool, 1)
	go func() {
		_, ok := q.BlockingPop()
		done <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	q.Finish()
	select {
	case ok := <-done:
		if ok {
			t.Fatal("BlockingPop on empty, finished queue returned ok=true")
		}
	case <-time.After(time.Second):
		t.Fatal("Finish() did not wake a blocked BlockingPop")
	}
}

func TestFinishWakesBlockedPush(t *testing.T) {
	q := New(1)
	q.BlockingPush(Block{Index: 0})
	done := make(chan bool, 1)
	go func() {
		done <- q.BlockingPush(Block{Index: 1})
	}()
	time.Sleep(10 * time.Millisecond)
	q.Finish()
	select {
	case ok := <-done:
		if ok {
			t.Fatal("BlockingPush after Finish on full queue returned true")
		}
	case <-time.After(time.Second):
		t.Fatal("Finish() did not wake a blocked BlockingPush")
	}
}

func TestFinishTwicePanics(t *testing.T) {
	q := New(1)
	q.Finish()
	defer func() {
		if recover() == nil {
			t.Fatal("second Finish() did not panic")
		}
	}()
	q.Finish()
}

func TestConcurrentProducersConsumers(t *testing.T) {
	q := New(8)
	const n = 500
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			q.BlockingPush(Block{Index: i})
		}
		q.Finish()
	}()

	seen := make([]bool, n)
	for {
		v, ok := q.BlockingPop()
		if !ok {
			break
		}
		seen[v.Index] = true
	}
	wg.Wait()
	for i, s := range seen {
		if !s {
			t.Fatalf("index %d never observed by consumer", i)
		}
	}
}
